package k8s

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client provides the Kubernetes operations of a migration run.
type Client interface {
	// EnsurePVC creates the claim unless it already exists.
	EnsurePVC(ctx context.Context, pvc *corev1.PersistentVolumeClaim) error

	// CreateConfigMap creates a ConfigMap and fails if it exists.
	CreateConfigMap(ctx context.Context, cm *corev1.ConfigMap) error
	GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error)
	// UpdateConfigMap writes cm back; the call fails with a conflict when
	// cm's resourceVersion is stale.
	UpdateConfigMap(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error)

	// CreateLease creates a Lease and fails with AlreadyExists when it is held.
	CreateLease(ctx context.Context, lease *coordinationv1.Lease) error
	GetLease(ctx context.Context, namespace, name string) (*coordinationv1.Lease, error)
	// DeleteLease deletes a Lease, returning nil if not found.
	DeleteLease(ctx context.Context, namespace, name string) error

	CreateJob(ctx context.Context, job *batchv1.Job) error
	// ListJobs lists Jobs matching the label selector.
	ListJobs(ctx context.Context, namespace, selector string) ([]batchv1.Job, error)
	// DeleteJobs deletes Jobs matching the label selector together with their pods.
	DeleteJobs(ctx context.Context, namespace, selector string) error

	// ApplyRole creates or updates a Role.
	ApplyRole(ctx context.Context, role *rbacv1.Role) error
	// ApplyRoleBinding creates or updates a RoleBinding.
	ApplyRoleBinding(ctx context.Context, binding *rbacv1.RoleBinding) error

	// GetSecretData returns the requested keys of a Secret.
	GetSecretData(ctx context.Context, namespace, name string, keys ...string) (map[string][]byte, error)
}

// client implements the Client interface using k8s.io/client-go.
type client struct {
	clientset kubernetes.Interface
}

// NewFromKubeconfigPath creates a Client from a kubeconfig file. An empty path
// uses the standard loading rules (KUBECONFIG, then ~/.kube/config).
func NewFromKubeconfigPath(path string) (Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return newFromRESTConfig(restConfig)
}

// NewInCluster creates a Client from the pod's service account.
func NewInCluster() (Client, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
	}
	return newFromRESTConfig(restConfig)
}

// NewFromClientset creates a Client from a pre-configured clientset.
// This is useful for testing with fake clients.
func NewFromClientset(clientset kubernetes.Interface) Client {
	return &client{clientset: clientset}
}

func newFromRESTConfig(restConfig *rest.Config) (Client, error) {
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return &client{clientset: clientset}, nil
}
