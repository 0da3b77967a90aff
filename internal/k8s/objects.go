package k8s

import (
	"context"
	"fmt"

	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func (c *client) CreateConfigMap(ctx context.Context, cm *corev1.ConfigMap) error {
	if err := requireObjectKey(cm.Namespace, cm.Name); err != nil {
		return err
	}

	_, err := c.clientset.CoreV1().ConfigMaps(cm.Namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create configmap %s/%s: %w", cm.Namespace, cm.Name, err)
	}
	return nil
}

func (c *client) GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	cm, err := c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get configmap %s/%s: %w", namespace, name, err)
	}
	return cm, nil
}

func (c *client) UpdateConfigMap(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	updated, err := c.clientset.CoreV1().ConfigMaps(cm.Namespace).Update(ctx, cm, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to update configmap %s/%s: %w", cm.Namespace, cm.Name, err)
	}
	return updated, nil
}

func (c *client) CreateLease(ctx context.Context, lease *coordinationv1.Lease) error {
	if err := requireObjectKey(lease.Namespace, lease.Name); err != nil {
		return err
	}

	_, err := c.clientset.CoordinationV1().Leases(lease.Namespace).Create(ctx, lease, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create lease %s/%s: %w", lease.Namespace, lease.Name, err)
	}
	return nil
}

func (c *client) GetLease(ctx context.Context, namespace, name string) (*coordinationv1.Lease, error) {
	lease, err := c.clientset.CoordinationV1().Leases(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get lease %s/%s: %w", namespace, name, err)
	}
	return lease, nil
}

func (c *client) DeleteLease(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoordinationV1().Leases(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("failed to delete lease %s/%s: %w", namespace, name, err)
	}
	return nil
}
