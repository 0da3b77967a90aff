package k8s

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EnsurePVC creates the claim unless it already exists. An existing claim is
// left untouched since most of its spec is immutable.
func (c *client) EnsurePVC(ctx context.Context, pvc *corev1.PersistentVolumeClaim) error {
	if err := requireObjectKey(pvc.Namespace, pvc.Name); err != nil {
		return err
	}

	_, err := c.clientset.CoreV1().PersistentVolumeClaims(pvc.Namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if err != nil && !errors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create persistent volume claim %s/%s: %w", pvc.Namespace, pvc.Name, err)
	}
	return nil
}

func (c *client) CreateJob(ctx context.Context, job *batchv1.Job) error {
	if err := requireObjectKey(job.Namespace, job.Name); err != nil {
		return err
	}

	_, err := c.clientset.BatchV1().Jobs(job.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create job %s/%s: %w", job.Namespace, job.Name, err)
	}
	return nil
}

func (c *client) ListJobs(ctx context.Context, namespace, selector string) ([]batchv1.Job, error) {
	list, err := c.clientset.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs in %s: %w", namespace, err)
	}
	return list.Items, nil
}

// DeleteJobs deletes every Job matching selector. Pods are removed by the
// garbage collector in the background.
func (c *client) DeleteJobs(ctx context.Context, namespace, selector string) error {
	jobs, err := c.ListJobs(ctx, namespace, selector)
	if err != nil {
		return err
	}

	propagation := metav1.DeletePropagationBackground
	for _, job := range jobs {
		err := c.clientset.BatchV1().Jobs(namespace).Delete(ctx, job.Name, metav1.DeleteOptions{PropagationPolicy: &propagation})
		if err != nil && !errors.IsNotFound(err) {
			return fmt.Errorf("failed to delete job %s/%s: %w", namespace, job.Name, err)
		}
	}
	return nil
}

func requireObjectKey(namespace, name string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
