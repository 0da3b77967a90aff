package k8s

import (
	"context"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func (c *client) ApplyRole(ctx context.Context, role *rbacv1.Role) error {
	if err := requireObjectKey(role.Namespace, role.Name); err != nil {
		return err
	}

	roles := c.clientset.RbacV1().Roles(role.Namespace)
	existing, err := roles.Get(ctx, role.Name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		if _, err := roles.Create(ctx, role, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("failed to create role %s/%s: %w", role.Namespace, role.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get role %s/%s: %w", role.Namespace, role.Name, err)
	}

	existing.Labels = role.Labels
	existing.Rules = role.Rules
	if _, err := roles.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update role %s/%s: %w", role.Namespace, role.Name, err)
	}
	return nil
}

// ApplyRoleBinding creates or updates a RoleBinding. The role reference of a
// binding is immutable, so a binding pointing elsewhere is recreated.
func (c *client) ApplyRoleBinding(ctx context.Context, binding *rbacv1.RoleBinding) error {
	if err := requireObjectKey(binding.Namespace, binding.Name); err != nil {
		return err
	}

	bindings := c.clientset.RbacV1().RoleBindings(binding.Namespace)
	existing, err := bindings.Get(ctx, binding.Name, metav1.GetOptions{})
	switch {
	case errors.IsNotFound(err):
	case err != nil:
		return fmt.Errorf("failed to get role binding %s/%s: %w", binding.Namespace, binding.Name, err)
	case existing.RoleRef == binding.RoleRef:
		existing.Labels = binding.Labels
		existing.Subjects = binding.Subjects
		if _, err := bindings.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return fmt.Errorf("failed to update role binding %s/%s: %w", binding.Namespace, binding.Name, err)
		}
		return nil
	default:
		if err := bindings.Delete(ctx, binding.Name, metav1.DeleteOptions{}); err != nil && !errors.IsNotFound(err) {
			return fmt.Errorf("failed to delete role binding %s/%s: %w", binding.Namespace, binding.Name, err)
		}
	}

	if _, err := bindings.Create(ctx, binding, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create role binding %s/%s: %w", binding.Namespace, binding.Name, err)
	}
	return nil
}
