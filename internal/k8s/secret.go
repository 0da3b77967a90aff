package k8s

import (
	"context"
	"errors"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrSecretKeyMissing is returned when a Secret lacks a requested key.
var ErrSecretKeyMissing = errors.New("secret key missing")

// GetSecretData reads the requested keys of a Secret in a single call.
func (c *client) GetSecretData(ctx context.Context, namespace, name string, keys ...string) (map[string][]byte, error) {
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}

	out := make(map[string][]byte, len(keys))
	var missing []string
	for _, key := range keys {
		v, ok := secret.Data[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		out[key] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s/%s has no %s", ErrSecretKeyMissing, namespace, name, strings.Join(missing, ", "))
	}
	return out, nil
}
