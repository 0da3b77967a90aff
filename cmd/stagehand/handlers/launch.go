package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Launch handles the launch command.
//
// It runs the version gate and submits the stage chain when a migration is
// needed. A run that was already launched for the same version pair is
// reported and not treated as an error, so deployments can be repeated.
func Launch(ctx context.Context, configPath, toVersion, kubeconfig string) error {
	cfg, orch, err := setup(configPath, toVersion, kubeconfig)
	if err != nil {
		return err
	}
	logger := log.FromContext(ctx).WithValues("release", cfg.Release, "namespace", cfg.Namespace)
	ctx = log.IntoContext(ctx, logger)

	result, err := orch.Launch(ctx, cfg.Request())
	switch {
	case isRunExists(err):
		fmt.Fprintf(os.Stdout, "Migration run %s already exists (status record %s)\n", result.RunID, result.StatusRecord)
		if result.ClaimedBy != "" {
			fmt.Fprintf(os.Stdout, "  claimed by %s at %s\n", result.ClaimedBy, result.ClaimedAt.Format(time.RFC3339))
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to launch migration: %w", err)
	}

	if !result.Launched {
		msg := result.Decision.Reason
		if result.Decision.Detail != "" {
			msg += ": " + result.Decision.Detail
		}
		fmt.Fprintf(os.Stdout, "No migration needed (%s)\n", msg)
		return nil
	}

	fmt.Fprintf(os.Stdout, "Migration run %s submitted: %s -> %s\n", result.RunID, cfg.Migration.FromVersion, cfg.ToVersion)
	fmt.Fprintf(os.Stdout, "  status record: %s/%s\n", cfg.Namespace, result.StatusRecord)
	fmt.Fprintf(os.Stdout, "  jobs:          %s\n", strings.Join(result.Jobs, ", "))
	return nil
}
