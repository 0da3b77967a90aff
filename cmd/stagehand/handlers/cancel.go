package handlers

import (
	"context"
	"fmt"
	"os"
)

// Cancel handles the cancel command.
func Cancel(ctx context.Context, configPath, toVersion, kubeconfig string) error {
	cfg, orch, err := setup(configPath, toVersion, kubeconfig)
	if err != nil {
		return err
	}

	rec, err := orch.Cancel(ctx, cfg.Migration.FromVersion, cfg.ToVersion)
	if err != nil {
		return fmt.Errorf("failed to cancel migration: %w", err)
	}

	if rec.CancelRequested {
		fmt.Fprintf(os.Stdout, "Migration run %s cancelled\n", rec.RunID)
	} else {
		fmt.Fprintf(os.Stdout, "Migration run %s had already finished (%s); its jobs were removed\n", rec.RunID, rec.Status)
	}
	return nil
}
