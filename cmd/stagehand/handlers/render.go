package handlers

import (
	"context"
	"fmt"
	"io"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
)

// Render handles the render command. It never contacts the cluster.
func Render(ctx context.Context, configPath, toVersion string, out io.Writer) error {
	cfg, err := loadConfig(configPath, config.WithToVersion(toVersion))
	if err != nil {
		return err
	}

	var offline k8s.Client
	manifests, decision, err := newOrchestrator(offline, cfg).Render(cfg.Request())
	if err != nil {
		return err
	}
	if !decision.ShouldRun {
		log.FromContext(ctx).Info("No migration needed, nothing to render", "reason", decision.Reason, "detail", decision.Detail)
		return nil
	}

	if _, err := out.Write(manifests); err != nil {
		return fmt.Errorf("failed to write manifests: %w", err)
	}
	return nil
}
