package stages

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/platform/marketplace"
	"github.com/imamik/stagehand/internal/util/async"
	"github.com/imamik/stagehand/internal/util/retry"
)

// Installer installs one plugin for one tenant.
type Installer interface {
	Install(ctx context.Context, tenantID, pluginID string) (marketplace.InstallResult, error)
}

// Install replays the manifest against the marketplace.
type Install struct {
	Installer Installer
	Files     Files
	Workers   int

	// RetryOptions tune the backoff of transient install failures.
	RetryOptions []retry.Option
}

// Run installs every manifest entry with at most Workers requests in flight.
// Transient failures are retried with backoff; permanent ones fail the body.
func (in *Install) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	data, err := in.Files.ReadFile(ctx, artifact.ManifestFile)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	entries, err := DecodeManifest(data)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Info("Manifest is empty, nothing to install")
		return nil
	}
	logger.Info("Installing plugins", "entries", len(entries), "workers", in.Workers)

	var installed, already atomic.Int64
	tasks := make([]async.Task, len(entries))
	for i, entry := range entries {
		tasks[i] = async.Task{
			Name: fmt.Sprintf("install %s for tenant %s", entry.PluginID, entry.TenantID),
			Func: func(ctx context.Context) error {
				result, err := in.install(ctx, entry)
				if err != nil {
					return err
				}
				if result == marketplace.AlreadyInstalled {
					already.Add(1)
				} else {
					installed.Add(1)
				}
				return nil
			},
		}
	}
	if err := async.RunBounded(ctx, in.Workers, tasks); err != nil {
		return fmt.Errorf("failed to install plugins: %w", err)
	}

	logger.Info("Plugins installed", "installed", installed.Load(), "alreadyInstalled", already.Load())
	return nil
}

func (in *Install) install(ctx context.Context, entry Entry) (marketplace.InstallResult, error) {
	logger := log.FromContext(ctx).WithValues("tenant", entry.TenantID, "plugin", entry.PluginID)

	var result marketplace.InstallResult
	opts := append([]retry.Option{
		retry.WithMaxRetries(5),
		retry.WithInitialDelay(time.Second),
		retry.WithMaxDelay(30 * time.Second),
		retry.WithOnRetry(logRetry(logger)),
	}, in.RetryOptions...)

	err := retry.Do(ctx, func(ctx context.Context) error {
		r, err := in.Installer.Install(ctx, entry.TenantID, entry.PluginID)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, opts...)
	if err != nil {
		return 0, err
	}
	logger.V(1).Info("Plugin installed", "result", result)
	return result, nil
}

func logRetry(logger logr.Logger) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		logger.Info("Install failed, retrying", "attempt", attempt, "retryIn", delay, "error", err.Error())
	}
}
