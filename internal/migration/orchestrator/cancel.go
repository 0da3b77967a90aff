package orchestrator

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/util/labels"
	"github.com/imamik/stagehand/internal/util/naming"
)

// CancelMessage is the status message of a cancelled run.
const CancelMessage = "cancelled"

// Cancel stops the run of a version pair. It flags the status record so
// waiting stages give up, fails the run, deletes its Jobs and releases the
// run's claim. The artifact store and the status record are kept.
func (o *Orchestrator) Cancel(ctx context.Context, fromVersion, toVersion string) (*status.Record, error) {
	runID := migration.RunID(fromVersion, toVersion)
	ns := o.cfg.Namespace
	logger := log.FromContext(ctx).WithValues("runId", runID)

	records := status.NewStore(o.client, ns, naming.StatusRecord(o.cfg.Release, runID))
	rec, err := records.RequestCancel(ctx, CancelMessage)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrRunNotFound, fromVersion, toVersion)
		}
		return nil, fmt.Errorf("failed to request cancellation: %w", err)
	}
	if rec.Status.IsTerminal() && !rec.CancelRequested {
		logger.Info("Run already finished", "status", rec.Status)
	}

	if err := o.client.DeleteJobs(ctx, ns, labels.SelectorForRunStages(runID)); err != nil {
		return rec, fmt.Errorf("failed to delete stage jobs: %w", err)
	}
	if err := o.client.DeleteLease(ctx, ns, naming.Lock(o.cfg.Release, runID)); err != nil {
		return rec, fmt.Errorf("failed to release run claim: %w", err)
	}

	logger.Info("Migration run cancelled", "status", rec.Status)
	return rec, nil
}
