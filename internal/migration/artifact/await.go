package artifact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/migration"
)

const awaitJitter = 0.1

// AwaitOptions configures Await.
type AwaitOptions struct {
	// Upstream is the stage whose completion marker is awaited.
	Upstream migration.StageName

	// Watch lists stages whose failure markers end the wait immediately.
	Watch []migration.StageName

	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Abort is checked on every poll. A non-nil error ends the wait with that error.
	Abort func(ctx context.Context) error
}

// Await blocks until the upstream marker exists and returns its timestamp.
// Polling backs off exponentially from InitialInterval up to MaxInterval,
// with up to 10% jitter on each delay.
// The wait fails with ErrUpstreamFailed as soon as a watched stage wrote a
// failure marker, and with ErrAwaitTimeout once Timeout elapsed.
func (s *Store) Await(ctx context.Context, opts AwaitOptions) (time.Time, error) {
	logger := log.FromContext(ctx).WithValues("upstream", opts.Upstream)

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	backoff := pollBackoff(opts)
	started := time.Now()
	for {
		done, at, err := s.poll(waitCtx, opts)
		if err != nil {
			return time.Time{}, err
		}
		if done {
			logger.V(1).Info("Upstream marker found", "completedAt", at, "waited", time.Since(started))
			return at, nil
		}

		delay := backoff.Step()
		logger.V(1).Info("Waiting for upstream marker", "retryIn", delay)

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return time.Time{}, fmt.Errorf("await %s interrupted: %w", opts.Upstream, ctx.Err())
			}
			return time.Time{}, fmt.Errorf("%w %s after %s", ErrAwaitTimeout, opts.Upstream, opts.Timeout)
		case <-time.After(delay):
		}
	}
}

// pollBackoff doubles the poll interval up to MaxInterval. Once capped,
// Step keeps returning MaxInterval with jitter.
func pollBackoff(opts AwaitOptions) wait.Backoff {
	return wait.Backoff{
		Duration: opts.InitialInterval,
		Factor:   2.0,
		Jitter:   awaitJitter,
		Steps:    math.MaxInt32,
		Cap:      opts.MaxInterval,
	}
}

func (s *Store) poll(ctx context.Context, opts AwaitOptions) (bool, time.Time, error) {
	logger := log.FromContext(ctx)

	for _, stage := range opts.Watch {
		msg, failed, err := s.Failure(ctx, stage)
		if err != nil {
			logger.Error(err, "Failed to check failure marker", "stage", stage)
			continue
		}
		if failed {
			return false, time.Time{}, fmt.Errorf("%w: %s: %s", ErrUpstreamFailed, stage, msg)
		}
	}

	if opts.Abort != nil {
		if err := opts.Abort(ctx); err != nil {
			return false, time.Time{}, err
		}
	}

	at, err := s.MarkerTime(ctx, opts.Upstream)
	if errors.Is(err, ErrNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		logger.Error(err, "Failed to read upstream marker", "stage", opts.Upstream)
		return false, time.Time{}, nil
	}
	return true, at, nil
}
