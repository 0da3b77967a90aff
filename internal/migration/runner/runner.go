// Package runner executes one stage of a migration chain inside its pod.
//
// A run has three parts. The entry procedure short-circuits stages that
// already completed, counts the attempt and waits for the upstream marker.
// The body does the stage's work under its execution deadline. The exit
// action writes the completion marker, or on a terminal failure the failure
// marker that ends every downstream wait, and updates the status record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/metrics"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/migration/stages"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/util/retry"
)

// ErrStageFailed is returned when the stage already failed terminally.
var ErrStageFailed = errors.New("stage already failed")

// StatusStore is the part of the status record the runner updates.
type StatusStore interface {
	Get(ctx context.Context) (*status.Record, error)
	EnterStage(ctx context.Context, name migration.StageName, first bool) error
	Transition(ctx context.Context, to status.State, message string) (*status.Record, error)
	Fail(ctx context.Context, message string) error
}

// Options describe the stage a Runner executes.
type Options struct {
	RunID string
	Stage migration.StageName

	// Chain lists the stages of the run in order.
	Chain []migration.StageName

	RetryLimit     int
	Deadline       time.Duration
	Await          config.AwaitConfig
	PushgatewayURL string
}

// OptionsFromEnv builds runner options for stage from the pod environment.
func OptionsFromEnv(env *config.StageEnv, stage migration.StageName) Options {
	return Options{
		RunID:      env.RunID,
		Stage:      stage,
		Chain:      env.Chain,
		RetryLimit: env.RetryLimit,
		Deadline:   env.Deadline,
		Await: config.AwaitConfig{
			Timeout:         env.AwaitTimeout,
			InitialInterval: env.AwaitInitialInterval,
			MaxInterval:     env.AwaitMaxInterval,
		},
		PushgatewayURL: env.PushgatewayURL,
	}
}

// Runner runs one stage.
type Runner struct {
	opts      Options
	artifacts *artifact.Store
	status    StatusStore
	body      stages.Body
	metrics   *metrics.Recorder
	now       func() time.Time
}

// New creates a Runner. A nil recorder disables metrics.
func New(opts Options, artifacts *artifact.Store, statusStore StatusStore, body stages.Body, recorder *metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Runner{
		opts:      opts,
		artifacts: artifacts,
		status:    statusStore,
		body:      body,
		metrics:   recorder,
		now:       time.Now,
	}
}

// Run executes the stage once. A nil return means the stage is complete.
// Terminal failures are returned marked with retry.Fatal; any other error is
// left to the job's retry policy.
func (r *Runner) Run(ctx context.Context) error {
	name := r.opts.Stage
	logger := log.FromContext(ctx).WithValues("stage", name, "runId", r.opts.RunID)
	ctx = log.IntoContext(ctx, logger)

	pos := r.position()
	if pos < 0 {
		return fmt.Errorf("stage %s is not part of chain %v", name, r.opts.Chain)
	}
	first, last := pos == 0, pos == len(r.opts.Chain)-1

	defer r.pushMetrics(ctx)

	done, err := r.artifacts.HasMarker(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check completion marker: %w", err)
	}
	if done {
		logger.Info("Stage already completed, skipping")
		r.metrics.RecordAttempt(string(name), metrics.ResultSkipped)
		if last {
			return r.complete(ctx)
		}
		return nil
	}

	if msg, failed, err := r.artifacts.Failure(ctx, name); err != nil {
		return fmt.Errorf("failed to check failure marker: %w", err)
	} else if failed {
		return retry.Fatal(fmt.Errorf("%w: %s", ErrStageFailed, msg))
	}

	attempt, err := r.artifacts.IncrementAttempts(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	maxAttempts := r.opts.RetryLimit + 1
	logger = logger.WithValues("attempt", attempt, "maxAttempts", maxAttempts)
	ctx = log.IntoContext(ctx, logger)

	if attempt > maxAttempts {
		r.metrics.RecordAttempt(string(name), metrics.ResultExhausted)
		return r.failTerminal(ctx, fmt.Errorf("attempt %d exceeds retry limit %d", attempt, r.opts.RetryLimit))
	}

	if !first {
		upstreamAt, err := r.await(ctx, pos)
		if err != nil {
			r.metrics.RecordAttempt(string(name), metrics.ResultFailed)
			return r.failTerminal(ctx, err)
		}
		logger.Info("Upstream stage completed", "upstream", r.opts.Chain[pos-1], "completedAt", upstreamAt)
	}

	if err := r.status.EnterStage(ctx, name, first); err != nil {
		r.metrics.RecordAttempt(string(name), metrics.ResultFailed)
		if errors.Is(err, status.ErrTerminal) {
			return r.failTerminal(ctx, fmt.Errorf("run already finished: %w", err))
		}
		return r.fail(ctx, attempt, fmt.Errorf("failed to update status record: %w", err))
	}

	if err := r.runBody(ctx); err != nil {
		r.metrics.RecordAttempt(string(name), metrics.ResultFailed)
		return r.fail(ctx, attempt, err)
	}

	if err := r.artifacts.WriteMarker(ctx, name, r.now()); err != nil {
		r.metrics.RecordAttempt(string(name), metrics.ResultFailed)
		return r.fail(ctx, attempt, fmt.Errorf("failed to write completion marker: %w", err))
	}
	r.metrics.RecordAttempt(string(name), metrics.ResultSucceeded)
	logger.Info("Stage completed")

	if last {
		return r.complete(ctx)
	}
	return nil
}

func (r *Runner) position() int {
	for i, s := range r.opts.Chain {
		if s == r.opts.Stage {
			return i
		}
	}
	return -1
}

// await waits for the previous stage's marker while watching every upstream
// stage's failure marker and the status record.
func (r *Runner) await(ctx context.Context, pos int) (time.Time, error) {
	started := r.now()
	at, err := r.artifacts.Await(ctx, artifact.AwaitOptions{
		Upstream:        r.opts.Chain[pos-1],
		Watch:           r.opts.Chain[:pos],
		Timeout:         r.opts.Await.Timeout,
		InitialInterval: r.opts.Await.InitialInterval,
		MaxInterval:     r.opts.Await.MaxInterval,
		Abort:           r.checkRecord,
	})
	r.metrics.RecordAwait(string(r.opts.Stage), r.now().Sub(started))
	return at, err
}

// checkRecord ends a wait once the run was cancelled or failed elsewhere.
// Read errors are logged and the wait goes on.
func (r *Runner) checkRecord(ctx context.Context) error {
	rec, err := r.status.Get(ctx)
	if err != nil {
		log.FromContext(ctx).Error(err, "Failed to read status record")
		return nil
	}
	if rec.CancelRequested {
		return fmt.Errorf("%w: %s", artifact.ErrCancelled, rec.Message)
	}
	if rec.Status == status.StateFailed {
		return fmt.Errorf("%w: run is %s: %s", artifact.ErrUpstreamFailed, rec.Status, rec.Message)
	}
	return nil
}

func (r *Runner) runBody(ctx context.Context) error {
	bodyCtx := ctx
	if r.opts.Deadline > 0 {
		var cancel context.CancelFunc
		bodyCtx, cancel = context.WithTimeout(ctx, r.opts.Deadline)
		defer cancel()
	}

	log.FromContext(ctx).Info("Running stage body", "deadline", r.opts.Deadline)
	started := r.now()
	err := r.body.Run(bodyCtx)
	r.metrics.RecordBody(string(r.opts.Stage), r.now().Sub(started))

	if err != nil && errors.Is(bodyCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("stage %s exceeded its deadline of %s: %w", r.opts.Stage, r.opts.Deadline, err)
	}
	return err
}

// fail handles a failed attempt. The last allowed attempt and non-retryable
// errors are terminal.
func (r *Runner) fail(ctx context.Context, attempt int, err error) error {
	if attempt >= r.opts.RetryLimit+1 || retry.IsFatal(err) {
		return r.failTerminal(ctx, err)
	}
	log.FromContext(ctx).Error(err, "Stage attempt failed, will be retried")
	return err
}

// failTerminal writes the failure marker and fails the status record. The
// original error is returned either way.
func (r *Runner) failTerminal(ctx context.Context, cause error) error {
	logger := log.FromContext(ctx)
	logger.Error(cause, "Stage failed terminally")

	// The exit action must run even when the body's context is gone.
	exitCtx := context.WithoutCancel(ctx)
	msg := fmt.Sprintf("%s: %v", r.opts.Stage, cause)

	if err := r.artifacts.WriteFailure(exitCtx, r.opts.Stage, cause.Error()); err != nil {
		logger.Error(err, "Failed to write failure marker")
	}
	if err := r.status.Fail(exitCtx, msg); err != nil {
		logger.Error(err, "Failed to mark status record failed")
	}
	return retry.Fatal(cause)
}

func (r *Runner) complete(ctx context.Context) error {
	_, err := r.status.Transition(ctx, status.StateCompleted, "")
	if errors.Is(err, status.ErrTerminal) {
		rec, getErr := r.status.Get(ctx)
		if getErr == nil && rec.Status == status.StateCompleted {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	log.FromContext(ctx).Info("Migration chain completed")
	return nil
}

func (r *Runner) pushMetrics(ctx context.Context) {
	if err := r.metrics.Push(context.WithoutCancel(ctx), r.opts.PushgatewayURL, r.opts.RunID, string(r.opts.Stage)); err != nil {
		log.FromContext(ctx).Error(err, "Failed to push metrics")
	}
}
