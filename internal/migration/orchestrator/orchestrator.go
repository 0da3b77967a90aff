package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/chain"
	"github.com/imamik/stagehand/internal/migration/gate"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/platform/s3"
	"github.com/imamik/stagehand/internal/util/async"
	"github.com/imamik/stagehand/internal/util/labels"
	"github.com/imamik/stagehand/internal/util/naming"
)

var (
	// ErrRunExists is returned when a run for the same version pair was already launched.
	ErrRunExists = errors.New("migration run already exists for this version pair")

	// ErrRunNotFound is returned when no run exists for a version pair.
	ErrRunNotFound = errors.New("migration run not found")
)

// ObjectStore is the object storage of the s3 artifact backend as seen from
// outside the cluster.
type ObjectStore interface {
	// EnsureBucket creates the artifact bucket when it is missing.
	EnsureBucket(ctx context.Context, bucket string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// BucketFactory connects to the object storage of the s3 artifact backend.
type BucketFactory func(ctx context.Context, opts s3.Options) (ObjectStore, error)

func defaultBucketFactory(ctx context.Context, opts s3.Options) (ObjectStore, error) {
	return s3.NewClient(ctx, opts)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBucketFactory replaces the S3 client constructor.
func WithBucketFactory(f BucketFactory) Option {
	return func(o *Orchestrator) {
		o.newBucket = f
	}
}

// WithHolderIdentity sets the identity recorded on run Leases.
func WithHolderIdentity(id string) Option {
	return func(o *Orchestrator) {
		o.holder = id
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator launches and manages migration runs of one release.
type Orchestrator struct {
	client    k8s.Client
	cfg       *config.Config
	newBucket BucketFactory
	holder    string
	now       func() time.Time
}

// New creates an Orchestrator for cfg.
func New(client k8s.Client, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		cfg:       cfg,
		newBucket: defaultBucketFactory,
		holder:    uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result describes the outcome of Launch.
type Result struct {
	Decision gate.Decision

	// Launched is true when this call submitted the chain.
	Launched bool

	RunID        string
	StatusRecord string
	Jobs         []string

	// ClaimedBy and ClaimedAt identify the earlier launch when the run
	// already existed.
	ClaimedBy string
	ClaimedAt time.Time
}

// plan is everything derived from a request before any resource is touched.
type plan struct {
	decision gate.Decision
	cfg      *config.Config
	runID    string
	from     string
	stages   []chain.Stage
}

func (o *Orchestrator) plan(req migration.Request) plan {
	p := plan{
		decision: gate.Decide(req),
		cfg:      o.cfg.WithRequest(req),
		from:     req.FromVersion,
	}
	if p.decision.ShouldRun {
		p.runID = migration.RunID(req.FromVersion, req.ToVersion)
		p.stages = chain.Build(p.decision.Stages(), p.cfg.Stages, p.cfg.Await)
	}
	return p
}

func (p plan) objects() runObjects {
	return runObjects{cfg: p.cfg, runID: p.runID, fromVersion: p.from}
}

func (p plan) template() chain.Template {
	return chain.Template{Config: p.cfg, RunID: p.runID, FromVersion: p.from, Stages: p.stages}
}

// Launch decides whether req needs a migration run and submits its chain.
// It does not wait for any stage. A second launch for the same version pair
// returns ErrRunExists together with the existing run's identity.
func (o *Orchestrator) Launch(ctx context.Context, req migration.Request) (*Result, error) {
	logger := log.FromContext(ctx)

	p := o.plan(req)
	result := &Result{Decision: p.decision}
	if !p.decision.ShouldRun {
		logger.Info("Migration not required",
			"reason", p.decision.Reason, "detail", p.decision.Detail,
			"from", migration.VersionParts(req.FromVersion), "to", migration.VersionParts(req.ToVersion))
		return result, nil
	}

	ns := p.cfg.Namespace
	result.RunID = p.runID
	result.StatusRecord = naming.StatusRecord(p.cfg.Release, p.runID)
	logger = logger.WithValues("runId", p.runID, "from", req.FromVersion, "to", req.ToVersion)
	ctx = log.IntoContext(ctx, logger)

	objs := p.objects()
	if err := o.client.CreateLease(ctx, objs.lease(o.holder, o.now())); err != nil {
		if apierrors.IsAlreadyExists(err) {
			o.describeClaim(ctx, result, ns, naming.Lock(p.cfg.Release, p.runID))
			logger.Info("Migration run already launched", "statusRecord", result.StatusRecord,
				"claimedBy", result.ClaimedBy, "claimedAt", result.ClaimedAt)
			return result, fmt.Errorf("%w: run %s", ErrRunExists, p.runID)
		}
		return result, fmt.Errorf("failed to claim run %s: %w", p.runID, err)
	}
	logger.Info("Claimed migration run", "holder", o.holder, "stages", chain.Names(p.stages))

	if err := o.provision(ctx, p); err != nil {
		// Nothing was submitted yet, so the claim is released for a retry.
		if relErr := o.client.DeleteLease(context.WithoutCancel(ctx), ns, naming.Lock(p.cfg.Release, p.runID)); relErr != nil {
			logger.Error(relErr, "Failed to release run claim")
		}
		return result, err
	}

	records := status.NewStore(o.client, ns, result.StatusRecord)
	for _, job := range p.template().Jobs() {
		if err := o.client.CreateJob(ctx, job); err != nil {
			err = fmt.Errorf("failed to create job %s: %w", job.Name, err)
			if failErr := records.Fail(context.WithoutCancel(ctx), err.Error()); failErr != nil {
				logger.Error(failErr, "Failed to mark run failed")
			}
			return result, err
		}
		result.Jobs = append(result.Jobs, job.Name)
		logger.Info("Submitted stage job", "job", job.Name, "dependsOn", job.Annotations[labels.AnnotationDependsOn])
	}

	result.Launched = true
	logger.Info("Migration chain submitted", "jobs", len(result.Jobs), "statusRecord", result.StatusRecord)
	return result, nil
}

// describeClaim fills in who holds an existing run's Lease. A Lease that
// cannot be read leaves the fields empty.
func (o *Orchestrator) describeClaim(ctx context.Context, result *Result, namespace, name string) {
	lease, err := o.client.GetLease(ctx, namespace, name)
	if err != nil {
		log.FromContext(ctx).Error(err, "Failed to read run claim")
		return
	}
	if h := lease.Spec.HolderIdentity; h != nil {
		result.ClaimedBy = *h
	}
	if t := lease.Spec.AcquireTime; t != nil {
		result.ClaimedAt = t.Time
	}
}

// provision creates the artifact store and the optional RBAC grant side by
// side, then the pending status record.
func (o *Orchestrator) provision(ctx context.Context, p plan) error {
	objs := p.objects()

	tasks := []async.Task{{Name: "artifact store", Func: func(ctx context.Context) error {
		if p.cfg.Artifacts.Backend == config.BackendS3 {
			return o.ensureBucket(ctx, p.cfg)
		}
		if err := o.client.EnsurePVC(ctx, objs.artifactClaim()); err != nil {
			return fmt.Errorf("failed to provision artifact volume: %w", err)
		}
		return nil
	}}}
	if p.cfg.Execution.CreateRBAC {
		tasks = append(tasks, async.Task{Name: "status rbac", Func: func(ctx context.Context) error {
			if err := o.client.ApplyRole(ctx, objs.statusRole()); err != nil {
				return fmt.Errorf("failed to apply status role: %w", err)
			}
			if err := o.client.ApplyRoleBinding(ctx, objs.statusRoleBinding()); err != nil {
				return fmt.Errorf("failed to apply status role binding: %w", err)
			}
			return nil
		}})
	}
	if err := async.RunParallel(ctx, tasks); err != nil {
		return err
	}

	records := status.NewStore(o.client, p.cfg.Namespace, naming.StatusRecord(p.cfg.Release, p.runID))
	rec := status.Record{FromVersion: p.from, ToVersion: p.cfg.ToVersion, RunID: p.runID, Timestamp: o.now()}
	if err := records.Create(ctx, rec, objs.labels(labels.ComponentStatus)); err != nil {
		if apierrors.IsAlreadyExists(err) {
			// A cancelled run keeps its record and artifacts after releasing the claim.
			return fmt.Errorf("%w: status record %s is left from an earlier run", ErrRunExists, records.Name())
		}
		return err
	}
	return nil
}

// connectBucket connects to the artifact object storage with the
// credentials from the configured Secret.
func (o *Orchestrator) connectBucket(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	s3cfg := cfg.Artifacts.S3
	creds, err := o.client.GetSecretData(ctx, cfg.Namespace, s3cfg.CredentialsSecret, s3cfg.AccessKeyKey, s3cfg.SecretKeyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read object storage credentials: %w", err)
	}

	bucket, err := o.newBucket(ctx, s3.Options{
		Endpoint:  s3cfg.Endpoint,
		Region:    s3cfg.Region,
		AccessKey: string(creds[s3cfg.AccessKeyKey]),
		SecretKey: string(creds[s3cfg.SecretKeyKey]),
		PathStyle: s3cfg.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object storage: %w", err)
	}
	return bucket, nil
}

func (o *Orchestrator) ensureBucket(ctx context.Context, cfg *config.Config) error {
	bucket, err := o.connectBucket(ctx, cfg)
	if err != nil {
		return err
	}
	if err := bucket.EnsureBucket(ctx, cfg.Artifacts.S3.Bucket); err != nil {
		return fmt.Errorf("failed to provision artifact bucket: %w", err)
	}
	return nil
}
