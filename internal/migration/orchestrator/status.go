package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/util/labels"
	"github.com/imamik/stagehand/internal/util/naming"
)

// JobState summarizes a stage Job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus is the observed state of one stage Job.
type JobStatus struct {
	Name    string   `json:"name"`
	Stage   string   `json:"stage"`
	Ordinal int      `json:"ordinal"`
	State   JobState `json:"state"`
	Failed  int32    `json:"failedPods"`
	Message string   `json:"message,omitempty"`
}

// RunStatus is the combined view of a run.
type RunStatus struct {
	RunID        string         `json:"runId"`
	StatusRecord string         `json:"statusRecord"`
	Record       *status.Record `json:"record"`
	Jobs         []JobStatus    `json:"jobs"`

	// Artifacts lists the run's files in the s3 backend, relative to the
	// run's prefix. It stays empty for the volume backend.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Status reads the status record and the stage Jobs of a version pair.
// Jobs that were already cleaned up after their retention are absent.
func (o *Orchestrator) Status(ctx context.Context, fromVersion, toVersion string) (*RunStatus, error) {
	runID := migration.RunID(fromVersion, toVersion)
	name := naming.StatusRecord(o.cfg.Release, runID)

	rec, err := status.NewStore(o.client, o.cfg.Namespace, name).Get(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrRunNotFound, fromVersion, toVersion)
		}
		return nil, fmt.Errorf("failed to read status record: %w", err)
	}

	jobs, err := o.client.ListJobs(ctx, o.cfg.Namespace, labels.SelectorForRunStages(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to list stage jobs: %w", err)
	}

	out := &RunStatus{RunID: runID, StatusRecord: name, Record: rec}
	for i := range jobs {
		out.Jobs = append(out.Jobs, jobStatus(&jobs[i]))
	}
	sort.Slice(out.Jobs, func(i, j int) bool { return out.Jobs[i].Ordinal < out.Jobs[j].Ordinal })

	if o.cfg.Artifacts.Backend == config.BackendS3 {
		artifacts, err := o.listArtifacts(ctx, runID)
		if err != nil {
			// The record and Jobs are still worth reporting.
			log.FromContext(ctx).Error(err, "Failed to list run artifacts", "runId", runID)
		}
		out.Artifacts = artifacts
	}
	return out, nil
}

func (o *Orchestrator) listArtifacts(ctx context.Context, runID string) ([]string, error) {
	bucket, err := o.connectBucket(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	prefix := naming.ArtifactPrefix(runID)
	keys, err := bucket.ListObjects(ctx, o.cfg.Artifacts.S3.Bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list run artifacts: %w", err)
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func jobStatus(job *batchv1.Job) JobStatus {
	js := JobStatus{
		Name:   job.Name,
		Stage:  job.Labels[labels.KeyStage],
		State:  JobPending,
		Failed: job.Status.Failed,
	}
	js.Ordinal, _ = strconv.Atoi(job.Labels[labels.KeyOrdinal])

	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			js.State = JobSucceeded
			return js
		case batchv1.JobFailed:
			js.State = JobFailed
			js.Message = c.Message
			if js.Message == "" {
				js.Message = c.Reason
			}
			return js
		}
	}
	if job.Status.Active > 0 {
		js.State = JobRunning
	}
	return js
}
