package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Attempt results recorded on the attempts counter.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
	ResultExhausted = "exhausted"
)

// pushJob is the Pushgateway job label for every stage runner.
const pushJob = "stagehand"

// Recorder records stage attempt metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	attemptsTotal *prometheus.CounterVec
	bodyDuration  *prometheus.HistogramVec
	awaitDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with freshly registered collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagehand",
				Subsystem: "stage",
				Name:      "attempts_total",
				Help:      "Total number of stage attempts by stage and result",
			},
			[]string{"stage", "result"},
		),
		bodyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stagehand",
				Subsystem: "stage",
				Name:      "body_duration_seconds",
				Help:      "Duration of stage bodies in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 13), // 1s to ~68min
			},
			[]string{"stage"},
		),
		awaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stagehand",
				Subsystem: "stage",
				Name:      "await_duration_seconds",
				Help:      "Time spent waiting for the upstream stage marker in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
			},
			[]string{"stage"},
		),
	}
	r.registry.MustRegister(r.attemptsTotal, r.bodyDuration, r.awaitDuration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordAttempt records one attempt outcome for a stage.
func (r *Recorder) RecordAttempt(stage, result string) {
	r.attemptsTotal.WithLabelValues(stage, result).Inc()
}

// RecordBody records how long a stage body ran.
func (r *Recorder) RecordBody(stage string, d time.Duration) {
	r.bodyDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAwait records how long a stage waited for its precondition.
func (r *Recorder) RecordAwait(stage string, d time.Duration) {
	r.awaitDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Push sends the registry contents to a Pushgateway, grouped by run and stage.
// An empty url disables pushing.
func (r *Recorder) Push(ctx context.Context, url, runID, stage string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, pushJob).
		Gatherer(r.registry).
		Grouping("run_id", runID).
		Grouping("stage", stage).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
