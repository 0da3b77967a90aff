package chain

import (
	"time"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/migration"
)

// terminationGrace is added to each attempt's deadline when sizing the Job's
// active deadline, covering pod scheduling and image pulls.
const terminationGrace = 2 * time.Minute

// Stage is one link of a run's chain.
type Stage struct {
	Name    migration.StageName
	Ordinal int

	// Upstream is the stage whose marker gates this one. Empty for the first
	// stage of the chain.
	Upstream migration.StageName

	// Last is set on the stage that completes the run.
	Last bool

	RetryLimit int
	Deadline   time.Duration
	Retention  time.Duration

	// AwaitTimeout bounds the wait for the upstream marker. It is never
	// shorter than the body budget of all upstream stages, since every
	// stage's wait starts when the chain is launched.
	AwaitTimeout time.Duration
}

// HasPrecondition reports whether the stage waits for an upstream marker.
func (s Stage) HasPrecondition() bool {
	return s.Upstream != ""
}

// MaxAttempts is the first attempt plus all retries.
func (s Stage) MaxAttempts() int {
	return s.RetryLimit + 1
}

// BodyBudget is the longest a stage can spend running its body: every
// attempt up to its deadline plus pod startup.
func (s Stage) BodyBudget() time.Duration {
	return time.Duration(s.MaxAttempts()) * (s.Deadline + terminationGrace)
}

// Build links the named stages in the given order and attaches their limits.
// The configured await timeout is a floor; a stage waits at least as long as
// its upstream stages may take.
func Build(names []migration.StageName, limits config.StagesConfig, await config.AwaitConfig) []Stage {
	stages := make([]Stage, 0, len(names))
	var upstreamBudget time.Duration
	for i, name := range names {
		sc := limits.For(name)
		retry := config.DefaultRetryLimit
		if sc.RetryLimit != nil {
			retry = *sc.RetryLimit
		}

		s := Stage{
			Name:       name,
			Ordinal:    name.Ordinal(),
			Last:       i == len(names)-1,
			RetryLimit: retry,
			Deadline:   sc.Deadline,
			Retention:  sc.Retention,
		}
		if i > 0 {
			s.Upstream = names[i-1]
			s.AwaitTimeout = max(await.Timeout, upstreamBudget)
		}
		upstreamBudget += s.BodyBudget()
		stages = append(stages, s)
	}
	return stages
}

// Find returns the named stage of the chain.
func Find(stages []Stage, name migration.StageName) (Stage, bool) {
	for _, s := range stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// ActiveDeadline is the total wall-clock budget of a stage's Job: the await
// window, when the stage has one, plus every attempt of the body.
func ActiveDeadline(s Stage) time.Duration {
	return s.AwaitTimeout + s.BodyBudget()
}

// Names returns the stage names in chain order.
func Names(stages []Stage) []migration.StageName {
	names := make([]migration.StageName, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}
