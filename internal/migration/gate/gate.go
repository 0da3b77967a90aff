// Package gate decides whether a deployment needs a migration run.
package gate

import "github.com/imamik/stagehand/internal/migration"

// Reasons reported with a decision.
const (
	ReasonDisabled            = "disabled"
	ReasonNoSourceVersion     = "no-source-version"
	ReasonSkipPluginMigration = "skip-plugin-migration"
	ReasonUpgrade             = "upgrade"
	ReasonUpgradeNoPlugins    = "upgrade-without-plugin-stages"
)

// Decision is the outcome of Decide. It is logged, never persisted.
type Decision struct {
	ShouldRun bool

	// SkipPluginStages drops Extract and Install from the chain.
	SkipPluginStages bool

	Reason string
	// Detail adds context to Reason when there is any.
	Detail string
}

// Stages returns the stages a run with this decision executes, in order.
func (d Decision) Stages() []migration.StageName {
	if !d.ShouldRun {
		return nil
	}
	var stages []migration.StageName
	for _, s := range migration.Stages {
		if d.SkipPluginStages && s.IsPluginStage() {
			continue
		}
		stages = append(stages, s)
	}
	return stages
}

// Decide applies the gate rules in order. It has no side effects.
func Decide(req migration.Request) Decision {
	if !req.Enabled {
		return Decision{Reason: ReasonDisabled}
	}

	if req.FromVersion == "" {
		d := Decision{Reason: ReasonNoSourceVersion}
		if req.AutoDetect {
			d.Detail = "auto-detection of the installed version is not implemented; set from_version"
		}
		return d
	}

	if req.SkipPluginMigration {
		if req.SkipMode == migration.SkipPluginStages {
			return Decision{ShouldRun: true, SkipPluginStages: true, Reason: ReasonUpgradeNoPlugins}
		}
		return Decision{Reason: ReasonSkipPluginMigration}
	}

	return Decision{ShouldRun: true, Reason: ReasonUpgrade}
}
