package migration

import "strings"

// SkipMode selects what skip_plugin_migration switches off.
type SkipMode string

const (
	// SkipChain skips the whole chain when plugin migration is skipped.
	SkipChain SkipMode = "chain"

	// SkipPluginStages drops only Extract and Install and still runs the
	// schema upgrade and data migration.
	SkipPluginStages SkipMode = "plugin-stages"
)

// Valid reports whether m is a known skip mode.
func (m SkipMode) Valid() bool {
	return m == SkipChain || m == SkipPluginStages
}

// Workers bounds the parallelism inside the Extract and Install bodies.
type Workers struct {
	Extract int
	Install int
}

// Request is the migration configuration a deployment hands to the gate.
// It is not modified after the gate has read it.
type Request struct {
	Enabled             bool
	AutoDetect          bool
	FromVersion         string
	ToVersion           string
	BackupEnabled       bool
	Workers             Workers
	SkipPluginMigration bool
	SkipMode            SkipMode
	MarketplaceURL      string
}

// VersionParts splits a version on dots for logging. Versions are otherwise opaque.
func VersionParts(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ".")
}
