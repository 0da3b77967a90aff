// Package config defines the configuration model of a migration launch and of
// a single stage runner.
//
// [Config] is read from YAML by [LoadFile] and drives the orchestrator: which
// namespace and release the run belongs to, the migration request handed to
// the gate, database and credential references, execution identity, artifact
// store backend, and per-stage limits. [StageEnv] is the runner-side view of
// the same settings, passed to each stage job through environment variables.
package config
