// Package migration holds the types shared by the version-upgrade migration
// pipeline.
//
// # Subpackages
//
//   - gate/ decides whether a run is needed for a request
//   - chain/ defines the four ordered stages and their batch job templates
//   - artifact/ is the per-run store for the manifest and stage markers
//   - status/ is the live status record of a run
//   - runner/ is the in-pod entry, body and exit procedure of a stage
//   - stages/ implements the stage bodies
//   - orchestrator/ composes all of the above for one deployment
package migration
