// Package chain builds the ordered stage chain of a run and the batch/v1 Job
// that executes each stage.
//
// Ordering is encoded twice. Each Job after the first carries the
// stagehand.io/depends-on annotation naming its upstream Job, and the runner
// inside the Job refuses to start its body until the upstream stage's
// completion marker exists. Jobs are created together; a downstream pod
// simply waits in its entry procedure.
package chain
