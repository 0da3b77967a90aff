// Package orchestrator submits, inspects and cancels migration runs.
//
// Launch asks the version gate whether a run is needed and, if so, claims the
// run's version pair with a Lease, provisions the shared artifact store and the
// status record and creates one Job per stage in chain order. It returns as
// soon as the Jobs are submitted; the runner inside each Job enforces ordering.
//
// A run is identified by the first twelve hex characters of the SHA-256 of its
// version pair, so every invocation for the same upgrade addresses the same
// resources:
//
//	<release>-migration-<runID>-lock        Lease (exclusivity)
//	<release>-migration-<runID>-artifacts   PersistentVolumeClaim (volume backend)
//	<release>-migration-<runID>-status      ConfigMap (status record)
//	<release>-migration-<runID>-<stage>     Job per stage
package orchestrator
