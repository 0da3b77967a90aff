// Package s3 provides a client for S3-compatible object storage.
//
// It backs the object storage variant of the migration artifact store: the
// orchestrator uses it to make sure the bucket exists, and stage runners use
// it to read and write manifests and markers under a per-run key prefix.
package s3
