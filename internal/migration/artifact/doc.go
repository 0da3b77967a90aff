// Package artifact is the per-run shared store stage tasks exchange data
// through.
//
// Layout, relative to the run's root:
//
//	manifest.jsonl                  plugin manifest written by extract
//	markers/<ordinal>-<stage>.done  completion marker, RFC3339Nano timestamp
//	markers/<ordinal>-<stage>.failed terminal failure marker, error message
//	attempts/<stage>                attempt counter
//	notes/<stage>.txt               free-form stage notes
//
// Two backends exist. The volume backend writes files below a mounted
// directory with write-to-temp, fsync and rename so readers never observe a
// partial marker. The object storage backend writes one object per file
// under runs/<runID>/. Nothing in the store is ever deleted by a run.
package artifact
