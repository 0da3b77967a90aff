// Package labels provides consistent labeling for migration resources.
//
// Labels combine the recommended app.kubernetes.io keys with stagehand.io
// keys for run id, stage and ordinal, and follow a builder pattern.
package labels
