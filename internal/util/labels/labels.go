// Package labels provides consistent labeling utilities for migration resources.
//
// This package enforces uniform labeling patterns across every Kubernetes object a
// run creates, enabling selection of all resources belonging to one run.
//
// Run-specific label keys use the stagehand.io domain prefix for namespacing.
package labels

import "strconv"

// Standard label keys for migration resources.
const (
	// KeyName is the recommended Kubernetes application name label
	KeyName = "app.kubernetes.io/name"

	// KeyInstance identifies the release the run belongs to
	KeyInstance = "app.kubernetes.io/instance"

	// KeyComponent identifies the kind of resource within a run
	KeyComponent = "app.kubernetes.io/component"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "app.kubernetes.io/managed-by"

	// KeyRunID identifies the migration run
	KeyRunID = "stagehand.io/run-id"

	// KeyStage identifies the stage a job executes
	KeyStage = "stagehand.io/stage"

	// KeyOrdinal is the position of the stage in the chain
	KeyOrdinal = "stagehand.io/ordinal"
)

// Annotation keys.
const (
	// AnnotationDependsOn names the upstream job whose marker gates this job
	AnnotationDependsOn = "stagehand.io/depends-on"

	AnnotationFromVersion = "stagehand.io/from-version"
	AnnotationToVersion   = "stagehand.io/to-version"
)

// Component values
const (
	ComponentArtifacts = "artifacts"
	ComponentStatus    = "status"
	ComponentLock      = "lock"
	ComponentStage     = "stage"
	ComponentRBAC      = "rbac"
)

// AppName is the value of the name and managed-by labels.
const AppName = "stagehand"

// LabelBuilder provides a fluent interface for building resource labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the release and run pre-set.
func NewLabelBuilder(release, runID string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyName:      AppName,
			KeyInstance:  release,
			KeyManagedBy: AppName,
			KeyRunID:     runID,
		},
	}
}

// WithComponent adds a component label.
func (lb *LabelBuilder) WithComponent(component string) *LabelBuilder {
	lb.labels[KeyComponent] = component
	return lb
}

// WithStage adds the stage name and ordinal labels.
func (lb *LabelBuilder) WithStage(name string, ordinal int) *LabelBuilder {
	lb.labels[KeyStage] = name
	lb.labels[KeyOrdinal] = strconv.Itoa(ordinal)
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// SelectorForRun returns a label selector string for all resources of a run.
func SelectorForRun(runID string) string {
	return KeyRunID + "=" + runID
}

// SelectorForRunStages selects only the stage jobs of a run.
func SelectorForRunStages(runID string) string {
	return SelectorForRun(runID) + "," + KeyComponent + "=" + ComponentStage
}
