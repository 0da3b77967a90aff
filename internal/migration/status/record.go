package status

import (
	"fmt"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ConfigMap data keys.
const (
	KeyStatus          = "status"
	KeyFromVersion     = "fromVersion"
	KeyToVersion       = "toVersion"
	KeyTimestamp       = "timestamp"
	KeyRunID           = "runId"
	KeyStage           = "stage"
	KeyMessage         = "message"
	KeyUpdatedAt       = "updatedAt"
	KeyCancelRequested = "cancelRequested"
)

// Record is the decoded status record. FromVersion, ToVersion, RunID and
// Timestamp are written once at creation.
type Record struct {
	Status          State     `json:"status"`
	FromVersion     string    `json:"fromVersion"`
	ToVersion       string    `json:"toVersion"`
	RunID           string    `json:"runId"`
	Timestamp       time.Time `json:"timestamp"`
	Stage           string    `json:"stage,omitempty"`
	Message         string    `json:"message,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
	CancelRequested bool      `json:"cancelRequested"`
}

// NewConfigMap encodes a record as the ConfigMap that stores it.
func NewConfigMap(namespace, name string, objLabels map[string]string, rec Record) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    objLabels,
		},
		Data: encode(rec),
	}
}

func encode(rec Record) map[string]string {
	data := map[string]string{
		KeyStatus:          string(rec.Status),
		KeyFromVersion:     rec.FromVersion,
		KeyToVersion:       rec.ToVersion,
		KeyRunID:           rec.RunID,
		KeyTimestamp:       rec.Timestamp.UTC().Format(time.RFC3339),
		KeyStage:           rec.Stage,
		KeyMessage:         rec.Message,
		KeyCancelRequested: strconv.FormatBool(rec.CancelRequested),
	}
	if !rec.UpdatedAt.IsZero() {
		data[KeyUpdatedAt] = rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return data
}

// Decode reads a record from ConfigMap data.
func Decode(data map[string]string) (*Record, error) {
	rec := &Record{
		Status:      State(data[KeyStatus]),
		FromVersion: data[KeyFromVersion],
		ToVersion:   data[KeyToVersion],
		RunID:       data[KeyRunID],
		Stage:       data[KeyStage],
		Message:     data[KeyMessage],
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", data[KeyStatus])
	}

	if v := data[KeyTimestamp]; v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyTimestamp, err)
		}
		rec.Timestamp = ts
	}
	if v := data[KeyUpdatedAt]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyUpdatedAt, err)
		}
		rec.UpdatedAt = ts
	}
	if v := data[KeyCancelRequested]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyCancelRequested, err)
		}
		rec.CancelRequested = b
	}
	return rec, nil
}
