package artifact

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imamik/stagehand/internal/migration"
)

var (
	// ErrNotFound is returned when a requested file does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrAwaitTimeout is returned when an upstream marker did not appear in time.
	ErrAwaitTimeout = errors.New("timed out waiting for upstream stage")

	// ErrUpstreamFailed is returned when an upstream stage failed terminally.
	ErrUpstreamFailed = errors.New("upstream stage failed")

	// ErrCancelled is returned when the run was cancelled while waiting.
	ErrCancelled = errors.New("run cancelled")
)

// ManifestFile is the plugin manifest produced by extract.
const ManifestFile = "manifest.jsonl"

// Backend stores opaque files by slash separated key.
type Backend interface {
	// Put writes a file. Readers never observe partially written content.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads a file and returns ErrNotFound when it is missing.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Store is the artifact store of one run.
type Store struct {
	backend Backend
}

// New returns a store on top of backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// MarkerKey is the key of a stage's completion marker.
func MarkerKey(stage migration.StageName) string {
	return fmt.Sprintf("markers/%d-%s.done", stage.Ordinal(), stage)
}

// FailureKey is the key of a stage's terminal failure marker.
func FailureKey(stage migration.StageName) string {
	return fmt.Sprintf("markers/%d-%s.failed", stage.Ordinal(), stage)
}

func attemptsKey(stage migration.StageName) string {
	return "attempts/" + string(stage)
}

// NoteKey is the key of a stage's note file.
func NoteKey(stage migration.StageName) string {
	return fmt.Sprintf("notes/%s.txt", stage)
}

// WriteMarker records that stage completed at the given time.
func (s *Store) WriteMarker(ctx context.Context, stage migration.StageName, at time.Time) error {
	data := []byte(at.UTC().Format(time.RFC3339Nano))
	if err := s.backend.Put(ctx, MarkerKey(stage), data); err != nil {
		return fmt.Errorf("failed to write marker for %s: %w", stage, err)
	}
	return nil
}

// MarkerTime returns the completion time recorded in a stage's marker.
func (s *Store) MarkerTime(ctx context.Context, stage migration.StageName) (time.Time, error) {
	data, err := s.backend.Get(ctx, MarkerKey(stage))
	if err != nil {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid marker for %s: %w", stage, err)
	}
	return at, nil
}

// HasMarker reports whether stage completed.
func (s *Store) HasMarker(ctx context.Context, stage migration.StageName) (bool, error) {
	return s.backend.Exists(ctx, MarkerKey(stage))
}

// WriteFailure records that stage failed terminally.
func (s *Store) WriteFailure(ctx context.Context, stage migration.StageName, message string) error {
	if err := s.backend.Put(ctx, FailureKey(stage), []byte(message)); err != nil {
		return fmt.Errorf("failed to write failure marker for %s: %w", stage, err)
	}
	return nil
}

// Failure returns the failure message of stage, if it failed terminally.
func (s *Store) Failure(ctx context.Context, stage migration.StageName) (string, bool, error) {
	data, err := s.backend.Get(ctx, FailureKey(stage))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// IncrementAttempts bumps and returns the stage's attempt counter. Only one
// pod of a stage runs at a time, so the read-modify-write needs no lock.
func (s *Store) IncrementAttempts(ctx context.Context, stage migration.StageName) (int, error) {
	attempts := 0
	data, err := s.backend.Get(ctx, attemptsKey(stage))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return 0, err
	default:
		attempts, err = strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, fmt.Errorf("invalid attempt counter for %s: %w", stage, err)
		}
	}

	attempts++
	if err := s.backend.Put(ctx, attemptsKey(stage), []byte(strconv.Itoa(attempts))); err != nil {
		return 0, fmt.Errorf("failed to record attempt for %s: %w", stage, err)
	}
	return attempts, nil
}

// WriteFile writes an arbitrary file such as the manifest or a note.
func (s *Store) WriteFile(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// ReadFile reads a file written by WriteFile. Missing files yield ErrNotFound.
func (s *Store) ReadFile(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Get(ctx, key)
}
