package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/migration"
)

// Store reads and writes one run's status record.
type Store struct {
	client    k8s.Client
	namespace string
	name      string
	now       func() time.Time
}

// NewStore returns a store for the record namespace/name.
func NewStore(client k8s.Client, namespace, name string) *Store {
	return &Store{client: client, namespace: namespace, name: name, now: time.Now}
}

// Name returns the ConfigMap name of the record.
func (s *Store) Name() string { return s.name }

// Create writes a new record in the pending state. It fails if the record exists.
func (s *Store) Create(ctx context.Context, rec Record, objLabels map[string]string) error {
	rec.Status = StatePending
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.UpdatedAt = rec.Timestamp

	if err := s.client.CreateConfigMap(ctx, NewConfigMap(s.namespace, s.name, objLabels, rec)); err != nil {
		return fmt.Errorf("failed to create status record: %w", err)
	}
	return nil
}

// Get reads the record.
func (s *Store) Get(ctx context.Context) (*Record, error) {
	cm, err := s.client.GetConfigMap(ctx, s.namespace, s.name)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(cm.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode status record %s: %w", s.name, err)
	}
	return rec, nil
}

// Transition moves the record to a new state. Concurrent writers are
// serialized through the ConfigMap's resourceVersion.
func (s *Store) Transition(ctx context.Context, to State, message string) (*Record, error) {
	var result *Record
	err := s.update(ctx, func(rec *Record) error {
		if err := CheckTransition(rec.Status, to); err != nil {
			return err
		}
		rec.Status = to
		rec.Message = message
		if name, ok := to.Stage(); ok {
			rec.Stage = string(name)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).Info("Status record updated", "record", s.name, "status", to, "message", message)
	return result, nil
}

// EnterStage records that the named stage is about to run its body. The
// first stage of a chain also moves the record out of pending; a retried
// first stage finds it already past that point.
func (s *Store) EnterStage(ctx context.Context, name migration.StageName, first bool) error {
	if first {
		rec, err := s.Get(ctx)
		if err != nil {
			return err
		}
		if rec.Status == StatePending {
			if _, err := s.Transition(ctx, StateRunning, ""); err != nil {
				return err
			}
		}
	}
	_, err := s.Transition(ctx, StageState(name), "")
	return err
}

// Fail moves the record to failed. A record that already reached a terminal
// state keeps it.
func (s *Store) Fail(ctx context.Context, message string) error {
	_, err := s.Transition(ctx, StateFailed, message)
	if errors.Is(err, ErrTerminal) {
		return nil
	}
	return err
}

// RequestCancel sets the cancellation flag every awaiting stage watches and
// fails the run. A record that is already terminal is left alone.
func (s *Store) RequestCancel(ctx context.Context, message string) (*Record, error) {
	var result *Record
	err := s.update(ctx, func(rec *Record) error {
		result = rec
		if rec.Status.IsTerminal() {
			return errUnchanged
		}
		rec.CancelRequested = true
		rec.Status = StateFailed
		rec.Message = message
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// errUnchanged lets a mutation skip the write without failing.
var errUnchanged = errors.New("unchanged")

func (s *Store) update(ctx context.Context, mutate func(*Record) error) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := s.client.GetConfigMap(ctx, s.namespace, s.name)
		if err != nil {
			return err
		}
		rec, err := Decode(cm.Data)
		if err != nil {
			return fmt.Errorf("failed to decode status record %s: %w", s.name, err)
		}
		if err := mutate(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.now()
		cm.Data = encode(*rec)
		_, err = s.client.UpdateConfigMap(ctx, cm)
		return err
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}
