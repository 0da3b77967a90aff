// Package status keeps the live status record of a migration run.
//
// The record is a ConfigMap named <release>-migration-<runID>-status. Its
// status key follows the state machine
//
//	pending -> running -> stage:<name> -> ... -> completed | failed
//
// Stage states only move forward in chain order. Terminal states are final.
package status

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/stagehand/internal/migration"
)

var (
	// ErrTerminal is returned when a record in a terminal state would change.
	ErrTerminal = errors.New("status record is in a terminal state")

	// ErrInvalidTransition is returned for transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// State is the value of the record's status key.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"

	stagePrefix = "stage:"
)

// StageState is the state of a run while the named stage executes.
func StageState(name migration.StageName) State {
	return State(stagePrefix + string(name))
}

// Stage returns the stage of a stage state.
func (s State) Stage() (migration.StageName, bool) {
	name, ok := strings.CutPrefix(string(s), stagePrefix)
	if !ok {
		return "", false
	}
	return migration.StageName(name), true
}

// IsTerminal reports whether no further transition is allowed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateCompleted, StateFailed:
		return true
	}
	name, ok := s.Stage()
	return ok && name.Ordinal() > 0
}

// CheckTransition validates a move from one state to another. Repeating the
// current non-terminal state is allowed so retried attempts can re-enter it.
func CheckTransition(from, to State) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrTerminal, from, to)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}

	switch to {
	case StateFailed:
		return nil
	case StatePending:
		return fmt.Errorf("%w: cannot return to %s from %s", ErrInvalidTransition, to, from)
	case StateRunning:
		if from == StatePending {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	case StateCompleted:
		if _, ok := from.Stage(); ok {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	// to is a stage state.
	next, _ := to.Stage()
	switch from {
	case StatePending:
		return fmt.Errorf("%w: %s must pass through %s", ErrInvalidTransition, to, StateRunning)
	case StateRunning:
		return nil
	}
	current, _ := from.Stage()
	if next.Ordinal() < current.Ordinal() {
		return fmt.Errorf("%w: stage %s cannot follow %s", ErrInvalidTransition, next, current)
	}
	return nil
}
