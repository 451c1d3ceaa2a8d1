package engine

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when an instance ID is unknown.
var ErrNotFound = errors.New("instance not found")

// ErrTerminal is returned when mutating an instance that already reached a
// terminal status. Terminal statuses are monotonic.
var ErrTerminal = errors.New("instance already terminal")

// InstanceStore persists workflow instances and their histories.
//
// IMPLEMENTATION CONTRACT:
//   - AppendEvent assigns the next sequence number and persists the event
//     and the derived instance mutation atomically. Concurrent appends to
//     one instance must linearize; the dispatcher additionally enforces a
//     single writer per instance.
//   - A terminal event (orchestration completed/failed) sets the instance
//     status and output in the same atomic step. Later appends return
//     ErrTerminal.
//   - GetInstance must be safe at any time: immediately after
//     CreateInstance (running, no output) and indefinitely after
//     completion. It must never report a status ahead of the persisted
//     history.
type InstanceStore interface {
	// CreateInstance stores a new running instance with a fresh unique ID.
	CreateInstance(ctx context.Context, workflowType string, input json.RawMessage) (Instance, error)

	// GetInstance returns the instance record, or ErrNotFound.
	GetInstance(ctx context.Context, id string) (Instance, error)

	// History returns the instance's events ordered by sequence number.
	History(ctx context.Context, id string) ([]HistoryEvent, error)

	// AppendEvent durably appends an event, assigning its sequence
	// number, and applies the derived instance mutation. Returns the
	// stored event.
	AppendEvent(ctx context.Context, id string, ev HistoryEvent) (HistoryEvent, error)

	// SetCustomStatus updates the instance's opaque progress marker.
	// No-op on terminal instances.
	SetCustomStatus(ctx context.Context, id, status string) error

	// Terminate marks a running instance Terminated with the given
	// reason. Returns ErrTerminal if the instance already finished.
	Terminate(ctx context.Context, id, reason string) error

	// ListRunnable returns the IDs of instances that still need dispatch
	// work, oldest first.
	ListRunnable(ctx context.Context) ([]string, error)
}
