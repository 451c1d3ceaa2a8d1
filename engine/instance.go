package engine

import (
	"encoding/json"
	"time"
)

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus int

const (
	// StatusRunning indicates the instance has unfinished work.
	StatusRunning InstanceStatus = iota
	// StatusCompleted indicates the orchestration reached its terminal
	// success event.
	StatusCompleted
	// StatusFailed indicates the orchestration reached its terminal
	// failure event.
	StatusFailed
	// StatusTerminated indicates the instance was cancelled by an
	// operator rather than by the orchestrator.
	StatusTerminated
)

// String returns the string representation of the status.
func (s InstanceStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s InstanceStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// IsTerminal returns true once the instance can no longer make progress.
// Terminal statuses are monotonic: a store never transitions an instance
// out of a terminal status.
func (s InstanceStatus) IsTerminal() bool {
	return s != StatusRunning
}

// Instance is the durable record of one workflow run. It is created when a
// client starts an orchestration and mutated only by the dispatcher after a
// history append. Instances are retained after completion for status
// polling and audit.
type Instance struct {
	ID           string          `json:"id"`
	WorkflowType string          `json:"workflow_type"`
	Input        json.RawMessage `json:"input,omitempty"`
	Status       InstanceStatus  `json:"status"`
	// CustomStatus is an opaque progress marker published by the
	// orchestrator, e.g. "composing plan".
	CustomStatus string          `json:"custom_status,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
