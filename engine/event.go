package engine

import (
	"encoding/json"
	"time"
)

// EventKind identifies the type of a history event.
type EventKind int

const (
	// EventActivityScheduled records that the orchestrator requested an
	// activity. The payload is the activity input.
	EventActivityScheduled EventKind = iota

	// EventActivityCompleted records a successful activity execution.
	// The payload is the activity output.
	EventActivityCompleted

	// EventActivityFailed records an activity failure after the retry
	// budget was exhausted (or a permanent error). The payload carries
	// the error message.
	EventActivityFailed

	// EventOrchestrationCompleted is the terminal success event.
	// The payload is the orchestration output.
	EventOrchestrationCompleted

	// EventOrchestrationFailed is the terminal failure event.
	// The payload carries the error message.
	EventOrchestrationFailed
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventActivityScheduled:
		return "activity_scheduled"
	case EventActivityCompleted:
		return "activity_completed"
	case EventActivityFailed:
		return "activity_failed"
	case EventOrchestrationCompleted:
		return "orchestration_completed"
	case EventOrchestrationFailed:
		return "orchestration_failed"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// IsTerminal returns true for the two orchestration-level terminal kinds.
func (k EventKind) IsTerminal() bool {
	return k == EventOrchestrationCompleted || k == EventOrchestrationFailed
}

// HistoryEvent is a single entry in an instance's append-only history.
// Ordering by Sequence is the sole source of truth for replay.
type HistoryEvent struct {
	// Sequence is monotonic per instance, starting at 1. Assigned by the
	// store on append.
	Sequence int64 `json:"sequence"`

	// Kind is the event type.
	Kind EventKind `json:"kind"`

	// Activity is the activity name for activity-level events; empty for
	// orchestration-level events.
	Activity string `json:"activity,omitempty"`

	// Payload is the event body: activity input/output, orchestration
	// output, or a failure message.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is the append time. Orchestrators may read timestamps
	// from history (they are recorded facts) but never the wall clock.
	Timestamp time.Time `json:"timestamp"`
}

// Failure is the payload shape used by failure events.
type Failure struct {
	Error string `json:"error"`
}

// FailurePayload encodes an error message as a failure event payload.
func FailurePayload(msg string) json.RawMessage {
	b, _ := json.Marshal(Failure{Error: msg})
	return b
}

// FailureMessage decodes the error message from a failure event payload.
// Returns the raw payload text if it is not the expected shape.
func FailureMessage(payload json.RawMessage) string {
	var f Failure
	if err := json.Unmarshal(payload, &f); err != nil || f.Error == "" {
		return string(payload)
	}
	return f.Error
}
