package engine

import "encoding/json"

// ActionKind identifies the variant of a NextAction.
type ActionKind int

const (
	// ActionScheduleActivity requests execution of a named activity.
	ActionScheduleActivity ActionKind = iota
	// ActionComplete ends the orchestration successfully.
	ActionComplete
	// ActionFail ends the orchestration with an error.
	ActionFail
)

// String returns the string representation of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionScheduleActivity:
		return "schedule_activity"
	case ActionComplete:
		return "complete"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// NextAction is the orchestrator's decision for one replay pass.
type NextAction struct {
	Kind ActionKind

	// Activity and Input are set for ActionScheduleActivity.
	Activity string
	Input    json.RawMessage

	// Output is set for ActionComplete.
	Output json.RawMessage

	// Reason is set for ActionFail.
	Reason string
}

// ScheduleActivity builds an action requesting execution of the named
// activity with the given input.
func ScheduleActivity(name string, input json.RawMessage) NextAction {
	return NextAction{Kind: ActionScheduleActivity, Activity: name, Input: input}
}

// Complete builds the terminal success action with the given output.
func Complete(output json.RawMessage) NextAction {
	return NextAction{Kind: ActionComplete, Output: output}
}

// Fail builds the terminal failure action with the given reason.
func Fail(reason string) NextAction {
	return NextAction{Kind: ActionFail, Reason: reason}
}

// Orchestrator is the deterministic control-flow function of a workflow
// type.
//
// IMPLEMENTATION CONTRACT:
//   - Decide must be a pure function of (instanceID, input, history).
//     Replaying it against the same history prefix must yield the same
//     action, byte for byte where payloads are concerned.
//   - Decide must not perform I/O, read the wall clock, or use unseeded
//     randomness. Timestamps recorded on history events are fair game.
//   - Decide is re-invoked after every history append, so it must tolerate
//     seeing its own prior decisions in the history.
type Orchestrator interface {
	// Type returns the workflow type this orchestrator drives,
	// e.g. "GenerateWeeklyPlan".
	Type() string

	// Decide inspects the history and returns the next action.
	// An error indicates corrupt history or an orchestrator bug; the
	// dispatcher records it as an orchestration failure.
	Decide(instanceID string, input json.RawMessage, history []HistoryEvent) (NextAction, error)
}

// ProgressReporter is an optional interface an Orchestrator may implement
// to publish a human-readable progress marker after each decision. The
// returned string becomes the instance's custom status.
type ProgressReporter interface {
	Progress(history []HistoryEvent) string
}
