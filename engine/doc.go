// Package engine implements a durable workflow execution core built on an
// append-only event history and deterministic replay.
//
// # Core Concepts
//
// A workflow instance is one run of a named workflow type. Everything the
// instance has done is recorded as an ordered sequence of history events
// (activity scheduled, activity completed, activity failed, orchestration
// completed, orchestration failed). The history is the sole source of truth:
// no in-memory state survives a process restart, and none is needed.
//
// An Orchestrator is a pure decision function. Given the instance input and
// the history recorded so far, Decide returns the next action: schedule an
// activity, complete the orchestration with an output, or fail it. Decide
// must not perform I/O, read the wall clock, or use unseeded randomness.
// All non-determinism lives inside activities, whose results are recorded
// in history so that replaying Decide over the same prefix always yields
// the same action.
//
// An Activity is a named unit of work taking a serialized input and
// returning a serialized output or an error. Activities are executed
// at-least-once: if the process crashes between execution and the durable
// append of the outcome, the activity is re-attempted on restart.
// Side-effecting activities must therefore be idempotent.
//
// The Dispatcher drives instances forward. A pool of workers picks up
// runnable instances, replays the orchestrator against the stored history,
// executes the activity it requests, appends the outcome, and re-evaluates
// until a terminal event is reached. Each instance has at most one activity
// in flight, so instance history has a single writer.
//
// # Error Taxonomy
//
// Activities signal failure through tagged error variants so the
// dispatcher's retry decision is a pattern match rather than string
// sniffing:
//
//   - TransientError: retried with exponential backoff until the attempt
//     budget is exhausted. Invisible to history unless the budget runs out.
//   - PermanentError: recorded as an activity failure immediately.
//   - TimeoutError: an attempt exceeded its deadline. Treated as transient
//     up to the budget, then permanent.
//
// Untagged errors are treated as transient; given idempotent activities a
// spurious retry is harmless while a spurious permanent failure is not.
package engine
