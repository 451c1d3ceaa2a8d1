// Package store provides the durable implementations of
// engine.InstanceStore.
//
// All coordination in the engine reduces to "append an event to this
// instance's log", so AppendEvent is the system's synchronization
// primitive: appends are atomic and totally ordered per instance, and a
// terminal event freezes the instance permanently. Two implementations are
// provided: MemoryStore for tests and single-process development, and
// SQLiteStore for durable deployments.
package store

import (
	"github.com/planweaver/planweaver/engine"
)

// applyEvent derives the instance mutation for an appended event.
// Shared by both store implementations so status transitions stay in one
// place.
func applyEvent(inst *engine.Instance, ev engine.HistoryEvent) {
	switch ev.Kind {
	case engine.EventOrchestrationCompleted:
		inst.Status = engine.StatusCompleted
		inst.Output = ev.Payload
	case engine.EventOrchestrationFailed:
		inst.Status = engine.StatusFailed
		inst.Output = ev.Payload
	}
	inst.UpdatedAt = ev.Timestamp
}
