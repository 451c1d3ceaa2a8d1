package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Activity is a single externally-effectful step invoked by the
// orchestrator.
//
// IMPLEMENTATION CONTRACT:
//   - Execute receives the input recorded in the scheduling event and
//     returns a serializable output or an error.
//   - Execution is at-least-once: a crash between execution and the
//     durable append of the outcome causes re-invocation with the same
//     input. Side-effecting activities must be idempotent with respect to
//     their logical input.
//   - Errors should be tagged (Transient, Permanent, TimeoutError) so the
//     dispatcher can make the retry decision by pattern match. Untagged
//     errors are treated as transient.
//   - Any non-determinism (random fallback selection, generated IDs) must
//     be captured in the returned output so replay never re-derives it.
type Activity interface {
	// Name returns the activity name used in history events.
	Name() string

	// Execute performs the activity's work.
	Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// registeredActivity pairs an activity with its retry policy.
type registeredActivity struct {
	activity Activity
	policy   RetryPolicy
}

// Registry holds the orchestrators and activities known to a dispatcher.
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[string]Orchestrator
	activities    map[string]registeredActivity
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		orchestrators: make(map[string]Orchestrator),
		activities:    make(map[string]registeredActivity),
	}
}

// RegisterOrchestrator adds an orchestrator keyed by its workflow type.
// Registering the same type twice is an error.
func (r *Registry) RegisterOrchestrator(o Orchestrator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orchestrators[o.Type()]; ok {
		return fmt.Errorf("orchestrator for workflow type %q already exists", o.Type())
	}
	r.orchestrators[o.Type()] = o
	return nil
}

// RegisterActivity adds an activity with its retry policy. Registering the
// same name twice is an error.
func (r *Registry) RegisterActivity(a Activity, policy RetryPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[a.Name()]; ok {
		return fmt.Errorf("activity %q already exists", a.Name())
	}
	r.activities[a.Name()] = registeredActivity{
		activity: a,
		policy:   policy.normalized(),
	}
	return nil
}

// Orchestrator looks up the orchestrator for a workflow type.
func (r *Registry) Orchestrator(workflowType string) (Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orchestrators[workflowType]
	return o, ok
}

// Activity looks up an activity and its retry policy by name.
func (r *Registry) Activity(name string) (Activity, RetryPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.activities[name]
	return reg.activity, reg.policy, ok
}
