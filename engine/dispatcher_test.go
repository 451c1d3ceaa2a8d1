package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/store"
)

// singleStepOrch schedules one activity, completes with its output, and
// fails with its error message.
type singleStepOrch struct {
	activity string
}

func (o singleStepOrch) Type() string { return "SingleStep" }

func (o singleStepOrch) Decide(id string, input json.RawMessage, history []engine.HistoryEvent) (engine.NextAction, error) {
	for _, ev := range history {
		switch ev.Kind {
		case engine.EventActivityCompleted:
			return engine.Complete(ev.Payload), nil
		case engine.EventActivityFailed:
			return engine.Fail(engine.FailureMessage(ev.Payload)), nil
		}
	}
	return engine.ScheduleActivity(o.activity, input), nil
}

// progressOrch additionally publishes a custom status.
type progressOrch struct {
	singleStepOrch
}

func (o progressOrch) Progress(history []engine.HistoryEvent) string {
	if len(history) == 0 {
		return "waiting"
	}
	return "working on " + history[len(history)-1].Activity
}

// funcActivity counts calls and delegates to fn with the 1-based call
// number.
type funcActivity struct {
	name string
	fn   func(input json.RawMessage, call int) (json.RawMessage, error)

	mu    sync.Mutex
	calls int
}

func (a *funcActivity) Name() string { return a.name }

func (a *funcActivity) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()
	return a.fn(input, n)
}

func (a *funcActivity) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPolicy keeps retry waits negligible in tests.
func fastPolicy(maxAttempts int) engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  1.5,
		MaxBackoff:     5 * time.Millisecond,
	}
}

// startDispatcher runs d until the test ends.
func startDispatcher(t *testing.T, d *engine.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitTerminal(t *testing.T, st engine.InstanceStore, id string) engine.Instance {
	t.Helper()
	var inst engine.Instance
	require.Eventually(t, func() bool {
		var err error
		inst, err = st.GetInstance(context.Background(), id)
		require.NoError(t, err)
		return inst.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return inst
}

func TestDispatcherRunsInstanceToCompletion(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "fetch", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return json.RawMessage(`{"fetched":true}`), nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "fetch"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(3)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", json.RawMessage(`{"k":"v"}`))
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.JSONEq(t, `{"fetched":true}`, string(final.Output))
	assert.Equal(t, 1, act.callCount())

	history, err := st.History(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, engine.EventActivityScheduled, history[0].Kind)
	assert.Equal(t, engine.EventActivityCompleted, history[1].Kind)
	assert.Equal(t, engine.EventOrchestrationCompleted, history[2].Kind)
	// The scheduled event carries the orchestrator's input verbatim.
	assert.JSONEq(t, `{"k":"v"}`, string(history[0].Payload))
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "flaky", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		if call < 3 {
			return nil, engine.Transientf("connection reset")
		}
		return json.RawMessage(`{"ok":true}`), nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "flaky"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(5)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.Equal(t, 3, act.callCount())

	// Retries never reach history; only the final outcome is recorded.
	history, err := st.History(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, engine.EventActivityCompleted, history[1].Kind)
}

func TestDispatcherPermanentErrorSkipsRetry(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "doomed", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return nil, engine.Permanentf("no recipes match")
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "doomed"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(5)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusFailed, final.Status)
	assert.Equal(t, 1, act.callCount())
	assert.Contains(t, engine.FailureMessage(final.Output), "no recipes match")
}

func TestDispatcherExhaustsRetryBudget(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "flappy", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return nil, engine.Transientf("still down")
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "flappy"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(2)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusFailed, final.Status)
	assert.Equal(t, 2, act.callCount())
	assert.Contains(t, engine.FailureMessage(final.Output), "failed after 2 attempts")
}

func TestDispatcherUntaggedErrorTreatedAsTransient(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "plain", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		if call == 1 {
			return nil, errors.New("hiccup")
		}
		return json.RawMessage(`{}`), nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "plain"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(3)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.Equal(t, 2, act.callCount())
}

func TestDispatcherRepicksPendingScheduledActivity(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "fetch", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return input, nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "fetch"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(3)))

	// Simulate a crash after the schedule append: a scheduled event with
	// no recorded outcome.
	inst, err := st.CreateInstance(context.Background(), "SingleStep", json.RawMessage(`{"seed":7}`))
	require.NoError(t, err)
	_, err = st.AppendEvent(context.Background(), inst.ID, engine.HistoryEvent{
		Kind:     engine.EventActivityScheduled,
		Activity: "fetch",
		Payload:  json.RawMessage(`{"seed":7}`),
	})
	require.NoError(t, err)

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.Equal(t, 1, act.callCount())
	assert.JSONEq(t, `{"seed":7}`, string(final.Output))

	// No duplicate schedule event was appended.
	history, err := st.History(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
}

func TestDispatcherFailsUnknownWorkflowType(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "Nope", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusFailed, final.Status)
	assert.Contains(t, engine.FailureMessage(final.Output), "no orchestrator registered")
}

func TestDispatcherFailsUnregisteredActivity(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "missing"}))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusFailed, final.Status)
	assert.Contains(t, engine.FailureMessage(final.Output), "not registered")
}

func TestDispatcherNotifyWakesWithoutPolling(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "fetch", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(singleStepOrch{activity: "fetch"}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(3)))

	// A poll interval far beyond the test timeout; only Notify can get
	// this instance picked up.
	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(time.Hour))
	startDispatcher(t, d)

	// Let the initial scan pass before the instance exists.
	time.Sleep(20 * time.Millisecond)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)
	d.Notify(inst.ID)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
}

func TestDispatcherPublishesProgress(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()

	act := &funcActivity{name: "fetch", fn: func(input json.RawMessage, call int) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	require.NoError(t, reg.RegisterOrchestrator(progressOrch{singleStepOrch{activity: "fetch"}}))
	require.NoError(t, reg.RegisterActivity(act, fastPolicy(3)))

	d := engine.NewDispatcher(st, reg, testLogger(), engine.WithPollInterval(5*time.Millisecond))
	startDispatcher(t, d)

	inst, err := st.CreateInstance(context.Background(), "SingleStep", nil)
	require.NoError(t, err)

	final := waitTerminal(t, st, inst.ID)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.Equal(t, "working on fetch", final.CustomStatus)
}
