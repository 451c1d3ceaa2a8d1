package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/mealplan"
	"github.com/planweaver/planweaver/mealplan/planstore"
	"github.com/planweaver/planweaver/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartNotifiesDispatcher(t *testing.T) {
	var woken []string
	c := New(store.NewMemoryStore(), testLogger(),
		WithNotifier(func(id string) { woken = append(woken, id) }))

	id, err := c.Start(context.Background(), "GenerateWeeklyPlan", json.RawMessage(`{"user_id":"u1","week":"2025-W37"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, []string{id}, woken)

	status, err := c.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRunning, status.Status)
	assert.Equal(t, "GenerateWeeklyPlan", status.WorkflowType)
	assert.Nil(t, status.Output)
}

func TestStartGuardRejects(t *testing.T) {
	plans := planstore.NewMemoryStore()
	_, err := plans.SavePlan(context.Background(), mealplan.Plan{UserID: "u1", Week: "2025-W37"})
	require.NoError(t, err)

	c := New(store.NewMemoryStore(), testLogger(),
		WithGuard(mealplan.WorkflowType, mealplan.RegenerateGuard{Plans: plans}))

	// Existing plan without regenerate is rejected before any instance
	// state is written.
	_, err = c.Start(context.Background(), mealplan.WorkflowType,
		json.RawMessage(`{"user_id":"u1","week":"2025-W37"}`))
	assert.ErrorIs(t, err, mealplan.ErrPlanExists)

	// Regenerate passes the guard.
	id, err := c.Start(context.Background(), mealplan.WorkflowType,
		json.RawMessage(`{"user_id":"u1","week":"2025-W37","regenerate":true}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// Other workflow types are unguarded.
	_, err = c.Start(context.Background(), "Other", json.RawMessage(`{}`))
	assert.NoError(t, err)
}

func TestGetStatusUnknownInstance(t *testing.T) {
	c := New(store.NewMemoryStore(), testLogger())
	_, err := c.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestTerminate(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(st, testLogger())

	id, err := c.Start(context.Background(), "GenerateWeeklyPlan", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, c.Terminate(context.Background(), id, "operator request"))

	status, err := c.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusTerminated, status.Status)

	// Terminal statuses are monotonic.
	err = c.Terminate(context.Background(), id, "again")
	assert.ErrorIs(t, err, engine.ErrTerminal)
}

func TestWaitForCompletion(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(st, testLogger())

	id, err := c.Start(context.Background(), "GenerateWeeklyPlan", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := make(chan Status, 1)
	go func() {
		status, err := c.WaitForCompletion(context.Background(), id, 10*time.Millisecond)
		if err == nil {
			done <- status
		}
	}()

	_, err = st.AppendEvent(context.Background(), id, engine.HistoryEvent{
		Kind:    engine.EventOrchestrationCompleted,
		Payload: json.RawMessage(`{"status":"Generated"}`),
	})
	require.NoError(t, err)

	select {
	case status := <-done:
		assert.Equal(t, engine.StatusCompleted, status.Status)
		assert.JSONEq(t, `{"status":"Generated"}`, string(status.Output))
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe completion")
	}
}

func TestWaitForCompletionContextCancelled(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(st, testLogger())

	id, err := c.Start(context.Background(), "GenerateWeeklyPlan", json.RawMessage(`{}`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.WaitForCompletion(ctx, id, 10*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
