package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/planweaver/planweaver/logging"
)

const (
	defaultWorkers      = 4
	defaultPollInterval = time.Second
)

// Dispatcher drives runnable instances to completion. A pool of workers
// each processes one instance at a time: replay the orchestrator against
// the stored history, execute the activity it requests, append the
// outcome, and re-evaluate until a terminal event.
//
// The dispatcher tolerates a process crash at any point. A scheduled
// activity with no recorded outcome is re-picked on restart and executed
// again (at-least-once), which is why activities must be idempotent.
type Dispatcher struct {
	store     InstanceStore
	registry  *Registry
	logger    *slog.Logger
	metrics   *Metrics
	collector *logging.LogCollector

	workers      int
	pollInterval time.Duration
	wake         chan string

	mu     sync.Mutex
	claims map[string]struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the worker pool size. Default is 4.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithPollInterval sets how often the dispatcher scans for runnable
// instances. Default is one second. Started instances are additionally
// picked up immediately via Notify.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithMetrics enables orchestration metrics reporting.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogCollector captures per-instance activity logs so status endpoints
// can return them.
func WithLogCollector(c *logging.LogCollector) DispatcherOption {
	return func(d *Dispatcher) {
		d.collector = c
	}
}

// NewDispatcher creates a Dispatcher over the given store and registry.
func NewDispatcher(store InstanceStore, registry *Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		registry:     registry,
		logger:       logger,
		workers:      defaultWorkers,
		pollInterval: defaultPollInterval,
		wake:         make(chan string, 64),
		claims:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify hints that the given instance has work. Non-blocking; the poll
// loop will find the instance regardless.
func (d *Dispatcher) Notify(instanceID string) {
	select {
	case d.wake <- instanceID:
	default:
	}
}

// Run processes instances until ctx is cancelled, then drains in-flight
// work and returns. An in-flight activity whose outcome was not yet
// appended is simply re-attempted on the next start.
func (d *Dispatcher) Run(ctx context.Context) error {
	queue := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				d.runInstance(ctx, id)
				d.release(id)
			}
		}()
	}

	d.logger.Info("dispatcher started",
		"workers", d.workers,
		"poll_interval", d.pollInterval,
	)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	dispatch := func(id string) {
		if !d.claim(id) {
			return
		}
		select {
		case queue <- id:
		case <-ctx.Done():
			d.release(id)
		}
	}

	d.scan(ctx, dispatch)
	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			d.logger.Info("dispatcher stopped")
			return nil
		case id := <-d.wake:
			dispatch(id)
		case <-ticker.C:
			d.scan(ctx, dispatch)
		}
	}
}

// scan lists runnable instances and hands unclaimed ones to dispatch.
func (d *Dispatcher) scan(ctx context.Context, dispatch func(string)) {
	ids, err := d.store.ListRunnable(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("listing runnable instances", "error", err)
		}
		return
	}
	d.metrics.queueDepth(len(ids))
	for _, id := range ids {
		dispatch(id)
	}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, held := d.claims[id]; held {
		return false
	}
	d.claims[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, id)
}

// runInstance advances one instance as far as it can go: replay, execute,
// append, repeat. Returns when the instance is terminal, the context is
// cancelled, or an append fails.
func (d *Dispatcher) runInstance(ctx context.Context, id string) {
	logger := d.instanceLogger(id)
	ctx = logging.NewContext(ctx, logger)

	for ctx.Err() == nil {
		inst, err := d.store.GetInstance(ctx, id)
		if err != nil {
			logger.Error("loading instance", "error", err)
			return
		}
		if inst.Status.IsTerminal() {
			return
		}

		history, err := d.store.History(ctx, id)
		if err != nil {
			logger.Error("loading history", "error", err)
			return
		}

		orch, ok := d.registry.Orchestrator(inst.WorkflowType)
		if !ok {
			d.failInstance(ctx, logger, id,
				fmt.Sprintf("no orchestrator registered for workflow type %q", inst.WorkflowType))
			return
		}

		// A scheduled activity without a recorded outcome is in-flight
		// work (possibly from before a crash). Execute it before asking
		// the orchestrator for anything new.
		if pending, ok := pendingActivity(history); ok {
			if !d.executeAndRecord(ctx, logger, id, pending) {
				return
			}
			continue
		}

		action, err := orch.Decide(id, inst.Input, history)
		if err != nil {
			logger.Error("orchestrator decision failed", "error", err)
			d.failInstance(ctx, logger, id, fmt.Sprintf("orchestrator error: %v", err))
			return
		}

		switch action.Kind {
		case ActionScheduleActivity:
			ev := HistoryEvent{
				Kind:     EventActivityScheduled,
				Activity: action.Activity,
				Payload:  action.Input,
			}
			stored, err := d.store.AppendEvent(ctx, id, ev)
			if err != nil {
				logger.Error("appending schedule event", "activity", action.Activity, "error", err)
				return
			}
			d.publishProgress(ctx, id, orch, append(history, stored))
			if !d.executeAndRecord(ctx, logger, id, stored) {
				return
			}

		case ActionComplete:
			ev := HistoryEvent{Kind: EventOrchestrationCompleted, Payload: action.Output}
			if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
				logger.Error("appending completion event", "error", err)
				return
			}
			d.metrics.terminal(true)
			logger.Info("orchestration completed")
			return

		case ActionFail:
			ev := HistoryEvent{Kind: EventOrchestrationFailed, Payload: FailurePayload(action.Reason)}
			if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
				logger.Error("appending failure event", "error", err)
				return
			}
			d.metrics.terminal(false)
			logger.Error("orchestration failed", "reason", action.Reason)
			return

		default:
			d.failInstance(ctx, logger, id, fmt.Sprintf("unknown action kind %d", action.Kind))
			return
		}
	}
}

// executeAndRecord runs the scheduled activity and appends its outcome.
// Returns false if the caller should stop advancing this instance
// (cancellation or append failure). A cancellation before the outcome is
// appended leaves the scheduled event pending, to be re-picked later.
func (d *Dispatcher) executeAndRecord(ctx context.Context, logger *slog.Logger, id string, scheduled HistoryEvent) bool {
	act, policy, ok := d.registry.Activity(scheduled.Activity)
	if !ok {
		ev := HistoryEvent{
			Kind:     EventActivityFailed,
			Activity: scheduled.Activity,
			Payload:  FailurePayload(fmt.Sprintf("activity %q not registered", scheduled.Activity)),
		}
		if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
			logger.Error("appending failure for unregistered activity", "error", err)
			return false
		}
		return true
	}

	output, err := d.executeWithRetry(ctx, logger, act, policy, scheduled.Payload)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Shutdown, not failure. The scheduled event stays pending.
			return false
		}
		ev := HistoryEvent{
			Kind:     EventActivityFailed,
			Activity: scheduled.Activity,
			Payload:  FailurePayload(err.Error()),
		}
		if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
			logger.Error("appending activity failure", "activity", scheduled.Activity, "error", err)
			return false
		}
		return true
	}

	ev := HistoryEvent{
		Kind:     EventActivityCompleted,
		Activity: scheduled.Activity,
		Payload:  output,
	}
	if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
		logger.Error("appending activity completion", "activity", scheduled.Activity, "error", err)
		return false
	}
	return true
}

// executeWithRetry runs the activity under its retry policy. Transient
// errors and timeouts are retried with exponential backoff; permanent
// errors and an exhausted budget surface to the caller.
func (d *Dispatcher) executeWithRetry(ctx context.Context, logger *slog.Logger, act Activity, policy RetryPolicy, input []byte) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}

		start := time.Now()
		output, err := act.Execute(attemptCtx, input)
		elapsed := time.Since(start)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			d.metrics.attempt(act.Name(), OutcomeSuccess, elapsed.Seconds())
			return output, nil
		}

		// An attempt deadline shows up as context.DeadlineExceeded;
		// retag it so the taxonomy stays explicit.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !IsTimeout(err) {
			err = &TimeoutError{Err: fmt.Errorf("attempt exceeded %v", policy.AttemptTimeout)}
		}

		if ctx.Err() != nil {
			return nil, context.Canceled
		}

		if IsPermanent(err) {
			d.metrics.attempt(act.Name(), OutcomeFailure, elapsed.Seconds())
			logger.Error("activity failed permanently",
				"activity", act.Name(), "attempt", attempt, "error", err)
			return nil, err
		}

		if attempt >= policy.MaxAttempts {
			d.metrics.attempt(act.Name(), OutcomeFailure, elapsed.Seconds())
			logger.Error("activity retry budget exhausted",
				"activity", act.Name(), "attempts", attempt, "error", err)
			return nil, fmt.Errorf("activity %s failed after %d attempts: %w", act.Name(), attempt, err)
		}

		backoff := policy.Backoff(attempt)
		d.metrics.attempt(act.Name(), OutcomeRetry, elapsed.Seconds())
		logger.Warn("activity attempt failed, retrying",
			"activity", act.Name(), "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, context.Canceled
		}
	}
}

// failInstance records a terminal orchestration failure outside the
// orchestrator's own decision path (unknown workflow type, decision
// error).
func (d *Dispatcher) failInstance(ctx context.Context, logger *slog.Logger, id, reason string) {
	ev := HistoryEvent{Kind: EventOrchestrationFailed, Payload: FailurePayload(reason)}
	if _, err := d.store.AppendEvent(ctx, id, ev); err != nil {
		logger.Error("appending dispatcher failure event", "error", err)
		return
	}
	d.metrics.terminal(false)
}

// publishProgress updates the instance's custom status if the
// orchestrator reports progress.
func (d *Dispatcher) publishProgress(ctx context.Context, id string, orch Orchestrator, history []HistoryEvent) {
	pr, ok := orch.(ProgressReporter)
	if !ok {
		return
	}
	if err := d.store.SetCustomStatus(ctx, id, pr.Progress(history)); err != nil && ctx.Err() == nil {
		d.logger.Warn("updating custom status", "instance_id", id, "error", err)
	}
}

// instanceLogger returns a logger tagged with the instance ID, capturing
// records per instance when a collector is configured.
func (d *Dispatcher) instanceLogger(id string) *slog.Logger {
	logger := d.logger.With("instance_id", id)
	if d.collector == nil {
		return logger
	}
	return slog.New(logging.NewCapturingHandler(logger.Handler(), d.collector, id))
}

// pendingActivity returns the last event if it is a scheduled activity
// awaiting an outcome. Steps are strictly sequential, so only the final
// event can be pending.
func pendingActivity(history []HistoryEvent) (HistoryEvent, bool) {
	if len(history) == 0 {
		return HistoryEvent{}, false
	}
	last := history[len(history)-1]
	if last.Kind == EventActivityScheduled {
		return last, true
	}
	return HistoryEvent{}, false
}
