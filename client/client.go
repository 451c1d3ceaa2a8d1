// Package client is the facade through which callers start workflow
// instances and query their progress. It is deliberately thin: starting
// an instance is a store write plus a dispatcher wake-up, and status
// queries read straight from the instance store.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/planweaver/planweaver/engine"
)

// StartGuard vets a start request before any instance state exists. A
// guard error rejects the start and leaves nothing behind.
type StartGuard interface {
	CheckStart(ctx context.Context, input json.RawMessage) error
}

// Status is the caller-facing view of an instance.
type Status struct {
	InstanceID   string                `json:"instance_id"`
	WorkflowType string                `json:"workflow_type"`
	Status       engine.InstanceStatus `json:"status"`
	CustomStatus string                `json:"custom_status,omitempty"`
	Output       json.RawMessage       `json:"output,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"last_updated_at"`
}

// Client starts orchestrations and answers status queries.
type Client struct {
	store   engine.InstanceStore
	logger  *slog.Logger
	guards  map[string]StartGuard
	notify  func(instanceID string)
	metrics *engine.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithGuard installs a start guard for one workflow type.
func WithGuard(workflowType string, guard StartGuard) Option {
	return func(c *Client) { c.guards[workflowType] = guard }
}

// WithNotifier wires the dispatcher wake-up called after each start.
func WithNotifier(notify func(instanceID string)) Option {
	return func(c *Client) { c.notify = notify }
}

// WithMetrics records started instances on the given metrics bundle.
func WithMetrics(m *engine.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client over the given instance store.
func New(store engine.InstanceStore, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		store:  store,
		logger: logger,
		guards: make(map[string]StartGuard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a new running instance for the workflow type and wakes
// the dispatcher. The returned ID is the handle for status queries.
func (c *Client) Start(ctx context.Context, workflowType string, input json.RawMessage) (string, error) {
	if guard, ok := c.guards[workflowType]; ok {
		if err := guard.CheckStart(ctx, input); err != nil {
			return "", err
		}
	}

	inst, err := c.store.CreateInstance(ctx, workflowType, input)
	if err != nil {
		return "", fmt.Errorf("creating instance: %w", err)
	}

	c.logger.Info("orchestration started",
		"instance_id", inst.ID, "workflow_type", workflowType)
	c.metrics.RecordStart()
	if c.notify != nil {
		c.notify(inst.ID)
	}
	return inst.ID, nil
}

// GetStatus returns the instance's current status. Unknown IDs yield
// engine.ErrNotFound.
func (c *Client) GetStatus(ctx context.Context, instanceID string) (Status, error) {
	inst, err := c.store.GetInstance(ctx, instanceID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		InstanceID:   inst.ID,
		WorkflowType: inst.WorkflowType,
		Status:       inst.Status,
		CustomStatus: inst.CustomStatus,
		Output:       inst.Output,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}, nil
}

// History returns the instance's event log ordered by sequence.
func (c *Client) History(ctx context.Context, instanceID string) ([]engine.HistoryEvent, error) {
	return c.store.History(ctx, instanceID)
}

// Terminate marks a running instance Terminated. Instances that already
// finished return engine.ErrTerminal.
func (c *Client) Terminate(ctx context.Context, instanceID, reason string) error {
	if err := c.store.Terminate(ctx, instanceID, reason); err != nil {
		return err
	}
	c.logger.Info("orchestration terminated",
		"instance_id", instanceID, "reason", reason)
	return nil
}

// WaitForCompletion polls until the instance reaches a terminal status
// or ctx is done.
func (c *Client) WaitForCompletion(ctx context.Context, instanceID string, pollInterval time.Duration) (Status, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, instanceID)
		if err != nil {
			return Status{}, err
		}
		if status.Status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
