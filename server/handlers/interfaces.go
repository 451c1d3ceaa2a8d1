// Package handlers provides HTTP handlers for the planweaver server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/planweaver/planweaver/client"
	"github.com/planweaver/planweaver/config"
	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
)

// OrchestrationClient is the facade subset the plan handlers need.
type OrchestrationClient interface {
	Start(ctx context.Context, workflowType string, input json.RawMessage) (string, error)
	GetStatus(ctx context.Context, instanceID string) (client.Status, error)
	History(ctx context.Context, instanceID string) ([]engine.HistoryEvent, error)
	Terminate(ctx context.Context, instanceID, reason string) error
}

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// NextRun is one upcoming scheduled generation.
type NextRun struct {
	UserID string    `json:"user_id"`
	Cron   string    `json:"cron"`
	At     time.Time `json:"at"`
}

// StatusSummary is the consolidated view served by /api/status.
type StatusSummary struct {
	Version   string    `json:"version"`
	Runnable  int       `json:"runnable_instances"`
	Workflows []string  `json:"workflows"`
	NextRuns  []NextRun `json:"next_runs,omitempty"`
}

// SummaryProvider provides the consolidated server status.
type SummaryProvider interface {
	Summary(ctx context.Context) (StatusSummary, error)
}

// LogsProvider exposes captured per-instance log entries.
type LogsProvider interface {
	Logs(instanceID string) []logging.LogEntry
}
