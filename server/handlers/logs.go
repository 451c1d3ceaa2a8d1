package handlers

import (
	"net/http"

	"github.com/planweaver/planweaver/logging"
)

// LogsResponse carries the captured log entries of one instance.
type LogsResponse struct {
	InstanceID string             `json:"instance_id"`
	Logs       []logging.LogEntry `json:"logs"`
}

// LogsHandler serves the captured per-instance activity logs.
type LogsHandler struct {
	provider LogsProvider
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(provider LogsProvider) *LogsHandler {
	return &LogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, LogsResponse{
		InstanceID: id,
		Logs:       h.provider.Logs(id),
	})
}
