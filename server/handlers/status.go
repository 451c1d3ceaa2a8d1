package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/planweaver/planweaver/engine"
)

// StatusHandler answers status queries for one orchestration instance.
type StatusHandler struct {
	logger *slog.Logger
	client OrchestrationClient
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(logger *slog.Logger, client OrchestrationClient) *StatusHandler {
	return &StatusHandler{
		logger: logger,
		client: client,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := h.client.GetStatus(r.Context(), id)
	if errors.Is(err, engine.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown instance"})
		return
	}
	if err != nil {
		h.logger.Error("failed to read instance status", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}
