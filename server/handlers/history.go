package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/planweaver/planweaver/engine"
)

// HistoryResponse is the event log of one instance.
type HistoryResponse struct {
	InstanceID string                `json:"instance_id"`
	Events     []engine.HistoryEvent `json:"events"`
}

// HistoryHandler serves an instance's append-only event history.
type HistoryHandler struct {
	logger *slog.Logger
	client OrchestrationClient
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(logger *slog.Logger, client OrchestrationClient) *HistoryHandler {
	return &HistoryHandler{
		logger: logger,
		client: client,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	events, err := h.client.History(r.Context(), id)
	if errors.Is(err, engine.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown instance"})
		return
	}
	if err != nil {
		h.logger.Error("failed to read instance history", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{InstanceID: id, Events: events})
}
