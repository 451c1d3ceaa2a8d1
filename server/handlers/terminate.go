package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/planweaver/planweaver/engine"
)

// TerminateRequest defines the request body for POST /api/plans/{id}/terminate.
type TerminateRequest struct {
	Reason string `json:"reason"`
}

// TerminateHandler marks a running instance Terminated.
type TerminateHandler struct {
	logger *slog.Logger
	client OrchestrationClient
}

// NewTerminateHandler creates a new TerminateHandler.
func NewTerminateHandler(logger *slog.Logger, client OrchestrationClient) *TerminateHandler {
	return &TerminateHandler{
		logger: logger,
		client: client,
	}
}

// ServeHTTP implements http.Handler.
func (h *TerminateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TerminateRequest
	if r.Body != nil {
		// An empty body means an unexplained termination, which is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "terminated by operator"
	}

	err := h.client.Terminate(r.Context(), id, req.Reason)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown instance"})
	case errors.Is(err, engine.ErrTerminal):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "instance already finished"})
	case err != nil:
		h.logger.Error("failed to terminate instance", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
