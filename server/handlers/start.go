package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/planweaver/planweaver/mealplan"
)

// StartRequest defines the request body for POST /api/plans.
type StartRequest struct {
	UserID      string   `json:"user_id"`
	Week        string   `json:"week"`
	Regenerate  bool     `json:"regenerate,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}

// StartResponse is returned when an orchestration is accepted.
type StartResponse struct {
	InstanceID string `json:"instance_id"`
}

// StartHandler handles requests to start plan generation.
type StartHandler struct {
	logger *slog.Logger
	client OrchestrationClient
}

// NewStartHandler creates a new StartHandler.
func NewStartHandler(logger *slog.Logger, client OrchestrationClient) *StartHandler {
	return &StartHandler{
		logger: logger,
		client: client,
	}
}

// ServeHTTP implements http.Handler.
func (h *StartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}
	if req.UserID == "" || req.Week == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "user_id and week are required",
		})
		return
	}

	input, err := json.Marshal(mealplan.GenerateInput{
		UserID:      req.UserID,
		Week:        req.Week,
		Regenerate:  req.Regenerate,
		Preferences: req.Preferences,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.client.Start(r.Context(), mealplan.WorkflowType, input)
	if errors.Is(err, mealplan.ErrPlanExists) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed to start orchestration", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, StartResponse{InstanceID: id})
}
