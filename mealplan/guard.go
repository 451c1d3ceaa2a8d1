package mealplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPlanExists is returned when a plan for the requested user and week
// already exists and the request did not ask to regenerate it.
var ErrPlanExists = errors.New("plan already exists for this week")

// PlanChecker reports whether a generated plan exists for a user/week.
type PlanChecker interface {
	PlanExists(ctx context.Context, userID, week string) (bool, error)
}

// RegenerateGuard rejects duplicate starts for a user/week unless the
// request sets regenerate. It runs before any history is written, so a
// rejected start leaves no instance behind.
type RegenerateGuard struct {
	Plans PlanChecker
}

// CheckStart implements the client start-guard contract.
func (g RegenerateGuard) CheckStart(ctx context.Context, input json.RawMessage) error {
	var in GenerateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if in.UserID == "" || in.Week == "" {
		return errors.New("input requires user_id and week")
	}
	if in.Regenerate {
		return nil
	}
	exists, err := g.Plans.PlanExists(ctx, in.UserID, in.Week)
	if err != nil {
		return fmt.Errorf("checking existing plan: %w", err)
	}
	if exists {
		return ErrPlanExists
	}
	return nil
}
