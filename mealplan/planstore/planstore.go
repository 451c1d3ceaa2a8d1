// Package planstore persists generated meal plans and user profiles.
//
// Plans are keyed by (user, week) with upsert semantics so that the
// at-least-once activity dispatch can re-invoke PersistPlan safely:
// a second save for the same user-week overwrites rather than
// duplicates.
package planstore

import (
	"context"
	"errors"

	"github.com/planweaver/planweaver/mealplan"
)

// ErrNotFound is returned when a plan or profile does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract for plans and profiles.
type Store interface {
	// SavePlan upserts a plan keyed by (UserID, Week) and returns the
	// stable plan ID. Re-saving the same user-week overwrites the
	// content but keeps the ID assigned on first insert.
	SavePlan(ctx context.Context, plan mealplan.Plan) (string, error)

	// GetPlan returns the stored plan for a user-week, or ErrNotFound.
	GetPlan(ctx context.Context, userID, week string) (*mealplan.Plan, error)

	// PlanExists reports whether a plan is stored for a user-week.
	PlanExists(ctx context.Context, userID, week string) (bool, error)

	// SaveProfile upserts a user profile.
	SaveProfile(ctx context.Context, profile mealplan.Profile) error

	// GetProfile returns the profile for a user, or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*mealplan.Profile, error)

	Close() error
}
