package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
	"github.com/planweaver/planweaver/mealplan/planstore"
)

// LoadUserProfile fetches the user's dietary profile. An unknown user is
// not an activity error: the result carries a nil profile and the
// orchestrator decides how to fail.
type LoadUserProfile struct {
	Plans planstore.Store
}

func (a *LoadUserProfile) Name() string { return mealplan.ActivityLoadUserProfile }

func (a *LoadUserProfile) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.LoadProfileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}

	profile, err := a.Plans.GetProfile(ctx, in.UserID)
	if errors.Is(err, planstore.ErrNotFound) {
		logging.FromContext(ctx).Warn("profile not found", "user_id", in.UserID)
		return json.Marshal(mealplan.LoadProfileResult{Profile: nil})
	}
	if err != nil {
		return nil, engine.Transient(fmt.Errorf("loading profile: %w", err))
	}

	if profile.MealsPerDay <= 0 {
		profile.MealsPerDay = 3
	}
	return json.Marshal(mealplan.LoadProfileResult{Profile: profile})
}
