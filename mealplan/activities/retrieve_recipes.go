package activities

import (
	"context"
	"encoding/json"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
	"github.com/planweaver/planweaver/mealplan/catalog"
)

// RetrieveCandidateRecipes selects catalog recipes compatible with the
// profile's allergies and dietary preferences.
type RetrieveCandidateRecipes struct {
	Catalog *catalog.Catalog
}

func (a *RetrieveCandidateRecipes) Name() string { return mealplan.ActivityRetrieveCandidateRecipes }

func (a *RetrieveCandidateRecipes) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.RetrieveRecipesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}

	recipes := a.Catalog.Candidates(in.Profile, in.Preferences)
	if len(recipes) == 0 {
		// No amount of retrying fixes an over-constrained profile.
		return nil, engine.Permanentf("no recipes compatible with profile for user %s", in.Profile.UserID)
	}

	logging.FromContext(ctx).Debug("candidate recipes selected",
		"user_id", in.Profile.UserID, "count", len(recipes))
	return json.Marshal(mealplan.RetrieveRecipesResult{Recipes: recipes})
}
