package activities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
	"github.com/planweaver/planweaver/mealplan/planstore"
)

// PersistPlan saves the plan. The store upserts by (user, week), so
// re-invocation after a crash overwrites rather than duplicates. On the
// failure path the same activity persists the tombstone record.
type PersistPlan struct {
	Plans planstore.Store
}

func (a *PersistPlan) Name() string { return mealplan.ActivityPersistPlan }

func (a *PersistPlan) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.PersistInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}

	id, err := a.Plans.SavePlan(ctx, in.Plan)
	if err != nil {
		return nil, engine.Transient(fmt.Errorf("saving plan: %w", err))
	}

	logger := logging.FromContext(ctx)
	if in.Tombstone {
		logger.Warn("persisted failure tombstone",
			"plan_id", id, "user_id", in.Plan.UserID, "week", in.Plan.Week)
	} else {
		logger.Info("persisted plan",
			"plan_id", id, "user_id", in.Plan.UserID, "week", in.Plan.Week)
	}
	return json.Marshal(mealplan.PersistResult{PlanID: id})
}
