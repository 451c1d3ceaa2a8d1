package activities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
)

// calorieTolerance is the allowed relative deviation of a day's calories
// from the profile target.
const calorieTolerance = 0.15

// proteinFloor is the fraction of the protein target a day must reach.
const proteinFloor = 0.85

// ValidateNutrition scores a draft against the profile's daily targets.
// It is pure computation: the same draft and profile always produce the
// same result.
type ValidateNutrition struct{}

func (a *ValidateNutrition) Name() string { return mealplan.ActivityValidateNutrition }

func (a *ValidateNutrition) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.ValidateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}
	if len(in.Draft.Days) == 0 {
		return nil, engine.Permanentf("draft has no days to validate")
	}

	result := validate(in.Draft, in.Profile)
	logging.FromContext(ctx).Debug("nutrition validated",
		"adherence", result.AdherencePercentage, "issues", len(result.Issues))
	return json.Marshal(result)
}

func validate(draft mealplan.PlanDraft, profile mealplan.Profile) mealplan.ValidationResult {
	var checks, passed int
	var issues []string

	for _, day := range draft.Days {
		var calories, protein int
		for _, meal := range day.Meals {
			// Per-serving nutrition approximates one person's intake.
			calories += meal.Nutrition.Calories
			protein += meal.Nutrition.Protein
		}

		if target := profile.DailyCalorieTarget; target > 0 {
			checks++
			deviation := float64(calories-target) / float64(target)
			if deviation < 0 {
				deviation = -deviation
			}
			if deviation <= calorieTolerance {
				passed++
			} else {
				issues = append(issues, fmt.Sprintf(
					"day %d: %d kcal deviates more than %.0f%% from target %d",
					day.Day, calories, calorieTolerance*100, target))
			}
		}

		if target := profile.DailyProteinTarget; target > 0 {
			checks++
			if float64(protein) >= proteinFloor*float64(target) {
				passed++
			} else {
				issues = append(issues, fmt.Sprintf(
					"day %d: %dg protein is below %.0f%% of target %d",
					day.Day, protein, proteinFloor*100, target))
			}
		}
	}

	adherence := 100
	if checks > 0 {
		adherence = passed * 100 / checks
	}

	return mealplan.ValidationResult{
		IsValid:             adherence >= 50,
		Issues:              issues,
		AdherencePercentage: adherence,
		Assessment:          assessment(adherence),
	}
}

func assessment(adherence int) string {
	switch {
	case adherence >= 90:
		return "excellent"
	case adherence >= 75:
		return "good"
	case adherence >= 50:
		return "fair"
	default:
		return "poor"
	}
}
