package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
)

const planDays = 7

var mealTypeOrder = []string{"breakfast", "lunch", "dinner"}

// ChatClient captures the subset of the go-openai client used for plan
// composition.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// ComposePlanWithLLM asks the LLM to arrange the candidate recipes into
// a seven-day draft. When the LLM is unreachable or returns an unusable
// answer the activity does not fail: it builds a rule-based fallback
// draft instead and marks the result degraded. The random seed used for
// fallback selection is recorded in the result so replay never needs to
// re-derive it.
type ComposePlanWithLLM struct {
	Chat  ChatClient
	Model string

	// Now supplies the fallback seed. Defaults to the wall clock.
	Now func() time.Time
}

func (a *ComposePlanWithLLM) Name() string { return mealplan.ActivityComposePlanWithLLM }

func (a *ComposePlanWithLLM) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.ComposeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}
	if len(in.Recipes) == 0 {
		return nil, engine.Permanentf("no candidate recipes to compose from")
	}

	logger := logging.FromContext(ctx)

	if a.Chat != nil {
		draft, err := a.composeWithLLM(ctx, in)
		if err == nil {
			return json.Marshal(draft)
		}
		logger.Warn("LLM composition failed, using rule-based fallback", "error", err)
	} else {
		logger.Info("no LLM client configured, using rule-based fallback")
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	seed := now().UnixNano()
	draft := fallbackDraft(in, seed)
	logger.Info("composed fallback draft", "seed", seed, "days", len(draft.Days))
	return json.Marshal(draft)
}

// llmPlan is the JSON shape the model is asked to produce.
type llmPlan struct {
	Days []struct {
		Day   int `json:"day"`
		Meals []struct {
			MealType string `json:"meal_type"`
			RecipeID string `json:"recipe_id"`
			Servings int    `json:"servings"`
		} `json:"meals"`
	} `json:"days"`
}

func (a *ComposePlanWithLLM) composeWithLLM(ctx context.Context, in mealplan.ComposeInput) (mealplan.PlanDraft, error) {
	resp, err := a.Chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.Model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: composeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: composeUserPrompt(in)},
		},
	})
	if err != nil {
		return mealplan.PlanDraft{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return mealplan.PlanDraft{}, errors.New("chat completion returned no choices")
	}

	var parsed llmPlan
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return mealplan.PlanDraft{}, fmt.Errorf("parsing completion: %w", err)
	}
	return draftFromLLM(parsed, in, a.Model)
}

const composeSystemPrompt = `You are a meal planning assistant. Arrange the provided recipes into a 7-day meal plan. Respond with JSON only, in the shape {"days":[{"day":0,"meals":[{"meal_type":"breakfast","recipe_id":"...","servings":1}]}]}. Days are 0-based, Monday first. Use only the provided recipe IDs and match each meal slot's meal type. Vary recipes across the week.`

func composeUserPrompt(in mealplan.ComposeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Household size: %d. Meals per day: %d. Daily calorie target: %d.\n",
		in.Profile.HouseholdSize, mealsPerDay(in.Profile), in.Profile.DailyCalorieTarget)
	if len(in.Profile.DietaryPreferences) > 0 {
		fmt.Fprintf(&b, "Dietary preferences: %s.\n", strings.Join(in.Profile.DietaryPreferences, ", "))
	}
	b.WriteString("Recipes:\n")
	for _, r := range in.Recipes {
		fmt.Fprintf(&b, "- id=%s name=%q meal_type=%s calories=%d protein=%d\n",
			r.ID, r.Name, r.MealType, r.Nutrition.Calories, r.Nutrition.Protein)
	}
	return b.String()
}

func draftFromLLM(parsed llmPlan, in mealplan.ComposeInput, model string) (mealplan.PlanDraft, error) {
	if len(parsed.Days) != planDays {
		return mealplan.PlanDraft{}, fmt.Errorf("expected %d days, got %d", planDays, len(parsed.Days))
	}
	byID := make(map[string]mealplan.Recipe, len(in.Recipes))
	for _, r := range in.Recipes {
		byID[r.ID] = r
	}

	days := make([]mealplan.DayPlan, planDays)
	for i, d := range parsed.Days {
		if len(d.Meals) == 0 {
			return mealplan.PlanDraft{}, fmt.Errorf("day %d has no meals", i)
		}
		day := mealplan.DayPlan{Day: i}
		for _, m := range d.Meals {
			recipe, ok := byID[m.RecipeID]
			if !ok {
				return mealplan.PlanDraft{}, fmt.Errorf("day %d references unknown recipe %q", i, m.RecipeID)
			}
			servings := m.Servings
			if servings <= 0 {
				servings = max(in.Profile.HouseholdSize, 1)
			}
			day.Meals = append(day.Meals, mealplan.Meal{
				MealType:  m.MealType,
				RecipeID:  recipe.ID,
				Name:      recipe.Name,
				Servings:  servings,
				Nutrition: recipe.Nutrition,
			})
		}
		days[i] = day
	}
	return mealplan.PlanDraft{Days: days, Source: "llm", Model: model}, nil
}

// fallbackDraft builds a rule-based draft by round-robin selection from
// the candidate recipes, seeded so the choice is reproducible from the
// recorded result.
func fallbackDraft(in mealplan.ComposeInput, seed int64) mealplan.PlanDraft {
	rng := rand.New(rand.NewSource(seed))

	byType := make(map[string][]mealplan.Recipe)
	for _, r := range in.Recipes {
		byType[r.MealType] = append(byType[r.MealType], r)
	}

	servings := max(in.Profile.HouseholdSize, 1)
	meals := mealsPerDay(in.Profile)

	days := make([]mealplan.DayPlan, planDays)
	for d := 0; d < planDays; d++ {
		day := mealplan.DayPlan{Day: d}
		for s := 0; s < meals; s++ {
			mealType := mealTypeOrder[s%len(mealTypeOrder)]
			pool := byType[mealType]
			if len(pool) == 0 {
				pool = in.Recipes
			}
			recipe := pool[rng.Intn(len(pool))]
			day.Meals = append(day.Meals, mealplan.Meal{
				MealType:  mealType,
				RecipeID:  recipe.ID,
				Name:      recipe.Name,
				Servings:  servings,
				Nutrition: recipe.Nutrition,
			})
		}
		days[d] = day
	}

	return mealplan.PlanDraft{
		Days:         days,
		Source:       "fallback",
		FallbackSeed: seed,
		Degraded:     true,
	}
}

func mealsPerDay(p mealplan.Profile) int {
	if p.MealsPerDay > 0 {
		return p.MealsPerDay
	}
	return len(mealTypeOrder)
}
