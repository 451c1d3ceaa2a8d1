package mealplan

import "time"

// GenerateInput is the orchestration input for GenerateWeeklyPlan.
type GenerateInput struct {
	UserID string `json:"user_id"`
	// Week is an ISO week identifier such as "2025-W37".
	Week string `json:"week"`
	// Regenerate allows overwriting an existing plan for the same
	// user-week. Checked before instance creation, never mid-flight.
	Regenerate bool `json:"regenerate,omitempty"`
	// Preferences optionally override profile preferences for this run.
	Preferences []string `json:"preferences,omitempty"`
}

// Profile describes a user's dietary profile.
type Profile struct {
	UserID             string   `json:"user_id"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	DailyCalorieTarget int      `json:"daily_calorie_target"`
	DailyProteinTarget int      `json:"daily_protein_target,omitempty"`
	HouseholdSize      int      `json:"household_size"`
	MealsPerDay        int      `json:"meals_per_day"`
}

// Ingredient is one recipe ingredient with a quantity in a named unit.
// The yaml tags support the recipe catalog file.
type Ingredient struct {
	Name     string  `json:"name" yaml:"name"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	Unit     string  `json:"unit" yaml:"unit"`
	// UnitPrice is the estimated cost per unit, used for grocery cost
	// estimation.
	UnitPrice float64 `json:"unit_price,omitempty" yaml:"unit_price,omitempty"`
}

// Nutrition summarizes the nutritional content of a recipe or a day.
type Nutrition struct {
	Calories int `json:"calories" yaml:"calories"`
	Protein  int `json:"protein" yaml:"protein"`
	Carbs    int `json:"carbs" yaml:"carbs"`
	Fat      int `json:"fat" yaml:"fat"`
}

// Recipe is a candidate recipe from the catalog.
type Recipe struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	MealType    string       `json:"meal_type" yaml:"meal_type"` // breakfast, lunch, dinner
	Tags        []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Nutrition   Nutrition    `json:"nutrition" yaml:"nutrition"`
	Ingredients []Ingredient `json:"ingredients" yaml:"ingredients"`
}

// Meal is one slot in a day plan.
type Meal struct {
	MealType  string    `json:"meal_type"`
	RecipeID  string    `json:"recipe_id"`
	Name      string    `json:"name"`
	Servings  int       `json:"servings"`
	Nutrition Nutrition `json:"nutrition"`
}

// DayPlan is one day of the weekly plan.
type DayPlan struct {
	// Day is the 0-based index into the week, Monday first.
	Day   int    `json:"day"`
	Meals []Meal `json:"meals"`
}

// PlanDraft is the composed plan before validation and enrichment.
type PlanDraft struct {
	Days []DayPlan `json:"days"`
	// Source records how the draft was produced: "llm" or "fallback".
	Source string `json:"source"`
	// Model is the LLM model used, empty for fallback drafts.
	Model string `json:"model,omitempty"`
	// FallbackSeed records the seed used for rule-based recipe selection
	// so replay never re-derives a random choice.
	FallbackSeed int64 `json:"fallback_seed,omitempty"`
	// Degraded marks drafts produced without the LLM.
	Degraded bool `json:"degraded,omitempty"`
}

// ValidationResult is the outcome of nutrition validation.
type ValidationResult struct {
	IsValid             bool     `json:"is_valid"`
	Issues              []string `json:"issues,omitempty"`
	AdherencePercentage int      `json:"adherence_percentage"`
	Assessment          string   `json:"assessment,omitempty"`
}

// GroceryItem is one consolidated grocery-list entry.
type GroceryItem struct {
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// GroceryList is the consolidated shopping list for a week.
type GroceryList struct {
	Items         []GroceryItem `json:"items"`
	EstimatedCost float64       `json:"estimated_cost"`
}

// Reminder is one scheduled meal-prep reminder.
type Reminder struct {
	Day      int       `json:"day"`
	MealType string    `json:"meal_type"`
	At       time.Time `json:"at"`
	Message  string    `json:"message"`
}

// Plan statuses recorded on the aggregate.
const (
	PlanStatusGenerated = "Generated"
	PlanStatusFailed    = "Failed"
)

// Plan is the accumulating aggregate the pipeline builds. The
// orchestration core treats it as an opaque payload passed between
// activities.
type Plan struct {
	PlanID string `json:"plan_id,omitempty"`
	UserID string `json:"user_id"`
	Week   string `json:"week"`
	Status string `json:"status,omitempty"`

	Days []DayPlan `json:"days,omitempty"`

	Source string `json:"source,omitempty"`
	Model  string `json:"model,omitempty"`

	AdherencePercentage int      `json:"adherence_percentage,omitempty"`
	NutritionAssessment string   `json:"nutrition_assessment,omitempty"`
	Issues              []string `json:"issues,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`

	GroceryList *GroceryList `json:"grocery_list,omitempty"`
	Reminders   []Reminder   `json:"reminders,omitempty"`

	// Errors is populated on failure tombstones.
	Errors []string `json:"errors,omitempty"`

	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// Activity payload shapes. Each activity's input and output is one of
// these structs, serialized into the history events.

// LoadProfileInput is the input to LoadUserProfile.
type LoadProfileInput struct {
	UserID string `json:"user_id"`
}

// LoadProfileResult is the output of LoadUserProfile. Profile is nil when
// the user is unknown, which fails the orchestration.
type LoadProfileResult struct {
	Profile *Profile `json:"profile"`
}

// RetrieveRecipesInput is the input to RetrieveCandidateRecipes.
type RetrieveRecipesInput struct {
	Profile Profile `json:"profile"`
	// Preferences are per-run overrides from the orchestration input.
	Preferences []string `json:"preferences,omitempty"`
}

// RetrieveRecipesResult is the output of RetrieveCandidateRecipes.
type RetrieveRecipesResult struct {
	Recipes []Recipe `json:"recipes"`
}

// ComposeInput is the input to ComposePlanWithLLM.
type ComposeInput struct {
	Profile Profile  `json:"profile"`
	Recipes []Recipe `json:"recipes"`
}

// ValidateInput is the input to ValidateNutrition.
type ValidateInput struct {
	Draft   PlanDraft `json:"draft"`
	Profile Profile   `json:"profile"`
}

// GroceryInput is the input to ComputeGroceryList.
type GroceryInput struct {
	Plan    Plan     `json:"plan"`
	Recipes []Recipe `json:"recipes"`
}

// PersistInput is the input to PersistPlan.
type PersistInput struct {
	Plan Plan `json:"plan"`
	// Tombstone marks the best-effort persist on the failure path; the
	// activity logs but never retries aggressively for tombstones.
	Tombstone bool `json:"tombstone,omitempty"`
}

// PersistResult is the output of PersistPlan.
type PersistResult struct {
	PlanID string `json:"plan_id"`
}

// RemindersInput is the input to ScheduleReminders.
type RemindersInput struct {
	Plan    Plan    `json:"plan"`
	Profile Profile `json:"profile"`
}

// RemindersResult is the output of ScheduleReminders.
type RemindersResult struct {
	Reminders []Reminder `json:"reminders"`
}
