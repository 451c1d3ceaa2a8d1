package mealplan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/planweaver/planweaver/engine"
)

// WorkflowType is the workflow type driven by this package.
const WorkflowType = "GenerateWeeklyPlan"

// Activity names, in pipeline order.
const (
	ActivityLoadUserProfile          = "LoadUserProfile"
	ActivityRetrieveCandidateRecipes = "RetrieveCandidateRecipes"
	ActivityComposePlanWithLLM       = "ComposePlanWithLLM"
	ActivityValidateNutrition        = "ValidateNutrition"
	ActivityComputeGroceryList       = "ComputeGroceryList"
	ActivityPersistPlan              = "PersistPlan"
	ActivityScheduleReminders        = "ScheduleReminders"
)

const (
	// degradedAdherence is the adherence synthesized when nutrition
	// validation is unavailable.
	degradedAdherence = 70
	// adherenceWarnFloor is the adherence below which a warning is
	// accumulated. Warn-only: low adherence never aborts or retries.
	adherenceWarnFloor = 50

	errProfileNotFound = "profile not found"
)

// GenerateWeeklyPlan is the deterministic orchestrator for the weekly
// meal-plan pipeline. It holds no state: every decision is derived from
// the instance input and the recorded history, so replays after a crash
// reach identical decisions.
type GenerateWeeklyPlan struct{}

// Type implements engine.Orchestrator.
func (GenerateWeeklyPlan) Type() string { return WorkflowType }

// pipelineState is the fold of an instance's history: which activities
// completed with what payloads, whether the pipeline is on the failure
// path, and whether the tombstone persist already ran.
type pipelineState struct {
	completed   map[string]json.RawMessage
	completedAt map[string]time.Time

	// validationFailed marks a ValidateNutrition failure, which is
	// recovered locally rather than routed to the failure path.
	validationFailed bool

	// failure is the original unrecovered failure message; non-empty
	// means the pipeline is on the tombstone path.
	failure        string
	failedActivity string

	// tombstoneRecorded is set once the best-effort tombstone persist
	// has an outcome; its own failure is swallowed.
	tombstoneRecorded bool

	terminal *engine.HistoryEvent
}

func (s *pipelineState) failing() bool { return s.failure != "" }

// fold replays the history into a pipelineState.
func fold(history []engine.HistoryEvent) (*pipelineState, error) {
	s := &pipelineState{
		completed:   make(map[string]json.RawMessage),
		completedAt: make(map[string]time.Time),
	}

	for i := range history {
		ev := history[i]
		switch ev.Kind {
		case engine.EventActivityScheduled:
			// Scheduling carries no new information for the fold.

		case engine.EventActivityCompleted:
			if s.failing() && ev.Activity == ActivityPersistPlan {
				s.tombstoneRecorded = true
				continue
			}
			s.completed[ev.Activity] = ev.Payload
			s.completedAt[ev.Activity] = ev.Timestamp

			if ev.Activity == ActivityLoadUserProfile {
				var res LoadProfileResult
				if err := json.Unmarshal(ev.Payload, &res); err != nil {
					return nil, fmt.Errorf("decoding %s result: %w", ev.Activity, err)
				}
				if res.Profile == nil {
					s.failure = errProfileNotFound
					s.failedActivity = ActivityLoadUserProfile
				}
			}

		case engine.EventActivityFailed:
			if s.failing() {
				if ev.Activity == ActivityPersistPlan {
					// Best-effort tombstone persist failed; the original
					// failure is the one worth surfacing.
					s.tombstoneRecorded = true
				}
				continue
			}
			if ev.Activity == ActivityValidateNutrition {
				// Local recovery: proceed with a degraded result.
				s.validationFailed = true
				continue
			}
			s.failure = engine.FailureMessage(ev.Payload)
			s.failedActivity = ev.Activity

		case engine.EventOrchestrationCompleted, engine.EventOrchestrationFailed:
			s.terminal = &history[i]
		}
	}
	return s, nil
}

// Decide implements engine.Orchestrator.
func (g GenerateWeeklyPlan) Decide(instanceID string, input json.RawMessage, history []engine.HistoryEvent) (engine.NextAction, error) {
	var in GenerateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return engine.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	if in.UserID == "" || in.Week == "" {
		return engine.Fail("input requires user_id and week"), nil
	}

	s, err := fold(history)
	if err != nil {
		return engine.NextAction{}, err
	}

	// Replays after the terminal event reproduce it verbatim.
	if s.terminal != nil {
		if s.terminal.Kind == engine.EventOrchestrationCompleted {
			return engine.Complete(s.terminal.Payload), nil
		}
		return engine.Fail(engine.FailureMessage(s.terminal.Payload)), nil
	}

	if s.failing() {
		if !s.tombstoneRecorded {
			tomb := Plan{
				PlanID: instanceID,
				UserID: in.UserID,
				Week:   in.Week,
				Status: PlanStatusFailed,
				Errors: []string{s.failure},
			}
			return scheduleJSON(ActivityPersistPlan, PersistInput{Plan: tomb, Tombstone: true})
		}
		return engine.Fail(s.failure), nil
	}

	profileRaw, ok := s.completed[ActivityLoadUserProfile]
	if !ok {
		return scheduleJSON(ActivityLoadUserProfile, LoadProfileInput{UserID: in.UserID})
	}
	var loaded LoadProfileResult
	if err := json.Unmarshal(profileRaw, &loaded); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding profile result: %w", err)
	}
	profile := *loaded.Profile

	recipesRaw, ok := s.completed[ActivityRetrieveCandidateRecipes]
	if !ok {
		return scheduleJSON(ActivityRetrieveCandidateRecipes, RetrieveRecipesInput{
			Profile:     profile,
			Preferences: in.Preferences,
		})
	}
	var retrieved RetrieveRecipesResult
	if err := json.Unmarshal(recipesRaw, &retrieved); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding recipes result: %w", err)
	}

	draftRaw, ok := s.completed[ActivityComposePlanWithLLM]
	if !ok {
		return scheduleJSON(ActivityComposePlanWithLLM, ComposeInput{
			Profile: profile,
			Recipes: retrieved.Recipes,
		})
	}
	var draft PlanDraft
	if err := json.Unmarshal(draftRaw, &draft); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding composed draft: %w", err)
	}

	var validation ValidationResult
	switch {
	case s.validationFailed:
		validation = ValidationResult{
			IsValid:             true,
			AdherencePercentage: degradedAdherence,
			Issues:              []string{"nutrition validation unavailable"},
		}
	default:
		raw, ok := s.completed[ActivityValidateNutrition]
		if !ok {
			return scheduleJSON(ActivityValidateNutrition, ValidateInput{Draft: draft, Profile: profile})
		}
		if err := json.Unmarshal(raw, &validation); err != nil {
			return engine.NextAction{}, fmt.Errorf("decoding validation result: %w", err)
		}
	}

	plan := g.assemble(in, draft, validation)

	groceryRaw, ok := s.completed[ActivityComputeGroceryList]
	if !ok {
		return scheduleJSON(ActivityComputeGroceryList, GroceryInput{Plan: plan, Recipes: retrieved.Recipes})
	}
	var grocery GroceryList
	if err := json.Unmarshal(groceryRaw, &grocery); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding grocery list: %w", err)
	}
	plan.GroceryList = &grocery

	persistRaw, ok := s.completed[ActivityPersistPlan]
	if !ok {
		return scheduleJSON(ActivityPersistPlan, PersistInput{Plan: plan})
	}
	var persisted PersistResult
	if err := json.Unmarshal(persistRaw, &persisted); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding persist result: %w", err)
	}
	plan.PlanID = persisted.PlanID

	remindersRaw, ok := s.completed[ActivityScheduleReminders]
	if !ok {
		return scheduleJSON(ActivityScheduleReminders, RemindersInput{Plan: plan, Profile: profile})
	}
	var reminders RemindersResult
	if err := json.Unmarshal(remindersRaw, &reminders); err != nil {
		return engine.NextAction{}, fmt.Errorf("decoding reminders result: %w", err)
	}
	plan.Reminders = reminders.Reminders

	// Completion time comes from history, never from the wall clock.
	plan.Status = PlanStatusGenerated
	generatedAt := s.completedAt[ActivityScheduleReminders]
	plan.GeneratedAt = &generatedAt

	output, err := json.Marshal(plan)
	if err != nil {
		return engine.NextAction{}, fmt.Errorf("encoding plan output: %w", err)
	}
	return engine.Complete(output), nil
}

// assemble merges the draft and validation outcome into the aggregate,
// applying the warn-only adherence floor.
func (GenerateWeeklyPlan) assemble(in GenerateInput, draft PlanDraft, validation ValidationResult) Plan {
	plan := Plan{
		UserID:              in.UserID,
		Week:                in.Week,
		Days:                draft.Days,
		Source:              draft.Source,
		Model:               draft.Model,
		AdherencePercentage: validation.AdherencePercentage,
		NutritionAssessment: validation.Assessment,
		Issues:              validation.Issues,
	}
	if draft.Degraded {
		plan.Warnings = append(plan.Warnings, "plan composed without AI assistance")
	}
	if validation.AdherencePercentage < adherenceWarnFloor {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("nutrition adherence %d%% is below the %d%% floor", validation.AdherencePercentage, adherenceWarnFloor))
	}
	return plan
}

// Progress implements engine.ProgressReporter.
func (GenerateWeeklyPlan) Progress(history []engine.HistoryEvent) string {
	var label string
	failing := false
	for _, ev := range history {
		switch ev.Kind {
		case engine.EventActivityScheduled:
			if failing && ev.Activity == ActivityPersistPlan {
				label = "recording failure"
				continue
			}
			label = progressLabels[ev.Activity]
		case engine.EventActivityFailed:
			if ev.Activity != ActivityValidateNutrition {
				failing = true
			}
		case engine.EventOrchestrationCompleted:
			label = "plan generated"
		case engine.EventOrchestrationFailed:
			label = "failed"
		}
	}
	return label
}

var progressLabels = map[string]string{
	ActivityLoadUserProfile:          "loading profile",
	ActivityRetrieveCandidateRecipes: "retrieving recipes",
	ActivityComposePlanWithLLM:       "composing plan",
	ActivityValidateNutrition:        "validating nutrition",
	ActivityComputeGroceryList:       "building grocery list",
	ActivityPersistPlan:              "saving plan",
	ActivityScheduleReminders:        "scheduling reminders",
}

// scheduleJSON marshals the activity input and wraps it as a schedule
// action.
func scheduleJSON(activity string, input any) (engine.NextAction, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return engine.NextAction{}, fmt.Errorf("encoding %s input: %w", activity, err)
	}
	return engine.ScheduleActivity(activity, raw), nil
}
