package mealplan

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planweaver/planweaver/engine"
)

// stub is the canned outcome for one activity during a driven run.
type stub struct {
	result  any
	failMsg string
}

// driver executes the orchestrator decision loop against canned activity
// outcomes, appending events the way the dispatcher would. At every step
// Decide is invoked twice against the same history to check replay
// determinism.
type driver struct {
	t       *testing.T
	orch    GenerateWeeklyPlan
	input   json.RawMessage
	history []engine.HistoryEvent
	stubs   map[string]stub

	// scheduled records every scheduling decision for assertions.
	scheduled []engine.NextAction

	base time.Time
}

func newDriver(t *testing.T, input GenerateInput, stubs map[string]stub) *driver {
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return &driver{
		t:     t,
		input: raw,
		stubs: stubs,
		base:  time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (d *driver) append(kind engine.EventKind, activity string, payload json.RawMessage) {
	d.history = append(d.history, engine.HistoryEvent{
		Sequence:  int64(len(d.history) + 1),
		Kind:      kind,
		Activity:  activity,
		Payload:   payload,
		Timestamp: d.base.Add(time.Duration(len(d.history)) * time.Minute),
	})
}

// decide runs Decide twice and requires identical decisions.
func (d *driver) decide() engine.NextAction {
	first, err := d.orch.Decide("inst-1", d.input, d.history)
	require.NoError(d.t, err)
	second, err := d.orch.Decide("inst-1", d.input, d.history)
	require.NoError(d.t, err)
	require.Equal(d.t, first, second, "replayed decision diverged")
	return first
}

// run drives the workflow to its terminal action.
func (d *driver) run() engine.NextAction {
	for i := 0; i < 50; i++ {
		action := d.decide()
		switch action.Kind {
		case engine.ActionScheduleActivity:
			d.scheduled = append(d.scheduled, action)
			d.append(engine.EventActivityScheduled, action.Activity, action.Input)

			s, ok := d.stubs[action.Activity]
			require.True(d.t, ok, "no stub for activity %s", action.Activity)
			if s.failMsg != "" {
				d.append(engine.EventActivityFailed, action.Activity, engine.FailurePayload(s.failMsg))
				// A stubbed failure applies once; reruns succeed if a
				// result is also provided.
				if s.result != nil {
					s.failMsg = ""
					d.stubs[action.Activity] = s
				}
				continue
			}
			payload, err := json.Marshal(s.result)
			require.NoError(d.t, err)
			d.append(engine.EventActivityCompleted, action.Activity, payload)

		case engine.ActionComplete:
			d.append(engine.EventOrchestrationCompleted, "", action.Output)
			return action
		case engine.ActionFail:
			d.append(engine.EventOrchestrationFailed, "", engine.FailurePayload(action.Reason))
			return action
		}
	}
	d.t.Fatal("workflow did not terminate")
	return engine.NextAction{}
}

func happyProfile() *Profile {
	return &Profile{
		UserID:             "u1",
		DailyCalorieTarget: 2000,
		HouseholdSize:      2,
		MealsPerDay:        3,
	}
}

func happyDraft() PlanDraft {
	days := make([]DayPlan, 7)
	for d := range days {
		days[d].Day = d
		for _, mt := range []string{"breakfast", "lunch", "dinner"} {
			days[d].Meals = append(days[d].Meals, Meal{
				MealType: mt,
				RecipeID: "r-" + mt,
				Name:     "R " + mt,
				Servings: 2,
			})
		}
	}
	return PlanDraft{Days: days, Source: "llm", Model: "gpt-4o-mini"}
}

func happyGroceries() GroceryList {
	list := GroceryList{}
	for i := 0; i < 18; i++ {
		list.Items = append(list.Items, GroceryItem{
			Name: fmt.Sprintf("item-%02d", i), Quantity: 1, Unit: "piece", EstimatedCost: 1,
		})
		list.EstimatedCost += 1
	}
	return list
}

func happyReminders() []Reminder {
	var out []Reminder
	for d := 0; d < 7; d++ {
		for _, mt := range []string{"breakfast", "lunch", "dinner"} {
			out = append(out, Reminder{Day: d, MealType: mt, Message: "Prep " + mt})
		}
	}
	return out
}

func happyStubs() map[string]stub {
	return map[string]stub{
		ActivityLoadUserProfile:          {result: LoadProfileResult{Profile: happyProfile()}},
		ActivityRetrieveCandidateRecipes: {result: RetrieveRecipesResult{Recipes: []Recipe{{ID: "r1", Name: "R1", MealType: "dinner"}}}},
		ActivityComposePlanWithLLM:       {result: happyDraft()},
		ActivityValidateNutrition:        {result: ValidationResult{IsValid: true, AdherencePercentage: 92, Assessment: "excellent"}},
		ActivityComputeGroceryList:       {result: happyGroceries()},
		ActivityPersistPlan:              {result: PersistResult{PlanID: "plan-123"}},
		ActivityScheduleReminders:        {result: RemindersResult{Reminders: happyReminders()}},
	}
}

func TestHappyPathCompletes(t *testing.T) {
	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, happyStubs())
	action := d.run()

	require.Equal(t, engine.ActionComplete, action.Kind)

	var plan Plan
	require.NoError(t, json.Unmarshal(action.Output, &plan))
	assert.Equal(t, PlanStatusGenerated, plan.Status)
	assert.Equal(t, "plan-123", plan.PlanID)
	assert.Equal(t, "u1", plan.UserID)
	assert.Equal(t, "2025-W37", plan.Week)
	assert.Equal(t, 92, plan.AdherencePercentage)
	require.NotNil(t, plan.GroceryList)
	assert.Len(t, plan.GroceryList.Items, 18)
	assert.Len(t, plan.Reminders, 21)
	assert.Empty(t, plan.Warnings)
	assert.Empty(t, plan.Errors)

	// The activity order is the strict pipeline order.
	var order []string
	for _, a := range d.scheduled {
		order = append(order, a.Activity)
	}
	assert.Equal(t, []string{
		ActivityLoadUserProfile,
		ActivityRetrieveCandidateRecipes,
		ActivityComposePlanWithLLM,
		ActivityValidateNutrition,
		ActivityComputeGroceryList,
		ActivityPersistPlan,
		ActivityScheduleReminders,
	}, order)

	// The completion timestamp comes from the recorded history, not the
	// wall clock.
	require.NotNil(t, plan.GeneratedAt)
	var remindersDone time.Time
	for _, ev := range d.history {
		if ev.Kind == engine.EventActivityCompleted && ev.Activity == ActivityScheduleReminders {
			remindersDone = ev.Timestamp
		}
	}
	assert.Equal(t, remindersDone, *plan.GeneratedAt)
}

func TestUnknownProfileFailsWithTombstone(t *testing.T) {
	stubs := happyStubs()
	stubs[ActivityLoadUserProfile] = stub{result: LoadProfileResult{Profile: nil}}

	d := newDriver(t, GenerateInput{UserID: "ghost", Week: "2025-W37"}, stubs)
	action := d.run()

	require.Equal(t, engine.ActionFail, action.Kind)
	assert.Equal(t, "profile not found", action.Reason)

	// The second scheduled activity is the best-effort tombstone persist.
	require.Len(t, d.scheduled, 2)
	assert.Equal(t, ActivityPersistPlan, d.scheduled[1].Activity)

	var persist PersistInput
	require.NoError(t, json.Unmarshal(d.scheduled[1].Input, &persist))
	assert.True(t, persist.Tombstone)
	assert.Equal(t, PlanStatusFailed, persist.Plan.Status)
	assert.Equal(t, "inst-1", persist.Plan.PlanID)
	assert.Equal(t, []string{"profile not found"}, persist.Plan.Errors)
}

func TestAIOutageFailsWithTombstone(t *testing.T) {
	stubs := happyStubs()
	stubs[ActivityComposePlanWithLLM] = stub{failMsg: "endpoint unreachable"}

	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, stubs)
	action := d.run()

	require.Equal(t, engine.ActionFail, action.Kind)
	assert.Equal(t, "endpoint unreachable", action.Reason)

	last := d.scheduled[len(d.scheduled)-1]
	require.Equal(t, ActivityPersistPlan, last.Activity)
	var persist PersistInput
	require.NoError(t, json.Unmarshal(last.Input, &persist))
	assert.True(t, persist.Tombstone)
	assert.Equal(t, []string{"endpoint unreachable"}, persist.Plan.Errors)
}

func TestTombstonePersistFailureIsSwallowed(t *testing.T) {
	stubs := happyStubs()
	stubs[ActivityComposePlanWithLLM] = stub{failMsg: "endpoint unreachable"}
	stubs[ActivityPersistPlan] = stub{failMsg: "database down"}

	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, stubs)
	action := d.run()

	// The original failure is surfaced, not the persistence problem.
	require.Equal(t, engine.ActionFail, action.Kind)
	assert.Equal(t, "endpoint unreachable", action.Reason)
}

func TestDegradedValidationDoesNotAbort(t *testing.T) {
	stubs := happyStubs()
	stubs[ActivityValidateNutrition] = stub{failMsg: "validator offline"}

	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, stubs)
	action := d.run()

	require.Equal(t, engine.ActionComplete, action.Kind)

	var plan Plan
	require.NoError(t, json.Unmarshal(action.Output, &plan))
	assert.Equal(t, PlanStatusGenerated, plan.Status)
	assert.Equal(t, 70, plan.AdherencePercentage)
	require.Len(t, plan.Issues, 1)
	assert.Contains(t, plan.Issues[0], "unavailable")
}

func TestLowAdherenceOnlyWarns(t *testing.T) {
	stubs := happyStubs()
	stubs[ActivityValidateNutrition] = stub{result: ValidationResult{IsValid: false, AdherencePercentage: 40, Assessment: "poor"}}

	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, stubs)
	action := d.run()

	require.Equal(t, engine.ActionComplete, action.Kind)
	var plan Plan
	require.NoError(t, json.Unmarshal(action.Output, &plan))
	assert.Equal(t, PlanStatusGenerated, plan.Status)
	assert.Equal(t, 40, plan.AdherencePercentage)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "below")
}

func TestDegradedDraftAddsWarning(t *testing.T) {
	stubs := happyStubs()
	draft := happyDraft()
	draft.Source = "fallback"
	draft.Model = ""
	draft.Degraded = true
	draft.FallbackSeed = 42
	stubs[ActivityComposePlanWithLLM] = stub{result: draft}

	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, stubs)
	action := d.run()

	require.Equal(t, engine.ActionComplete, action.Kind)
	var plan Plan
	require.NoError(t, json.Unmarshal(action.Output, &plan))
	assert.Equal(t, "fallback", plan.Source)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "without AI")
}

func TestTerminalDecisionIsReplayedVerbatim(t *testing.T) {
	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, happyStubs())
	final := d.run()
	require.Equal(t, engine.ActionComplete, final.Kind)

	// History now ends with the terminal event; replay reproduces it.
	replayed := d.decide()
	assert.Equal(t, engine.ActionComplete, replayed.Kind)
	assert.JSONEq(t, string(final.Output), string(replayed.Output))
}

func TestInvalidInputFails(t *testing.T) {
	var orch GenerateWeeklyPlan

	action, err := orch.Decide("inst-1", json.RawMessage(`{`), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.ActionFail, action.Kind)

	action, err = orch.Decide("inst-1", json.RawMessage(`{"user_id":"u1"}`), nil)
	require.NoError(t, err)
	require.Equal(t, engine.ActionFail, action.Kind)
	assert.Contains(t, action.Reason, "week")
}

func TestProgress(t *testing.T) {
	var orch GenerateWeeklyPlan
	d := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, happyStubs())

	assert.Equal(t, "", orch.Progress(nil))

	// Drive two steps by hand.
	action := d.decide()
	d.append(engine.EventActivityScheduled, action.Activity, action.Input)
	assert.Equal(t, "loading profile", orch.Progress(d.history))

	payload, err := json.Marshal(LoadProfileResult{Profile: happyProfile()})
	require.NoError(t, err)
	d.append(engine.EventActivityCompleted, ActivityLoadUserProfile, payload)
	action = d.decide()
	d.append(engine.EventActivityScheduled, action.Activity, action.Input)
	assert.Equal(t, "retrieving recipes", orch.Progress(d.history))

	full := newDriver(t, GenerateInput{UserID: "u1", Week: "2025-W37"}, happyStubs())
	full.run()
	assert.Equal(t, "plan generated", orch.Progress(full.history))
}
