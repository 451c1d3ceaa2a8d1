// Package activities implements the workflow steps dispatched by the
// engine for weekly plan generation. Each activity is a struct with its
// dependencies as exported fields, takes its typed input as JSON and
// returns its typed result as JSON. Activities are re-invoked after a
// crash, so every side effect here is idempotent.
package activities

import (
	"fmt"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/mealplan/catalog"
	"github.com/planweaver/planweaver/mealplan/planstore"
)

// Deps bundles the external collaborators shared by the activity set.
type Deps struct {
	Plans   planstore.Store
	Catalog *catalog.Catalog

	// Chat is the LLM client used for plan composition. May be nil, in
	// which case every draft uses the rule-based fallback.
	Chat  ChatClient
	Model string

	// Reminders configures when meal-prep reminders fire.
	Reminders ReminderSchedule

	// Network and Compute override the built-in retry policies when set.
	Network engine.RetryPolicy
	Compute engine.RetryPolicy
}

// RegisterAll registers every plan-generation activity with the engine
// registry. Activities making external calls carry the network retry
// policy, pure computation the tighter compute policy.
func RegisterAll(reg *engine.Registry, deps Deps) error {
	network := deps.Network
	if network == (engine.RetryPolicy{}) {
		network = engine.NetworkRetryPolicy()
	}
	compute := deps.Compute
	if compute == (engine.RetryPolicy{}) {
		compute = engine.ComputeRetryPolicy()
	}

	for _, entry := range []struct {
		activity engine.Activity
		policy   engine.RetryPolicy
	}{
		{&LoadUserProfile{Plans: deps.Plans}, network},
		{&RetrieveCandidateRecipes{Catalog: deps.Catalog}, compute},
		{&ComposePlanWithLLM{Chat: deps.Chat, Model: deps.Model}, network},
		{&ValidateNutrition{}, compute},
		{&ComputeGroceryList{}, compute},
		{&PersistPlan{Plans: deps.Plans}, network},
		{&ScheduleReminders{Schedule: deps.Reminders}, compute},
	} {
		if err := reg.RegisterActivity(entry.activity, entry.policy); err != nil {
			return fmt.Errorf("registering %s: %w", entry.activity.Name(), err)
		}
	}
	return nil
}
