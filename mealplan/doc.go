// Package mealplan implements the GenerateWeeklyPlan workflow: the
// deterministic orchestrator that chains profile loading, recipe
// retrieval, AI composition, nutrition validation, grocery-list
// computation, persistence and reminder scheduling into one durable
// orchestration per user-week.
//
// The orchestrator in this package is a pure decision function over the
// instance history (see the engine package). All side effects live in the
// activity implementations under mealplan/activities, which wrap injected
// collaborator clients: the profile and plan stores, the recipe catalog,
// and the LLM chat client.
//
// # Failure policy
//
// A validation failure does not abort the pipeline: the orchestrator
// synthesizes a degraded validation result (valid, adherence 70, an issue
// noting unavailability) and proceeds. Any other activity failure routes
// the workflow onto the tombstone path: a minimal failed plan is persisted
// best-effort for audit, then the orchestration fails with the original
// error. Low adherence (below 50) only accumulates a warning; it never
// triggers a retry or regeneration.
package mealplan
