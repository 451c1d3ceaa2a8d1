package planstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/planweaver/planweaver/mealplan"
)

type planKey struct {
	userID string
	week   string
}

// MemoryStore implements Store in memory for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	plans    map[planKey]mealplan.Plan
	profiles map[string]mealplan.Profile
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:    make(map[planKey]mealplan.Plan),
		profiles: make(map[string]mealplan.Profile),
	}
}

// SavePlan implements Store.
func (s *MemoryStore) SavePlan(_ context.Context, plan mealplan.Plan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := planKey{userID: plan.UserID, week: plan.Week}
	if existing, ok := s.plans[key]; ok {
		plan.PlanID = existing.PlanID
	} else if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}
	s.plans[key] = plan
	return plan.PlanID, nil
}

// GetPlan implements Store.
func (s *MemoryStore) GetPlan(_ context.Context, userID, week string) (*mealplan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[planKey{userID: userID, week: week}]
	if !ok {
		return nil, ErrNotFound
	}
	return &plan, nil
}

// PlanExists implements Store.
func (s *MemoryStore) PlanExists(_ context.Context, userID, week string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.plans[planKey{userID: userID, week: week}]
	return ok, nil
}

// SaveProfile implements Store.
func (s *MemoryStore) SaveProfile(_ context.Context, profile mealplan.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

// GetProfile implements Store.
func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*mealplan.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &profile, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
