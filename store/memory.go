package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planweaver/planweaver/engine"
)

// MemoryStore keeps instances and histories in memory only. Intended for
// tests and single-process development; nothing survives a restart.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]*memoryInstance
	order     []string // creation order, for ListRunnable
}

type memoryInstance struct {
	inst   engine.Instance
	events []engine.HistoryEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*memoryInstance),
	}
}

// CreateInstance implements InstanceStore.
func (s *MemoryStore) CreateInstance(ctx context.Context, workflowType string, input json.RawMessage) (engine.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	inst := engine.Instance{
		ID:           uuid.New().String(),
		WorkflowType: workflowType,
		Input:        append(json.RawMessage(nil), input...),
		Status:       engine.StatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.instances[inst.ID] = &memoryInstance{inst: inst}
	s.order = append(s.order, inst.ID)
	return inst, nil
}

// GetInstance implements InstanceStore.
func (s *MemoryStore) GetInstance(ctx context.Context, id string) (engine.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.instances[id]
	if !ok {
		return engine.Instance{}, engine.ErrNotFound
	}
	return mi.inst, nil
}

// History implements InstanceStore.
func (s *MemoryStore) History(ctx context.Context, id string) ([]engine.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.instances[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	events := make([]engine.HistoryEvent, len(mi.events))
	copy(events, mi.events)
	return events, nil
}

// AppendEvent implements InstanceStore.
func (s *MemoryStore) AppendEvent(ctx context.Context, id string, ev engine.HistoryEvent) (engine.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.instances[id]
	if !ok {
		return engine.HistoryEvent{}, engine.ErrNotFound
	}
	if mi.inst.Status.IsTerminal() {
		return engine.HistoryEvent{}, engine.ErrTerminal
	}

	ev.Sequence = int64(len(mi.events)) + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	mi.events = append(mi.events, ev)
	applyEvent(&mi.inst, ev)
	return ev, nil
}

// SetCustomStatus implements InstanceStore.
func (s *MemoryStore) SetCustomStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.instances[id]
	if !ok {
		return engine.ErrNotFound
	}
	if mi.inst.Status.IsTerminal() {
		return nil
	}
	mi.inst.CustomStatus = status
	mi.inst.UpdatedAt = time.Now().UTC()
	return nil
}

// Terminate implements InstanceStore.
func (s *MemoryStore) Terminate(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.instances[id]
	if !ok {
		return engine.ErrNotFound
	}
	if mi.inst.Status.IsTerminal() {
		return engine.ErrTerminal
	}
	mi.inst.Status = engine.StatusTerminated
	mi.inst.Output = engine.FailurePayload(reason)
	mi.inst.UpdatedAt = time.Now().UTC()
	return nil
}

// ListRunnable implements InstanceStore.
func (s *MemoryStore) ListRunnable(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range s.order {
		if s.instances[id].inst.Status == engine.StatusRunning {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
