package queue

import (
	"context"
	"sync"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// MemoryStore is an in-memory implementation of Store. Used in tests
// and when the service runs without a database path configured.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[v1.SessionRef]v1.QueuedWorkflow
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[v1.SessionRef]v1.QueuedWorkflow),
	}
}

// SetWorkflow writes the descriptor for the session, overwriting any
// prior one.
func (s *MemoryStore) SetWorkflow(ctx context.Context, ref v1.SessionRef, wf v1.QueuedWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[ref] = wf
	return nil
}

// GetWorkflow returns the queued descriptor, or nil when the slot is empty.
func (s *MemoryStore) GetWorkflow(ctx context.Context, ref v1.SessionRef) (*v1.QueuedWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.slots[ref]
	if !ok {
		return nil, nil
	}
	cp := wf
	return &cp, nil
}

// ClearWorkflow empties the session's slot.
func (s *MemoryStore) ClearWorkflow(ctx context.Context, ref v1.SessionRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, ref)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
