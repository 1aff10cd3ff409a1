package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// MemoryRepository provides in-memory session storage operations
type MemoryRepository struct {
	sessions map[v1.SessionRef]*v1.Session
	mu       sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory session repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[v1.SessionRef]*v1.Session),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateSession creates a new session
func (r *MemoryRepository) CreateSession(ctx context.Context, session *v1.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := v1.SessionRef{Project: session.Project, Name: session.Name}
	if _, ok := r.sessions[ref]; ok {
		return ErrSessionExists
	}

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Phase == "" {
		session.Phase = v1.SessionPhasePending
	}

	cp := *session
	r.sessions[ref] = &cp
	return nil
}

// GetSession retrieves a session by project and name
func (r *MemoryRepository) GetSession(ctx context.Context, project, name string) (*v1.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[v1.SessionRef{Project: project, Name: name}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// ListSessions returns all sessions in a project ordered by name
func (r *MemoryRepository) ListSessions(ctx context.Context, project string) ([]*v1.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*v1.Session, 0)
	for ref, session := range r.sessions {
		if ref.Project != project {
			continue
		}
		cp := *session
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateSessionPhase updates the lifecycle phase of a session
func (r *MemoryRepository) UpdateSessionPhase(ctx context.Context, project, name string, phase v1.SessionPhase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[v1.SessionRef{Project: project, Name: name}]
	if !ok {
		return ErrSessionNotFound
	}
	session.Phase = phase
	session.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSession removes a session
func (r *MemoryRepository) DeleteSession(ctx context.Context, project, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := v1.SessionRef{Project: project, Name: name}
	if _, ok := r.sessions[ref]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, ref)
	return nil
}
