// Package repository provides storage for agentic sessions.
package repository

import (
	"context"
	"errors"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// ErrSessionNotFound is returned when a session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when creating a session that already exists.
var ErrSessionExists = errors.New("session already exists")

// Repository defines the interface for session storage operations
type Repository interface {
	CreateSession(ctx context.Context, session *v1.Session) error
	GetSession(ctx context.Context, project, name string) (*v1.Session, error)
	ListSessions(ctx context.Context, project string) ([]*v1.Session, error)
	UpdateSessionPhase(ctx context.Context, project, name string, phase v1.SessionPhase) error
	DeleteSession(ctx context.Context, project, name string) error

	// Close closes the repository (for database connections)
	Close() error
}
