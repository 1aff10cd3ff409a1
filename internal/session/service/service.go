package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/errors"
	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/events"
	"github.com/crewdev/crewdev/internal/events/bus"
	"github.com/crewdev/crewdev/internal/session/repository"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

const eventSource = "session-service"

// Service provides session business logic on top of the repository and
// publishes lifecycle events to the bus.
type Service struct {
	repo     repository.Repository
	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewService creates a new session service
func NewService(repo repository.Repository, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		logger:   log,
	}
}

// CreateSession creates a session in the given project. The phase
// defaults to Pending when unset.
func (s *Service) CreateSession(ctx context.Context, session *v1.Session) (*v1.Session, error) {
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		zap.String("project", session.Project),
		zap.String("session", session.Name),
		zap.String("phase", string(session.Phase)))

	s.publishEvent(ctx, events.SessionCreated, map[string]interface{}{
		"project": session.Project,
		"session": session.Name,
		"phase":   string(session.Phase),
	})
	return session, nil
}

// GetSession retrieves a session by project and name
func (s *Service) GetSession(ctx context.Context, project, name string) (*v1.Session, error) {
	session, err := s.repo.GetSession(ctx, project, name)
	if err != nil {
		return nil, s.wrapLookupError(err, project, name)
	}
	return session, nil
}

// ListSessions returns all sessions in a project
func (s *Service) ListSessions(ctx context.Context, project string) ([]*v1.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, project)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	return sessions, nil
}

// DeleteSession removes a session and announces the deletion
func (s *Service) DeleteSession(ctx context.Context, project, name string) error {
	if err := s.repo.DeleteSession(ctx, project, name); err != nil {
		return s.wrapLookupError(err, project, name)
	}

	s.publishEvent(ctx, events.SessionDeleted, map[string]interface{}{
		"project": project,
		"session": name,
	})
	return nil
}

// UpdatePhase transitions a session to a new lifecycle phase and
// publishes a phase change event carrying both the old and new phase.
// Updating to the current phase is a no-op and publishes nothing.
func (s *Service) UpdatePhase(ctx context.Context, project, name string, phase v1.SessionPhase) (*v1.Session, error) {
	session, err := s.repo.GetSession(ctx, project, name)
	if err != nil {
		return nil, s.wrapLookupError(err, project, name)
	}
	oldPhase := session.Phase
	if oldPhase == phase {
		return session, nil
	}

	if err := s.repo.UpdateSessionPhase(ctx, project, name, phase); err != nil {
		return nil, s.wrapLookupError(err, project, name)
	}
	session.Phase = phase

	s.logger.Info("session phase changed",
		zap.String("project", project),
		zap.String("session", name),
		zap.String("old_phase", string(oldPhase)),
		zap.String("new_phase", string(phase)))

	s.publishEvent(ctx, events.SessionPhaseChanged, map[string]interface{}{
		"project":   project,
		"session":   name,
		"old_phase": string(oldPhase),
		"new_phase": string(phase),
	})
	return session, nil
}

// GetPhase returns the current lifecycle phase of a session
func (s *Service) GetPhase(ctx context.Context, ref v1.SessionRef) (v1.SessionPhase, error) {
	session, err := s.repo.GetSession(ctx, ref.Project, ref.Name)
	if err != nil {
		return "", s.wrapLookupError(err, ref.Project, ref.Name)
	}
	return session.Phase, nil
}

// wrapLookupError translates repository lookup failures into app
// errors callers can classify without knowing the storage layer.
func (s *Service) wrapLookupError(err error, project, name string) error {
	if err == repository.ErrSessionNotFound {
		return errors.NotFound("session", project+"/"+name)
	}
	return errors.Wrap(err, "session storage failure")
}

func (s *Service) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	event := bus.NewEvent(eventType, eventSource, data)
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Error("failed to publish session event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
