package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/errors"
	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/session/activation"
	"github.com/crewdev/crewdev/internal/session/repository"
	"github.com/crewdev/crewdev/internal/session/service"
	"github.com/crewdev/crewdev/internal/workflow/catalog"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

var validPhases = map[v1.SessionPhase]bool{
	v1.SessionPhasePending:   true,
	v1.SessionPhaseCreating:  true,
	v1.SessionPhaseRunning:   true,
	v1.SessionPhaseCompleted: true,
	v1.SessionPhaseFailed:    true,
	v1.SessionPhaseStopped:   true,
}

// Handler contains HTTP handlers for the session API
type Handler struct {
	service      *service.Service
	orchestrator *activation.Orchestrator
	catalog      *catalog.Catalog
	logger       *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc *service.Service, orch *activation.Orchestrator, cat *catalog.Catalog, log *logger.Logger) *Handler {
	return &Handler{
		service:      svc,
		orchestrator: orch,
		catalog:      cat,
		logger:       log,
	}
}

func (h *Handler) sessionRef(c *gin.Context) (v1.SessionRef, bool) {
	ref := v1.SessionRef{
		Project: c.Param("projectId"),
		Name:    c.Param("sessionId"),
	}
	if ref.Project == "" || ref.Name == "" {
		appErr := errors.BadRequest("projectId and sessionId are required")
		c.JSON(appErr.HTTPStatus, appErr)
		return ref, false
	}
	return ref, true
}

// CreateSession creates a new session in a project
// POST /api/v1/projects/:projectId/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	project := c.Param("projectId")

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), &v1.Session{
		Project:     project,
		Name:        req.Name,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if err == repository.ErrSessionExists {
			appErr := errors.Conflict("session already exists")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to create session", zap.Error(err))
		appErr := errors.InternalError("failed to create session", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession retrieves a session
// GET /api/v1/projects/:projectId/sessions/:sessionId
func (h *Handler) GetSession(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), ref.Project, ref.Name)
	if err != nil {
		if errors.IsNotFound(err) {
			appErr := errors.NotFound("session", ref.String())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to load session", zap.String("session", ref.String()), zap.Error(err))
		appErr := errors.InternalError("failed to load session", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListSessions returns all sessions in a project
// GET /api/v1/projects/:projectId/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	project := c.Param("projectId")

	sessions, err := h.service.ListSessions(c.Request.Context(), project)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.String("project", project), zap.Error(err))
		appErr := errors.InternalError("failed to list sessions", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, SessionsListResponse{Sessions: sessions, Total: len(sessions)})
}

// DeleteSession removes a session and all of its activation state
// DELETE /api/v1/projects/:projectId/sessions/:sessionId
func (h *Handler) DeleteSession(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(c.Request.Context(), ref.Project, ref.Name); err != nil {
		if errors.IsNotFound(err) {
			appErr := errors.NotFound("session", ref.String())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to delete session", zap.String("session", ref.String()), zap.Error(err))
		appErr := errors.InternalError("failed to delete session", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.orchestrator.ClearSession(c.Request.Context(), ref); err != nil {
		h.logger.Error("failed to clear activation state", zap.String("session", ref.String()), zap.Error(err))
	}

	c.Status(http.StatusNoContent)
}

// UpdatePhase transitions a session's lifecycle phase
// PUT /api/v1/projects/:projectId/sessions/:sessionId/phase
func (h *Handler) UpdatePhase(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	var req UpdatePhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	phase := v1.SessionPhase(req.Phase)
	if !validPhases[phase] {
		appErr := errors.ValidationError("phase", "unknown session phase")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	session, err := h.service.UpdatePhase(c.Request.Context(), ref.Project, ref.Name, phase)
	if err != nil {
		if errors.IsNotFound(err) {
			appErr := errors.NotFound("session", ref.String())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to update session phase", zap.String("session", ref.String()), zap.Error(err))
		appErr := errors.InternalError("failed to update session phase", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, session)
}

// SelectWorkflow processes a workflow selection for a session
// PUT /api/v1/projects/:projectId/sessions/:sessionId/workflow/selection
func (h *Handler) SelectWorkflow(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	var req SelectWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	wf, err := h.orchestrator.HandleSelectionChange(c.Request.Context(), ref, req.Workflow)
	if err != nil {
		if err == catalog.ErrWorkflowNotFound {
			appErr := errors.NotFound("workflow", req.Workflow)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		if err == activation.ErrWorkflowDisabled {
			appErr := errors.Conflict("workflow is not yet available")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to select workflow", zap.String("session", ref.String()), zap.Error(err))
		appErr := errors.InternalError("failed to select workflow", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, SelectionResponse{
		Workflow: wf,
		Status:   h.orchestrator.Status(ref),
	})
}

// SetCustomWorkflow stages a user-supplied workflow source
// PUT /api/v1/projects/:projectId/sessions/:sessionId/workflow/custom
func (h *Handler) SetCustomWorkflow(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	var req CustomWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	wf, err := h.orchestrator.SetCustomWorkflow(c.Request.Context(), ref, req.GitURL, req.Branch, req.Path)
	if err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, SelectionResponse{
		Workflow: wf,
		Status:   h.orchestrator.Status(ref),
	})
}

// ActivateWorkflow drives an activation sequence for the session's
// pending workflow. A session that is not yet ready queues the workflow
// and still reports an activated disposition.
// POST /api/v1/projects/:projectId/sessions/:sessionId/workflow/activate
func (h *Handler) ActivateWorkflow(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	activated, err := h.orchestrator.Activate(c.Request.Context(), ref, activation.ActivateOptions{})
	if err != nil {
		h.logger.Warn("workflow activation failed", zap.String("session", ref.String()), zap.Error(err))
	}

	c.JSON(http.StatusOK, ActivateResponse{
		Activated: activated,
		Status:    h.orchestrator.Status(ref),
	})
}

// GetActivationStatus returns the activation status snapshot
// GET /api/v1/projects/:projectId/sessions/:sessionId/workflow/status
func (h *Handler) GetActivationStatus(c *gin.Context) {
	ref, ok := h.sessionRef(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.orchestrator.Status(ref))
}

// ListWorkflows returns the workflow catalog
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(c *gin.Context) {
	workflows := h.catalog.List()
	c.JSON(http.StatusOK, WorkflowsListResponse{Workflows: workflows, Total: len(workflows)})
}
