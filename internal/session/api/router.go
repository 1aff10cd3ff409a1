package api

import (
	"github.com/gin-gonic/gin"

	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/session/activation"
	"github.com/crewdev/crewdev/internal/session/service"
	"github.com/crewdev/crewdev/internal/workflow/catalog"
)

// SetupRoutes configures the session and workflow API routes
func SetupRoutes(router *gin.RouterGroup, svc *service.Service, orch *activation.Orchestrator, cat *catalog.Catalog, log *logger.Logger) {
	handler := NewHandler(svc, orch, cat, log)

	// Workflow catalog
	router.GET("/workflows", handler.ListWorkflows)

	// Session routes, scoped per project
	sessions := router.Group("/projects/:projectId/sessions")
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:sessionId", handler.GetSession)
		sessions.DELETE("/:sessionId", handler.DeleteSession)
		sessions.PUT("/:sessionId/phase", handler.UpdatePhase)

		// Workflow activation
		sessions.PUT("/:sessionId/workflow/selection", handler.SelectWorkflow)
		sessions.PUT("/:sessionId/workflow/custom", handler.SetCustomWorkflow)
		sessions.POST("/:sessionId/workflow/activate", handler.ActivateWorkflow)
		sessions.GET("/:sessionId/workflow/status", handler.GetActivationStatus)
	}
}
