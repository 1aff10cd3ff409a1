package streaming

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/session/activation"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub          *Hub
	orchestrator *activation.Orchestrator
	logger       *logger.Logger
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *Hub, orch *activation.Orchestrator, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:          hub,
		orchestrator: orch,
		logger:       log.WithFields(zap.String("component", "ws_handler")),
	}
}

// StreamSession streams activation status for one session
// WS /api/v1/projects/:projectId/sessions/:sessionId/workflow/ws
func (h *WSHandler) StreamSession(c *gin.Context) {
	ref := v1.SessionRef{
		Project: c.Param("projectId"),
		Name:    c.Param("sessionId"),
	}
	if ref.Project == "" || ref.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_SESSION",
				"message": "projectId and sessionId are required",
			},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.String("session", ref.String()),
			zap.Error(err),
		)
		return
	}

	clientID := uuid.New().String()

	h.logger.Info("WebSocket connection established for session",
		zap.String("client_id", clientID),
		zap.String("session", ref.String()),
	)

	client := NewClient(clientID, conn, h.hub, h.logger)

	h.hub.Register(client)
	client.Subscribe(ref.String())

	// Push the current snapshot so new clients don't start blind.
	h.hub.BroadcastStatus(ref, h.orchestrator.Status(ref))

	go client.WritePump()
	go client.ReadPump()
}

// StreamAll streams activation status for any session the client
// subscribes to
// WS /api/v1/stream
func (h *WSHandler) StreamAll(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()

	h.logger.Info("WebSocket connection established",
		zap.String("client_id", clientID),
	)

	client := NewClient(clientID, conn, h.hub, h.logger)
	h.hub.Register(client)

	// The ReadPump handles subscription messages from the client
	go client.WritePump()
	go client.ReadPump()
}

// SetupWebSocketRoutes adds WebSocket routes to the router
func SetupWebSocketRoutes(router *gin.RouterGroup, handler *WSHandler) {
	router.GET("/projects/:projectId/sessions/:sessionId/workflow/ws", handler.StreamSession)
	router.GET("/stream", handler.StreamAll)
}
