// Package streaming handles WebSocket connections for real-time
// activation status updates and user-visible notifications.
package streaming

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/logger"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// Message types pushed to clients.
const (
	MessageTypeStatus       = "activation_status"
	MessageTypeNotification = "notification"
)

// StreamMessage is the envelope for every message pushed to clients.
type StreamMessage struct {
	Type    string               `json:"type"`
	Project string               `json:"project"`
	Session string               `json:"session"`
	Status  *v1.ActivationStatus `json:"status,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	conn     *websocket.Conn
	sessions map[string]bool // session keys this client is subscribed to
	send     chan []byte
	hub      *Hub
	mu       sync.RWMutex
	logger   *logger.Logger
}

// NewClient creates a new WebSocket client
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:       id,
		conn:     conn,
		sessions: make(map[string]bool),
		send:     make(chan []byte, 256),
		hub:      hub,
		logger:   log.WithFields(zap.String("client_id", id)),
	}
}

// Hub manages all WebSocket clients
type Hub struct {
	clients map[*Client]bool

	// Clients by session key for efficient routing
	sessionClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *StreamMessage

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *StreamMessage, 256),
		logger:         log.WithFields(zap.String("component", "websocket_hub")),
	}
}

// Run starts the hub processing loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.sessionClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClientLocked(client)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))

		case msg := <-h.broadcast:
			key := msg.Project + "/" + msg.Session
			h.mu.RLock()
			n := len(h.sessionClients[key])
			h.mu.RUnlock()
			if n == 0 {
				continue
			}

			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}

			// Hold the lock across the iteration so subscribes and
			// unregisters cannot mutate the map mid-walk. Sends never
			// block: a full buffer marks the client stale instead.
			var stale []*Client
			h.mu.RLock()
			for client := range h.sessionClients[key] {
				select {
				case client.send <- data:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range stale {
				// Client send buffer is full, close connection
				h.mu.Lock()
				h.removeClientLocked(client)
				h.mu.Unlock()
			}
		}
	}
}

// removeClientLocked drops a client and all its subscriptions. Caller
// must hold h.mu.
func (h *Hub) removeClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for key := range client.sessions {
		if clients, ok := h.sessionClients[key]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessionClients, key)
			}
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStatus pushes an activation status snapshot to every client
// watching the session.
func (h *Hub) BroadcastStatus(ref v1.SessionRef, status v1.ActivationStatus) {
	h.broadcast <- &StreamMessage{
		Type:    MessageTypeStatus,
		Project: ref.Project,
		Session: ref.Name,
		Status:  &status,
	}
}

// Notify pushes a user-visible message to every client watching the
// session. Implements the orchestrator's notifier contract.
func (h *Hub) Notify(ref v1.SessionRef, message string) {
	h.broadcast <- &StreamMessage{
		Type:    MessageTypeNotification,
		Project: ref.Project,
		Session: ref.Name,
		Message: message,
	}
}

// SubscribeClient subscribes a client to a session
func (h *Hub) SubscribeClient(client *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessionClients[key]; !ok {
		h.sessionClients[key] = make(map[*Client]bool)
	}
	h.sessionClients[key][client] = true
	h.logger.Debug("Client subscribed to session",
		zap.String("client_id", client.ID),
		zap.String("session", key))
}

// UnsubscribeClient unsubscribes a client from a session
func (h *Hub) UnsubscribeClient(client *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessionClients[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.sessionClients, key)
		}
	}
	h.logger.Debug("Client unsubscribed from session",
		zap.String("client_id", client.ID),
		zap.String("session", key))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetSessionSubscriberCount returns the number of clients watching a session
func (h *Hub) GetSessionSubscriberCount(ref v1.SessionRef) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.sessionClients[ref.String()]; ok {
		return len(clients)
	}
	return 0
}
