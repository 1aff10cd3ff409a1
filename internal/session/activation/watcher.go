package activation

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/events"
	"github.com/crewdev/crewdev/internal/events/bus"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// PhaseChangeData is the payload of a session phase change event.
type PhaseChangeData struct {
	Project  string `json:"project"`
	Session  string `json:"session"`
	OldPhase string `json:"old_phase"`
	NewPhase string `json:"new_phase"`
}

// queueName is the queue group for load balancing across orchestrator
// instances.
const queueName = "orchestrator"

// Watcher listens for session phase changes and re-triggers activation
// for sessions that have a workflow queued.
type Watcher struct {
	eventBus     bus.EventBus
	orchestrator *Orchestrator
	queue        QueueReader
	logger       *logger.Logger

	subscriptions []bus.Subscription
	mu            sync.Mutex
	running       bool
}

// QueueReader is the read side of the session queue.
type QueueReader interface {
	GetWorkflow(ctx context.Context, ref v1.SessionRef) (*v1.QueuedWorkflow, error)
}

// NewWatcher creates a readiness watcher.
func NewWatcher(eventBus bus.EventBus, orchestrator *Orchestrator, queueStore QueueReader, log *logger.Logger) *Watcher {
	return &Watcher{
		eventBus:      eventBus,
		orchestrator:  orchestrator,
		queue:         queueStore,
		logger:        log.WithFields(zap.String("component", "activation-watcher")),
		subscriptions: make([]bus.Subscription, 0),
	}
}

// Start subscribes to session phase change events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	sub, err := w.eventBus.QueueSubscribe(events.SessionPhaseChanged, queueName, w.handlePhaseChange)
	if err != nil {
		w.logger.Error("Failed to subscribe to phase change events", zap.Error(err))
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.running = true
	w.logger.Info("Activation watcher started")
	return nil
}

// Stop removes all subscriptions.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	w.subscriptions = make([]bus.Subscription, 0)
	w.running = false
	w.logger.Info("Activation watcher stopped")
	return nil
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// handlePhaseChange re-triggers activation when a session with a queued
// workflow transitions into the ready phase.
func (w *Watcher) handlePhaseChange(ctx context.Context, event *bus.Event) error {
	var data PhaseChangeData
	if err := parseEventData(event.Data, &data); err != nil {
		w.logger.Error("Failed to parse phase change event data",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return nil // keep processing other events
	}

	phase := v1.SessionPhase(data.NewPhase)
	if !phase.Ready() {
		return nil
	}

	ref := v1.SessionRef{Project: data.Project, Name: data.Session}
	queued, err := w.queue.GetWorkflow(ctx, ref)
	if err != nil {
		w.logger.Error("Failed to read session queue",
			zap.String("session", ref.String()),
			zap.Error(err))
		return nil
	}
	if queued == nil {
		return nil
	}

	w.logger.Info("Session became ready, activating queued workflow",
		zap.String("session", ref.String()),
		zap.String("workflow_id", queued.ID))

	if _, err := w.orchestrator.Activate(ctx, ref, ActivateOptions{
		Workflow: queued.Workflow(),
		Phase:    phase,
	}); err != nil {
		w.logger.Warn("Queued workflow activation failed",
			zap.String("session", ref.String()),
			zap.String("workflow_id", queued.ID),
			zap.Error(err))
	}
	return nil
}

func parseEventData(data interface{}, target interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
