package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crewdev/crewdev/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("session.phase_changed", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	event := NewEvent("session.phase_changed", "test-source", map[string]interface{}{
		"project": "demo",
		"session": "sess-1",
	})
	if err := bus.Publish(ctx, "session.phase_changed", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != event.ID {
			t.Errorf("Expected event ID %s, got %s", event.ID, e.ID)
		}
		if e.Data["session"] != "sess-1" {
			t.Errorf("Expected session sess-1, got %v", e.Data["session"])
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestMemoryEventBus_SingleTokenWildcard(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("workflow.*", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for _, subject := range []string{"workflow.queued", "workflow.activated", "session.created"} {
		if err := bus.Publish(ctx, subject, NewEvent(subject, "test-source", nil)); err != nil {
			t.Fatalf("Publish to %s failed: %v", subject, err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&count); got != 2 {
		t.Errorf("Expected 2 wildcard deliveries, got %d", got)
	}
}

func TestMemoryEventBus_QueueSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	// Two subscribers in the same queue group: each event is delivered
	// to exactly one of them.
	for i := 0; i < 2; i++ {
		sub, err := bus.QueueSubscribe("session.phase_changed", "orchestrator", func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("QueueSubscribe %d failed: %v", i, err)
		}
		defer func() {
			_ = sub.Unsubscribe()
		}()
	}

	for i := 0; i < 4; i++ {
		if err := bus.Publish(ctx, "session.phase_changed", NewEvent("session.phase_changed", "test-source", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&count); got != 4 {
		t.Errorf("Expected 4 queue deliveries total, got %d", got)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("session.created", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}

	if err := bus.Publish(ctx, "session.created", NewEvent("session.created", "test-source", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&count); got != 0 {
		t.Errorf("Expected no deliveries after unsubscribe, got %d", got)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if !bus.IsConnected() {
		t.Error("Expected bus to be connected before close")
	}

	bus.Close()

	if bus.IsConnected() {
		t.Error("Expected bus to be disconnected after close")
	}
	if err := bus.Publish(context.Background(), "session.created", NewEvent("session.created", "test-source", nil)); err == nil {
		t.Error("Expected publish on closed bus to fail")
	}
	if _, err := bus.Subscribe("session.created", func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("Expected subscribe on closed bus to fail")
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewEvent("workflow.activated", "orchestrator", map[string]interface{}{"workflow_id": "research"})
	after := time.Now().UTC()

	if event.ID == "" {
		t.Error("Expected non-empty event ID")
	}
	if event.Type != "workflow.activated" {
		t.Errorf("Expected type workflow.activated, got %s", event.Type)
	}
	if event.Source != "orchestrator" {
		t.Errorf("Expected source orchestrator, got %s", event.Source)
	}
	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Error("Expected timestamp within call window")
	}
}
