package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crewdev/crewdev/internal/common/errors"
	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/events"
	"github.com/crewdev/crewdev/internal/events/bus"
	"github.com/crewdev/crewdev/internal/session/repository"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

func newTestService(t *testing.T) (*Service, *bus.MemoryEventBus) {
	t.Helper()
	log := logger.Default()
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(func() { eventBus.Close() })
	return NewService(repository.NewMemoryRepository(), eventBus, log), eventBus
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (r *eventRecorder) record(ctx context.Context, event *bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) snapshot() []*bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*bus.Event(nil), r.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestService_CreateSession(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	sub, err := eventBus.Subscribe(events.SessionCreated, rec.record)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	created, err := svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.Phase != v1.SessionPhasePending {
		t.Errorf("expected phase Pending, got %q", created.Phase)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	event := rec.snapshot()[0]
	if event.Data["project"] != "proj-a" || event.Data["session"] != "sess-1" {
		t.Errorf("unexpected event data: %v", event.Data)
	}

	_, err = svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1"})
	if err != repository.ErrSessionExists {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestService_UpdatePhase(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	sub, err := eventBus.Subscribe(events.SessionPhaseChanged, rec.record)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	updated, err := svc.UpdatePhase(ctx, "proj-a", "sess-1", v1.SessionPhaseRunning)
	if err != nil {
		t.Fatalf("UpdatePhase failed: %v", err)
	}
	if updated.Phase != v1.SessionPhaseRunning {
		t.Errorf("expected phase Running, got %q", updated.Phase)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	event := rec.snapshot()[0]
	if event.Data["old_phase"] != "Pending" || event.Data["new_phase"] != "Running" {
		t.Errorf("unexpected phase change payload: %v", event.Data)
	}

	// Setting the same phase again publishes nothing.
	if _, err := svc.UpdatePhase(ctx, "proj-a", "sess-1", v1.SessionPhaseRunning); err != nil {
		t.Fatalf("UpdatePhase failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.snapshot()); got != 1 {
		t.Errorf("expected no event for no-op phase update, got %d events", got)
	}

	_, err = svc.UpdatePhase(ctx, "proj-a", "missing", v1.SessionPhaseRunning)
	if !errors.IsNotFound(err) {
		t.Errorf("expected a not found error, got %v", err)
	}
}

func TestService_GetPhase(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1", Phase: v1.SessionPhaseRunning}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	phase, err := svc.GetPhase(ctx, v1.SessionRef{Project: "proj-a", Name: "sess-1"})
	if err != nil {
		t.Fatalf("GetPhase failed: %v", err)
	}
	if !phase.Ready() {
		t.Errorf("expected Running phase to be ready, got %q", phase)
	}

	_, err = svc.GetPhase(ctx, v1.SessionRef{Project: "proj-a", Name: "missing"})
	if !errors.IsNotFound(err) {
		t.Errorf("expected a not found error, got %v", err)
	}
}

func TestService_DeleteSession(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	sub, err := eventBus.Subscribe(events.SessionDeleted, rec.record)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := svc.DeleteSession(ctx, "proj-a", "sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	if err := svc.DeleteSession(ctx, "proj-a", "sess-1"); !errors.IsNotFound(err) {
		t.Errorf("expected a not found error, got %v", err)
	}
}

func TestService_WildcardSubscriptionSeesLifecycle(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	sub, err := eventBus.Subscribe(events.BuildSessionWildcardSubject(), rec.record)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := svc.CreateSession(ctx, &v1.Session{Project: "proj-a", Name: "sess-1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := svc.UpdatePhase(ctx, "proj-a", "sess-1", v1.SessionPhaseRunning); err != nil {
		t.Fatalf("UpdatePhase failed: %v", err)
	}
	if err := svc.DeleteSession(ctx, "proj-a", "sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	got := make(map[string]bool)
	for _, event := range rec.snapshot() {
		got[event.Type] = true
	}
	for _, want := range []string{events.SessionCreated, events.SessionPhaseChanged, events.SessionDeleted} {
		if !got[want] {
			t.Errorf("expected %s on the wildcard subject, got %v", want, got)
		}
	}
}
