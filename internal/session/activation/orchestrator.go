package activation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/config"
	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/events"
	"github.com/crewdev/crewdev/internal/events/bus"
	"github.com/crewdev/crewdev/internal/session/queue"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// ErrWorkflowDisabled is returned when a catalog workflow exists but is
// not yet enabled for activation.
var ErrWorkflowDisabled = errors.New("workflow is not yet available")

// Catalog resolves workflow identities to their configurations.
type Catalog interface {
	Get(id string) (*v1.WorkflowConfig, error)
}

// PhaseSource reports the current lifecycle phase of a session.
type PhaseSource interface {
	GetPhase(ctx context.Context, ref v1.SessionRef) (v1.SessionPhase, error)
}

// Notifier delivers user-visible messages for a session: selection
// errors and terminal activation failures.
type Notifier interface {
	Notify(ref v1.SessionRef, message string)
}

// selectionKind tags the parsed form of a selection value.
type selectionKind int

const (
	selectionNone selectionKind = iota
	selectionCustom
	selectionCatalog
)

// Selection is a parsed selection value. The reserved identities "none"
// and "custom" are control values, everything else names a catalog
// entry.
type Selection struct {
	kind selectionKind
	id   string
}

// ParseSelection interprets a raw selection value.
func ParseSelection(value string) Selection {
	switch value {
	case v1.WorkflowIDNone:
		return Selection{kind: selectionNone}
	case v1.WorkflowIDCustom:
		return Selection{kind: selectionCustom}
	default:
		return Selection{kind: selectionCatalog, id: value}
	}
}

// run is the cancellable slot for one in-flight activation sequence.
// Starting a new sequence cancels and replaces the previous slot, so a
// superseded sequence can never mutate session state on its way out.
type run struct {
	cancel context.CancelFunc
}

type sessionState struct {
	selected   string
	pending    *v1.WorkflowConfig
	active     string
	activating bool
	failed     bool
	run        *run
}

// ActivateOptions carries optional overrides for one activation call.
// A nil Workflow falls back to the session's pending workflow; an empty
// Phase falls back to the phase source.
type ActivateOptions struct {
	Workflow *v1.WorkflowConfig
	Phase    v1.SessionPhase
}

// Orchestrator owns the workflow activation state machine for every
// session: selection handling, queue-when-not-ready, and the bounded
// retry loop around the activation client.
type Orchestrator struct {
	cfg      config.ActivationConfig
	client   Client
	queue    queue.Store
	catalog  Catalog
	phases   PhaseSource
	notifier Notifier
	eventBus bus.EventBus
	logger   *logger.Logger

	onActivated       func(ref v1.SessionRef, workflowID string)
	onCustomRequested func(ref v1.SessionRef)
	onStatusChanged   func(ref v1.SessionRef, status v1.ActivationStatus)

	mu       sync.Mutex
	sessions map[v1.SessionRef]*sessionState
}

// NewOrchestrator creates an activation orchestrator.
func NewOrchestrator(
	cfg config.ActivationConfig,
	client Client,
	queueStore queue.Store,
	cat Catalog,
	phases PhaseSource,
	notifier Notifier,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		queue:    queueStore,
		catalog:  cat,
		phases:   phases,
		notifier: notifier,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "activation-orchestrator")),
		sessions: make(map[v1.SessionRef]*sessionState),
	}
}

// OnActivated registers a callback invoked once per successful
// activation, after the grace delay.
func (o *Orchestrator) OnActivated(fn func(ref v1.SessionRef, workflowID string)) {
	o.onActivated = fn
}

// OnCustomRequested registers a callback invoked when the "custom"
// selection is made. The caller is expected to follow up with
// SetCustomWorkflow once the user has supplied a source location.
func (o *Orchestrator) OnCustomRequested(fn func(ref v1.SessionRef)) {
	o.onCustomRequested = fn
}

// OnStatusChanged registers a callback invoked whenever a session's
// activation status changes.
func (o *Orchestrator) OnStatusChanged(fn func(ref v1.SessionRef, status v1.ActivationStatus)) {
	o.onStatusChanged = fn
}

// HandleSelectionChange processes a raw selection value for a session.
// "none" clears the pending workflow, "custom" only signals that a
// custom source is wanted, and any other value is resolved against the
// catalog. Selection errors are reported through the notifier and never
// mutate state.
func (o *Orchestrator) HandleSelectionChange(ctx context.Context, ref v1.SessionRef, value string) (*v1.WorkflowConfig, error) {
	sel := ParseSelection(value)

	switch sel.kind {
	case selectionNone:
		o.mu.Lock()
		st := o.state(ref)
		if st.pending == nil && st.selected == v1.WorkflowIDNone {
			o.mu.Unlock()
			return nil, nil
		}
		st.pending = nil
		st.selected = v1.WorkflowIDNone
		status := o.statusLocked(st)
		o.mu.Unlock()
		o.notifyStatus(ref, status)
		return nil, nil

	case selectionCustom:
		if o.onCustomRequested != nil {
			o.onCustomRequested(ref)
		}
		return nil, nil

	default:
		wf, err := o.catalog.Get(sel.id)
		if err != nil {
			o.notify(ref, fmt.Sprintf("workflow not found: %s", sel.id))
			return nil, err
		}
		if !wf.Enabled {
			o.notify(ref, fmt.Sprintf("workflow %s is not yet available", wf.Name))
			return nil, ErrWorkflowDisabled
		}

		o.mu.Lock()
		st := o.state(ref)
		st.pending = wf
		st.selected = wf.ID
		st.failed = false
		status := o.statusLocked(st)
		o.mu.Unlock()
		o.notifyStatus(ref, status)
		return wf, nil
	}
}

// SetCustomWorkflow stages a user-supplied workflow source as the
// pending workflow. An empty branch defaults to "main".
func (o *Orchestrator) SetCustomWorkflow(ctx context.Context, ref v1.SessionRef, gitURL, branch, path string) (*v1.WorkflowConfig, error) {
	if gitURL == "" {
		return nil, errors.New("gitUrl is required")
	}
	wf := v1.NewCustomWorkflow(gitURL, branch, path)

	o.mu.Lock()
	st := o.state(ref)
	st.pending = wf
	st.selected = wf.ID
	st.failed = false
	status := o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)
	return wf, nil
}

// Activate drives one activation sequence for a session. The workflow
// defaults to the session's pending workflow; with neither, the call is
// a no-op returning false. When the session is not ready the workflow
// is queued for later and the call returns true: the caller's intent is
// honored, just deferred. When the session is ready the remote call is
// issued with bounded retry and backoff; terminal failures are reported
// through the notifier and return false.
//
// A new Activate call cancels any activation sequence still in flight
// for the same session and takes over its state.
func (o *Orchestrator) Activate(ctx context.Context, ref v1.SessionRef, opts ActivateOptions) (bool, error) {
	o.mu.Lock()
	st := o.state(ref)
	wf := opts.Workflow
	if wf == nil {
		wf = st.pending
	}
	o.mu.Unlock()
	if wf == nil {
		return false, nil
	}

	phase := opts.Phase
	if phase == "" {
		p, err := o.phases.GetPhase(ctx, ref)
		if err != nil {
			o.logger.Warn("failed to resolve session phase, deferring activation",
				zap.String("session", ref.String()),
				zap.Error(err))
		} else {
			phase = p
		}
	}

	if !phase.Ready() {
		return o.enqueue(ctx, ref, st, wf, phase)
	}
	return o.dispatch(ctx, ref, st, wf)
}

// enqueue defers the workflow until the session becomes ready. Queuing
// performs no remote call and counts as a successful disposition.
func (o *Orchestrator) enqueue(ctx context.Context, ref v1.SessionRef, st *sessionState, wf *v1.WorkflowConfig, phase v1.SessionPhase) (bool, error) {
	if err := o.queue.SetWorkflow(ctx, ref, wf.Queued()); err != nil {
		return false, fmt.Errorf("failed to queue workflow: %w", err)
	}

	o.mu.Lock()
	st.selected = wf.ID
	st.activating = true
	st.failed = false
	status := o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)

	o.logger.Info("workflow queued until session is ready",
		zap.String("session", ref.String()),
		zap.String("workflow_id", wf.ID),
		zap.String("phase", string(phase)))

	o.publishEvent(ctx, events.WorkflowQueued, map[string]interface{}{
		"project":     ref.Project,
		"session":     ref.Name,
		"workflow_id": wf.ID,
	})
	return true, nil
}

// dispatch issues the remote activation call with retry and drives the
// sequence to a terminal state.
func (o *Orchestrator) dispatch(ctx context.Context, ref v1.SessionRef, st *sessionState, wf *v1.WorkflowConfig) (bool, error) {
	o.mu.Lock()
	if st.run != nil {
		st.run.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{cancel: cancel}
	st.run = r
	st.selected = wf.ID
	st.activating = true
	st.failed = false
	status := o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)

	err := o.apply(runCtx, ref, wf)

	o.mu.Lock()
	if st.run != r {
		// A newer activation took over this session's state.
		o.mu.Unlock()
		return false, nil
	}
	o.mu.Unlock()

	if err != nil {
		if runCtx.Err() != nil {
			return o.abort(ref, st, r, runCtx.Err())
		}
		return o.fail(ctx, ref, st, r, wf, err)
	}
	return o.succeed(ctx, ref, st, r, wf, runCtx)
}

// apply performs the remote call, retrying retryable failures with
// exponential backoff up to the configured attempt budget.
func (o *Orchestrator) apply(ctx context.Context, ref v1.SessionRef, wf *v1.WorkflowConfig) error {
	delay := o.cfg.InitialBackoff()
	for attempt := 0; ; attempt++ {
		err := o.client.ApplyWorkflow(ctx, ref, wf.Selection())
		if err == nil {
			return nil
		}

		var actErr *Error
		if !errors.As(err, &actErr) || !actErr.Retryable || attempt >= o.cfg.MaxRetries {
			return err
		}

		o.logger.Info("retrying workflow activation",
			zap.String("session", ref.String()),
			zap.String("workflow_id", wf.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * o.cfg.BackoffFactor)
		if max := o.cfg.MaxBackoff(); delay > max {
			delay = max
		}
	}
}

// succeed finalizes a successful activation: clear the queue, publish
// the new active workflow, wait out the grace delay, then notify.
func (o *Orchestrator) succeed(ctx context.Context, ref v1.SessionRef, st *sessionState, r *run, wf *v1.WorkflowConfig, runCtx context.Context) (bool, error) {
	if err := o.queue.ClearWorkflow(ctx, ref); err != nil {
		o.logger.Error("failed to clear session queue after activation",
			zap.String("session", ref.String()),
			zap.Error(err))
	}

	o.mu.Lock()
	if st.run != r {
		o.mu.Unlock()
		return false, nil
	}
	st.active = wf.ID
	st.pending = nil
	status := o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)

	// Give the session's backing process time to pick up the workflow
	// before observers are told it is active. The remote call already
	// succeeded, so a cancelled caller no longer changes the outcome;
	// the final transition still runs. Only a superseding run, which
	// swaps st.run under the lock, skips it.
	select {
	case <-runCtx.Done():
	case <-time.After(o.cfg.GraceDelay()):
	}

	o.mu.Lock()
	if st.run != r {
		o.mu.Unlock()
		return true, nil
	}
	st.run = nil
	st.activating = false
	status = o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)

	o.logger.Info("workflow activated",
		zap.String("session", ref.String()),
		zap.String("workflow_id", wf.ID))

	if o.onActivated != nil {
		o.onActivated(ref, wf.ID)
	}
	o.publishEvent(ctx, events.WorkflowActivated, map[string]interface{}{
		"project":     ref.Project,
		"session":     ref.Name,
		"workflow_id": wf.ID,
	})
	return true, nil
}

// fail finalizes a terminal activation failure. The queue is cleared
// defensively so a stale descriptor cannot re-trigger the failed
// workflow on the next readiness signal.
func (o *Orchestrator) fail(ctx context.Context, ref v1.SessionRef, st *sessionState, r *run, wf *v1.WorkflowConfig, err error) (bool, error) {
	message := err.Error()
	var actErr *Error
	if errors.As(err, &actErr) && actErr.Message != "" {
		message = actErr.Message
	}
	o.notify(ref, fmt.Sprintf("failed to activate workflow: %s", message))

	if cerr := o.queue.ClearWorkflow(ctx, ref); cerr != nil {
		o.logger.Error("failed to clear session queue after terminal failure",
			zap.String("session", ref.String()),
			zap.Error(cerr))
	}

	o.mu.Lock()
	if st.run == r {
		st.run = nil
		st.activating = false
		st.failed = true
	}
	status := o.statusLocked(st)
	o.mu.Unlock()
	o.notifyStatus(ref, status)

	o.logger.Warn("workflow activation failed",
		zap.String("session", ref.String()),
		zap.String("workflow_id", wf.ID),
		zap.Error(err))

	o.publishEvent(ctx, events.WorkflowActivationFailed, map[string]interface{}{
		"project":     ref.Project,
		"session":     ref.Name,
		"workflow_id": wf.ID,
		"error":       message,
	})
	return false, err
}

// abort unwinds a sequence whose caller went away. No notification, no
// queue changes; a later selection starts fresh.
func (o *Orchestrator) abort(ref v1.SessionRef, st *sessionState, r *run, err error) (bool, error) {
	o.mu.Lock()
	if st.run == r {
		st.run = nil
		st.activating = false
	}
	o.mu.Unlock()
	return false, err
}

// Status returns the activation status snapshot for a session.
func (o *Orchestrator) Status(ref v1.SessionRef) v1.ActivationStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked(o.state(ref))
}

// ClearSession drops all activation state for a session, cancelling any
// in-flight sequence and emptying its queue slot. Called when the
// session itself is deleted.
func (o *Orchestrator) ClearSession(ctx context.Context, ref v1.SessionRef) error {
	o.mu.Lock()
	if st, ok := o.sessions[ref]; ok {
		if st.run != nil {
			st.run.cancel()
		}
		delete(o.sessions, ref)
	}
	o.mu.Unlock()
	return o.queue.ClearWorkflow(ctx, ref)
}

// state returns the session's state, creating it on first use. Caller
// must hold o.mu.
func (o *Orchestrator) state(ref v1.SessionRef) *sessionState {
	st, ok := o.sessions[ref]
	if !ok {
		st = &sessionState{selected: v1.WorkflowIDNone}
		o.sessions[ref] = st
	}
	return st
}

// statusLocked derives the observable status from a session's state.
// Caller must hold o.mu.
func (o *Orchestrator) statusLocked(st *sessionState) v1.ActivationStatus {
	state := v1.ActivationIdle
	switch {
	case st.activating && st.run != nil:
		state = v1.ActivationActivating
	case st.activating:
		state = v1.ActivationQueued
	case st.pending != nil:
		state = v1.ActivationPending
	case st.failed:
		state = v1.ActivationFailed
	case st.active != "":
		state = v1.ActivationActive
	}

	status := v1.ActivationStatus{
		SelectedWorkflow: st.selected,
		ActiveWorkflow:   st.active,
		Activating:       st.activating,
		State:            state,
	}
	if st.pending != nil {
		pending := *st.pending
		status.PendingWorkflow = &pending
	}
	return status
}

func (o *Orchestrator) notify(ref v1.SessionRef, message string) {
	if o.notifier != nil {
		o.notifier.Notify(ref, message)
	}
}

func (o *Orchestrator) notifyStatus(ref v1.SessionRef, status v1.ActivationStatus) {
	if o.onStatusChanged != nil {
		o.onStatusChanged(ref, status)
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if o.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "activation-orchestrator", data)
	if err := o.eventBus.Publish(ctx, eventType, event); err != nil {
		o.logger.Error("failed to publish activation event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
