// Package v1 defines the public API types for Crewdev.
package v1

import "time"

// SessionPhase represents the lifecycle phase of an agentic session's
// backing process.
type SessionPhase string

// Session lifecycle phases.
const (
	SessionPhasePending   SessionPhase = "Pending"
	SessionPhaseCreating  SessionPhase = "Creating"
	SessionPhaseRunning   SessionPhase = "Running"
	SessionPhaseCompleted SessionPhase = "Completed"
	SessionPhaseFailed    SessionPhase = "Failed"
	SessionPhaseStopped   SessionPhase = "Stopped"
)

// Ready reports whether the session can accept a workflow application
// call. Running is the single ready value; every other phase (including
// unknown ones) defers activation.
func (p SessionPhase) Ready() bool {
	return p == SessionPhaseRunning
}

// Session is a long-running agentic session scoped to a project.
type Session struct {
	Project     string       `json:"project"`
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName,omitempty"`
	Phase       SessionPhase `json:"phase"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SessionRef identifies a session within a project. Sessions are owned
// per (project, name) pair.
type SessionRef struct {
	Project string `json:"project"`
	Name    string `json:"session"`
}

// String returns the ref in project/name form for logging.
func (r SessionRef) String() string {
	return r.Project + "/" + r.Name
}

// ActivationState is the externally visible state of a session's
// workflow activation machine.
type ActivationState string

// Activation machine states.
const (
	ActivationIdle       ActivationState = "idle"
	ActivationPending    ActivationState = "pending"
	ActivationQueued     ActivationState = "queued"
	ActivationActivating ActivationState = "activating"
	ActivationActive     ActivationState = "active"
	ActivationFailed     ActivationState = "failed"
)

// ActivationStatus is a snapshot of the activation machine for one
// session, as exposed to observers.
type ActivationStatus struct {
	SelectedWorkflow string          `json:"selectedWorkflow"`
	PendingWorkflow  *WorkflowConfig `json:"pendingWorkflow,omitempty"`
	ActiveWorkflow   string          `json:"activeWorkflow,omitempty"`
	Activating       bool            `json:"activating"`
	State            ActivationState `json:"state"`
}
