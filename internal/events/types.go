// Package events provides event types and utilities for the Crewdev event system.
package events

// Event types for sessions
const (
	SessionCreated      = "session.created"
	SessionDeleted      = "session.deleted"
	SessionPhaseChanged = "session.phase_changed"
)

// Event types for workflow activation
const (
	WorkflowQueued           = "workflow.queued"
	WorkflowActivated        = "workflow.activated"
	WorkflowActivationFailed = "workflow.activation_failed"
)

// BuildSessionWildcardSubject returns the subject pattern matching all
// session events.
func BuildSessionWildcardSubject() string {
	return "session.*"
}

// BuildWorkflowWildcardSubject returns the subject pattern matching all
// workflow activation events.
func BuildWorkflowWildcardSubject() string {
	return "workflow.*"
}
