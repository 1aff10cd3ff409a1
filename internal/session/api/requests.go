// Package api provides HTTP handlers for the session and workflow
// activation API.
package api

import (
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// CreateSessionRequest for creating a session
type CreateSessionRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
}

// UpdatePhaseRequest for changing a session's lifecycle phase
type UpdatePhaseRequest struct {
	Phase string `json:"phase" binding:"required"`
}

// SelectWorkflowRequest carries a raw selection value: "none", "custom"
// or a catalog workflow id.
type SelectWorkflowRequest struct {
	Workflow string `json:"workflow" binding:"required"`
}

// CustomWorkflowRequest stages a user-supplied workflow source.
type CustomWorkflowRequest struct {
	GitURL string `json:"gitUrl" binding:"required"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// SessionsListResponse wraps a session listing
type SessionsListResponse struct {
	Sessions []*v1.Session `json:"sessions"`
	Total    int           `json:"total"`
}

// WorkflowsListResponse wraps a catalog listing
type WorkflowsListResponse struct {
	Workflows []*v1.WorkflowConfig `json:"workflows"`
	Total     int                  `json:"total"`
}

// ActivateResponse reports the disposition of an activation request.
// Activated is true for both immediate activation and queuing: in both
// cases the caller's intent will be honored.
type ActivateResponse struct {
	Activated bool                `json:"activated"`
	Status    v1.ActivationStatus `json:"status"`
}

// SelectionResponse reports the result of a selection change.
type SelectionResponse struct {
	Workflow *v1.WorkflowConfig  `json:"workflow,omitempty"`
	Status   v1.ActivationStatus `json:"status"`
}
