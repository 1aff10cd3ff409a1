// Package queue persists the workflow deferred for a session that is
// not yet ready. Each (project, session) pair owns a single slot:
// writing a new descriptor overwrites any prior one, with no history
// and no ordering guarantee beyond latest-wins.
package queue

import (
	"context"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// Store is the session queue contract consumed by the activation
// orchestrator. GetWorkflow returns nil when the slot is empty;
// ClearWorkflow on an empty slot is a no-op.
type Store interface {
	SetWorkflow(ctx context.Context, ref v1.SessionRef, wf v1.QueuedWorkflow) error
	GetWorkflow(ctx context.Context, ref v1.SessionRef) (*v1.QueuedWorkflow, error)
	ClearWorkflow(ctx context.Context, ref v1.SessionRef) error
	Close() error
}
