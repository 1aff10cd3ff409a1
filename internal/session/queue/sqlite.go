package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// SQLiteStore is a SQLite-backed implementation of Store. It shares a
// database connection with the session repository, so a queued
// descriptor survives service restarts within a session's lifetime.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a queue store on an existing database connection.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}
	return s, nil
}

// initSchema creates the queue table if it doesn't exist. The primary
// key over (project, session) enforces the single-slot invariant.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_workflow_queue (
		project TEXT NOT NULL,
		session TEXT NOT NULL,
		workflow_id TEXT NOT NULL,
		git_url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT 'main',
		path TEXT NOT NULL DEFAULT '',
		queued_at DATETIME NOT NULL,
		PRIMARY KEY (project, session)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SetWorkflow upserts the queued descriptor for the session. Writes are
// last-writer-wins; there is no compare-and-swap.
func (s *SQLiteStore) SetWorkflow(ctx context.Context, ref v1.SessionRef, wf v1.QueuedWorkflow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_workflow_queue (project, session, workflow_id, git_url, branch, path, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, session) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			git_url = excluded.git_url,
			branch = excluded.branch,
			path = excluded.path,
			queued_at = excluded.queued_at
	`, ref.Project, ref.Name, wf.ID, wf.GitURL, wf.Branch, wf.Path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to queue workflow for %s: %w", ref, err)
	}
	return nil
}

// GetWorkflow returns the queued descriptor, or nil when the slot is empty.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, ref v1.SessionRef) (*v1.QueuedWorkflow, error) {
	var wf v1.QueuedWorkflow
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, git_url, branch, path
		FROM session_workflow_queue
		WHERE project = ? AND session = ?
	`, ref.Project, ref.Name).Scan(&wf.ID, &wf.GitURL, &wf.Branch, &wf.Path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queued workflow for %s: %w", ref, err)
	}
	return &wf, nil
}

// ClearWorkflow empties the session's slot.
func (s *SQLiteStore) ClearWorkflow(ctx context.Context, ref v1.SessionRef) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_workflow_queue WHERE project = ? AND session = ?
	`, ref.Project, ref.Name)
	if err != nil {
		return fmt.Errorf("failed to clear queued workflow for %s: %w", ref, err)
	}
	return nil
}

// Close is a no-op; the store does not own the database connection.
func (s *SQLiteStore) Close() error {
	return nil
}
