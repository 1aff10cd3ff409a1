package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// SQLiteRepository provides SQLite-based session storage operations
type SQLiteRepository struct {
	db *sql.DB
}

// Ensure SQLiteRepository implements Repository interface
var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// initSchema creates the database tables if they don't exist
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		project TEXT NOT NULL,
		name TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		phase TEXT NOT NULL DEFAULT 'Pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (project, name)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project);
	`
	_, err := r.db.Exec(schema)
	return err
}

// DB returns the underlying database connection so other stores can
// share it.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateSession creates a new session
func (r *SQLiteRepository) CreateSession(ctx context.Context, session *v1.Session) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Phase == "" {
		session.Phase = v1.SessionPhasePending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (project, name, display_name, phase, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, session.Project, session.Name, session.DisplayName, string(session.Phase), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by project and name
func (r *SQLiteRepository) GetSession(ctx context.Context, project, name string) (*v1.Session, error) {
	session := &v1.Session{}
	var phase string
	err := r.db.QueryRowContext(ctx, `
		SELECT project, name, display_name, phase, created_at, updated_at
		FROM sessions WHERE project = ? AND name = ?
	`, project, name).Scan(&session.Project, &session.Name, &session.DisplayName, &phase, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Phase = v1.SessionPhase(phase)
	return session, nil
}

// ListSessions returns all sessions in a project ordered by name
func (r *SQLiteRepository) ListSessions(ctx context.Context, project string) ([]*v1.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project, name, display_name, phase, created_at, updated_at
		FROM sessions WHERE project = ? ORDER BY name ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	result := make([]*v1.Session, 0)
	for rows.Next() {
		session := &v1.Session{}
		var phase string
		if err := rows.Scan(&session.Project, &session.Name, &session.DisplayName, &phase, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.Phase = v1.SessionPhase(phase)
		result = append(result, session)
	}
	return result, rows.Err()
}

// UpdateSessionPhase updates the lifecycle phase of a session
func (r *SQLiteRepository) UpdateSessionPhase(ctx context.Context, project, name string, phase v1.SessionPhase) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET phase = ?, updated_at = ? WHERE project = ? AND name = ?
	`, string(phase), time.Now().UTC(), project, name)
	if err != nil {
		return fmt.Errorf("failed to update session phase: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session
func (r *SQLiteRepository) DeleteSession(ctx context.Context, project, name string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE project = ? AND name = ?
	`, project, name)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
