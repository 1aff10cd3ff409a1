package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// stores returns one instance of each Store implementation so the
// contract tests run against both.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "queue.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqliteStore, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_SetGetClear(t *testing.T) {
	ctx := context.Background()
	ref := v1.SessionRef{Project: "demo", Name: "sess-1"}
	wf := v1.QueuedWorkflow{
		ID:     "research",
		GitURL: "https://github.com/example/workflows.git",
		Branch: "main",
		Path:   "research",
	}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// Empty slot reads as nil
			got, err := store.GetWorkflow(ctx, ref)
			if err != nil {
				t.Fatalf("GetWorkflow failed: %v", err)
			}
			if got != nil {
				t.Fatalf("expected empty slot, got %+v", got)
			}

			if err := store.SetWorkflow(ctx, ref, wf); err != nil {
				t.Fatalf("SetWorkflow failed: %v", err)
			}

			got, err = store.GetWorkflow(ctx, ref)
			if err != nil {
				t.Fatalf("GetWorkflow failed: %v", err)
			}
			if got == nil || *got != wf {
				t.Fatalf("GetWorkflow = %+v, want %+v", got, wf)
			}

			if err := store.ClearWorkflow(ctx, ref); err != nil {
				t.Fatalf("ClearWorkflow failed: %v", err)
			}
			got, err = store.GetWorkflow(ctx, ref)
			if err != nil {
				t.Fatalf("GetWorkflow failed: %v", err)
			}
			if got != nil {
				t.Fatalf("expected cleared slot, got %+v", got)
			}

			// Clearing an empty slot is a no-op
			if err := store.ClearWorkflow(ctx, ref); err != nil {
				t.Fatalf("ClearWorkflow on empty slot failed: %v", err)
			}
		})
	}
}

func TestStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	ref := v1.SessionRef{Project: "demo", Name: "sess-1"}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := v1.QueuedWorkflow{ID: "research", GitURL: "https://example.com/r.git", Branch: "main"}
			second := v1.QueuedWorkflow{ID: "triage", GitURL: "https://example.com/t.git", Branch: "dev", Path: "flows/triage"}

			if err := store.SetWorkflow(ctx, ref, first); err != nil {
				t.Fatalf("SetWorkflow failed: %v", err)
			}
			if err := store.SetWorkflow(ctx, ref, second); err != nil {
				t.Fatalf("SetWorkflow overwrite failed: %v", err)
			}

			got, err := store.GetWorkflow(ctx, ref)
			if err != nil {
				t.Fatalf("GetWorkflow failed: %v", err)
			}
			if got == nil || *got != second {
				t.Fatalf("GetWorkflow = %+v, want %+v", got, second)
			}
		})
	}
}

func TestStore_SlotsAreScopedPerSession(t *testing.T) {
	ctx := context.Background()
	refA := v1.SessionRef{Project: "demo", Name: "sess-a"}
	refB := v1.SessionRef{Project: "demo", Name: "sess-b"}
	refC := v1.SessionRef{Project: "other", Name: "sess-a"}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			wfA := v1.QueuedWorkflow{ID: "a", GitURL: "https://example.com/a.git", Branch: "main"}
			wfC := v1.QueuedWorkflow{ID: "c", GitURL: "https://example.com/c.git", Branch: "main"}

			if err := store.SetWorkflow(ctx, refA, wfA); err != nil {
				t.Fatalf("SetWorkflow failed: %v", err)
			}
			if err := store.SetWorkflow(ctx, refC, wfC); err != nil {
				t.Fatalf("SetWorkflow failed: %v", err)
			}

			if got, _ := store.GetWorkflow(ctx, refB); got != nil {
				t.Errorf("expected empty slot for %s, got %+v", refB, got)
			}
			if got, _ := store.GetWorkflow(ctx, refC); got == nil || got.ID != "c" {
				t.Errorf("same session name in another project must not collide, got %+v", got)
			}

			if err := store.ClearWorkflow(ctx, refA); err != nil {
				t.Fatalf("ClearWorkflow failed: %v", err)
			}
			if got, _ := store.GetWorkflow(ctx, refC); got == nil {
				t.Error("clearing one session's slot must not clear another's")
			}
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	ref := v1.SessionRef{Project: "demo", Name: "sess-1"}
	wf := v1.QueuedWorkflow{ID: "research", GitURL: "https://example.com/r.git", Branch: "main", Path: "research"}

	dbPath := filepath.Join(t.TempDir(), "queue.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.SetWorkflow(ctx, ref, wf); err != nil {
		t.Fatalf("SetWorkflow failed: %v", err)
	}
	_ = db.Close()

	db2, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db2.Close()
	store2, err := NewSQLiteStore(db2)
	if err != nil {
		t.Fatalf("failed to recreate store: %v", err)
	}

	got, err := store2.GetWorkflow(ctx, ref)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if got == nil || *got != wf {
		t.Fatalf("descriptor did not survive reopen: got %+v, want %+v", got, wf)
	}
}
