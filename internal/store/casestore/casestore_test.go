package casestore

import (
	"errors"
	"testing"

	"github.com/tiger/tiered-workflow-runtime/internal/store/kv"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := kv.Open(kv.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	durable, err := NewBadger(db)
	if err != nil {
		t.Fatalf("new badger store: %v", err)
	}
	return map[string]Store{"memory": NewMemory(), "badger": durable}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			saved := Case{
				ID:          "case-1",
				WorkflowID:  "wf-1",
				State:       "running",
				Variables:   map[string]string{"x": "1"},
				UpdatedAtMS: 42,
			}
			if err := store.Save(saved); err != nil {
				t.Fatalf("save: %v", err)
			}

			loaded, err := store.Load("case-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.WorkflowID != "wf-1" || loaded.State != "running" || loaded.Variables["x"] != "1" {
				t.Fatalf("unexpected loaded case: %+v", loaded)
			}

			saved.State = "completed"
			if err := store.Save(saved); err != nil {
				t.Fatalf("resave: %v", err)
			}
			loaded, err = store.Load("case-1")
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if loaded.State != "completed" {
				t.Fatalf("save must replace prior state, got %q", loaded.State)
			}
		})
	}
}

func TestLoadMissingCase(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteCase(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(Case{ID: "case-1", WorkflowID: "wf-1"}); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Delete("case-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Load("case-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted case must not load, got %v", err)
			}
			// Deleting again is a no-op.
			if err := store.Delete("case-1"); err != nil {
				t.Fatalf("second delete: %v", err)
			}
		})
	}
}

func TestSaveRejectsInvalidCase(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(Case{ID: "case-1"}); err == nil {
				t.Fatalf("expected case without workflow_id to fail")
			}
			if err := store.Save(Case{WorkflowID: "wf-1"}); err == nil {
				t.Fatalf("expected case without id to fail")
			}
		})
	}
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	vars := map[string]string{"x": "1"}
	if err := store.Save(Case{ID: "case-1", WorkflowID: "wf-1", Variables: vars}); err != nil {
		t.Fatalf("save: %v", err)
	}
	vars["x"] = "mutated"

	loaded, err := store.Load("case-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Variables["x"] != "1" {
		t.Fatalf("store must not alias caller maps, got %q", loaded.Variables["x"])
	}
}
