package triggerstore

import (
	"testing"

	"github.com/tiger/tiered-workflow-runtime/internal/engine/trigger"
	"github.com/tiger/tiered-workflow-runtime/internal/store/kv"
)

func testStore(t *testing.T) *Badger {
	t.Helper()
	db, err := kv.Open(kv.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewBadger(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutListDelete(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	queued := trigger.Trigger{
		ID:       "t1",
		CaseID:   "case-1",
		Activity: "resume",
		FireAtMS: 100,
		Payload:  map[string]string{"k": "v"},
	}
	if err := store.Put(queued); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(trigger.Trigger{ID: "t2", CaseID: "case-1", Activity: "resume"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	listed, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(listed))
	}
	byID := map[string]trigger.Trigger{}
	for _, tr := range listed {
		byID[tr.ID] = tr
	}
	if byID["t1"].FireAtMS != 100 || byID["t1"].Payload["k"] != "v" {
		t.Fatalf("trigger payload must round-trip: %+v", byID["t1"])
	}

	if err := store.Delete("t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, err = store.List()
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "t2" {
		t.Fatalf("expected only t2 to remain, got %+v", listed)
	}

	// Deleting an absent id is a no-op.
	if err := store.Delete("t1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestPutRejectsInvalidTrigger(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	if err := store.Put(trigger.Trigger{ID: "t1"}); err == nil {
		t.Fatalf("expected invalid trigger to fail")
	}
}

func TestSchedulerRestoreFromBadger(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	first := trigger.NewScheduler(store)
	if err := first.Persist(trigger.Trigger{ID: "t1", CaseID: "case-1", Activity: "resume"}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// A fresh scheduler over the same store sees the queued trigger.
	second := trigger.NewScheduler(store)
	if err := second.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, found, err := second.Consume("case-1", "resume")
	if err != nil || !found {
		t.Fatalf("consume restored trigger: found=%v err=%v", found, err)
	}
	if got.ID != "t1" {
		t.Fatalf("unexpected trigger %+v", got)
	}

	listed, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("consumed trigger must be removed from the store, got %+v", listed)
	}
}
