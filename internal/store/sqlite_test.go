package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aide/internal/types"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSQLiteStore_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	created, err := s.Create(ctx, &types.Item{
		Kind:     types.KindTask,
		Title:    "buy groceries",
		OwnerID:  "alice",
		DueDate:  &due,
		Priority: types.PriorityImportant,
		Source:   types.SourceVoice,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create did not assign an id")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "buy groceries" || !got.DueDate.Equal(due) {
		t.Errorf("Get returned wrong item: %+v", got)
	}

	got.Completed = true
	updated, err := s.Update(ctx, created.ID, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Completed {
		t.Error("Update lost the completed flag")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("Update must preserve creation time")
	}

	items, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("List returned %d items, want 1", len(items))
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); err != ErrNotFound {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, created.ID); err != ErrNotFound {
		t.Errorf("double Delete: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListIsOwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, owner := range []string{"alice", "alice", "bob"} {
		if _, err := s.Create(ctx, &types.Item{Kind: types.KindNote, Title: "n", OwnerID: owner}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("List(alice) returned %d items, want 2", len(items))
	}
}

func TestSQLiteStore_SubscribeDeliversChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := make(chan ChangeEvent, 8)
	cancel := s.Subscribe("alice", func(ev ChangeEvent) { events <- ev })
	defer cancel()

	// A different owner's subscription must stay silent.
	quiet := make(chan ChangeEvent, 8)
	cancelQuiet := s.Subscribe("bob", func(ev ChangeEvent) { quiet <- ev })
	defer cancelQuiet()

	item, err := s.Create(ctx, &types.Item{Kind: types.KindEvent, Title: "standup", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != ChangeInsert || ev.New == nil || ev.New.ID != item.ID {
			t.Errorf("unexpected insert event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no insert event delivered")
	}

	if err := s.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != ChangeDelete || ev.Old == nil || ev.Old.ID != item.ID {
			t.Errorf("unexpected delete event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete event delivered")
	}

	select {
	case ev := <-quiet:
		t.Errorf("bob's subscription saw alice's event: %+v", ev)
	default:
	}
}

func TestMemoryStore_FailNext(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	item, err := s.Create(ctx, &types.Item{Kind: types.KindTask, Title: "t", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.FailNext(context.DeadlineExceeded)
	if _, err := s.Update(ctx, item.ID, item); err == nil {
		t.Fatal("expected injected failure")
	}

	// Failure is one-shot.
	if _, err := s.Update(ctx, item.ID, item); err != nil {
		t.Fatalf("second Update should succeed: %v", err)
	}
}
