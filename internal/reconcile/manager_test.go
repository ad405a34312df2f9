package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"aide/internal/store"
	"aide/internal/types"
)

const owner = "tester"

func startedManager(t *testing.T, st store.Store, window time.Duration) *Manager {
	t.Helper()
	m := NewManager(st, owner, window)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestApply_CreateEditDelete(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)
	ctx := context.Background()

	created, err := m.Apply(ctx, types.OpCreate, &types.Item{Kind: types.KindTask, Title: "buy groceries"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.OwnerID != owner {
		t.Fatalf("create did not fill identity: %+v", created)
	}

	// Visible in memory immediately, no reconcile needed.
	got, ok := m.Item(created.ID)
	if !ok || got.Title != "buy groceries" {
		t.Fatalf("item not in working set: %v %v", got, ok)
	}

	// And durably in the store.
	if _, err := st.Get(ctx, created.ID); err != nil {
		t.Fatalf("item not persisted: %v", err)
	}

	created.Title = "buy groceries and milk"
	edited, err := m.Apply(ctx, types.OpEdit, created)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Title != "buy groceries and milk" {
		t.Errorf("edit not applied: %q", edited.Title)
	}

	if _, err := m.Apply(ctx, types.OpDelete, created); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := m.Item(created.ID); ok {
		t.Error("deleted item still in working set")
	}
	if _, err := st.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted item still in store: %v", err)
	}
}

func TestApply_EditRollsBackOnStoreFailure(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)
	ctx := context.Background()

	created, err := m.Apply(ctx, types.OpCreate, &types.Item{Kind: types.KindNote, Title: "original", Tags: []string{"keep"}})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := m.Item(created.ID)

	st.FailNext(errors.New("disk full"))
	bad := created.Clone()
	bad.Title = "mangled"
	_, err = m.Apply(ctx, types.OpEdit, bad)

	var merr *types.MutationError
	if !errors.As(err, &merr) {
		t.Fatalf("want *types.MutationError, got %v", err)
	}
	if merr.Op != types.OpEdit || merr.ItemID != created.ID {
		t.Errorf("error metadata = %+v", merr)
	}

	after, _ := m.Item(created.ID)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("working set changed despite rollback (-before +after):\n%s", diff)
	}
}

func TestApply_CreateRollsBackOnStoreFailure(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)

	st.FailNext(errors.New("disk full"))
	_, err := m.Apply(context.Background(), types.OpCreate, &types.Item{Title: "ghost"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := m.Items(); len(got) != 0 {
		t.Errorf("failed create left %d items in working set", len(got))
	}
}

func TestApply_DeleteRollsBackOnStoreFailure(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)
	ctx := context.Background()

	created, err := m.Apply(ctx, types.OpCreate, &types.Item{Title: "keeper"})
	if err != nil {
		t.Fatal(err)
	}

	st.FailNext(errors.New("locked"))
	_, err = m.Apply(ctx, types.OpDelete, created)
	if err == nil {
		t.Fatal("expected failure")
	}
	if _, ok := m.Item(created.ID); !ok {
		t.Error("failed delete must restore the item")
	}
}

func TestApply_DeleteCascadesLinks(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)
	ctx := context.Background()

	a, err := m.Apply(ctx, types.OpCreate, &types.Item{ID: "a", Title: "meeting"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Apply(ctx, types.OpCreate, &types.Item{ID: "b", Title: "prep task", LinkedItems: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	a.LinkedItems = []string{"b"}
	if _, err := m.Apply(ctx, types.OpEdit, a); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Apply(ctx, types.OpDelete, a); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, ok := m.Item(b.ID)
	if !ok {
		t.Fatal("peer vanished")
	}
	if got.Linked("a") {
		t.Errorf("peer still references deleted item: %v", got.LinkedItems)
	}

	// The cascade is persisted too, not just in memory.
	stored, err := st.Get(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Linked("a") {
		t.Errorf("store copy still references deleted item: %v", stored.LinkedItems)
	}
}

func TestApply_EditMissingItem(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, time.Hour)

	_, err := m.Apply(context.Background(), types.OpEdit, &types.Item{ID: "ghost", Title: "x"})
	var merr *types.MutationError
	if !errors.As(err, &merr) || !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want MutationError wrapping ErrNotFound, got %v", err)
	}
}

func TestReconcile_PicksUpExternalWrites(t *testing.T) {
	st := store.NewMemoryStore()
	m := startedManager(t, st, 20*time.Millisecond)
	ctx := context.Background()

	// Write behind the manager's back; the change event should trigger a
	// debounced reconcile.
	if _, err := st.Create(ctx, &types.Item{ID: "ext", OwnerID: owner, Title: "external"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Item("ext"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("external write never reconciled into the working set")
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Cancel()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Debounce(func() { calls.Add(1) })
		time.Sleep(time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("burst of 10 triggers ran fn %d times, want 1", got)
	}
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var calls atomic.Int32
	d.Debounce(func() { calls.Add(1) })
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("cancelled debounce still ran %d times", got)
	}
}
