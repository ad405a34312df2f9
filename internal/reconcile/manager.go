// Package reconcile is the mutation layer: it owns the in-memory working
// set of items, applies mutations optimistically (memory first, store
// second, rollback on store failure) and reconciles the working set against
// the store on debounced change notifications.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// ErrUnsupportedOp is returned for operations the mutation layer does not
// apply directly (query resolves against the working set instead).
var ErrUnsupportedOp = errors.New("reconcile: unsupported operation")

// Manager owns the in-memory working set for one owner. Reads are served
// from memory; mutations go memory-first with a per-mutation undo snapshot,
// then to the store, rolling back the memory change if the store refuses.
type Manager struct {
	st      store.Store
	ownerID string

	mu    sync.RWMutex
	items map[string]*types.Item

	deb   *Debouncer
	unsub func()
	now   func() time.Time
}

// NewManager creates a Manager over the store for one owner. The debounce
// window bounds how often change notifications trigger a full reconcile.
func NewManager(st store.Store, ownerID string, debounceWindow time.Duration) *Manager {
	return &Manager{
		st:      st,
		ownerID: ownerID,
		items:   make(map[string]*types.Item),
		deb:     NewDebouncer(debounceWindow),
		now:     time.Now,
	}
}

// Start loads the working set and subscribes to store changes. Each change
// notification schedules a debounced reconcile, so a burst of writes costs
// one refresh.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.reconcile(ctx); err != nil {
		return err
	}
	m.unsub = m.st.Subscribe(m.ownerID, func(store.ChangeEvent) {
		m.deb.Debounce(func() {
			if err := m.reconcile(context.Background()); err != nil {
				logging.SyncDebug("reconcile after change event failed: %v", err)
			}
		})
	})
	return nil
}

// Close cancels the subscription and any pending reconcile.
func (m *Manager) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	m.deb.Cancel()
}

// reconcile replaces the working set with the store's current truth.
func (m *Manager) reconcile(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategorySync, "reconcile")
	defer timer.Stop()

	fresh, err := m.st.List(ctx, m.ownerID)
	if err != nil {
		return err
	}

	next := make(map[string]*types.Item, len(fresh))
	for _, it := range fresh {
		next[it.ID] = it
	}

	m.mu.Lock()
	m.items = next
	m.mu.Unlock()

	logging.Sync("reconciled working set: %d items", len(fresh))
	return nil
}

// Item returns a copy of one item from the working set.
func (m *Manager) Item(id string) (*types.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// Items returns copies of the working set, oldest first.
func (m *Manager) Items() []*types.Item {
	m.mu.RLock()
	out := make([]*types.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Apply performs one mutation: optimistic memory update, store write,
// rollback from the undo snapshot if the store write fails. The returned
// item reflects the applied state; errors are *types.MutationError.
func (m *Manager) Apply(ctx context.Context, op types.Operation, item *types.Item) (*types.Item, error) {
	switch op {
	case types.OpCreate:
		return m.applyCreate(ctx, item)
	case types.OpEdit:
		return m.applyEdit(ctx, item)
	case types.OpDelete:
		return nil, m.applyDelete(ctx, item.ID)
	default:
		return nil, &types.MutationError{Op: op, ItemID: item.ID, Err: ErrUnsupportedOp}
	}
}

// Update persists a full replacement of an existing item. Satisfies the
// links engine's mutator contract.
func (m *Manager) Update(ctx context.Context, item *types.Item) error {
	_, err := m.applyEdit(ctx, item)
	return err
}

func (m *Manager) applyCreate(ctx context.Context, item *types.Item) (*types.Item, error) {
	it := item.Clone()
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	now := m.now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	if it.OwnerID == "" {
		it.OwnerID = m.ownerID
	}

	m.mu.Lock()
	m.items[it.ID] = it.Clone()
	m.mu.Unlock()

	if _, err := m.st.Create(ctx, it); err != nil {
		// Undo the optimistic insert.
		m.mu.Lock()
		delete(m.items, it.ID)
		m.mu.Unlock()
		logging.Sync("create %s rolled back: %v", it.ID, err)
		return nil, &types.MutationError{Op: types.OpCreate, ItemID: it.ID, Err: err}
	}

	logging.Sync("created %s (%s %q)", it.ID, it.Kind, it.Title)
	return it.Clone(), nil
}

func (m *Manager) applyEdit(ctx context.Context, item *types.Item) (*types.Item, error) {
	m.mu.Lock()
	old, ok := m.items[item.ID]
	if !ok {
		m.mu.Unlock()
		return nil, &types.MutationError{Op: types.OpEdit, ItemID: item.ID, Err: store.ErrNotFound}
	}
	snapshot := old.Clone()

	it := item.Clone()
	it.OwnerID = old.OwnerID
	it.CreatedAt = old.CreatedAt
	it.UpdatedAt = m.now()
	m.items[it.ID] = it
	m.mu.Unlock()

	if _, err := m.st.Update(ctx, it.ID, it); err != nil {
		m.mu.Lock()
		m.items[snapshot.ID] = snapshot
		m.mu.Unlock()
		logging.Sync("edit %s rolled back: %v", it.ID, err)
		return nil, &types.MutationError{Op: types.OpEdit, ItemID: it.ID, Err: err}
	}

	logging.SyncDebug("updated %s", it.ID)
	return it.Clone(), nil
}

// applyDelete removes the item and cascades: every peer referencing it in
// linkedItems drops the reference, so no dangling ids survive a delete.
func (m *Manager) applyDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	old, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return &types.MutationError{Op: types.OpDelete, ItemID: id, Err: store.ErrNotFound}
	}
	snapshot := old.Clone()

	var peerSnapshots []*types.Item
	var strippedPeers []*types.Item
	for _, peer := range m.items {
		if !peer.Linked(id) {
			continue
		}
		peerSnapshots = append(peerSnapshots, peer.Clone())
		stripped := peer.Clone()
		stripped.LinkedItems = removeID(stripped.LinkedItems, id)
		m.items[peer.ID] = stripped
		strippedPeers = append(strippedPeers, stripped)
	}
	delete(m.items, id)
	m.mu.Unlock()

	if err := m.st.Delete(ctx, id); err != nil {
		// Restore the item and every stripped peer.
		m.mu.Lock()
		m.items[snapshot.ID] = snapshot
		for _, p := range peerSnapshots {
			m.items[p.ID] = p
		}
		m.mu.Unlock()
		logging.Sync("delete %s rolled back: %v", id, err)
		return &types.MutationError{Op: types.OpDelete, ItemID: id, Err: err}
	}

	// Persist the cascade. A failed peer write is not rolled back; the next
	// reconcile will converge it.
	for _, p := range strippedPeers {
		if _, err := m.st.Update(ctx, p.ID, p); err != nil {
			logging.Sync("cascade update of %s after deleting %s failed: %v", p.ID, id, err)
		}
	}

	logging.Sync("deleted %s (%d peer links removed)", id, len(strippedPeers))
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
