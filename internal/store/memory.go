package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aide/internal/types"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and demos. It supports
// fault injection so callers can exercise rollback paths.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*types.Item
	subs  *subscriberSet

	// FailNext, when set, makes the next mutating call return the error
	// and clears itself.
	failNext error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*types.Item),
		subs:  newSubscriberSet(),
	}
}

// FailNext arranges for the next Create/Update/Delete to fail with err.
func (s *MemoryStore) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *MemoryStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Create inserts a new item, assigning an id when missing.
func (s *MemoryStore) Create(ctx context.Context, item *types.Item) (*types.Item, error) {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.items[stored.ID] = stored
	s.mu.Unlock()

	s.subs.publish(stored.OwnerID, ChangeEvent{Type: ChangeInsert, New: stored.Clone()})
	return stored.Clone(), nil
}

// Get fetches one item by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item.Clone(), nil
}

// List returns all items for the owner, oldest first.
func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*types.Item
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			items = append(items, item.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Update replaces the stored payload for the given id.
func (s *MemoryStore) Update(ctx context.Context, id string, item *types.Item) (*types.Item, error) {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	old, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	stored := item.Clone()
	stored.ID = id
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.items[id] = stored
	s.mu.Unlock()

	s.subs.publish(stored.OwnerID, ChangeEvent{Type: ChangeUpdate, New: stored.Clone(), Old: old})
	return stored.Clone(), nil
}

// Delete removes the item by id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return err
	}

	old, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.items, id)
	s.mu.Unlock()

	s.subs.publish(old.OwnerID, ChangeEvent{Type: ChangeDelete, Old: old})
	return nil
}

// Subscribe registers a change handler for the owner's items.
func (s *MemoryStore) Subscribe(ownerID string, handler func(ChangeEvent)) func() {
	return s.subs.add(ownerID, handler)
}

// Close cancels all subscriptions.
func (s *MemoryStore) Close() error {
	s.subs.closeAll()
	return nil
}
