// Package store provides the persistence service for items: per-item CRUD,
// list-by-owner and a push-based change-notification stream. The sqlite
// implementation is the durable backend; MemoryStore backs tests.
package store

import (
	"context"
	"errors"

	"aide/internal/types"
)

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = errors.New("item not found")

// ChangeType classifies a change notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is a push notification about an item changed in the store.
// New is nil for deletes; Old is nil for inserts.
type ChangeEvent struct {
	Type ChangeType
	New  *types.Item
	Old  *types.Item
}

// Store is the narrow interface the rest of the system consumes.
// Implementations must deliver change events asynchronously with respect to
// the mutating call and must hand out copies the caller may mutate freely.
type Store interface {
	Create(ctx context.Context, item *types.Item) (*types.Item, error)
	Get(ctx context.Context, id string) (*types.Item, error)
	List(ctx context.Context, ownerID string) ([]*types.Item, error)
	Update(ctx context.Context, id string, item *types.Item) (*types.Item, error)
	Delete(ctx context.Context, id string) error

	// Subscribe registers a handler for changes to the owner's items.
	// The returned function cancels the subscription and waits for the
	// delivery goroutine to drain.
	Subscribe(ownerID string, handler func(ChangeEvent)) func()
}
