package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aide/internal/logging"
	"aide/internal/types"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists items in a local SQLite database. Items are stored
// as JSON payloads with the columns needed for owner listing broken out.
// Change notifications are published to subscribers after each successful
// mutation, mirroring a hosted store's realtime stream.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	subs   *subscriberSet
}

// NewSQLiteStore initializes the database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing SQLiteStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path, subs: newSubscriberSet()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("SQLiteStore initialization complete")
	return s, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	itemsTable := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
	CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);
	`
	if _, err := s.db.Exec(itemsTable); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}
	return nil
}

// Close cancels subscriptions and closes the database connection.
func (s *SQLiteStore) Close() error {
	logging.Store("Closing SQLiteStore")
	s.subs.closeAll()
	return s.db.Close()
}

// Create inserts a new item, assigning an id when missing.
func (s *SQLiteStore) Create(ctx context.Context, item *types.Item) (*types.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Create")
	defer timer.Stop()

	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, owner_id, kind, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.OwnerID, string(stored.Kind), string(payload), stored.CreatedAt, stored.UpdatedAt)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	logging.StoreDebug("Created item %s (%s)", stored.ID, stored.Kind)
	s.subs.publish(stored.OwnerID, ChangeEvent{Type: ChangeInsert, New: stored.Clone()})
	return stored, nil
}

// Get fetches one item by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, id)
}

func (s *SQLiteStore) getLocked(ctx context.Context, id string) (*types.Item, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM items WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	var item types.Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}
	return &item, nil
}

// List returns all items for the owner, oldest first.
func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]*types.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "List")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM items WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*types.Item
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		var item types.Item
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Update replaces the stored payload for the given id.
func (s *SQLiteStore) Update(ctx context.Context, id string, item *types.Item) (*types.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Update")
	defer timer.Stop()

	s.mu.Lock()
	old, err := s.getLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	stored := item.Clone()
	stored.ID = id
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(stored)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE items SET owner_id = ?, kind = ?, payload = ?, updated_at = ? WHERE id = ?`,
		stored.OwnerID, string(stored.Kind), string(payload), stored.UpdatedAt, id)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	logging.StoreDebug("Updated item %s", id)
	s.subs.publish(stored.OwnerID, ChangeEvent{Type: ChangeUpdate, New: stored.Clone(), Old: old})
	return stored, nil
}

// Delete removes the item by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	timer := logging.StartTimer(logging.CategoryStore, "Delete")
	defer timer.Stop()

	s.mu.Lock()
	old, err := s.getLocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	logging.StoreDebug("Deleted item %s", id)
	s.subs.publish(old.OwnerID, ChangeEvent{Type: ChangeDelete, Old: old})
	return nil
}

// Subscribe registers a change handler for the owner's items.
func (s *SQLiteStore) Subscribe(ownerID string, handler func(ChangeEvent)) func() {
	logging.StoreDebug("New subscription for owner %s", ownerID)
	return s.subs.add(ownerID, handler)
}
