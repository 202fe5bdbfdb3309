// Package bootup records values written to control files so they can be
// replayed when the device starts again.
package bootup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kalambet/sysbind/internal/storage"
)

// DefaultCategory groups entries whose binding has no category.
const DefaultCategory = "default"

// Entry is one restorable write. Identity is (Category, Key).
type Entry struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Value    string `json:"value"`
	Enabled  bool   `json:"enabled"`
}

// Store abstracts the persistence operations the Registry needs.
// Implemented by storage.Store.
type Store interface {
	UpsertBootupEntry(e storage.BootupEntry) error
	ListBootupEntries(category string) ([]storage.BootupEntry, error)
	DeleteBootupEntry(category, key string) error
}

// Registry upserts and enumerates bootup entries. Upserts are serialized so
// that two bindings sharing an identity resolve to last-writer-wins.
type Registry struct {
	store Store
	mu    sync.Mutex
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// SetBootup inserts e or overwrites the entry with the same identity.
// An overwrite keeps the entry's original replay position.
func (r *Registry) SetBootup(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	if e.Key == "" {
		return errors.New("bootup entry requires a key")
	}
	if e.Path == "" {
		return fmt.Errorf("bootup entry %s/%s requires a path", e.Category, e.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.UpsertBootupEntry(toRow(e)); err != nil {
		return fmt.Errorf("storing bootup entry %s/%s: %w", e.Category, e.Key, err)
	}
	return nil
}

// All returns entries in replay order. An empty category returns every entry.
func (r *Registry) All(ctx context.Context, category string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.store.ListBootupEntries(category)
	if err != nil {
		return nil, fmt.Errorf("listing bootup entries: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromRow(row))
	}
	return entries, nil
}

// Delete removes one entry. Returns storage.ErrNotFound if it does not exist.
func (r *Registry) Delete(ctx context.Context, category, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeleteBootupEntry(category, key)
}

func toRow(e Entry) storage.BootupEntry {
	return storage.BootupEntry{
		Category: e.Category,
		Key:      e.Key,
		Path:     e.Path,
		Value:    e.Value,
		Enabled:  e.Enabled,
	}
}

func fromRow(row storage.BootupEntry) Entry {
	return Entry{
		Category: row.Category,
		Key:      row.Key,
		Path:     row.Path,
		Value:    row.Value,
		Enabled:  row.Enabled,
	}
}
