// Package memstore provides an in-memory ReferenceExtendedStore.
package memstore

import (
	"context"
	"sync"

	"github.com/goliatone/go-store-cache/store"
)

var _ store.ReferenceExtendedStore[store.Identifiable] = (*Store[store.Identifiable])(nil)

// Store keeps items and the reference index in process memory.
type Store[T store.Identifiable] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
	index map[string][]string
}

// New creates an empty store.
func New[T store.Identifiable]() *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
		index: make(map[string][]string),
	}
}

// Create fails if an item with the same id already exists.
func (s *Store[T]) Create(ctx context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(item)
}

func (s *Store[T]) createLocked(item T) error {
	id := item.GetID()
	if _, ok := s.items[id]; ok {
		return store.NewConstraintViolation("item already created", id)
	}
	s.items[id] = item
	s.order = append(s.order, id)
	return nil
}

// Update fails if the item does not exist.
func (s *Store[T]) Update(ctx context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.GetID()
	if _, ok := s.items[id]; !ok {
		return store.NewConstraintViolation("update cannot be done on unknown item", id)
	}
	s.items[id] = item
	return nil
}

// Delete fails if the item does not exist. Reference associations are left in
// place; lookups skip ids that no longer resolve.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.NewConstraintViolation("id does not exist, cannot be deleted", id)
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok, nil
}

func (s *Store[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]T, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// List returns all items in creation order.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

// CreateWithRefs stores the item and its associations in one critical section.
func (s *Store[T]) CreateWithRefs(ctx context.Context, item T, refIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.createLocked(item); err != nil {
		return err
	}
	id := item.GetID()
	for _, refID := range store.Dedupe(refIDs) {
		s.index[refID] = append(s.index[refID], id)
	}
	return nil
}

func (s *Store[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := store.Dedupe(s.index[refID])
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Len returns the number of stored items.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
