package store

import "context"

// Identifiable is anything exposing a unique, immutable string identifier.
type Identifiable interface {
	GetID() string
}

// Store owns persisted items.
type Store[T Identifiable] interface {
	// Create persists a new item. It fails with a constraint violation if the id exists.
	Create(ctx context.Context, item T) error

	// Update replaces an existing item. It fails with a constraint violation if the id is absent.
	Update(ctx context.Context, item T) error

	// Delete removes an existing item. It fails with a constraint violation if the id is absent.
	Delete(ctx context.Context, id string) error

	// Get returns the item and true when present; absence is not an error.
	Get(ctx context.Context, id string) (T, bool, error)

	// GetMany returns a mapping of id to item for present ids. Absent ids are omitted.
	GetMany(ctx context.Context, ids []string) (map[string]T, error)

	// List returns all items. The result may be unbounded for large backends.
	List(ctx context.Context) ([]T, error)
}

// ReferenceExtendedStore extends Store with a many-to-many secondary index
// from reference ids to item ids.
type ReferenceExtendedStore[T Identifiable] interface {
	Store[T]

	// CreateWithRefs persists the item and associates every ref id with its id.
	CreateWithRefs(ctx context.Context, item T, refIDs []string) error

	// GetByRefID returns every item currently associated with refID.
	GetByRefID(ctx context.Context, refID string) ([]T, error)
}

// LookupByRef resolves refID against s when it supports references and fails
// fast with a capability error otherwise.
func LookupByRef[T Identifiable](ctx context.Context, s Store[T], refID string) ([]T, error) {
	ref, ok := s.(ReferenceExtendedStore[T])
	if !ok {
		return nil, NewCapabilityUnsupported("GetByRefID")
	}
	return ref.GetByRefID(ctx, refID)
}

// IDs projects items to their ids, collapsing duplicates and keeping first-seen order.
func IDs[T Identifiable](items []T) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := item.GetID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Dedupe returns ids without duplicates, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
