package storecache

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-store-cache/cache"
	"github.com/goliatone/go-store-cache/store"
)

// RefCachingStore caches a ReferenceExtendedStore with two caches: the item
// cache of an embedded CachingStore, and an index cache from reference id to
// the ids associated with it.
//
// The caches refresh independently, so GetByRefID may briefly disagree with
// the delegate: a new association shows up once the index entry refreshes,
// and a changed item once its own entry refreshes. ConsistencyWindow returns
// the bound.
type RefCachingStore[T store.Identifiable] struct {
	*CachingStore[T]

	delegate   store.ReferenceExtendedStore[T]
	index      cache.Cache[[]string]
	indexStats *cache.Stats
	window     time.Duration
}

var _ store.ReferenceExtendedStore[store.Identifiable] = (*RefCachingStore[store.Identifiable])(nil)

// NewRefCachingStore wraps delegate with an item cache and a reference index
// cache, configured by opts.Items and opts.Index.
func NewRefCachingStore[T store.Identifiable](delegate store.ReferenceExtendedStore[T], opts cache.Options, options ...Option) (*RefCachingStore[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := newSettings[T](options)
	items, err := newCachingStore[T](delegate, opts.Items, s)
	if err != nil {
		return nil, err
	}

	indexStats := &cache.Stats{}
	index, err := cache.New[[]string](opts.Index, indexLoader(delegate), s.cacheOptions("index", indexStats)...)
	if err != nil {
		items.Close()
		return nil, err
	}

	return &RefCachingStore[T]{
		CachingStore: items,
		delegate:     delegate,
		index:        index,
		indexStats:   indexStats,
		window:       opts.ConsistencyWindow(),
	}, nil
}

// indexLoader resolves a reference id to the ids of its items. Payloads are
// dropped right away; an empty association is reported as absent.
func indexLoader[T store.Identifiable](delegate store.ReferenceExtendedStore[T]) cache.Loader[[]string] {
	return func(ctx context.Context, refID string) ([]string, bool, error) {
		items, err := delegate.GetByRefID(ctx, refID)
		if err != nil {
			return nil, false, err
		}
		ids := store.IDs(items)
		if len(ids) == 0 {
			return nil, false, nil
		}
		return ids, true, nil
	}
}

// CreateWithRefs passes straight through to the delegate. Neither cache is
// populated.
func (c *RefCachingStore[T]) CreateWithRefs(ctx context.Context, item T, refIDs []string) error {
	return c.delegate.CreateWithRefs(ctx, item, refIDs)
}

// GetByRefID resolves refID to ids through the index cache and the ids to
// items through the item cache. Ids whose item is absent are skipped; the
// index order is kept.
func (c *RefCachingStore[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	if IsBypassed(ctx) {
		return c.delegate.GetByRefID(ctx, refID)
	}

	ids, found, err := c.index.Get(ctx, refID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []T{}, nil
	}

	items, err := c.items.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// ConsistencyWindow is the longest the index and item caches can disagree
// with each other: the larger of their refresh thresholds.
func (c *RefCachingStore[T]) ConsistencyWindow() time.Duration {
	return c.window
}

// InvalidateRefs drops the cached associations of refIDs.
func (c *RefCachingStore[T]) InvalidateRefs(refIDs ...string) {
	c.index.Invalidate(refIDs...)
}

// InvalidateAll drops every cached item and association.
func (c *RefCachingStore[T]) InvalidateAll() {
	c.CachingStore.InvalidateAll()
	c.index.InvalidateAll()
}

// IndexStats returns the index cache counters.
func (c *RefCachingStore[T]) IndexStats() cache.StatsSnapshot {
	return c.indexStats.Snapshot()
}

// Close stops background work of both caches.
func (c *RefCachingStore[T]) Close() error {
	return errors.Join(c.CachingStore.Close(), c.index.Close())
}
