package storecache

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-store-cache/cache"
	"github.com/goliatone/go-store-cache/store"
)

// Option configures a caching store.
type Option func(*settings)

type settings struct {
	name   string
	logger *slog.Logger
	clock  cache.Clock
}

// WithName sets the name used in log records and errors. Defaults to the
// snake_cased item type name.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock of the caches.
func WithClock(clock cache.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func newSettings[T any](opts []Option) settings {
	s := settings{name: defaultName[T](), logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) cacheOptions(suffix string, stats *cache.Stats) []cache.Option {
	opts := []cache.Option{
		cache.WithName(s.name + "." + suffix),
		cache.WithLogger(s.logger),
		cache.WithStats(stats),
	}
	if s.clock != nil {
		opts = append(opts, cache.WithClock(s.clock))
	}
	return opts
}

// CachingStore is a read-through cache in front of a Store. Writes go
// straight to the delegate and never touch the cache: a written value
// becomes visible through Get once the entry misses or refreshes.
type CachingStore[T store.Identifiable] struct {
	delegate store.Store[T]
	items    cache.Cache[T]
	stats    *cache.Stats
}

var _ store.Store[store.Identifiable] = (*CachingStore[store.Identifiable])(nil)

// NewCachingStore wraps delegate with an item cache built from cfg.
func NewCachingStore[T store.Identifiable](delegate store.Store[T], cfg cache.Config, opts ...Option) (*CachingStore[T], error) {
	return newCachingStore(delegate, cfg, newSettings[T](opts))
}

func newCachingStore[T store.Identifiable](delegate store.Store[T], cfg cache.Config, s settings) (*CachingStore[T], error) {
	stats := &cache.Stats{}
	items, err := cache.New[T](cfg, delegate.Get, s.cacheOptions("items", stats)...)
	if err != nil {
		return nil, err
	}
	return &CachingStore[T]{delegate: delegate, items: items, stats: stats}, nil
}

func (c *CachingStore[T]) Create(ctx context.Context, item T) error {
	return c.delegate.Create(ctx, item)
}

func (c *CachingStore[T]) Update(ctx context.Context, item T) error {
	return c.delegate.Update(ctx, item)
}

func (c *CachingStore[T]) Delete(ctx context.Context, id string) error {
	return c.delegate.Delete(ctx, id)
}

func (c *CachingStore[T]) Get(ctx context.Context, id string) (T, bool, error) {
	if IsBypassed(ctx) {
		return c.delegate.Get(ctx, id)
	}
	return c.items.Get(ctx, id)
}

func (c *CachingStore[T]) GetMany(ctx context.Context, ids []string) (map[string]T, error) {
	if IsBypassed(ctx) {
		return c.delegate.GetMany(ctx, ids)
	}
	return c.items.GetAll(ctx, ids)
}

// List returns the items currently resident in the cache, not the
// delegate's full listing. Use WithBypass to list the delegate.
func (c *CachingStore[T]) List(ctx context.Context) ([]T, error) {
	if IsBypassed(ctx) {
		return c.delegate.List(ctx)
	}
	return c.items.Values(), nil
}

// GetByRefID is not served by a plain caching store and fails with a
// capability error. A bypassed read is resolved against the delegate.
func (c *CachingStore[T]) GetByRefID(ctx context.Context, refID string) ([]T, error) {
	if IsBypassed(ctx) {
		return store.LookupByRef(ctx, c.delegate, refID)
	}
	return nil, store.NewCapabilityUnsupported("GetByRefID")
}

// Invalidate drops the cached items for ids.
func (c *CachingStore[T]) Invalidate(ids ...string) {
	c.items.Invalidate(ids...)
}

// InvalidateAll drops every cached item.
func (c *CachingStore[T]) InvalidateAll() {
	c.items.InvalidateAll()
}

// Stats returns the item cache counters.
func (c *CachingStore[T]) Stats() cache.StatsSnapshot {
	return c.stats.Snapshot()
}

// Close stops background work of the item cache.
func (c *CachingStore[T]) Close() error {
	return c.items.Close()
}
