package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-store-cache/internal/cacheinfra"
)

// Loader fetches the value for key from the source of truth. Returning
// found=false reports absence, which is never cached.
type Loader[V any] func(ctx context.Context, key string) (value V, found bool, err error)

// Cache is a read-through, refresh-ahead cache keyed by string.
type Cache[V any] interface {
	// Get returns the value for key, loading it on a miss. A value older than
	// RefreshAfterWrite is returned as is while one background reload runs.
	Get(ctx context.Context, key string) (V, bool, error)

	// GetAll returns the present values for keys; absent keys are omitted.
	GetAll(ctx context.Context, keys []string) (map[string]V, error)

	// Values returns a snapshot of resident, non-expired values.
	Values() []V

	// Keys returns a snapshot of resident, non-expired keys.
	Keys() []string

	// Len returns the number of resident, non-expired entries.
	Len() int

	// Invalidate drops the given keys.
	Invalidate(keys ...string)

	// InvalidateAll drops every entry.
	InvalidateAll()

	// Close stops background work.
	Close() error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Option customizes a cache built by New.
type Option func(*[]cacheinfra.Option)

// WithName labels log records and errors.
func WithName(name string) Option {
	return func(o *[]cacheinfra.Option) { *o = append(*o, cacheinfra.WithName(name)) }
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *[]cacheinfra.Option) { *o = append(*o, cacheinfra.WithLogger(logger)) }
}

// WithStats records cache events into stats.
func WithStats(stats *Stats) Option {
	return func(o *[]cacheinfra.Option) {
		if stats != nil {
			*o = append(*o, cacheinfra.WithMetrics(stats))
		}
	}
}

// WithClock replaces the wall clock used by the native driver.
func WithClock(clock Clock) Option {
	return func(o *[]cacheinfra.Option) { *o = append(*o, cacheinfra.WithClock(clock)) }
}

// New validates cfg and builds a cache around loader.
func New[V any](cfg Config, loader Loader[V], opts ...Option) (Cache[V], error) {
	var internal []cacheinfra.Option
	for _, opt := range opts {
		opt(&internal)
	}
	return cacheinfra.New(cfg.toInternal(), cacheinfra.Loader[V](loader), internal...)
}
