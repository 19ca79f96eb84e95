package cacheinfra

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-store-cache/store"
)

// Loader fetches the value for key from the source of truth. Returning
// found=false reports absence, which is never cached.
type Loader[V any] func(ctx context.Context, key string) (value V, found bool, err error)

// Engine is a read-through, refresh-ahead cache keyed by string.
type Engine[V any] interface {
	// Get returns the cached value for key, loading it on a miss.
	Get(ctx context.Context, key string) (V, bool, error)

	// GetAll returns the present values for keys. Absent keys are omitted and
	// duplicates collapsed. Any load failure fails the whole call.
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

// New builds the engine selected by cfg.Driver.
func New[V any](cfg Config, loader Loader[V], opts ...Option) (Engine[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, goerrors.New("loader cannot be nil", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}

	cfg = cfg.withDefaults()
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Driver {
	case DriverSturdyc:
		return newSturdycCache(cfg, loader, o), nil
	default:
		return newLoadingCache(cfg, loader, o), nil
	}
}

// asLoadFailure keeps an existing load failure as is and wraps anything else.
func asLoadFailure(err error, key, name string) error {
	var e *goerrors.Error
	if goerrors.As(err, &e) && e.TextCode == store.TextCodeLoadFailure {
		return err
	}
	return store.NewLoadFailure(err, key).WithMetadata(map[string]any{"cache": name})
}

// getAll resolves keys through get, loading up to limit keys concurrently.
func getAll[V any](ctx context.Context, keys []string, limit int, get func(context.Context, string) (V, bool, error)) (map[string]V, error) {
	keys = store.Dedupe(keys)
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, key := range keys {
		g.Go(func() error {
			v, found, err := get(gctx, key)
			if err != nil {
				return err
			}
			if found {
				mu.Lock()
				out[key] = v
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
