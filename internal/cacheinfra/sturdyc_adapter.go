package cacheinfra

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// sturdycEvictionPercentage is the share of a full shard sturdyc drops at once.
const sturdycEvictionPercentage = 10

// sturdycRetryBaseDelay is the base backoff sturdyc applies to failed refreshes.
const sturdycRetryBaseDelay = time.Second

// sturdycCache adapts a sturdyc client to Engine.
//
// Mapping:
//   - MaxEntries, shard count and ExpireAfterWrite are passed to sturdyc.New()
//   - RefreshAfterWrite becomes the early refresh window
//   - absence is signalled with sturdyc.ErrNotFound and never stored
//
// Every sturdyc read moves the entry's refresh deadline, so the adapter only
// reads through GetOrFetch. Snapshots are served from resident, a copy of the
// last loaded values filtered by sturdyc's key scan.
//
// Config.Validate rejects RetainOnAbsentRefresh for this driver. WithClock is
// ignored.
type sturdycCache[V any] struct {
	client   *sturdyc.Client[V]
	resident *xsync.MapOf[string, V]
	loader   Loader[V]
	cfg      Config
	name     string
	logger   *slog.Logger
	metrics  Metrics
}

// missMarker tags the context of a caller-driven fetch. sturdyc runs
// background refreshes on context.Background, which carries no marker.
type missMarker struct{}

var _ Engine[any] = (*sturdycCache[any])(nil)

func newSturdycCache[V any](cfg Config, loader Loader[V], o options) *sturdycCache[V] {
	client := sturdyc.New[V](
		cfg.MaxEntries,
		cfg.shardCount(),
		cfg.ExpireAfterWrite,
		sturdycEvictionPercentage,
		cfg.sturdycOptions()...,
	)

	return &sturdycCache[V]{
		client:   client,
		resident: xsync.NewMapOf[string, V](),
		loader:   loader,
		cfg:      cfg,
		name:     o.name,
		logger:   o.logger.With("cache", o.name, "driver", string(DriverSturdyc)),
		metrics:  o.metrics,
	}
}

// sturdycOptions translates the refresh and eviction settings. Refreshes start
// at RefreshAfterWrite, spread over a tenth of that window, and turn
// synchronous once the entry reaches ExpireAfterWrite.
func (c Config) sturdycOptions() []sturdyc.Option {
	var opts []sturdyc.Option

	if c.refreshEnabled() {
		minRefresh := c.RefreshAfterWrite
		maxRefresh := min(minRefresh+minRefresh/10, c.ExpireAfterWrite)
		opts = append(opts, sturdyc.WithEarlyRefreshes(
			minRefresh,
			maxRefresh,
			c.ExpireAfterWrite,
			sturdycRetryBaseDelay,
		))
	}

	if c.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return opts
}

func (s *sturdycCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var missed bool
	v, err := s.client.GetOrFetch(context.WithValue(ctx, missMarker{}, &missed), key, func(ctx context.Context) (V, error) {
		if marked, ok := ctx.Value(missMarker{}).(*bool); ok {
			*marked = true
			return s.fetch(ctx, key)
		}
		return s.refresh(ctx, key)
	})
	if missed {
		s.metrics.Miss()
	} else {
		s.metrics.Hit()
	}

	var zero V
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, sturdyc.ErrNotFound), errors.Is(err, sturdyc.ErrMissingRecord):
		return zero, false, nil
	default:
		s.logger.Debug("load failed", "key", key, "error", err)
		return zero, false, asLoadFailure(err, key, s.name)
	}
}

// fetch fills a miss on the caller's goroutine.
func (s *sturdycCache[V]) fetch(ctx context.Context, key string) (V, error) {
	v, found, err := s.loader(ctx, key)
	if err != nil {
		s.metrics.LoadFailure()
		return v, err
	}
	s.metrics.Load(found)
	return s.remember(key, v, found)
}

// refresh runs on a sturdyc background goroutine.
func (s *sturdycCache[V]) refresh(ctx context.Context, key string) (V, error) {
	s.metrics.Refresh()
	v, found, err := s.loader(ctx, key)
	if err != nil {
		s.metrics.RefreshFailure()
		s.logger.Warn("refresh failed, keeping stale value", "key", key, "error", err)
		return v, err
	}
	return s.remember(key, v, found)
}

func (s *sturdycCache[V]) remember(key string, v V, found bool) (V, error) {
	if !found {
		s.resident.Delete(key)
		return v, sturdyc.ErrNotFound
	}
	s.resident.Store(key, v)
	if s.resident.Size() > 2*s.cfg.MaxEntries {
		s.prune(s.client.ScanKeys())
	}
	return v, nil
}

// prune drops copies of entries sturdyc has evicted or expired.
func (s *sturdycCache[V]) prune(live []string) {
	keep := make(map[string]struct{}, len(live))
	for _, key := range live {
		keep[key] = struct{}{}
	}
	s.resident.Range(func(key string, _ V) bool {
		if _, ok := keep[key]; !ok {
			s.resident.Delete(key)
		}
		return true
	})
}

func (s *sturdycCache[V]) GetAll(ctx context.Context, keys []string) (map[string]V, error) {
	return getAll(ctx, keys, s.cfg.BulkConcurrency, s.Get)
}

// Values returns the resident values without touching refresh deadlines.
func (s *sturdycCache[V]) Values() []V {
	var out []V
	for _, key := range s.client.ScanKeys() {
		if v, ok := s.resident.Load(key); ok {
			out = append(out, v)
		}
	}
	return out
}

// Keys returns the resident keys without touching refresh deadlines.
func (s *sturdycCache[V]) Keys() []string {
	var out []string
	for _, key := range s.client.ScanKeys() {
		if _, ok := s.resident.Load(key); ok {
			out = append(out, key)
		}
	}
	return out
}

func (s *sturdycCache[V]) Len() int {
	return len(s.Keys())
}

func (s *sturdycCache[V]) Invalidate(keys ...string) {
	for _, key := range keys {
		s.client.Delete(key)
		s.resident.Delete(key)
	}
}

func (s *sturdycCache[V]) InvalidateAll() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	s.resident.Clear()
}

// Close is a no-op: sturdyc owns no resources that can be released.
func (s *sturdycCache[V]) Close() error {
	return nil
}
