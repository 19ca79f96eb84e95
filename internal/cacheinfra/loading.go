package cacheinfra

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/goliatone/go-store-cache/store"
)

// LoadingCache is the native Engine: a sharded LRU with per-key single-flight
// loading and asynchronous refresh of stale entries.
//
// No shard lock is held while the loader runs. A key has at most one loader
// call in flight, whether it fills a miss or refreshes a stale entry.
type LoadingCache[V any] struct {
	cfg     Config
	loader  Loader[V]
	shards  []*shard[V]
	mask    uint64
	flights *xsync.MapOf[string, *flight[V]]

	refreshSlots *semaphore.Weighted

	name    string
	logger  *slog.Logger
	metrics Metrics
	clock   Clock

	lifecycle sync.RWMutex
	closed    bool
	workers   sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

var _ Engine[any] = (*LoadingCache[any])(nil)

// NewLoadingCache validates cfg and builds a native loading cache regardless
// of cfg.Driver.
func NewLoadingCache[V any](cfg Config, loader Loader[V], opts ...Option) (*LoadingCache[V], error) {
	cfg.Driver = DriverNative
	engine, err := New(cfg, loader, opts...)
	if err != nil {
		return nil, err
	}
	return engine.(*LoadingCache[V]), nil
}

func newLoadingCache[V any](cfg Config, loader Loader[V], o options) *LoadingCache[V] {
	n := cfg.shardCount()
	c := &LoadingCache[V]{
		cfg:          cfg,
		loader:       loader,
		shards:       make([]*shard[V], n),
		mask:         uint64(n - 1),
		flights:      xsync.NewMapOf[string, *flight[V]](),
		refreshSlots: semaphore.NewWeighted(int64(cfg.RefreshConcurrency)),
		name:         o.name,
		logger:       o.logger.With("cache", o.name),
		metrics:      o.metrics,
		clock:        o.clock,
		stop:         make(chan struct{}),
	}

	base, extra := cfg.MaxEntries/n, cfg.MaxEntries%n
	for i := range c.shards {
		capacity := base
		if i < extra {
			capacity++
		}
		c.shards[i] = newShard[V](max(capacity, 1))
	}

	if cfg.EvictionInterval > 0 {
		c.workers.Add(1)
		go c.janitor(cfg.EvictionInterval)
	}

	return c
}

func (c *LoadingCache[V]) shardFor(key string) *shard[V] {
	return c.shards[xxhash.Sum64String(key)&c.mask]
}

// Get returns the value for key. A resident value is returned immediately,
// scheduling a background refresh when it is older than RefreshAfterWrite.
// A missing or expired entry is loaded synchronously; concurrent callers of
// the same key wait on that single load.
func (c *LoadingCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	if v, ok := c.lookup(ctx, key); ok {
		return v, true, nil
	}
	return c.load(ctx, key)
}

// GetAll serves hits inline and loads the misses concurrently, bounded by
// BulkConcurrency.
func (c *LoadingCache[V]) GetAll(ctx context.Context, keys []string) (map[string]V, error) {
	keys = store.Dedupe(keys)
	out := make(map[string]V, len(keys))
	var missing []string
	for _, key := range keys {
		if v, ok := c.lookup(ctx, key); ok {
			out[key] = v
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := getAll(ctx, missing, c.cfg.BulkConcurrency, c.load)
	if err != nil {
		return nil, err
	}
	for k, v := range loaded {
		out[k] = v
	}
	return out, nil
}

// lookup is the hit path shared by Get and GetAll.
func (c *LoadingCache[V]) lookup(ctx context.Context, key string) (V, bool) {
	now := c.clock.Now()
	rec, ok, expired := c.shardFor(key).lookup(key, now, c.cfg.ExpireAfterWrite)
	if expired {
		c.metrics.Expire()
	}
	if !ok {
		c.metrics.Miss()
		var zero V
		return zero, false
	}

	c.metrics.Hit()
	if c.cfg.refreshEnabled() && now.Sub(rec.loadedAt) >= c.cfg.RefreshAfterWrite {
		c.refreshAsync(ctx, key)
	}
	return rec.value, true
}

// load fills a miss through the key's flight. The loader runs detached from
// the caller's cancellation and every caller, the first included, leaves
// through flight.wait.
func (c *LoadingCache[V]) load(ctx context.Context, key string) (V, bool, error) {
	f, joined := c.flights.LoadOrCompute(key, newFlight[V])
	if joined {
		return f.wait(ctx)
	}

	// another flight may have landed between the miss and winning this one
	sh := c.shardFor(key)
	if rec, ok, _ := sh.lookup(key, c.clock.Now(), c.cfg.ExpireAfterWrite); ok {
		c.land(key, f, rec.value, true, nil)
		return rec.value, true, nil
	}

	go c.fill(context.WithoutCancel(ctx), key, sh, f)
	return f.wait(ctx)
}

func (c *LoadingCache[V]) fill(ctx context.Context, key string, sh *shard[V], f *flight[V]) {
	v, found, err := c.loader(ctx, key)
	switch {
	case err != nil:
		c.metrics.LoadFailure()
		var zero V
		c.land(key, f, zero, false, asLoadFailure(err, key, c.name))
	case !found:
		c.metrics.Load(false)
		var zero V
		c.land(key, f, zero, false, nil)
	default:
		c.metrics.Load(true)
		c.put(sh, key, v, c.clock.Now())
		c.land(key, f, v, true, nil)
	}
}

// refreshAsync starts a background reload of key unless one is already in
// flight or the refresh budget is exhausted.
func (c *LoadingCache[V]) refreshAsync(ctx context.Context, key string) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		return
	}

	if !c.refreshSlots.TryAcquire(1) {
		c.logger.Debug("refresh skipped, no free slot", "key", key)
		return
	}
	f, joined := c.flights.LoadOrCompute(key, newFlight[V])
	if joined {
		c.refreshSlots.Release(1)
		return
	}

	c.metrics.Refresh()
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		defer c.refreshSlots.Release(1)
		c.refresh(context.WithoutCancel(ctx), key, f)
	}()
}

func (c *LoadingCache[V]) refresh(ctx context.Context, key string, f *flight[V]) {
	sh := c.shardFor(key)
	v, found, err := c.loader(ctx, key)
	now := c.clock.Now()

	switch {
	case err != nil:
		c.metrics.RefreshFailure()
		err = asLoadFailure(err, key, c.name)
		c.logRefreshFailure(key, err)
		var zero V
		c.land(key, f, zero, false, err)
	case !found:
		if c.cfg.RetainOnAbsentRefresh {
			sh.touchLoaded(key, now)
		} else {
			sh.remove(key)
		}
		var zero V
		c.land(key, f, zero, false, nil)
	default:
		c.put(sh, key, v, now)
		c.land(key, f, v, true, nil)
	}
}

func (c *LoadingCache[V]) logRefreshFailure(key string, err error) {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		c.logger.Warn("refresh failed, keeping stale value", "key", key, "error", err)
		return
	}
	e = e.Clone().WithSeverity(goerrors.SeverityWarning).
		WithMetadata(map[string]any{"cache": c.name, "key": key})
	goerrors.LogBySeverity(c.logger, e)
}

func (c *LoadingCache[V]) put(sh *shard[V], key string, v V, now time.Time) {
	evicted := sh.put(key, record[V]{value: v, writtenAt: now, loadedAt: now})
	for range evicted {
		c.metrics.Eviction()
	}
}

// land publishes the outcome: the entry is already stored, the flight is
// dropped from the map, then waiters are released.
func (c *LoadingCache[V]) land(key string, f *flight[V], v V, found bool, err error) {
	c.flights.Delete(key)
	f.land(v, found, err)
}

// Values returns resident, non-expired values.
func (c *LoadingCache[V]) Values() []V {
	var out []V
	c.each(func(_ string, rec record[V]) { out = append(out, rec.value) })
	return out
}

// Keys returns resident, non-expired keys.
func (c *LoadingCache[V]) Keys() []string {
	var out []string
	c.each(func(key string, _ record[V]) { out = append(out, key) })
	return out
}

// Len returns the number of resident, non-expired entries.
func (c *LoadingCache[V]) Len() int {
	n := 0
	c.each(func(string, record[V]) { n++ })
	return n
}

func (c *LoadingCache[V]) each(fn func(string, record[V])) {
	now := c.clock.Now()
	for _, sh := range c.shards {
		sh.each(now, c.cfg.ExpireAfterWrite, fn)
	}
}

// Invalidate drops keys. A load in flight for one of them still lands.
func (c *LoadingCache[V]) Invalidate(keys ...string) {
	for _, key := range keys {
		c.shardFor(key).remove(key)
	}
}

func (c *LoadingCache[V]) InvalidateAll() {
	for _, sh := range c.shards {
		sh.clear()
	}
}

// Close stops the janitor and waits for running refreshes.
func (c *LoadingCache[V]) Close() error {
	c.closeOnce.Do(func() {
		c.lifecycle.Lock()
		c.closed = true
		close(c.stop)
		c.lifecycle.Unlock()
		c.workers.Wait()
	})
	return nil
}

func (c *LoadingCache[V]) janitor(interval time.Duration) {
	defer c.workers.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *LoadingCache[V]) sweep() int {
	now := c.clock.Now()
	total := 0
	for _, sh := range c.shards {
		dropped := sh.sweep(now, c.cfg.ExpireAfterWrite)
		for range dropped {
			c.metrics.Expire()
		}
		total += dropped
	}
	if total > 0 {
		c.logger.Debug("swept expired entries", "count", total)
	}
	return total
}
