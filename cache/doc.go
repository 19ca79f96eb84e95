// Package cache provides a read-through, refresh-ahead cache and the
// configuration shared by the caching store decorators.
//
// # Overview
//
// A Cache is built around a Loader that reads the source of truth:
//
//	users, err := cache.New(cache.DefaultConfig(), func(ctx context.Context, id string) (User, bool, error) {
//		return repo.Get(ctx, id)
//	})
//
//	u, found, err := users.Get(ctx, "user-123")
//
// The first Get of a key loads it synchronously. Concurrent Gets of the same
// key share that single load. Once an entry is older than RefreshAfterWrite
// the next read still returns it immediately, and a single background reload
// replaces it when it completes. An entry older than ExpireAfterWrite is never
// served: the read that finds it loads synchronously.
//
// # Absence
//
// A loader reporting found=false produces no entry. Every Get of an absent key
// reaches the loader again; absence is never memoized.
//
// # Failures
//
// A failed miss load is returned to the caller as a LOAD_FAILURE error (see
// the store package). A failed background refresh is logged and the previous
// value is kept. When a refresh finds the record gone the entry is evicted,
// unless Config.RetainOnAbsentRefresh is set.
//
// # Configuration
//
// Config mirrors the recognized option names:
//
//	maxEntries                default 10000
//	expireAfterWriteSeconds   default 1800
//	refreshAfterWriteSeconds  default 60
//
// FromSeconds builds a Config from those values. Options groups the item and
// index configurations used by storecache.RefCachingStore, and
// Options.ConsistencyWindow reports how long the two caches may disagree.
//
// Two drivers are available. DriverNative, the default, is a sharded LRU with
// explicit per-key flight tracking. DriverSturdyc delegates to
// github.com/viccon/sturdyc and maps RefreshAfterWrite onto its early refresh
// window.
//
// # Stats
//
// Pass WithStats to collect hit, miss, load, refresh, eviction and expiry
// counters.
package cache
