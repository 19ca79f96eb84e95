// Package storecache provides caching decorators for the store contracts.
//
// # Overview
//
// CachingStore puts a read-through, refresh-ahead item cache in front of a
// store.Store. RefCachingStore adds a second cache from reference id to item
// ids in front of a store.ReferenceExtendedStore and resolves GetByRefID
// through both caches.
//
// # Basic Usage
//
//	backing := memstore.New[User]()
//	cached, err := storecache.NewRefCachingStore[User](backing, cache.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer cached.Close()
//
//	_ = cached.CreateWithRefs(ctx, user, []string{"team-a"})
//	members, err := cached.GetByRefID(ctx, "team-a")
//
// # Consistency
//
// Writes pass straight through to the delegate and never update the caches.
// Reads observe a write after the affected entry misses or refreshes, so
// callers must not expect read-after-write consistency through the decorators:
//
//   - Get returns a stale value for up to RefreshAfterWrite, after which one
//     background reload replaces it.
//   - An entry is never served past ExpireAfterWrite.
//   - Absence is never cached. A missing id reaches the delegate on every read.
//   - A failed background reload keeps the previous value.
//
// The item cache and the index cache refresh independently and may disagree
// for up to ConsistencyWindow, the larger of the two refresh thresholds.
//
// List on a caching store returns only the resident entries of the item
// cache. Wrap the context with WithBypass to read the delegate directly.
package storecache
