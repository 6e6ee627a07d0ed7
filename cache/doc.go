// Package cache implements a tiered, coalescing cache-aside engine for the
// feed client: many independent UI components concurrently request the same
// externally-expensive data, and the engine makes sure the expensive fetch
// runs at most once, that results are served from the cheapest tier that
// holds them, and that fetch failures degrade to stale data before failing.
//
// # Architecture
//
// Three entry stores (cache/store) are composed cheapest-first into a
// TierChain: in-process memory, an on-device bbolt file, and a shared
// Supabase table. The chain owns the freshness policy -- reads fall through
// the tiers, hits are promoted upward with their remaining TTL, and tier
// failures are logged and swallowed, never surfaced.
//
// The Engine is the public entry point:
//
//	eng, err := cache.New(cache.DefaultConfig(), persistent, shared, logger, metrics)
//	...
//	data, err := eng.Fetch(ctx, cache.Key("home-feed", map[string]any{"limit": 10}),
//		fetchHomeFeed, cache.FetchOptions{TTL: 15 * time.Second, Kind: "tweets"})
//
// Concurrent Fetch calls for one key are coalesced through a singleflight
// group: the fetch runs once and every waiter shares its result or its
// error. On fetch failure the engine serves any cached value regardless of
// expiry before giving up with a FETCH_FAILED error.
//
// PatchCollections applies isolated mutations (a like count changing on one
// tweet) to every resident cached collection without invalidating the rest,
// and records count overrides so non-resident collections reconcile later.
// A Janitor sweeps expired entries out of the memory tier on an interval.
//
// # Consistency
//
// No transaction spans more than one tier and there is no cross-client
// locking on the shared tier: concurrent writers use delete-then-insert and
// the last write wins, which can overwrite newer data with older when a slow
// writer finishes last. There is no per-key ordering token to resolve that
// race, and the engine does not try to; callers that need stronger
// consistency must serialize their own writes.
package cache
