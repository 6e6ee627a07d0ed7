// Package store provides the per-tier entry stores backing the cache engine:
// a bounded in-process memory tier, a bbolt-backed persistent tier that
// survives restarts, and a Supabase-backed shared tier visible to every
// client. Stores hold entries; freshness policy lives in the tier chain.
package store

import (
	"context"
	"time"
)

// Entry is the unit stored in any tier.
type Entry struct {
	// Key is an opaque identifier built by the caller; equivalent parameter
	// sets must collide to the same key regardless of property order.
	Key string

	// Value is the JSON-encoded payload: a single object or an ordered
	// array of records.
	Value []byte

	// Kind is an explicit type tag ("tweets", "notifications", ...) supplied
	// by the caller at write time. Payload shape is never inspected to guess
	// it.
	Kind string

	StoredAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry is still within its TTL at the given time.
// Any entry at all, fresh or expired, counts as "stale" for fallback reads.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// TimeToLive returns the remaining TTL at the given time, or 0 if expired.
func (e Entry) TimeToLive(now time.Time) time.Duration {
	if !e.Fresh(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Store is the capability set one tier must provide.
//
// Get never filters by freshness: the stale-fallback path needs stores that
// hand back expired entries on request. Stores that do I/O (persistent,
// shared) report failures as TIER_IO errors; callers log and treat the tier
// as absent -- a tier is advisory, not authoritative.
type Store interface {
	// Get returns the entry for key and whether it was present.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores the entry, replacing any existing entry for the same key.
	Set(ctx context.Context, entry Entry) error

	// Delete removes the entry for key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteFunc removes every entry the predicate matches and returns how
	// many were removed.
	DeleteFunc(ctx context.Context, pred func(Entry) bool) (int, error)

	// Entries calls fn for each stored entry until fn returns false.
	// The iteration order is unspecified.
	Entries(ctx context.Context, fn func(Entry) bool) error

	// Name identifies the tier ("memory", "persistent", "shared") for
	// logging and metrics.
	Name() string

	// Close releases any resources held by the store.
	Close() error
}
