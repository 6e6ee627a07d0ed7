package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntry(key string, storedAt time.Time, ttl time.Duration) Entry {
	return Entry{
		Key:       key,
		Value:     []byte(`{"v":1}`),
		Kind:      "tweets",
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(ttl),
	}
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0, nil)

	t.Run("AbsentKey", func(t *testing.T) {
		_, ok, err := mem.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		entry := makeEntry("home-feed-limit:10", time.Now(), time.Minute)
		require.NoError(t, mem.Set(ctx, entry))

		got, ok, err := mem.Get(ctx, entry.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, entry.Value, got.Value)
		assert.Equal(t, entry.Kind, got.Kind)
	})

	t.Run("ExpiredEntriesAreStillReturned", func(t *testing.T) {
		// Freshness filtering belongs to the tier chain; the store must hand
		// back expired entries for the stale-fallback path.
		entry := makeEntry("expired", time.Now().Add(-time.Hour), time.Minute)
		require.NoError(t, mem.Set(ctx, entry))

		got, ok, err := mem.Get(ctx, "expired")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, got.Fresh(time.Now()))
	})

	t.Run("SetReplacesExisting", func(t *testing.T) {
		first := makeEntry("replace-me", time.Now(), time.Minute)
		require.NoError(t, mem.Set(ctx, first))

		second := first
		second.Value = []byte(`{"v":2}`)
		require.NoError(t, mem.Set(ctx, second))

		got, ok, _ := mem.Get(ctx, "replace-me")
		require.True(t, ok)
		assert.Equal(t, []byte(`{"v":2}`), got.Value)
	})
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0, nil)

	entry := makeEntry("doomed", time.Now(), time.Minute)
	require.NoError(t, mem.Set(ctx, entry))
	require.NoError(t, mem.Delete(ctx, "doomed"))

	_, ok, err := mem.Get(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	require.NoError(t, mem.Delete(ctx, "doomed"))
}

func TestMemoryDeleteFunc(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0, nil)

	now := time.Now()
	require.NoError(t, mem.Set(ctx, makeEntry("user:1-feed", now, time.Minute)))
	require.NoError(t, mem.Set(ctx, makeEntry("user:1-notifications", now, time.Minute)))
	require.NoError(t, mem.Set(ctx, makeEntry("user:2-feed", now, time.Minute)))

	removed, err := mem.DeleteFunc(ctx, func(e Entry) bool {
		return len(e.Key) >= 6 && e.Key[:6] == "user:1"
	})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, _ := mem.Get(ctx, "user:2-feed")
	assert.True(t, ok)
}

func TestMemoryEvictsGloballyOldest(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(3, nil)

	base := time.Now()
	oldest := makeEntry("oldest", base.Add(-3*time.Minute), time.Hour)
	require.NoError(t, mem.Set(ctx, oldest))
	require.NoError(t, mem.Set(ctx, makeEntry("middle", base.Add(-2*time.Minute), time.Hour)))
	require.NoError(t, mem.Set(ctx, makeEntry("newest", base.Add(-time.Minute), time.Hour)))

	// At capacity: the next insert evicts by oldest StoredAt, regardless of
	// which key was touched most recently.
	_, _, _ = mem.Get(ctx, "oldest")
	require.NoError(t, mem.Set(ctx, makeEntry("overflow", base, time.Hour)))

	_, ok, _ := mem.Get(ctx, "oldest")
	assert.False(t, ok, "globally oldest entry should have been evicted")

	for _, key := range []string{"middle", "newest", "overflow"} {
		_, ok, _ := mem.Get(ctx, key)
		assert.True(t, ok, "key %s should survive", key)
	}

	assert.Equal(t, int64(1), mem.Stats().Evictions)
}

func TestMemoryEntriesSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, mem.Set(ctx, makeEntry(fmt.Sprintf("key-%d", i), time.Now(), time.Minute)))
	}

	seen := 0
	err := mem.Entries(ctx, func(e Entry) bool {
		seen++
		// Mutating during iteration must not deadlock.
		return mem.Delete(ctx, e.Key) == nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
	assert.Equal(t, 0, mem.Stats().Entries)
}
