package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed-cache/cache/store"
)

func TestJanitorSweep(t *testing.T) {
	ctx := context.Background()

	memory := store.NewMemory(0, nil)
	persistent := store.NewMemory(0, nil)
	janitor := NewJanitor(memory, time.Minute, nil, nil)

	now := time.Now()
	expired := store.Entry{Key: "expired", Value: []byte(`1`), StoredAt: now, ExpiresAt: now}
	fresh := store.Entry{Key: "fresh", Value: []byte(`2`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, memory.Set(ctx, expired))
	require.NoError(t, memory.Set(ctx, fresh))
	require.NoError(t, persistent.Set(ctx, expired))

	removed := janitor.Sweep(ctx)
	assert.Equal(t, 1, removed)

	_, ok, _ := memory.Get(ctx, "expired")
	assert.False(t, ok, "a ttl=0 entry must be gone after one sweep cycle")
	_, ok, _ = memory.Get(ctx, "fresh")
	assert.True(t, ok)

	// The sweep covers the memory tier only; other tiers keep their expired
	// entries until their own lazy or external cleanup.
	_, ok, _ = persistent.Get(ctx, "expired")
	assert.True(t, ok)
}

func TestJanitorStartStop(t *testing.T) {
	ctx := context.Background()

	memory := store.NewMemory(0, nil)
	janitor := NewJanitor(memory, 10*time.Millisecond, nil, nil)

	now := time.Now()
	require.NoError(t, memory.Set(ctx, store.Entry{Key: "expired", Value: []byte(`1`), StoredAt: now, ExpiresAt: now}))

	janitor.Start()
	janitor.Start() // second Start is a no-op

	assert.Eventually(t, func() bool {
		_, ok, _ := memory.Get(ctx, "expired")
		return !ok
	}, time.Second, 10*time.Millisecond)

	janitor.Stop()
	janitor.Stop() // second Stop is a no-op
}
