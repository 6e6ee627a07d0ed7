package store

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func rawBucketValue(t *testing.T, p *Persistent, key string) []byte {
	t.Helper()

	var raw []byte
	require.NoError(t, p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte("pulsefeed")).Get([]byte(key)); v != nil {
			raw = bytes.Clone(v)
		}
		return nil
	}))
	return raw
}

func newPersistent(t *testing.T) (*Persistent, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cache.db")
	p, err := NewPersistent(path, "pulsefeed", nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, path
}

func TestPersistentRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersistent(t)

	entry := Entry{
		Key:       "home-feed-limit:10",
		Value:     []byte(`[{"id":"1","like_count":3}]`),
		Kind:      "tweets",
		StoredAt:  time.Now().Truncate(time.Millisecond),
		ExpiresAt: time.Now().Add(time.Minute).Truncate(time.Millisecond),
	}
	require.NoError(t, p.Set(ctx, entry))

	got, ok, err := p.Get(ctx, entry.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(entry.Value), string(got.Value))
	assert.Equal(t, "tweets", got.Kind)
	assert.True(t, got.ExpiresAt.Equal(entry.ExpiresAt))
	assert.True(t, got.StoredAt.Equal(entry.StoredAt))

	_, ok, err = p.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistentSurvivesReopen(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.db")
	p, err := NewPersistent(path, "pulsefeed", nil)
	require.NoError(t, err)

	entry := Entry{
		Key:       "profile-user:42",
		Value:     []byte(`{"handle":"ada"}`),
		StoredAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, p.Set(ctx, entry))
	require.NoError(t, p.Close())

	reopened, err := NewPersistent(path, "pulsefeed", nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "profile-user:42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"handle":"ada"}`, string(got.Value))
}

func TestPersistentEnvelope(t *testing.T) {
	// The on-disk format is the {data, expires} JSON envelope under a
	// namespaced "<namespace>-cache-" key.
	ctx := context.Background()
	p, _ := newPersistent(t)

	entry := Entry{
		Key:       "markets-symbol:BTC",
		Value:     []byte(`{"price":100}`),
		Kind:      "markets",
		StoredAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, p.Set(ctx, entry))

	raw := rawBucketValue(t, p, "pulsefeed-cache-markets-symbol:BTC")
	require.NotNil(t, raw)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Contains(t, env, "data")
	assert.Contains(t, env, "expires")
}

func TestPersistentDeleteFunc(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersistent(t)

	now := time.Now()
	fresh := Entry{Key: "fresh", Value: []byte(`1`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := Entry{Key: "expired", Value: []byte(`2`), StoredAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, p.Set(ctx, fresh))
	require.NoError(t, p.Set(ctx, expired))

	removed, err := p.DeleteFunc(ctx, func(e Entry) bool {
		return !e.Fresh(now)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, _ := p.Get(ctx, "fresh")
	assert.True(t, ok)
	_, ok, _ = p.Get(ctx, "expired")
	assert.False(t, ok)
}

func TestPersistentEntries(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersistent(t)

	now := time.Now()
	require.NoError(t, p.Set(ctx, Entry{Key: "a", Value: []byte(`1`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, p.Set(ctx, Entry{Key: "b", Value: []byte(`2`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}))

	keys := map[string]bool{}
	require.NoError(t, p.Entries(ctx, func(e Entry) bool {
		keys[e.Key] = true
		return true
	}))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, keys)

	// Early termination.
	seen := 0
	require.NoError(t, p.Entries(ctx, func(e Entry) bool {
		seen++
		return false
	}))
	assert.Equal(t, 1, seen)
}
