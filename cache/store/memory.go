package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is the process-local, volatile tier. It is bounded by entry count:
// at capacity it evicts the entry with the globally oldest StoredAt, not the
// least recently used one. Thread-safe.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int

	// Statistics
	hits      int64
	misses    int64
	evictions int64

	logger *zap.Logger
}

// MemoryStats holds memory tier statistics.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// NewMemory creates an in-process store bounded to maxEntries entries.
// A maxEntries of zero or less means unbounded.
func NewMemory(maxEntries int, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Memory{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		logger:     logger,
	}
}

func (m *Memory) Name() string { return "memory" }

// Get returns the entry for key, expired or not. Freshness filtering is the
// tier chain's job.
func (m *Memory) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.misses++
		return Entry{}, false, nil
	}

	m.hits++
	return entry, true, nil
}

// Set stores the entry, evicting the oldest entry first when at capacity.
func (m *Memory) Set(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Replacing an existing key never needs an eviction.
	if _, exists := m.entries[entry.Key]; !exists {
		for m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
			m.evictOldest()
		}
	}

	m.entries[entry.Key] = entry
	return nil
}

// Delete removes the entry for key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// DeleteFunc removes every entry the predicate matches.
func (m *Memory) DeleteFunc(ctx context.Context, pred func(Entry) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if pred(entry) {
			delete(m.entries, key)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("Removed memory entries",
			zap.Int("count", removed),
		)
	}

	return removed, nil
}

// Entries iterates over a snapshot of the stored entries, so fn may call
// back into the store without deadlocking.
func (m *Memory) Entries(ctx context.Context, fn func(Entry) bool) error {
	m.mu.Lock()
	snapshot := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		snapshot = append(snapshot, entry)
	}
	m.mu.Unlock()

	for _, entry := range snapshot {
		if !fn(entry) {
			return nil
		}
	}
	return nil
}

// Stats returns cache statistics for this tier.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Entries:   len(m.entries),
	}
}

// Close is a no-op for the memory tier.
func (m *Memory) Close() error { return nil }

// evictOldest removes the entry with the oldest StoredAt (must be called
// with the lock held).
func (m *Memory) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)

	for key, entry := range m.entries {
		if !found || entry.StoredAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.StoredAt
			found = true
		}
	}
	if !found {
		return
	}

	delete(m.entries, oldestKey)
	m.evictions++

	m.logger.Debug("Evicted oldest memory entry",
		zap.String("key", oldestKey),
		zap.Time("stored_at", oldestAt),
	)
}
