package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"pulsefeed-cache/cache/store"
)

// counterFields are the mutable per-record counters collections carry.
var counterFields = []string{"reply_count", "like_count", "repost_count", "bookmark_count"}

// CountOverride is a counter snapshot newer than what a stale cached
// collection may embed. It is written whenever a partial mutation changes a
// counter, keyed by record id, so collections that were not resident when
// the patch ran still reconcile to the latest counts on later reads.
type CountOverride struct {
	RecordID  string
	Counts    map[string]int64
	UpdatedAt time.Time
}

// Overrides is the process-wide set of count overrides, owned by one engine
// instance.
type Overrides struct {
	mu   sync.RWMutex
	byID map[string]CountOverride
}

// NewOverrides creates an empty override set.
func NewOverrides() *Overrides {
	return &Overrides{byID: make(map[string]CountOverride)}
}

// Record stores a counter snapshot for the record, replacing any older one.
func (o *Overrides) Record(recordID string, counts map[string]int64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.byID[recordID]; ok && existing.UpdatedAt.After(at) {
		return
	}
	o.byID[recordID] = CountOverride{
		RecordID:  recordID,
		Counts:    counts,
		UpdatedAt: at,
	}
}

// Lookup returns the override for the record, if any.
func (o *Overrides) Lookup(recordID string) (CountOverride, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ov, ok := o.byID[recordID]
	return ov, ok
}

// Reconcile rewrites an entry's collection records whose counters have a
// newer override than the entry itself: the override's counts win only when
// it postdates the entry's StoredAt, otherwise the record's own data is
// kept. Entries that are not collections pass through untouched.
func (o *Overrides) Reconcile(entry store.Entry) store.Entry {
	var records []map[string]any
	if err := json.Unmarshal(entry.Value, &records); err != nil {
		return entry
	}

	changed := false
	for _, record := range records {
		id, ok := recordIdentity(record)
		if !ok {
			continue
		}

		ov, ok := o.Lookup(id)
		if !ok || !ov.UpdatedAt.After(entry.StoredAt) {
			continue
		}

		for field, count := range ov.Counts {
			record[field] = count
		}
		changed = true
	}
	if !changed {
		return entry
	}

	value, err := json.Marshal(records)
	if err != nil {
		return entry
	}

	entry.Value = value
	return entry
}

// recordIdentity extracts a record's id as a string. Numeric ids are
// stringified without an exponent so "5" matches 5.
func recordIdentity(record map[string]any) (string, bool) {
	raw, ok := record["id"]
	if !ok {
		return "", false
	}

	switch id := raw.(type) {
	case string:
		return id, true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

// reconcilingStore decorates the persistent tier so every read passes
// through counter reconciliation before the chain sees it.
type reconcilingStore struct {
	store.Store
	overrides *Overrides
}

func (s *reconcilingStore) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	entry, ok, err := s.Store.Get(ctx, key)
	if err != nil || !ok {
		return entry, ok, err
	}
	return s.overrides.Reconcile(entry), true, nil
}

func (s *reconcilingStore) Entries(ctx context.Context, fn func(store.Entry) bool) error {
	return s.Store.Entries(ctx, func(entry store.Entry) bool {
		return fn(s.overrides.Reconcile(entry))
	})
}
