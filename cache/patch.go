package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"pulsefeed-cache/cache/store"
)

// UpdaterFunc rewrites one collection record in place. It receives the
// decoded record and returns the replacement; returning the input unchanged
// leaves the record as-is.
type UpdaterFunc func(record map[string]any) map[string]any

// PatchCollections applies an in-place update to every cached collection
// record matching recordID, across every tier, without invalidating the
// rest of the collection.
//
// An entry is patched when its kind matches, matchKey accepts its key, and
// its value is a JSON array. Patched entries keep their original StoredAt
// and ExpiresAt -- a partial patch does not refresh the TTL clock -- and no
// entry is created that did not already exist in that tier.
//
// When the updater changes any counter field, a count override stamped now
// is recorded, so collections that were not resident when the patch ran
// still reconcile to the new counts on later persistent-tier reads.
func (e *Engine) PatchCollections(ctx context.Context, kind string, matchKey func(string) bool, recordID string, updater UpdaterFunc) {
	now := time.Now()
	patchedAny := false

	for _, tier := range e.chain.Tiers() {
		var candidates []store.Entry

		err := tier.Entries(ctx, func(entry store.Entry) bool {
			if entry.Kind == kind && matchKey(entry.Key) {
				candidates = append(candidates, entry)
			}
			return true
		})
		if err != nil {
			e.metrics.RecordTierError(tier.Name(), "patch_scan")
			e.logger.Warn("Skipping tier during collection patch",
				zap.String("tier", tier.Name()),
				zap.Error(err),
			)
			continue
		}

		for _, entry := range candidates {
			patched, counts, ok := e.patchEntry(entry, recordID, updater)
			if !ok {
				continue
			}

			if err := tier.Set(ctx, patched); err != nil {
				e.metrics.RecordTierError(tier.Name(), "patch_write")
				e.logger.Warn("Failed to write patched collection",
					zap.String("tier", tier.Name()),
					zap.String("key", entry.Key),
					zap.Error(err),
				)
				continue
			}

			patchedAny = true
			if counts != nil {
				e.overrides.Record(recordID, counts, now)
			}
		}
	}

	if !patchedAny {
		e.logger.Debug("No resident collection contained the record",
			zap.String("kind", kind),
			zap.String("record_id", recordID),
		)
	}
}

// patchEntry applies the updater to the matching records of one entry.
// It returns the rewritten entry, the changed counter snapshot (nil when no
// counter moved), and whether anything changed at all.
func (e *Engine) patchEntry(entry store.Entry, recordID string, updater UpdaterFunc) (store.Entry, map[string]int64, bool) {
	var records []map[string]any
	if err := json.Unmarshal(entry.Value, &records); err != nil {
		// Not a collection; single-object entries are never patched.
		return store.Entry{}, nil, false
	}

	var counts map[string]int64
	changed := false

	for i, record := range records {
		id, ok := recordIdentity(record)
		if !ok || id != recordID {
			continue
		}

		before := snapshotCounters(record)
		updated := updater(record)
		if updated == nil {
			continue
		}
		records[i] = updated
		changed = true

		after := snapshotCounters(updated)
		for _, field := range counterFields {
			if before[field] != after[field] {
				counts = after
				break
			}
		}
	}
	if !changed {
		return store.Entry{}, nil, false
	}

	value, err := json.Marshal(records)
	if err != nil {
		e.logger.Warn("Failed to re-encode patched collection",
			zap.String("key", entry.Key),
			zap.Error(err),
		)
		return store.Entry{}, nil, false
	}

	// StoredAt and ExpiresAt are carried over untouched.
	entry.Value = value
	return entry, counts, true
}

// snapshotCounters extracts the known counter fields from a record. Decoded
// JSON carries counters as float64, but updaters are free to write plain
// ints, so every integral shape is accepted.
func snapshotCounters(record map[string]any) map[string]int64 {
	counts := make(map[string]int64, len(counterFields))
	for _, field := range counterFields {
		if v, ok := counterValue(record[field]); ok {
			counts[field] = v
		}
	}
	return counts
}

func counterValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
