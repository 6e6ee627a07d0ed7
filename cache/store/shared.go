package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "pulsefeed-cache/pkg/errors"
)

// cacheRow is the shared tier's row shape. An expired row may physically
// persist until an external cleanup sweeps the table; its presence is never
// trusted as freshness.
type cacheRow struct {
	CacheKey  string          `json:"cache_key"`
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// sharedEnvelope is what the row's data column carries: the payload plus the
// write timestamp and type tag the row schema has no columns for.
type sharedEnvelope struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
	Kind     string          `json:"kind,omitempty"`
}

// rowClient is the minimal surface the shared tier needs from its backend.
// The production implementation talks to a Supabase table; tests substitute
// an in-memory fake.
type rowClient interface {
	SelectByKey(ctx context.Context, key string) ([]cacheRow, error)
	Insert(ctx context.Context, row cacheRow) error
	DeleteByKey(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	List(ctx context.Context) ([]cacheRow, error)
}

// BreakerConfig holds circuit breaker settings for the shared tier.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default breaker settings for the shared
// tier's backend calls.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Shared is the tier visible to every client, backed by a durable row store.
//
// A write is delete-if-exists then insert, not an upsert: two writers racing
// on the same key may both succeed and the last write wins. No stronger
// guarantee is offered.
//
// Every backend call runs through a circuit breaker so a dead backend
// degrades to "tier absent" quickly instead of timing out every read.
type Shared struct {
	rows    rowClient
	source  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewShared creates a shared tier over the given row client. The source tag
// is recorded on every written row as free-form provenance.
func NewShared(rows rowClient, source string, breakerCfg BreakerConfig, logger *zap.Logger) *Shared {
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerCfg.Name,
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip once there are enough requests to judge.
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerCfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Shared tier circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Shared{
		rows:    rows,
		source:  source,
		breaker: cb,
		logger:  logger,
	}
}

func (s *Shared) Name() string { return "shared" }

// Get returns the entry for key, expired or not.
func (s *Shared) Get(ctx context.Context, key string) (Entry, bool, error) {
	var rows []cacheRow
	err := s.execute(func() error {
		var err error
		rows, err = s.rows.SelectByKey(ctx, key)
		return err
	})
	if err != nil {
		return Entry{}, false, appErrors.NewTierIO("shared", "read entry", err)
	}
	if len(rows) == 0 {
		return Entry{}, false, nil
	}

	entry, ok := s.fromRow(rows[0])
	if !ok {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set writes the entry as delete-if-exists then insert.
func (s *Shared) Set(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(sharedEnvelope{
		Payload:  entry.Value,
		StoredAt: entry.StoredAt,
		Kind:     entry.Kind,
	})
	if err != nil {
		return appErrors.NewTierIO("shared", "serialize entry", err)
	}

	row := cacheRow{
		CacheKey:  entry.Key,
		Data:      data,
		Source:    s.source,
		ExpiresAt: entry.ExpiresAt,
	}

	err = s.execute(func() error {
		if err := s.rows.DeleteByKey(ctx, entry.Key); err != nil {
			return err
		}
		return s.rows.Insert(ctx, row)
	})
	if err != nil {
		return appErrors.NewTierIO("shared", "write entry", err)
	}

	return nil
}

// Delete removes the row for key.
func (s *Shared) Delete(ctx context.Context, key string) error {
	err := s.execute(func() error {
		return s.rows.DeleteByKey(ctx, key)
	})
	if err != nil {
		return appErrors.NewTierIO("shared", "delete entry", err)
	}
	return nil
}

// DeleteFunc removes every entry the predicate matches. The backend only
// supports deletion by exact key, so rows are listed and removed one by one.
func (s *Shared) DeleteFunc(ctx context.Context, pred func(Entry) bool) (int, error) {
	removed := 0

	err := s.execute(func() error {
		rows, err := s.rows.List(ctx)
		if err != nil {
			return err
		}

		for _, row := range rows {
			entry, ok := s.fromRow(row)
			if !ok || !pred(entry) {
				continue
			}
			if err := s.rows.DeleteByKey(ctx, entry.Key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, appErrors.NewTierIO("shared", "delete entries", err)
	}

	return removed, nil
}

// DeletePrefix removes every row whose cache_key starts with prefix in one
// backend call. Used by bulk invalidation ("clear everything for this user").
func (s *Shared) DeletePrefix(ctx context.Context, prefix string) error {
	err := s.execute(func() error {
		return s.rows.DeleteByPrefix(ctx, prefix)
	})
	if err != nil {
		return appErrors.NewTierIO("shared", "delete by prefix", err)
	}
	return nil
}

// Entries calls fn for each stored row until fn returns false.
func (s *Shared) Entries(ctx context.Context, fn func(Entry) bool) error {
	var rows []cacheRow
	err := s.execute(func() error {
		var err error
		rows, err = s.rows.List(ctx)
		return err
	})
	if err != nil {
		return appErrors.NewTierIO("shared", "iterate entries", err)
	}

	for _, row := range rows {
		entry, ok := s.fromRow(row)
		if !ok {
			continue
		}
		if !fn(entry) {
			return nil
		}
	}
	return nil
}

// Close is a no-op: the row client owns its connections.
func (s *Shared) Close() error { return nil }

func (s *Shared) execute(op func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, op()
	})
	return err
}

func (s *Shared) fromRow(row cacheRow) (Entry, bool) {
	var env sharedEnvelope
	if err := json.Unmarshal(row.Data, &env); err != nil {
		s.logger.Warn("Skipping undecodable shared row",
			zap.String("cache_key", row.CacheKey),
			zap.Error(err),
		)
		return Entry{}, false
	}

	stored := env.StoredAt
	if stored.IsZero() {
		stored = row.ExpiresAt
	}

	return Entry{
		Key:       row.CacheKey,
		Value:     []byte(env.Payload),
		Kind:      env.Kind,
		StoredAt:  stored,
		ExpiresAt: row.ExpiresAt,
	}, true
}
