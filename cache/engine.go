package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pulsefeed-cache/cache/store"
	appErrors "pulsefeed-cache/pkg/errors"
	"pulsefeed-cache/pkg/observability"
)

// FetchFunc performs the externally-expensive operation on a cache miss.
// Retry policy belongs to the function itself or its caller; the engine
// never retries.
type FetchFunc func(ctx context.Context) ([]byte, error)

// FetchOptions control a single Fetch call.
type FetchOptions struct {
	// TTL for the fetched value; the engine's default applies when zero.
	TTL time.Duration

	// Kind is the explicit type tag stored with the entry ("tweets",
	// "notifications", ...). PatchCollections selects entries by it.
	Kind string

	// ForceRefresh skips the fresh-read step and always fetches. Throttling
	// of manual refreshes is the caller's policy, layered on top by tracking
	// last-refresh timestamps; the engine only exposes the switch.
	ForceRefresh bool
}

// Engine is the cache-aside orchestrator: given a key and a fetch function
// it returns cached data or executes a coalesced fetch, then populates all
// tiers. One engine instance owns its tiers, its in-flight request state and
// its janitor; construct one per process (or per test) and inject it into
// callers.
type Engine struct {
	cfg       Config
	memory    *store.Memory
	chain     *TierChain
	overrides *Overrides
	flights   singleflight.Group
	janitor   *Janitor
	logger    *zap.Logger
	metrics   *observability.Collector
}

// New builds an engine over the given tiers, cheapest first. The engine
// constructs and owns its memory tier, bounded to cfg.MemoryMaxEntries;
// persistent and shared may be nil when a deployment lacks them. Reads
// served by the persistent tier are reconciled against count overrides
// before use. The janitor is not started; call StartJanitor.
func New(cfg Config, persistent, shared store.Store, logger *zap.Logger, metrics *observability.Collector) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("namespace", cfg.Namespace))

	overrides := NewOverrides()
	memory := store.NewMemory(cfg.MemoryMaxEntries, logger)

	tiers := []store.Store{memory}
	if persistent != nil {
		tiers = append(tiers, &reconcilingStore{Store: persistent, overrides: overrides})
	}
	if shared != nil {
		tiers = append(tiers, shared)
	}

	chain := NewTierChain(tiers, logger, metrics)

	return &Engine{
		cfg:       cfg,
		memory:    memory,
		chain:     chain,
		overrides: overrides,
		janitor:   NewJanitor(memory, cfg.JanitorInterval, logger, metrics),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Chain exposes the engine's tier chain.
func (e *Engine) Chain() *TierChain {
	return e.chain
}

// Memory exposes the engine-owned memory tier, for statistics.
func (e *Engine) Memory() *store.Memory {
	return e.memory
}

// Overrides exposes the engine's count override set.
func (e *Engine) Overrides() *Overrides {
	return e.overrides
}

// StartJanitor begins the recurring memory tier sweep.
func (e *Engine) StartJanitor() {
	e.janitor.Start()
}

// Close stops the janitor and closes every tier.
func (e *Engine) Close() error {
	e.janitor.Stop()

	var firstErr error
	for _, tier := range e.chain.Tiers() {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Fetch returns cached data for key or executes fn and populates all tiers.
//
// Concurrent calls for the same key are coalesced: fn runs at most once, and
// every waiter receives the same value or the same error as the caller that
// initiated the fetch. On fetch failure the engine degrades to any cached
// value regardless of expiry before giving up with a FETCH_FAILED error.
func (e *Engine) Fetch(ctx context.Context, key string, fn FetchFunc, opt FetchOptions) ([]byte, error) {
	if opt.TTL <= 0 {
		opt.TTL = e.cfg.DefaultTTL
	}

	v, err, shared := e.flights.Do(key, func() (any, error) {
		// The fetch runs to completion even if the initiating caller goes
		// away, so its value is cached for the next caller.
		return e.fetchOnce(context.WithoutCancel(ctx), key, fn, opt)
	})
	if shared {
		e.metrics.RecordCoalescedWait()
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (e *Engine) fetchOnce(ctx context.Context, key string, fn FetchFunc, opt FetchOptions) ([]byte, error) {
	if !opt.ForceRefresh {
		if entry, ok := e.chain.ReadFresh(ctx, key); ok {
			return entry.Value, nil
		}
	}

	value, fetchErr := fn(ctx)
	if fetchErr == nil {
		e.metrics.RecordFetch("success")

		now := time.Now()
		e.chain.WriteAll(ctx, store.Entry{
			Key:       key,
			Value:     value,
			Kind:      opt.Kind,
			StoredAt:  now,
			ExpiresAt: now.Add(opt.TTL),
		})
		return value, nil
	}

	e.metrics.RecordFetch("failure")

	// Degrade to any cached value, fresh or expired, before giving up.
	if entry, ok := e.chain.ReadStale(ctx, key); ok {
		e.metrics.RecordStaleFallback()
		e.logger.Warn("Fetch failed, serving stale cached value",
			zap.String("key", key),
			zap.Time("expired_at", entry.ExpiresAt),
			zap.Error(fetchErr),
		)
		return entry.Value, nil
	}

	return nil, appErrors.NewFetchFailed(key, fetchErr)
}

// Invalidate removes the key from every tier.
func (e *Engine) Invalidate(ctx context.Context, key string) {
	e.chain.Delete(ctx, key)
}

// InvalidatePrefix removes every key with the given prefix from every tier,
// e.g. everything cached for one user.
func (e *Engine) InvalidatePrefix(ctx context.Context, prefix string) {
	e.chain.DeletePrefix(ctx, prefix)
}
