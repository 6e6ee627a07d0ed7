package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"pulsefeed-cache/cache/store"
	"pulsefeed-cache/pkg/observability"
)

// TierChain orders the entry stores from cheapest to most expensive and
// implements the read-through / write-through policy across them.
//
// Tier-level failures never escape the chain: a failing tier is logged and
// treated as absent. Tiers may transiently disagree; no write is rolled back
// because a sibling tier failed.
type TierChain struct {
	tiers   []store.Store
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewTierChain builds a chain over the given stores, cheapest first.
func NewTierChain(tiers []store.Store, logger *zap.Logger, metrics *observability.Collector) *TierChain {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TierChain{
		tiers:   tiers,
		logger:  logger,
		metrics: metrics,
	}
}

// Tiers returns the chain's stores, cheapest first.
func (c *TierChain) Tiers() []store.Store {
	return c.tiers
}

// ReadFresh probes the tiers in order and returns the first entry that is
// still within its TTL. The hit is promoted into every cheaper tier with its
// remaining TTL intact -- promotion copies the entry verbatim, it never
// restarts the TTL clock. Expired entries are treated as absent; they stay
// in place for the stale path.
func (c *TierChain) ReadFresh(ctx context.Context, key string) (store.Entry, bool) {
	now := time.Now()

	for i, tier := range c.tiers {
		entry, ok, err := tier.Get(ctx, key)
		if err != nil {
			c.swallow(tier, "get", key, err)
			continue
		}
		if !ok || !entry.Fresh(now) {
			continue
		}

		c.metrics.RecordHit(tier.Name())
		c.promote(ctx, entry, i)
		return entry, true
	}

	c.metrics.RecordMiss()
	return store.Entry{}, false
}

// ReadStale probes the tiers in order and returns the first entry found,
// fresh or expired. Used only by the fetch-failure path. It does not
// promote: a stale value must not pollute faster tiers as if it were fresh.
func (c *TierChain) ReadStale(ctx context.Context, key string) (store.Entry, bool) {
	for _, tier := range c.tiers {
		entry, ok, err := tier.Get(ctx, key)
		if err != nil {
			c.swallow(tier, "get", key, err)
			continue
		}
		if ok {
			return entry, true
		}
	}
	return store.Entry{}, false
}

// WriteAll writes the entry to every tier. Failures are independent and do
// not roll back other tiers.
func (c *TierChain) WriteAll(ctx context.Context, entry store.Entry) {
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, entry); err != nil {
			c.swallow(tier, "set", entry.Key, err)
		}
	}
}

// Delete removes the key from every tier.
func (c *TierChain) Delete(ctx context.Context, key string) {
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			c.swallow(tier, "delete", key, err)
		}
	}
}

// DeletePrefix removes every entry whose key starts with prefix from every
// tier, e.g. clearing all of one user's cached feeds at once.
func (c *TierChain) DeletePrefix(ctx context.Context, prefix string) {
	for _, tier := range c.tiers {
		// The shared tier can do this in a single backend call.
		if pd, ok := tier.(interface {
			DeletePrefix(ctx context.Context, prefix string) error
		}); ok {
			if err := pd.DeletePrefix(ctx, prefix); err != nil {
				c.swallow(tier, "delete_prefix", prefix, err)
			}
			continue
		}

		_, err := tier.DeleteFunc(ctx, func(e store.Entry) bool {
			return strings.HasPrefix(e.Key, prefix)
		})
		if err != nil {
			c.swallow(tier, "delete_prefix", prefix, err)
		}
	}
}

// promote copies the entry into every tier cheaper than the one it was found
// in.
func (c *TierChain) promote(ctx context.Context, entry store.Entry, foundAt int) {
	for i := 0; i < foundAt; i++ {
		if err := c.tiers[i].Set(ctx, entry); err != nil {
			c.swallow(c.tiers[i], "promote", entry.Key, err)
		}
	}
}

func (c *TierChain) swallow(tier store.Store, op, key string, err error) {
	c.metrics.RecordTierError(tier.Name(), op)
	c.logger.Warn("Tier operation failed, treating tier as absent",
		zap.String("tier", tier.Name()),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
