package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulsefeed-cache/cache/store"
	"pulsefeed-cache/pkg/observability"
)

// Janitor is a recurring sweep that evicts expired entries from the memory
// tier, bounding how long evicted junk can linger there. The persistent and
// shared tiers are deliberately untouched: the chain filters them lazily at
// read time, and the shared table is swept by an external cleanup job.
type Janitor struct {
	tier     store.Store
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Collector

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewJanitor creates a janitor over the given tier. It does not start
// sweeping until Start is called.
func NewJanitor(tier store.Store, interval time.Duration, logger *zap.Logger, metrics *observability.Collector) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		tier:     tier,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the background sweep loop. Calling Start on a running
// janitor is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stop != nil {
		return
	}
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Sweep(context.Background())
			case <-stop:
				return
			}
		}
	}(j.stop, j.done)
}

// Stop halts the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stop == nil {
		return
	}
	close(j.stop)
	<-j.done
	j.stop = nil
	j.done = nil
}

// Sweep deletes every expired entry from the tier once and returns how many
// were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	now := time.Now()

	removed, err := j.tier.DeleteFunc(ctx, func(e store.Entry) bool {
		return !e.Fresh(now)
	})
	if err != nil {
		j.metrics.RecordTierError(j.tier.Name(), "sweep")
		j.logger.Warn("Janitor sweep failed",
			zap.String("tier", j.tier.Name()),
			zap.Error(err),
		)
		return removed
	}

	if removed > 0 {
		j.metrics.RecordEvictions(j.tier.Name(), removed)
		j.logger.Debug("Swept expired entries",
			zap.String("tier", j.tier.Name()),
			zap.Int("count", removed),
		)
	}
	return removed
}
