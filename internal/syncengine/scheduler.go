package syncengine

import (
	"context"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/observability/metrics"
	"go.uber.org/zap"
)

// runTick executes one bounded sync pass and records its outcome.
func (e *Engine) runTick(parent context.Context) {
	start := e.clock.Now()
	ctx, cancel := context.WithTimeout(parent, e.tickTimeout())
	defer cancel()

	metrics.Default().IncSyncRun()
	results, err := e.RunOnce(ctx)
	metrics.Default().ObserveSyncDuration(time.Since(start))
	if err != nil {
		e.log.Warn("sync run failed", zap.Error(err))
		return
	}

	var fetched, cached, skipped, failed int
	for _, result := range results {
		fetched += result.Fetched
		cached += result.Cached
		skipped += result.Skipped
		if result.Err != nil {
			failed++
		}
	}
	e.log.Info("sync run finished",
		zap.Int("tenants", len(results)),
		zap.Int("fetched", fetched),
		zap.Int("cached", cached),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
}

// RunForever ticks until the context is canceled.
func (e *Engine) RunForever(ctx context.Context) {
	interval := e.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.runTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) interval() time.Duration {
	if e.cfg.SyncInterval > 0 {
		return e.cfg.SyncInterval
	}
	return 5 * time.Minute
}

func (e *Engine) tickTimeout() time.Duration {
	// A tick may not outlive the interval; the next one would pile up
	// behind it.
	return e.interval()
}
