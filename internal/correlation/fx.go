package correlation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("correlation",
	fx.Provide(NewStore),
	fx.Invoke(RunSweeper),
)

// NewStore selects the backing implementation from configuration.
func NewStore(cfg config.Config, clk clock.Clock, log *zap.Logger) Store {
	ttl := cfg.CorrelationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if cfg.CorrelationBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("correlation store backed by redis", zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(client, ttl, clk)
	}
	return NewMemoryStore(ttl, clk)
}

// RunSweeper evicts expired entries on an interval and keeps the
// correlation gauge current.
func RunSweeper(lc fx.Lifecycle, cfg config.Config, store Store, log *zap.Logger) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	log = log.Named("correlation.sweeper")

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						sweepOnce(ctx, store, log)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func sweepOnce(ctx context.Context, store Store, log *zap.Logger) {
	removed, err := store.Sweep(ctx)
	if err != nil {
		log.Warn("sweep failed", zap.Error(err))
		return
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		log.Warn("stats failed", zap.Error(err))
		return
	}
	metrics.Default().SetCorrelationEntries(stats.Count)
	if removed > 0 {
		log.Info("swept expired correlation entries",
			zap.Int("removed", removed),
			zap.Int("remaining", stats.Count),
		)
	}
}
