package main

import (
	"context"
	"log/slog"
	"time"

	"cdigit/internal/platform/config"
	"cdigit/internal/platform/metrics"
	"cdigit/internal/ratelimit"
	"cdigit/pkg/platform/circuit"
)

// newRateLimit shares buckets across replicas through Redis when the store
// runs on Redis and keeps them in memory otherwise. In-memory buckets are
// swept until ctx ends.
func newRateLimit(ctx context.Context, cfg *config.Config, be *backend, log *slog.Logger, m *metrics.Metrics) *ratelimit.Middleware {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NewMiddleware(nil, log, ratelimit.WithDisabled(true))
	}

	local := ratelimit.NewMemoryStore()
	go sweep(ctx, local, rl.Window)

	opts := []ratelimit.Option{
		ratelimit.WithLimit(ratelimit.ClassRead, ratelimit.Limit{Requests: rl.ReadRequests, Window: rl.Window}),
		ratelimit.WithLimit(ratelimit.ClassWrite, ratelimit.Limit{Requests: rl.WriteRequests, Window: rl.Window}),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
	}

	var primary ratelimit.Store = local
	if be.redis != nil {
		primary = ratelimit.NewRedisStore(be.redis, ratelimit.WithRedisKeyPrefix(cfg.Redis.KeyPrefix))
		opts = append(opts,
			ratelimit.WithFallback(local),
			ratelimit.WithBreaker(circuit.New("rate-limit-redis",
				circuit.WithFailureThreshold(5),
				circuit.WithSuccessThreshold(3),
			)),
		)
	}
	log.Info("rate limiting enabled",
		"window", rl.Window,
		"read_requests", rl.ReadRequests,
		"write_requests", rl.WriteRequests,
		"shared", be.redis != nil,
	)
	return ratelimit.NewMiddleware(ratelimit.NewLimiter(primary, opts...), log)
}

func sweep(ctx context.Context, store *ratelimit.MemoryStore, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep(window)
		}
	}
}
