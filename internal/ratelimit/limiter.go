package ratelimit

import (
	"context"
	"log/slog"

	"cdigit/internal/platform/metrics"
	"cdigit/pkg/platform/circuit"
)

// Limiter applies per-class limits against a primary store. When the
// primary keeps failing the breaker opens and checks run against the
// in-memory fallback until it recovers.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[Class]Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

// WithLimit sets the budget for class. A non-positive request count leaves
// the class unthrottled.
func WithLimit(class Class, limit Limit) Option {
	return func(l *Limiter) { l.limits[class] = limit }
}

// WithFallback sets the store used while the primary is unavailable.
func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) { l.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func NewLimiter(primary Store, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		limits:  make(map[Class]Limit),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil && l.fallback != nil {
		l.breaker = circuit.New("rate-limit-store")
	}
	return l
}

// Check consumes one request from key's bucket. degraded reports that the
// answer came from the fallback store. A nil result means the class has no
// limit.
func (l *Limiter) Check(ctx context.Context, key string, class Class) (result *Result, degraded bool, err error) {
	limit, ok := l.limits[class]
	if !ok || limit.Requests <= 0 || limit.Window <= 0 {
		return nil, false, nil
	}

	if l.breaker != nil && !l.breaker.Allow() {
		result, err = l.fromFallback(ctx, key, limit)
		return l.observe(result, class, true), true, err
	}

	result, err = l.primary.Allow(ctx, key, limit)
	if err != nil {
		if l.breaker != nil {
			if _, change := l.breaker.RecordFailure(); change.Opened {
				l.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "error", err)
			}
		}
		if l.fallback == nil {
			return nil, false, err
		}
		result, err = l.fromFallback(ctx, key, limit)
		return l.observe(result, class, true), true, err
	}
	if l.breaker != nil {
		if _, change := l.breaker.RecordSuccess(); change.Closed {
			l.logger.InfoContext(ctx, "rate limit store recovered")
		}
	}
	return l.observe(result, class, false), false, nil
}

func (l *Limiter) fromFallback(ctx context.Context, key string, limit Limit) (*Result, error) {
	if l.fallback == nil {
		return nil, circuitOpenError{}
	}
	return l.fallback.Allow(ctx, key, limit)
}

func (l *Limiter) observe(result *Result, class Class, degraded bool) *Result {
	if result != nil {
		l.metrics.IncRateLimitCheck(class.String(), result.Allowed, degraded)
	}
	return result
}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "rate limit store circuit is open" }
