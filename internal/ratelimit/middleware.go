package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/requestcontext"
)

// Checker is the decision half of a Limiter.
type Checker interface {
	Check(ctx context.Context, key string, class Class) (*Result, bool, error)
}

// Middleware throttles requests after authentication has put the actor into
// the context.
type Middleware struct {
	checker  Checker
	logger   *slog.Logger
	disabled bool
}

type MiddlewareOption func(*Middleware)

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) MiddlewareOption {
	return func(m *Middleware) { m.disabled = disabled }
}

func NewMiddleware(checker Checker, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{checker: checker, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

type exceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after"`
}

// Handler charges each request to the caller's bucket for its method class.
// Store errors fail open.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil || m.disabled || m.checker == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		class := ClassOf(r.Method)
		key := callerKey(ctx, class)

		result, degraded, err := m.checker.Check(ctx, key, class)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "class", class)
			next.ServeHTTP(w, r)
			return
		}
		if result == nil {
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result, degraded)
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"actor_id", requestcontext.ActorID(ctx),
				"retry_after", result.RetryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
				Error:       "rate_limit_exceeded",
				Description: "too many requests, try again later",
				RetryAfter:  result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(ctx context.Context, class Class) string {
	if actorID := requestcontext.ActorID(ctx); !actorID.IsZero() {
		return ActorKey(actorID.String(), class)
	}
	return IPKey(requestcontext.ClientIP(ctx), class)
}

func addHeaders(w http.ResponseWriter, result *Result, degraded bool) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
