// Package middleware authenticates actors from bearer tokens and enforces
// route permissions. Every decision is written to the audit trail.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"cdigit/internal/audit"
	"cdigit/internal/platform/metrics"
	"cdigit/internal/policy"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	ActorID string
	Role    string
	JTI     string
}

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Guard holds what the auth middlewares share.
type Guard struct {
	validator JWTValidator
	policy    *policy.Policy
	auditor   Auditor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithAuditor(a Auditor) Option {
	return func(g *Guard) {
		g.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func NewGuard(validator JWTValidator, pol *policy.Policy, opts ...Option) *Guard {
	g := &Guard{validator: validator, policy: pol, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireAuth resolves the bearer token into an actor and role on the
// request context. Missing or invalid tokens get 401.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resource := r.Method + " " + r.URL.Path

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			g.rejectAuth(w, r, "", "", "missing or invalid Authorization header", resource)
			return
		}

		claims, err := g.validator.ValidateToken(token)
		if err != nil {
			g.rejectAuth(w, r, "", "", dErrors.MessageOf(err), resource)
			return
		}
		actorID, err := id.ParseActorID(claims.ActorID)
		if err != nil {
			g.rejectAuth(w, r, "", claims.Role, "token carries an invalid actor id", resource)
			return
		}
		role, err := policy.ParseRole(claims.Role)
		if err != nil {
			g.rejectAuth(w, r, actorID, claims.Role, "token carries an unknown role", resource)
			return
		}

		ctx = requestcontext.WithActor(ctx, actorID, role.String())
		g.record(ctx, audit.Entry{
			Category: audit.CategoryAuthentication,
			ActorID:  actorID,
			Role:     role.String(),
			Action:   "authenticate",
			Resource: resource,
			Success:  true,
			Metadata: map[string]string{"jti": claims.JTI},
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) rejectAuth(w http.ResponseWriter, r *http.Request, actorID id.ActorID, role, reason, resource string) {
	ctx := r.Context()
	g.logger.WarnContext(ctx, "unauthorized access",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	g.record(ctx, audit.Entry{
		Category: audit.CategoryAuthentication,
		ActorID:  actorID,
		Role:     role,
		Action:   "authenticate",
		Resource: resource,
		Success:  false,
		Reason:   reason,
	})
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, reason))
}

// RequirePermission admits actors whose role holds every one of perms.
// Must run after RequireAuth.
func (g *Guard) RequirePermission(perms ...policy.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := policy.Role(requestcontext.ActorRole(ctx))
			actorID := requestcontext.ActorID(ctx)

			entry := audit.Entry{
				Category: audit.CategoryAuthorization,
				ActorID:  actorID,
				Role:     role.String(),
				Action:   "access",
				Resource: r.Method + " " + r.URL.Path,
				Metadata: map[string]string{"permissions": joinPermissions(perms)},
			}

			if !g.policy.HasAllPermissions(role, perms...) {
				entry.Reason = "role " + role.String() + " lacks " + joinPermissions(perms)
				g.record(ctx, entry)
				g.metrics.IncAuthorizationDenial(role.String())
				g.logger.WarnContext(ctx, "forbidden access",
					"actor_id", actorID,
					"role", role,
					"resource", entry.Resource,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient permissions"))
				return
			}

			entry.Success = true
			g.record(ctx, entry)
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) record(ctx context.Context, e audit.Entry) {
	if g.auditor == nil {
		return
	}
	if _, err := g.auditor.Record(ctx, e); err != nil {
		g.logger.ErrorContext(ctx, "failed to record access audit entry", "category", e.Category, "error", err)
	}
}

func joinPermissions(perms []policy.Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	return strings.Join(names, ",")
}
