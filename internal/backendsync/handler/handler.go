// Package handler exposes backend sync operations to administrators.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cdigit/internal/backendsync"
	"cdigit/internal/policy"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
)

// Outbox defines the sync operations the handler needs.
type Outbox interface {
	Stats() backendsync.Stats
	DeadLetters() []backendsync.Command
	Replay(ctx context.Context) (int, error)
}

// Authorizer gates a route on permissions of the authenticated role.
type Authorizer interface {
	RequirePermission(perms ...policy.Permission) func(http.Handler) http.Handler
}

// Handler wires the sync admin endpoints. A nil outbox means backend sync is
// not configured.
type Handler struct {
	outbox Outbox
	authz  Authorizer
	logger *slog.Logger
}

func New(outbox Outbox, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{outbox: outbox, authz: authz, logger: logger}
}

// Register mounts the admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/sync", func(r chi.Router) {
		r.Use(h.authz.RequirePermission(policy.PermSystemAdmin))
		r.Get("/", h.HandleStatus)
		r.Post("/replay", h.HandleReplay)
	})
}

type statusResponse struct {
	Stats       backendsync.Stats     `json:"stats"`
	DeadLetters []backendsync.Command `json:"deadLetters"`
}

type replayResponse struct {
	Replayed int `json:"replayed"`
}

var errSyncDisabled = dErrors.New(dErrors.CodeUnavailable, "backend sync is not configured")

// HandleStatus handles GET /admin/sync.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.outbox == nil {
		httputil.WriteError(w, errSyncDisabled)
		return
	}
	dead := h.outbox.DeadLetters()
	if dead == nil {
		dead = []backendsync.Command{}
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Stats: h.outbox.Stats(), DeadLetters: dead})
}

// HandleReplay handles POST /admin/sync/replay.
func (h *Handler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.outbox == nil {
		httputil.WriteError(w, errSyncDisabled)
		return
	}

	n, err := h.outbox.Replay(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "sync replay failed",
			"request_id", requestcontext.RequestID(ctx),
			"replayed", n,
			"error", err,
		)
		if errors.Is(err, sentinel.ErrClosed) {
			err = dErrors.Wrap(err, dErrors.CodeUnavailable, "backend sync is shutting down")
		} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = dErrors.Wrap(err, dErrors.CodeUnavailable, "replay interrupted")
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "sync dead letters replayed",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx),
		"replayed", n,
	)
	httputil.WriteJSON(w, http.StatusOK, replayResponse{Replayed: n})
}
