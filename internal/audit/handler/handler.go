// Package handler exposes audit queries, analytics and exports over HTTP.
package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cdigit/internal/audit"
	"cdigit/internal/policy"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/requestcontext"
)

const maxQueryLimit = 1000

// Reader defines the audit trail operations the handler needs.
type Reader interface {
	Entries(c audit.Category, f audit.Filter) ([]audit.Entry, error)
	Analytics(now time.Time) audit.Analytics
	Export(w io.Writer, now time.Time, format audit.Format, c audit.Category) error
}

// Authorizer gates a route on permissions of the authenticated role.
type Authorizer interface {
	RequirePermission(perms ...policy.Permission) func(http.Handler) http.Handler
}

// Handler wires audit endpoints to the trail.
type Handler struct {
	trail  Reader
	authz  Authorizer
	logger *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(trail Reader, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, authz: authz, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	view := h.authz.RequirePermission(policy.PermAuditView)
	r.Route("/audit", func(r chi.Router) {
		r.With(view).Get("/analytics", h.HandleAnalytics)
		r.With(h.authz.RequirePermission(policy.PermAuditExport)).Get("/export", h.HandleExport)
		r.With(view).Get("/{category}", h.HandleEntries)
	})
}

type entriesResponse struct {
	Category audit.Category `json:"category"`
	Entries  []audit.Entry  `json:"entries"`
	Count    int            `json:"count"`
}

// HandleEntries handles GET /audit/{category}. Results are newest first.
func (h *Handler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	category, err := audit.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.trail.Entries(category, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entriesResponse{Category: category, Entries: entries, Count: len(entries)})
}

// HandleAnalytics handles GET /audit/analytics.
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.trail.Analytics(requestcontext.Now(r.Context())))
}

// HandleExport handles GET /audit/export?format=&category=. The document is
// rendered in full before any byte is written so failures still map to a
// JSON error.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	format, err := audit.ParseFormat(q.Get("format"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var category audit.Category
	if raw := q.Get("category"); raw != "" {
		if category, err = audit.ParseCategory(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	now := requestcontext.Now(ctx)
	var buf bytes.Buffer
	if err := h.trail.Export(&buf, now, format, category); err != nil {
		h.logger.ErrorContext(ctx, "audit export failed",
			"request_id", requestcontext.RequestID(ctx),
			"format", format,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit exported",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx),
		"format", format,
		"category", category,
		"bytes", buf.Len(),
	)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(now, format, category)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportFilename(now time.Time, format audit.Format, category audit.Category) string {
	name := "audit"
	if category != "" {
		name += "-" + category.String()
	}
	return fmt.Sprintf("%s-%s.%s", name, now.UTC().Format("20060102T150405Z"), format)
}

func parseFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Role:     strings.TrimSpace(q.Get("role")),
		Resource: strings.TrimSpace(q.Get("resource")),
	}
	if raw := strings.TrimSpace(q.Get("actorId")); raw != "" {
		actorID, err := id.ParseActorID(raw)
		if err != nil {
			return f, err
		}
		f.ActorID = actorID
	}
	if raw := strings.TrimSpace(q.Get("voucherId")); raw != "" {
		voucherID, err := id.ParseVoucherID(raw)
		if err != nil {
			return f, err
		}
		f.VoucherID = voucherID
	}
	if raw := q.Get("success"); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "success must be true or false")
		}
		f.Success = audit.Bool(ok)
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, dErrors.Newf(dErrors.CodeValidation, "%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxQueryLimit {
			return f, dErrors.Newf(dErrors.CodeValidation, "limit must be between 1 and %d", maxQueryLimit)
		}
		f.Limit = n
	}
	return f, nil
}
