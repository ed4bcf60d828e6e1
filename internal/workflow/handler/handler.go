// Package handler exposes the approval workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cdigit/internal/policy"
	"cdigit/internal/workflow"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/requestcontext"
)

// Service defines the workflow operations the handler needs.
type Service interface {
	CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (*models.Workflow, error)
	ProcessApproval(ctx context.Context, req workflow.ApprovalRequest) (*models.Workflow, error)
	GetWorkflowByVoucher(ctx context.Context, voucherID id.VoucherID) (*models.Workflow, error)
	GetWorkflowsByStatus(ctx context.Context, status policy.VoucherStatus) ([]*models.Workflow, error)
	GetPendingApprovalsForRole(ctx context.Context, role policy.Role) ([]*models.Workflow, error)
	GetApprovalHistory(ctx context.Context, voucherID id.VoucherID) ([]models.ApprovalAction, error)
	GetApprovalStatistics(ctx context.Context, filter workflow.StatisticsFilter) (*workflow.Statistics, error)
}

// Authorizer gates a route on permissions of the authenticated role.
type Authorizer interface {
	RequirePermission(perms ...policy.Permission) func(http.Handler) http.Handler
}

// Handler wires workflow endpoints to the workflow service.
type Handler struct {
	service Service
	authz   Authorizer
	logger  *slog.Logger
}

// New constructs a workflow handler with its dependencies.
func New(service Service, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{service: service, authz: authz, logger: logger}
}

// Register mounts workflow endpoints. Approval actions carry no route
// permission because the service checks the action itself.
func (h *Handler) Register(r chi.Router) {
	r.With(h.authz.RequirePermission(policy.PermVoucherCreate)).Post("/workflows", h.HandleCreate)
	r.With(h.authz.RequirePermission(policy.PermWorkflowView)).Get("/workflows", h.HandleListByStatus)
	r.With(h.authz.RequirePermission(policy.PermWorkflowView)).Get("/workflows/pending", h.HandlePending)
	r.With(h.authz.RequirePermission(policy.PermWorkflowStatistics)).Get("/workflows/statistics", h.HandleStatistics)
	r.With(h.authz.RequirePermission(policy.PermVoucherView)).Get("/workflows/{voucherID}", h.HandleGet)
	r.With(h.authz.RequirePermission(policy.PermVoucherView)).Get("/workflows/{voucherID}/history", h.HandleHistory)
	r.Post("/workflows/{voucherID}/actions", h.HandleAction)
}

type workflowsResponse struct {
	Workflows []*models.Workflow `json:"workflows"`
	Count     int                `json:"count"`
}

func listResponse(wfs []*models.Workflow) workflowsResponse {
	if wfs == nil {
		wfs = []*models.Workflow{}
	}
	return workflowsResponse{Workflows: wfs, Count: len(wfs)}
}

type historyResponse struct {
	VoucherID id.VoucherID            `json:"voucherId"`
	Actions   []models.ApprovalAction `json:"actions"`
}

// HandleCreate handles POST /workflows.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[CreateWorkflowRequest](w, r, h.logger)
	if !ok {
		return
	}

	wf, err := h.service.CreateWorkflow(ctx, workflow.CreateRequest{
		VoucherID:   req.parsedVoucherID,
		VoucherType: req.VoucherType,
		Transaction: req.toTransaction(),
		ActorID:     requestcontext.ActorID(ctx),
		ActorRole:   policy.Role(requestcontext.ActorRole(ctx)),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create workflow failed",
			"request_id", requestID,
			"voucher_id", req.parsedVoucherID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "workflow created",
		"request_id", requestID,
		"voucher_id", wf.VoucherID,
		"requires_approval", wf.RequiresApproval,
		"status", wf.Status,
	)
	httputil.WriteJSON(w, http.StatusCreated, wf)
}

// HandleAction handles POST /workflows/{voucherID}/actions.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	voucherID, err := voucherParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndValidate[ApprovalActionRequest](w, r, h.logger)
	if !ok {
		return
	}

	wf, err := h.service.ProcessApproval(ctx, workflow.ApprovalRequest{
		VoucherID:        voucherID,
		Action:           req.parsedAction,
		ActorID:          requestcontext.ActorID(ctx),
		ActorRole:        policy.Role(requestcontext.ActorRole(ctx)),
		Reason:           req.Reason,
		SignatureBinding: req.SignatureBinding,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "approval action failed",
			"request_id", requestID,
			"voucher_id", voucherID,
			"action", req.parsedAction,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "approval action applied",
		"request_id", requestID,
		"voucher_id", voucherID,
		"action", req.parsedAction,
		"status", wf.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, wf)
}

// HandleGet handles GET /workflows/{voucherID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	voucherID, err := voucherParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wf, err := h.service.GetWorkflowByVoucher(r.Context(), voucherID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wf)
}

// HandleHistory handles GET /workflows/{voucherID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	voucherID, err := voucherParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	actions, err := h.service.GetApprovalHistory(r.Context(), voucherID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if actions == nil {
		actions = []models.ApprovalAction{}
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{VoucherID: voucherID, Actions: actions})
}

// HandleListByStatus handles GET /workflows?status=.
func (h *Handler) HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "status query parameter is required"))
		return
	}
	status, err := policy.ParseStatus(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	wfs, err := h.service.GetWorkflowsByStatus(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(wfs))
}

// HandlePending handles GET /workflows/pending for the caller's own role.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := policy.ParseRole(requestcontext.ActorRole(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated role required"))
		return
	}
	wfs, err := h.service.GetPendingApprovalsForRole(ctx, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(wfs))
}

// HandleStatistics handles GET /workflows/statistics with optional since,
// until, voucherType and approverRole filters.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseTimeParam(q.Get("since"), "since")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	until, err := parseTimeParam(q.Get("until"), "until")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := workflow.StatisticsFilter{
		Since:       since,
		Until:       until,
		VoucherType: q.Get("voucherType"),
	}
	if raw := q.Get("approverRole"); raw != "" {
		role, err := policy.ParseRole(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.ApproverRole = role
	}

	stats, err := h.service.GetApprovalStatistics(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func voucherParam(r *http.Request) (id.VoucherID, error) {
	voucherID, err := id.ParseVoucherID(chi.URLParam(r, "voucherID"))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid voucher id")
	}
	return voucherID, nil
}
