// Package workflow runs the voucher approval lifecycle: threshold evaluation
// at creation, guarded transitions on every approval action, and the audit,
// backend notification and outcome events that follow a committed change.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cdigit/internal/audit"
	"cdigit/internal/events"
	"cdigit/internal/platform/metrics"
	"cdigit/internal/policy"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
)

type Service struct {
	store     Store
	policy    *policy.Policy
	auditor   Auditor
	notifier  Notifier
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	locks     *voucherLocks
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithNotifier sets the backend collaborator told about every committed change.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithEventPublisher sets where approved, rejected and completed outcomes go.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func New(store Store, pol *policy.Policy, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if pol == nil {
		return nil, fmt.Errorf("policy is required")
	}

	svc := &Service{
		store:  store,
		policy: pol,
		logger: slog.Default(),
		tracer: otel.Tracer("cdigit/internal/workflow"),
		locks:  newVoucherLocks(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRequest asks for an approval workflow for one voucher. Transaction
// is optional; without a type and amount approval is never required.
type CreateRequest struct {
	VoucherID   id.VoucherID
	VoucherType string
	Transaction *models.Transaction
	ActorID     id.ActorID
	ActorRole   policy.Role
}

func (r CreateRequest) validate() error {
	if r.VoucherID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "voucher id is required")
	}
	if strings.TrimSpace(r.VoucherType) == "" {
		return dErrors.New(dErrors.CodeValidation, "voucher type is required")
	}
	if r.ActorID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if !r.ActorRole.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown actor role %q", r.ActorRole)
	}
	if r.Transaction != nil && r.Transaction.Amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "transaction amount cannot be negative")
	}
	return nil
}

// CreateWorkflow evaluates the thresholds and stores the new workflow.
func (s *Service) CreateWorkflow(ctx context.Context, req CreateRequest) (*models.Workflow, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.CreateWorkflow")
	defer span.End()

	if err := req.validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("voucher.id", req.VoucherID.String()),
		attribute.String("voucher.type", req.VoucherType),
	)

	decision := s.evaluate(req.Transaction)
	wf := models.NewWorkflow(id.NewWorkflowID(), req.VoucherID, req.VoucherType,
		cloneTransaction(req.Transaction), decision, req.ActorID, requestcontext.Now(ctx).UTC())

	if err := s.store.Create(ctx, wf); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			err = dErrors.Wrap(err, dErrors.CodeConflict, "workflow already exists for voucher")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create workflow")
		}
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("workflow.requires_approval", wf.RequiresApproval))

	s.metrics.IncWorkflowCreated(wf.RequiresApproval)
	s.record(ctx, audit.Entry{
		Category:   audit.CategoryAuthorization,
		ActorID:    req.ActorID,
		Role:       req.ActorRole.String(),
		Action:     "create_workflow",
		Resource:   "voucher:" + req.VoucherID.String(),
		Success:    true,
		VoucherID:  req.VoucherID,
		WorkflowID: wf.ID.String(),
		ToStatus:   wf.Status.String(),
		Metadata: map[string]string{
			"voucher_type":      wf.VoucherType,
			"requires_approval": fmt.Sprintf("%t", wf.RequiresApproval),
		},
	})

	s.logger.InfoContext(ctx, "workflow created",
		"voucher_id", wf.VoucherID,
		"workflow_id", wf.ID,
		"status", wf.Status,
		"requires_approval", wf.RequiresApproval,
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyWorkflowCreated(ctx, wf.Clone()); err != nil {
			s.logger.WarnContext(ctx, "failed to notify backend of workflow creation",
				"voucher_id", wf.VoucherID, "error", err)
		}
	}
	return wf, nil
}

func (s *Service) evaluate(tx *models.Transaction) policy.ApprovalDecision {
	if tx == nil || tx.Type == "" || tx.Amount == 0 {
		return policy.ApprovalDecision{Reason: "no transaction amount to evaluate", ApproverRoles: policy.RoleSet{}}
	}
	return s.policy.RequiresTransactionApproval(policy.TransactionCheck{
		Type:     tx.Type,
		Amount:   tx.Amount,
		Currency: tx.Currency,
		Segment:  tx.Segment,
	})
}

// ApprovalRequest is one approver's action on a voucher's workflow.
type ApprovalRequest struct {
	VoucherID        id.VoucherID
	Action           models.Action
	ActorID          id.ActorID
	ActorRole        policy.Role
	Reason           string
	SignatureBinding string
}

func (r ApprovalRequest) validate() error {
	if r.VoucherID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "voucher id is required")
	}
	if r.ActorID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if !r.ActorRole.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown actor role %q", r.ActorRole)
	}
	if !r.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown approval action %q", r.Action)
	}
	if r.Action == models.ActionReject && strings.TrimSpace(r.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "a reason is required to reject")
	}
	return nil
}

// ProcessApproval applies one action. The read, check and write for a voucher
// run under its lock so concurrent actions cannot both commit. A failed call
// leaves the stored workflow untouched.
func (s *Service) ProcessApproval(ctx context.Context, req ApprovalRequest) (*models.Workflow, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.ProcessApproval")
	defer span.End()
	defer s.metrics.ObserveProcessApproval(time.Now())

	if err := req.validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("voucher.id", req.VoucherID.String()),
		attribute.String("approval.action", req.Action.String()),
		attribute.String("actor.role", req.ActorRole.String()),
	)

	unlock := s.locks.lock(req.VoucherID)
	defer unlock()

	wf, err := s.store.FindByVoucher(ctx, req.VoucherID)
	if err != nil {
		err = translateFindErr(err)
		recordSpanError(span, err)
		return nil, err
	}

	if restricted, allowed := wf.IsRestrictedTo(req.ActorRole); restricted && !allowed {
		err := s.deny(ctx, req, wf, fmt.Sprintf("role %s is not among current approvers %s",
			req.ActorRole, joinRoles(wf.CurrentApprover)))
		recordSpanError(span, err)
		return nil, err
	}
	if perm := req.Action.RequiredPermission(); !s.policy.HasPermission(req.ActorRole, perm) {
		err := s.deny(ctx, req, wf, fmt.Sprintf("role %s lacks permission %s", req.ActorRole, perm))
		recordSpanError(span, err)
		return nil, err
	}

	next := wf.TargetStatus(req.Action)
	if !policy.IsValidTransition(wf.Status, next) {
		reason := fmt.Sprintf("cannot %s a voucher in status %s", req.Action, wf.Status)
		s.metrics.IncApprovalAction(req.Action.String(), false)
		s.record(ctx, approvalEntry(req, wf, wf.Status, next, false, reason))
		err := dErrors.New(dErrors.CodeInvalidStateTransition, reason)
		recordSpanError(span, err)
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	updated := wf.Clone()
	updated.Apply(models.ApprovalAction{
		VoucherID:        req.VoucherID,
		Action:           req.Action,
		ActorID:          req.ActorID,
		ActorRole:        req.ActorRole,
		Reason:           req.Reason,
		SignatureBinding: req.SignatureBinding,
	}, next, s.policy.ApproverRoles(), now)

	if err := s.store.Update(ctx, updated); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to update workflow")
		recordSpanError(span, err)
		return nil, err
	}
	action := updated.ApprovalChain[len(updated.ApprovalChain)-1]

	s.metrics.IncApprovalAction(req.Action.String(), true)
	s.record(ctx, approvalEntry(req, updated, wf.Status, next, true, req.Reason))
	s.logger.InfoContext(ctx, "approval action applied",
		"voucher_id", req.VoucherID,
		"action", req.Action,
		"actor_id", req.ActorID,
		"from_status", wf.Status,
		"to_status", next,
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyApprovalAction(ctx, action, updated.Clone()); err != nil {
			s.logger.WarnContext(ctx, "failed to notify backend of approval action",
				"voucher_id", req.VoucherID, "error", err)
		}
	}
	s.publishOutcome(ctx, updated, action)
	return updated, nil
}

func (s *Service) deny(ctx context.Context, req ApprovalRequest, wf *models.Workflow, reason string) error {
	s.metrics.IncAuthorizationDenial(req.ActorRole.String())
	s.metrics.IncApprovalAction(req.Action.String(), false)
	s.record(ctx, audit.Entry{
		Category:   audit.CategoryAuthorization,
		ActorID:    req.ActorID,
		Role:       req.ActorRole.String(),
		Action:     req.Action.String(),
		Resource:   "voucher:" + req.VoucherID.String(),
		Success:    false,
		Reason:     reason,
		VoucherID:  req.VoucherID,
		WorkflowID: wf.ID.String(),
		FromStatus: wf.Status.String(),
	})
	s.logger.WarnContext(ctx, "approval action denied",
		"voucher_id", req.VoucherID,
		"actor_id", req.ActorID,
		"role", req.ActorRole,
		"reason", reason,
	)
	return dErrors.New(dErrors.CodeUnauthorized, reason)
}

func approvalEntry(req ApprovalRequest, wf *models.Workflow, from, to policy.VoucherStatus, ok bool, reason string) audit.Entry {
	e := audit.Entry{
		Category:   audit.CategoryApproval,
		ActorID:    req.ActorID,
		Role:       req.ActorRole.String(),
		Action:     req.Action.String(),
		Resource:   "voucher:" + req.VoucherID.String(),
		Success:    ok,
		Reason:     reason,
		VoucherID:  req.VoucherID,
		WorkflowID: wf.ID.String(),
		FromStatus: from.String(),
		ToStatus:   to.String(),
	}
	if req.SignatureBinding != "" {
		e.BindingHash = req.SignatureBinding
	}
	return e
}

func (s *Service) publishOutcome(ctx context.Context, wf *models.Workflow, action models.ApprovalAction) {
	if s.publisher == nil {
		return
	}
	var eventType events.Type
	switch wf.Status {
	case policy.StatusApproved:
		eventType = events.TypeWorkflowApproved
	case policy.StatusRejected:
		eventType = events.TypeWorkflowRejected
	case policy.StatusCompleted:
		eventType = events.TypeWorkflowCompleted
	default:
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		WorkflowID:  wf.ID.String(),
		VoucherID:   wf.VoucherID.String(),
		VoucherType: wf.VoucherType,
		Status:      wf.Status.String(),
		ActorID:     action.ActorID.String(),
		ActorRole:   action.ActorRole.String(),
		Reason:      action.Reason,
		OccurredAt:  action.Timestamp,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish workflow event",
			"voucher_id", wf.VoucherID, "event_type", eventType, "error", err)
	}
}

// GetWorkflowByVoucher returns the workflow of one voucher.
func (s *Service) GetWorkflowByVoucher(ctx context.Context, voucherID id.VoucherID) (*models.Workflow, error) {
	if voucherID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "voucher id is required")
	}
	wf, err := s.store.FindByVoucher(ctx, voucherID)
	if err != nil {
		return nil, translateFindErr(err)
	}
	return wf, nil
}

// GetWorkflowsByStatus lists workflows currently in status, oldest first.
func (s *Service) GetWorkflowsByStatus(ctx context.Context, status policy.VoucherStatus) ([]*models.Workflow, error) {
	if !status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown voucher status %q", status)
	}
	return s.filter(ctx, func(wf *models.Workflow) bool { return wf.Status == status })
}

// GetPendingApprovalsForRole lists workflows waiting on role.
func (s *Service) GetPendingApprovalsForRole(ctx context.Context, role policy.Role) ([]*models.Workflow, error) {
	if !role.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	return s.filter(ctx, func(wf *models.Workflow) bool { return wf.AwaitsRole(role) })
}

// GetApprovalHistory returns the approval chain of a voucher in order.
func (s *Service) GetApprovalHistory(ctx context.Context, voucherID id.VoucherID) ([]models.ApprovalAction, error) {
	wf, err := s.GetWorkflowByVoucher(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	return wf.ApprovalChain, nil
}

// GetApprovalStatistics aggregates the stored workflows matching filter.
func (s *Service) GetApprovalStatistics(ctx context.Context, filter StatisticsFilter) (*Statistics, error) {
	if filter.ApproverRole != "" && !filter.ApproverRole.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", filter.ApproverRole)
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list workflows")
	}
	stats := ComputeStatistics(all, filter)
	return &stats, nil
}

func (s *Service) filter(ctx context.Context, keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list workflows")
	}
	out := make([]*models.Workflow, 0, len(all))
	for _, wf := range all {
		if keep(wf) {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if _, err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to record workflow audit entry",
			"category", entry.Category, "action", entry.Action, "voucher_id", entry.VoucherID, "error", err)
	}
}

func translateFindErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "workflow not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workflow")
}

func cloneTransaction(tx *models.Transaction) *models.Transaction {
	if tx == nil {
		return nil
	}
	c := *tx
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	return &c
}

func joinRoles(roles policy.RoleSet) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
}
