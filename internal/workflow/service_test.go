package workflow

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Auditor,Notifier,EventPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cdigit/internal/audit"
	"cdigit/internal/events"
	"cdigit/internal/policy"
	"cdigit/internal/workflow/mocks"
	"cdigit/internal/workflow/models"
	"cdigit/internal/workflow/store"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
)

// =============================================================================
// Workflow Service Test Suite
// =============================================================================
// The service owns the approval lifecycle. Tests run against the in-memory
// store and a real audit trail; the backend notifier and event publisher are
// mocked so their calls can be asserted exactly.

type WorkflowServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	notifier  *mocks.MockNotifier
	publisher *mocks.MockEventPublisher
	store     *store.InMemoryWorkflowStore
	trail     *audit.Trail
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestWorkflowServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkflowServiceSuite))
}

func (s *WorkflowServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = store.New(store.WithLogger(logger))
	s.trail = audit.NewTrail(100, audit.WithLogger(logger))
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	svc, err := New(s.store, policy.Default(),
		WithLogger(logger),
		WithAuditor(s.trail),
		WithNotifier(s.notifier),
		WithEventPublisher(s.publisher),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *WorkflowServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *WorkflowServiceSuite) largeWithdrawal(voucherID id.VoucherID) CreateRequest {
	return CreateRequest{
		VoucherID:   voucherID,
		VoucherType: "withdrawal",
		Transaction: &models.Transaction{
			Type:     policy.TransactionWithdrawal,
			Amount:   750_000,
			Currency: "ETB",
			Segment:  policy.SegmentNormal,
		},
		ActorID:   "teller-1",
		ActorRole: policy.RoleMaker,
	}
}

func (s *WorkflowServiceSuite) create(req CreateRequest) *models.Workflow {
	s.notifier.EXPECT().NotifyWorkflowCreated(gomock.Any(), gomock.Any()).Return(nil)
	wf, err := s.service.CreateWorkflow(s.ctx, req)
	s.Require().NoError(err)
	return wf
}

func (s *WorkflowServiceSuite) act(voucherID id.VoucherID, action models.Action, role policy.Role, reason string) (*models.Workflow, error) {
	return s.service.ProcessApproval(s.ctx, ApprovalRequest{
		VoucherID: voucherID,
		Action:    action,
		ActorID:   id.ActorID("actor-" + role.String()),
		ActorRole: role,
		Reason:    reason,
	})
}

func (s *WorkflowServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, policy.Default())
		s.Error(err)
		s.Contains(err.Error(), "workflow store is required")
	})

	s.Run("nil policy returns error", func() {
		_, err := New(s.store, nil)
		s.Error(err)
		s.Contains(err.Error(), "policy is required")
	})
}

func (s *WorkflowServiceSuite) TestCreateWorkflow() {
	s.Run("above threshold awaits verification by approvers", func() {
		wf := s.create(s.largeWithdrawal("WD-1"))

		s.Equal(policy.StatusPendingVerification, wf.Status)
		s.True(wf.RequiresApproval)
		s.ElementsMatch(policy.RoleSet{policy.RoleManager, policy.RoleAdmin}, wf.CurrentApprover)
		s.Contains(wf.ApprovalReason, "exceeds")
		s.Empty(wf.ApprovalChain)
		s.Equal(s.now, wf.CreatedAt)

		entries := s.trail.Authorization(audit.Filter{VoucherID: "WD-1"})
		s.Require().Len(entries, 1)
		s.Equal("create_workflow", entries[0].Action)
		s.True(entries[0].Success)
		s.Equal(wf.ID.String(), entries[0].WorkflowID)
	})

	s.Run("without transaction approval is not required", func() {
		wf := s.create(CreateRequest{
			VoucherID:   "DEP-1",
			VoucherType: "deposit",
			ActorID:     "teller-1",
			ActorRole:   policy.RoleMaker,
		})
		s.Equal(policy.StatusVerified, wf.Status)
		s.False(wf.RequiresApproval)
		s.Empty(wf.CurrentApprover)
	})

	s.Run("foreign currency above limit requires approval", func() {
		wf := s.create(CreateRequest{
			VoucherID:   "FX-1",
			VoucherType: "deposit",
			Transaction: &models.Transaction{Type: policy.TransactionDeposit, Amount: 6000, Currency: "usd"},
			ActorID:     "teller-1",
			ActorRole:   policy.RoleMaker,
		})
		s.True(wf.RequiresApproval)
		s.Contains(wf.ApprovalReason, "USD")
		s.Equal("USD", wf.Transaction.Currency)
	})

	s.Run("duplicate voucher conflicts", func() {
		s.create(s.largeWithdrawal("WD-DUP"))
		_, err := s.service.CreateWorkflow(s.ctx, s.largeWithdrawal("WD-DUP"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid input fails before any write", func() {
		cases := map[string]CreateRequest{
			"missing voucher id": {VoucherType: "withdrawal", ActorID: "a", ActorRole: policy.RoleMaker},
			"missing type":       {VoucherID: "X-1", ActorID: "a", ActorRole: policy.RoleMaker},
			"missing actor":      {VoucherID: "X-1", VoucherType: "withdrawal", ActorRole: policy.RoleMaker},
			"unknown role":       {VoucherID: "X-1", VoucherType: "withdrawal", ActorID: "a", ActorRole: "Teller"},
			"negative amount": {VoucherID: "X-1", VoucherType: "withdrawal", ActorID: "a", ActorRole: policy.RoleMaker,
				Transaction: &models.Transaction{Type: policy.TransactionWithdrawal, Amount: -1}},
		}
		for name, req := range cases {
			s.Run(name, func() {
				_, err := s.service.CreateWorkflow(s.ctx, req)
				s.True(dErrors.HasCode(err, dErrors.CodeValidation), err)
			})
		}
		s.Empty(s.trail.Authorization(audit.Filter{VoucherID: "X-1"}))
		_, err := s.store.FindByVoucher(s.ctx, "X-1")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("notifier failure does not fail creation", func() {
		s.notifier.EXPECT().NotifyWorkflowCreated(gomock.Any(), gomock.Any()).Return(errors.New("backend down"))
		wf, err := s.service.CreateWorkflow(s.ctx, s.largeWithdrawal("WD-NOTIFY"))
		s.Require().NoError(err)
		s.Equal(policy.StatusPendingVerification, wf.Status)
	})
}

func (s *WorkflowServiceSuite) TestEndToEndApproval() {
	s.create(s.largeWithdrawal("WD-750"))

	s.notifier.EXPECT().NotifyApprovalAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	var published events.Event
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			published = e
			return nil
		})

	wf, err := s.act("WD-750", models.ActionVerify, policy.RoleManager, "")
	s.Require().NoError(err)
	s.Equal(policy.StatusPendingApproval, wf.Status)
	s.ElementsMatch(policy.RoleSet{policy.RoleManager, policy.RoleAdmin}, wf.CurrentApprover)

	wf, err = s.act("WD-750", models.ActionApprove, policy.RoleManager, "")
	s.Require().NoError(err)
	s.Equal(policy.StatusApproved, wf.Status)
	s.Empty(wf.CurrentApprover)
	s.Require().Len(wf.ApprovalChain, 2)
	s.Require().NotNil(wf.ResolvedAt)
	s.True(wf.RequiresApproval)

	s.Equal(policy.StatusPendingVerification, wf.ApprovalChain[0].FromStatus)
	s.Equal(policy.StatusPendingApproval, wf.ApprovalChain[0].ToStatus)
	s.Equal(policy.StatusApproved, wf.ApprovalChain[1].ToStatus)

	s.Equal(events.TypeWorkflowApproved, published.Type)
	s.Equal("WD-750", published.VoucherID)
	s.Equal(string(policy.RoleManager), published.ActorRole)

	approvals := s.trail.Approval(audit.Filter{VoucherID: "WD-750"})
	s.Require().Len(approvals, 2)
	s.Equal("approve", approvals[0].Action, "newest first")
	s.True(approvals[0].Success)

	stored, err := s.service.GetWorkflowByVoucher(s.ctx, "WD-750")
	s.Require().NoError(err)
	s.Equal(wf, stored)
}

func (s *WorkflowServiceSuite) TestVerifyWithoutApprovalCompletes() {
	s.create(CreateRequest{VoucherID: "DEP-2", VoucherType: "deposit", ActorID: "teller-1", ActorRole: policy.RoleMaker})

	s.notifier.EXPECT().NotifyApprovalAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(events.TypeWorkflowCompleted, e.Type)
			return nil
		})

	wf, err := s.act("DEP-2", models.ActionVerify, policy.RoleMaker, "")
	s.Require().NoError(err)
	s.Equal(policy.StatusCompleted, wf.Status)
	s.Empty(wf.CurrentApprover)
}

func (s *WorkflowServiceSuite) TestRejectPublishesReason() {
	s.create(s.largeWithdrawal("WD-REJ"))
	s.notifier.EXPECT().NotifyApprovalAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(events.TypeWorkflowRejected, e.Type)
			s.Equal("signature mismatch", e.Reason)
			return nil
		})

	_, err := s.act("WD-REJ", models.ActionVerify, policy.RoleAdmin, "")
	s.Require().NoError(err)
	wf, err := s.act("WD-REJ", models.ActionReject, policy.RoleManager, "signature mismatch")
	s.Require().NoError(err)
	s.Equal(policy.StatusRejected, wf.Status)

	s.Run("terminal workflow accepts no further action", func() {
		_, err := s.act("WD-REJ", models.ActionVerify, policy.RoleManager, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func (s *WorkflowServiceSuite) TestProcessApprovalFailures() {
	s.create(s.largeWithdrawal("WD-F"))

	s.Run("unknown voucher is not found", func() {
		_, err := s.act("MISSING", models.ActionVerify, policy.RoleManager, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("role outside the approver set is unauthorized and audited", func() {
		_, err := s.act("WD-F", models.ActionVerify, policy.RoleMaker, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		denials := s.trail.Authorization(audit.Filter{VoucherID: "WD-F", Success: audit.Bool(false)})
		s.Require().Len(denials, 1)
		s.Equal(string(policy.RoleMaker), denials[0].Role)
		s.Contains(denials[0].Reason, "not among current approvers")
	})

	s.Run("role without the action permission is unauthorized", func() {
		s.create(CreateRequest{VoucherID: "DEP-P", VoucherType: "deposit", ActorID: "c-1", ActorRole: policy.RoleCustomer})
		_, err := s.act("DEP-P", models.ActionVerify, policy.RoleCustomer, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Contains(dErrors.MessageOf(err), "voucher.verify")
	})

	s.Run("illegal transition is rejected and audited as a failed approval", func() {
		_, err := s.act("WD-F", models.ActionApprove, policy.RoleManager, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

		failed := s.trail.Approval(audit.Filter{VoucherID: "WD-F", Success: audit.Bool(false)})
		s.Require().Len(failed, 1)
		s.Equal(string(policy.StatusPendingVerification), failed[0].FromStatus)
		s.Equal(string(policy.StatusApproved), failed[0].ToStatus)
	})

	s.Run("reject without reason is a validation error", func() {
		_, err := s.act("WD-F", models.ActionReject, policy.RoleManager, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("failures leave the workflow untouched", func() {
		wf, err := s.service.GetWorkflowByVoucher(s.ctx, "WD-F")
		s.Require().NoError(err)
		s.Equal(policy.StatusPendingVerification, wf.Status)
		s.Empty(wf.ApprovalChain)
	})
}

func (s *WorkflowServiceSuite) TestStoreFailureIsInternal() {
	mockStore := mocks.NewMockStore(s.ctrl)
	auditor := mocks.NewMockAuditor(s.ctrl)
	svc, err := New(mockStore, policy.Default(), WithAuditor(auditor),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	wf := models.NewWorkflow(id.NewWorkflowID(), "WD-S", "withdrawal", nil,
		policy.ApprovalDecision{Required: true, ApproverRoles: policy.RoleSet{policy.RoleManager}}, "teller-1", s.now)
	mockStore.EXPECT().FindByVoucher(gomock.Any(), id.VoucherID("WD-S")).Return(wf, nil)
	mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)

	_, err = svc.ProcessApproval(s.ctx, ApprovalRequest{
		VoucherID: "WD-S", Action: models.ActionVerify, ActorID: "m-1", ActorRole: policy.RoleManager,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(policy.StatusPendingVerification, wf.Status, "caller's copy is not mutated")
}

func (s *WorkflowServiceSuite) TestQueries() {
	s.create(s.largeWithdrawal("WD-Q1"))
	s.create(s.largeWithdrawal("WD-Q2"))
	s.create(CreateRequest{VoucherID: "DEP-Q", VoucherType: "deposit", ActorID: "t", ActorRole: policy.RoleMaker})

	s.notifier.EXPECT().NotifyApprovalAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	_, err := s.act("WD-Q2", models.ActionVerify, policy.RoleManager, "")
	s.Require().NoError(err)

	s.Run("by status", func() {
		pending, err := s.service.GetWorkflowsByStatus(s.ctx, policy.StatusPendingVerification)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(id.VoucherID("WD-Q1"), pending[0].VoucherID)

		_, err = s.service.GetWorkflowsByStatus(s.ctx, "on_hold")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("pending for role", func() {
		forManager, err := s.service.GetPendingApprovalsForRole(s.ctx, policy.RoleManager)
		s.Require().NoError(err)
		s.Len(forManager, 2)

		forMaker, err := s.service.GetPendingApprovalsForRole(s.ctx, policy.RoleMaker)
		s.Require().NoError(err)
		s.Empty(forMaker)
	})

	s.Run("history", func() {
		history, err := s.service.GetApprovalHistory(s.ctx, "WD-Q2")
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(models.ActionVerify, history[0].Action)

		_, err = s.service.GetApprovalHistory(s.ctx, "NOPE")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("statistics", func() {
		stats, err := s.service.GetApprovalStatistics(s.ctx, StatisticsFilter{})
		s.Require().NoError(err)
		s.Equal(3, stats.Total)
		s.Equal(2, stats.RequiringApproval)
		s.Equal(2, stats.ByVoucherType["withdrawal"])
		s.Equal(1, stats.ByRoleAction[policy.RoleManager][models.ActionVerify])

		byAdmin, err := s.service.GetApprovalStatistics(s.ctx, StatisticsFilter{ApproverRole: policy.RoleAdmin})
		s.Require().NoError(err)
		s.Zero(byAdmin.Total)
	})
}

func (s *WorkflowServiceSuite) TestConcurrentActionsOnOneVoucher() {
	s.create(s.largeWithdrawal("WD-RACE"))
	s.notifier.EXPECT().NotifyApprovalAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, invalid int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.act("WD-RACE", models.ActionVerify, policy.RoleManager, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeInvalidStateTransition):
				invalid++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(workers-1, invalid)
	wf, err := s.service.GetWorkflowByVoucher(s.ctx, "WD-RACE")
	s.Require().NoError(err)
	s.Len(wf.ApprovalChain, 1)
	s.Zero(s.service.locks.size())
}

func TestComputeStatisticsAverageResolution(t *testing.T) {
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	resolved := func(d time.Duration) *time.Time {
		r := created.Add(d)
		return &r
	}
	workflows := []*models.Workflow{
		{VoucherType: "withdrawal", Status: policy.StatusApproved, CreatedAt: created, ResolvedAt: resolved(time.Hour)},
		{VoucherType: "withdrawal", Status: policy.StatusRejected, CreatedAt: created, ResolvedAt: resolved(3 * time.Hour)},
		{VoucherType: "deposit", Status: policy.StatusPendingApproval, CreatedAt: created.Add(48 * time.Hour)},
	}

	stats := ComputeStatistics(workflows, StatisticsFilter{})
	if stats.Total != 3 || stats.Resolved != 2 {
		t.Fatalf("total=%d resolved=%d", stats.Total, stats.Resolved)
	}
	if stats.AverageResolution != 2*time.Hour {
		t.Fatalf("average resolution = %s, want 2h", stats.AverageResolution)
	}
	if stats.AverageResolutionSeconds != 7200 {
		t.Fatalf("average seconds = %v", stats.AverageResolutionSeconds)
	}

	windowed := ComputeStatistics(workflows, StatisticsFilter{Until: created.Add(time.Hour), VoucherType: "withdrawal"})
	if windowed.Total != 2 || windowed.ByStatus[policy.StatusApproved] != 1 {
		t.Fatalf("windowed stats = %+v", windowed)
	}
}
