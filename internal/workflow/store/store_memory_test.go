package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cdigit/internal/policy"
	"cdigit/internal/storage"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	"cdigit/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	kv    *storage.Memory
	store *InMemoryWorkflowStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv = storage.NewMemory()
	s.store = New(WithPersistence(s.kv))
}

func newWorkflow(voucherID id.VoucherID) *models.Workflow {
	now := time.Date(2026, 4, 1, 12, 0, 0, 987654321, time.UTC)
	return models.NewWorkflow(id.NewWorkflowID(), voucherID, "withdrawal",
		&models.Transaction{Type: policy.TransactionWithdrawal, Amount: 750000, Currency: "ETB", Segment: policy.SegmentNormal},
		policy.ApprovalDecision{Required: true, Reason: "over limit", ApproverRoles: policy.RoleSet{policy.RoleManager, policy.RoleAdmin}},
		"maker-1", now)
}

func (s *InMemoryStoreSuite) TestCreateRejectsDuplicateVoucher() {
	s.Require().NoError(s.store.Create(s.ctx, newWorkflow("V-1")))
	err := s.store.Create(s.ctx, newWorkflow("V-1"))
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(1, s.store.Count())
}

func (s *InMemoryStoreSuite) TestReadsReturnCopies() {
	s.Require().NoError(s.store.Create(s.ctx, newWorkflow("V-1")))

	got, err := s.store.FindByVoucher(s.ctx, "V-1")
	s.Require().NoError(err)
	got.Status = policy.StatusApproved
	got.CurrentApprover[0] = policy.RoleCustomer

	again, err := s.store.FindByVoucher(s.ctx, "V-1")
	s.Require().NoError(err)
	s.Equal(policy.StatusPendingVerification, again.Status)
	s.Equal(policy.RoleManager, again.CurrentApprover[0])
}

func (s *InMemoryStoreSuite) TestUpdateRequiresExisting() {
	err := s.store.Update(s.ctx, newWorkflow("V-404"))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByVoucher(s.ctx, "V-404")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListKeepsCreationOrder() {
	for _, v := range []id.VoucherID{"V-3", "V-1", "V-2"} {
		s.Require().NoError(s.store.Create(s.ctx, newWorkflow(v)))
	}
	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(id.VoucherID("V-3"), all[0].VoucherID)
	s.Equal(id.VoucherID("V-2"), all[2].VoucherID)
}

func (s *InMemoryStoreSuite) TestPersistAndLoadRoundTripsTimestamps() {
	wf := newWorkflow("V-1")
	s.Require().NoError(s.store.Create(s.ctx, wf))

	wf.Apply(models.ApprovalAction{VoucherID: "V-1", Action: models.ActionVerify, ActorID: "mgr-1", ActorRole: policy.RoleManager},
		policy.StatusPendingApproval, policy.RoleSet{policy.RoleManager, policy.RoleAdmin}, wf.CreatedAt.Add(time.Minute))
	s.Require().NoError(s.store.Update(s.ctx, wf))

	restored := New(WithPersistence(s.kv))
	s.Require().NoError(restored.Load(s.ctx))

	got, err := restored.FindByVoucher(s.ctx, "V-1")
	s.Require().NoError(err)
	s.Equal(wf.ID, got.ID)
	s.Equal(policy.StatusPendingApproval, got.Status)
	s.True(wf.CreatedAt.Equal(got.CreatedAt))
	s.Equal(wf.CreatedAt.Nanosecond(), got.CreatedAt.Nanosecond())
	s.Require().Len(got.ApprovalChain, 1)
	s.True(wf.ApprovalChain[0].Timestamp.Equal(got.ApprovalChain[0].Timestamp))
	s.Equal(policy.RoleSet{policy.RoleManager, policy.RoleAdmin}, got.CurrentApprover)
}

func (s *InMemoryStoreSuite) TestLoadWithoutPersistedData() {
	s.NoError(New(WithPersistence(storage.NewMemory())).Load(s.ctx))
	s.NoError(New().Load(s.ctx))
}
