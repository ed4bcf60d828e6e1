package backendsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cdigit/internal/policy"
	"cdigit/internal/storage"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	"cdigit/pkg/platform/circuit"
	"cdigit/pkg/platform/sentinel"
)

type fakeClient struct {
	mu       sync.Mutex
	calls    []string
	failNext int
	failAll  bool
	gate     chan struct{}
}

func (f *fakeClient) handle(ctx context.Context, call string) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failAll {
		return errors.New("backend down")
	}
	if f.failNext > 0 {
		f.failNext--
		return errors.New("backend hiccup")
	}
	return nil
}

func (f *fakeClient) WorkflowCreated(ctx context.Context, wf *models.Workflow) error {
	return f.handle(ctx, "created:"+wf.VoucherID.String())
}

func (f *fakeClient) ApprovalAction(ctx context.Context, action models.ApprovalAction, wf *models.Workflow) error {
	return f.handle(ctx, string(action.Action)+":"+wf.VoucherID.String())
}

func (f *fakeClient) setFailAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = v
}

func (f *fakeClient) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type OutboxSuite struct {
	suite.Suite
	client *fakeClient
	logger *slog.Logger
	ctx    context.Context
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupTest() {
	s.client = &fakeClient{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = context.Background()
}

func (s *OutboxSuite) newOutbox(opts ...Option) *Outbox {
	opts = append([]Option{
		WithLogger(s.logger),
		WithRetry(3, time.Millisecond, 5*time.Millisecond),
	}, opts...)
	o, err := NewOutbox(s.client, opts...)
	s.Require().NoError(err)
	return o
}

func workflowFor(voucherID id.VoucherID) *models.Workflow {
	return models.NewWorkflow(id.NewWorkflowID(), voucherID, "withdrawal", nil,
		policy.ApprovalDecision{ApproverRoles: policy.RoleSet{}}, "teller-1", time.Now())
}

func (s *OutboxSuite) TestNewRequiresClient() {
	_, err := NewOutbox(nil)
	s.Error(err)
}

func (s *OutboxSuite) TestDeliversInEnqueueOrder() {
	o := s.newOutbox()
	wf := workflowFor("V-1")

	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, wf))
	s.Require().NoError(o.NotifyApprovalAction(s.ctx, models.ApprovalAction{Action: models.ActionVerify}, wf))
	s.Require().NoError(o.Close(s.ctx))

	s.Equal([]string{"created:V-1", "verify:V-1"}, s.client.recorded())
	stats := o.Stats()
	s.EqualValues(2, stats.Enqueued)
	s.EqualValues(2, stats.Delivered)
	s.Zero(stats.DeadLetters)
	s.Equal(circuit.StateClosed, stats.Circuit)
}

func (s *OutboxSuite) TestRetriesTransientFailures() {
	s.client.failNext = 2
	o := s.newOutbox()

	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-2")))
	s.Require().NoError(o.Close(s.ctx))

	stats := o.Stats()
	s.EqualValues(1, stats.Delivered)
	s.EqualValues(2, stats.Failures)
	s.Len(s.client.recorded(), 3)
}

func (s *OutboxSuite) TestExhaustedCommandsAreDeadLetteredAndReplayed() {
	s.client.setFailAll(true)
	o := s.newOutbox()

	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-3")))
	s.Eventually(func() bool { return o.Stats().DeadLetters == 1 }, time.Second, time.Millisecond)

	dead := o.DeadLetters()
	s.Require().Len(dead, 1)
	s.Equal(KindWorkflowCreated, dead[0].Kind)
	s.Equal(3, dead[0].Attempts)
	s.Equal("backend down", dead[0].LastError)
	s.NotNil(dead[0].FailedAt)

	s.client.setFailAll(false)
	n, err := o.Replay(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Require().NoError(o.Close(s.ctx))

	s.Empty(o.DeadLetters())
	s.EqualValues(1, o.Stats().Delivered)
	s.EqualValues(1, o.Stats().DeadLettered, "dead-letter counter keeps history")
}

func (s *OutboxSuite) TestFullQueueDeadLettersInsteadOfDropping() {
	s.client.gate = make(chan struct{})
	o := s.newOutbox(WithQueueSize(1))

	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-A")))
	s.Eventually(func() bool { return len(o.queue) == 0 }, time.Second, time.Millisecond)
	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-B")))

	err := o.NotifyWorkflowCreated(s.ctx, workflowFor("V-C"))
	s.ErrorIs(err, sentinel.ErrUnavailable)

	dead := o.DeadLetters()
	s.Require().Len(dead, 1)
	s.Equal(id.VoucherID("V-C"), dead[0].VoucherID)
	s.Equal("sync queue full", dead[0].LastError)

	close(s.client.gate)
	s.Require().NoError(o.Close(s.ctx))
	s.Equal([]string{"created:V-A", "created:V-B"}, s.client.recorded())
}

func (s *OutboxSuite) TestOpenCircuitSkipsCalls() {
	s.client.setFailAll(true)
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	o := s.newOutbox(WithBreaker(breaker))

	s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-4")))
	s.Require().NoError(o.Close(s.ctx))

	s.Len(s.client.recorded(), 1, "only the first attempt reaches the backend")
	dead := o.DeadLetters()
	s.Require().Len(dead, 1)
	s.Equal(ErrCircuitOpen.Error(), dead[0].LastError)
	s.Equal(circuit.StateOpen, o.Stats().Circuit)
}

func (s *OutboxSuite) TestDeadLettersAreBounded() {
	s.client.setFailAll(true)
	o := s.newOutbox(WithRetry(1, time.Millisecond, time.Millisecond), WithMaxDeadLetters(2),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(100))))

	for _, v := range []id.VoucherID{"V-1", "V-2", "V-3"} {
		s.Require().NoError(o.NotifyWorkflowCreated(s.ctx, workflowFor(v)))
	}
	s.Require().NoError(o.Close(s.ctx))

	dead := o.DeadLetters()
	s.Require().Len(dead, 2)
	s.Equal(id.VoucherID("V-2"), dead[0].VoucherID)
	s.Equal(id.VoucherID("V-3"), dead[1].VoucherID)
}

func (s *OutboxSuite) TestClosedOutboxRejects() {
	o := s.newOutbox()
	s.Require().NoError(o.Close(s.ctx))
	s.Require().NoError(o.Close(s.ctx))

	s.ErrorIs(o.NotifyWorkflowCreated(s.ctx, workflowFor("V-5")), sentinel.ErrClosed)
	_, err := o.Replay(s.ctx)
	s.ErrorIs(err, sentinel.ErrClosed)
}

func (s *OutboxSuite) TestBackoffIsCapped() {
	o := s.newOutbox(WithRetry(10, 100*time.Millisecond, time.Second))
	defer o.Close(s.ctx)

	s.Equal(100*time.Millisecond, o.backoff(2))
	s.Equal(200*time.Millisecond, o.backoff(3))
	s.Equal(800*time.Millisecond, o.backoff(5))
	s.Equal(time.Second, o.backoff(6))
	s.Equal(time.Second, o.backoff(60))
}

func (s *OutboxSuite) persisted(kv storage.KV) persistedState {
	raw, err := kv.Get(s.ctx, storage.KeySyncOutbox)
	s.Require().NoError(err)
	var state persistedState
	s.Require().NoError(json.Unmarshal(raw, &state))
	return state
}

func (s *OutboxSuite) TestDeadLettersSurviveRestart() {
	kv := storage.NewMemory()
	s.client.setFailAll(true)
	first := s.newOutbox(WithRetry(1, time.Millisecond, time.Millisecond), WithStore(kv))

	s.Require().NoError(first.NotifyWorkflowCreated(s.ctx, workflowFor("V-7")))
	s.Require().NoError(first.Close(s.ctx))
	dead := first.DeadLetters()
	s.Require().Len(dead, 1)

	second := s.newOutbox(WithStore(kv))
	s.Require().NoError(second.Load(s.ctx))
	restored := second.DeadLetters()
	s.Require().Len(restored, 1)
	s.Equal(dead[0].ID, restored[0].ID)
	s.Equal(id.VoucherID("V-7"), restored[0].VoucherID)
	s.Equal("backend down", restored[0].LastError)

	s.client.setFailAll(false)
	n, err := second.Replay(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Require().NoError(second.Close(s.ctx))

	s.EqualValues(1, second.Stats().Delivered)
	state := s.persisted(kv)
	s.Empty(state.DeadLetters)
	s.Empty(state.Pending)
}

func (s *OutboxSuite) TestUndeliveredCommandsAreRequeuedOnLoad() {
	kv := storage.NewMemory()
	stuck := &fakeClient{gate: make(chan struct{})}
	defer close(stuck.gate)
	first, err := NewOutbox(stuck, WithLogger(s.logger), WithStore(kv))
	s.Require().NoError(err)

	s.Require().NoError(first.NotifyWorkflowCreated(s.ctx, workflowFor("V-1")))
	s.Require().NoError(first.NotifyWorkflowCreated(s.ctx, workflowFor("V-2")))
	deadline, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(first.Close(deadline), context.DeadlineExceeded)

	state := s.persisted(kv)
	s.Require().Len(state.Pending, 2, "commands still queued at shutdown are kept")
	s.Equal(id.VoucherID("V-1"), state.Pending[0].VoucherID)

	second := s.newOutbox(WithStore(kv))
	s.Require().NoError(second.Load(s.ctx))
	s.Require().NoError(second.Close(s.ctx))

	s.Equal([]string{"created:V-1", "created:V-2"}, s.client.recorded())
	s.Empty(s.persisted(kv).Pending)
}

func (s *OutboxSuite) TestLoadWithoutSavedState() {
	o := s.newOutbox(WithStore(storage.NewMemory()))
	defer o.Close(s.ctx)
	s.Require().NoError(o.Load(s.ctx))
	s.Empty(o.DeadLetters())

	corrupt := storage.NewMemory()
	s.Require().NoError(corrupt.Put(s.ctx, storage.KeySyncOutbox, []byte("{")))
	broken := s.newOutbox(WithStore(corrupt))
	defer broken.Close(s.ctx)
	s.ErrorContains(broken.Load(s.ctx), "decode sync outbox")
}
