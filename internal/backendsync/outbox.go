package backendsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"cdigit/internal/platform/metrics"
	"cdigit/internal/storage"
	"cdigit/internal/workflow/models"
	"cdigit/pkg/platform/circuit"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
)

const (
	defaultQueueSize      = 1024
	defaultMaxDeadLetters = 10_000
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultAttemptTimeout = 10 * time.Second
	replayPoll            = 10 * time.Millisecond
)

// ErrCircuitOpen is recorded as the failure of attempts skipped while the
// backend breaker is open.
var ErrCircuitOpen = errors.New("backend circuit open")

// Outbox queues backend notifications and delivers them from a single worker
// in enqueue order. Enqueueing never blocks. With a store, undelivered and
// dead-lettered commands survive a restart; delivery is at least once.
type Outbox struct {
	client  Client
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   storage.KV

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
	queueSize      int
	maxDead        int

	closeMu sync.RWMutex
	closed  bool
	queue   chan Command
	done    chan struct{}

	// stateMu guards inflight (queued or being delivered, oldest first)
	// and dead.
	stateMu   sync.Mutex
	inflight  []Command
	dead      []Command
	persistMu sync.Mutex

	enqueued     atomic.Int64
	delivered    atomic.Int64
	failures     atomic.Int64
	deadLettered atomic.Int64
}

type Option func(*Outbox)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Outbox) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Outbox) {
		o.metrics = m
	}
}

// WithRetry bounds delivery attempts per command. The wait before attempt n
// is initial doubled n-2 times, capped at maxBackoff.
func WithRetry(maxAttempts int, initial, maxBackoff time.Duration) Option {
	return func(o *Outbox) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if initial > 0 {
			o.initialBackoff = initial
		}
		if maxBackoff > 0 {
			o.maxBackoff = maxBackoff
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Outbox) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(o *Outbox) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithMaxDeadLetters bounds the dead-letter list; the oldest are dropped
// first, and every drop is logged.
func WithMaxDeadLetters(n int) Option {
	return func(o *Outbox) {
		if n > 0 {
			o.maxDead = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(o *Outbox) {
		o.breaker = b
	}
}

// WithStore persists undelivered and dead-lettered commands under
// storage.KeySyncOutbox after every change. Load restores them.
func WithStore(kv storage.KV) Option {
	return func(o *Outbox) {
		o.store = kv
	}
}

// persistedState is the stored form of the outbox.
type persistedState struct {
	Pending     []Command `json:"pending"`
	DeadLetters []Command `json:"deadLetters"`
}

// NewOutbox starts the delivery worker.
func NewOutbox(client Client, opts ...Option) (*Outbox, error) {
	if client == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	o := &Outbox{
		client:         client,
		logger:         slog.Default(),
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		attemptTimeout: defaultAttemptTimeout,
		queueSize:      defaultQueueSize,
		maxDead:        defaultMaxDeadLetters,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.breaker == nil {
		o.breaker = circuit.New("backend-sync")
	}
	o.queue = make(chan Command, o.queueSize)
	go o.run()
	return o, nil
}

// NotifyWorkflowCreated queues a workflow-created call.
func (o *Outbox) NotifyWorkflowCreated(ctx context.Context, wf *models.Workflow) error {
	return o.enqueue(ctx, Command{Kind: KindWorkflowCreated, VoucherID: wf.VoucherID, Workflow: wf.Clone()})
}

// NotifyApprovalAction queues an approval-action call.
func (o *Outbox) NotifyApprovalAction(ctx context.Context, action models.ApprovalAction, wf *models.Workflow) error {
	return o.enqueue(ctx, Command{Kind: KindApprovalAction, VoucherID: wf.VoucherID, Workflow: wf.Clone(), Action: &action})
}

// enqueue never blocks. A full queue sends the command straight to the
// dead letters and reports ErrUnavailable.
func (o *Outbox) enqueue(ctx context.Context, cmd Command) error {
	cmd.ID = uuid.NewString()
	cmd.EnqueuedAt = requestcontext.Now(ctx).UTC()
	return o.push(ctx, cmd)
}

func (o *Outbox) push(ctx context.Context, cmd Command) error {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()
	if o.closed {
		return sentinel.ErrClosed
	}
	if o.tryQueue(ctx, cmd) {
		return nil
	}
	o.deadLetter(ctx, cmd, "sync queue full")
	return fmt.Errorf("sync queue full: %w", sentinel.ErrUnavailable)
}

// tryQueue hands cmd to the worker without blocking. Must be called with
// closeMu read-held. The command joins inflight under stateMu before the
// worker can settle it.
func (o *Outbox) tryQueue(ctx context.Context, cmd Command) bool {
	o.stateMu.Lock()
	select {
	case o.queue <- cmd:
		o.inflight = append(o.inflight, cmd)
		o.stateMu.Unlock()
	default:
		o.stateMu.Unlock()
		return false
	}
	o.enqueued.Inc()
	o.metrics.SetSyncQueueDepth(len(o.queue))
	o.persist(ctx)
	return true
}

// removeInflightLocked drops the command with id from inflight. Must be
// called with stateMu held.
func (o *Outbox) removeInflightLocked(cmdID string) {
	for i, c := range o.inflight {
		if c.ID == cmdID {
			o.inflight = append(o.inflight[:i:i], o.inflight[i+1:]...)
			return
		}
	}
}

func (o *Outbox) settleDelivered(ctx context.Context, cmd Command) {
	o.stateMu.Lock()
	o.removeInflightLocked(cmd.ID)
	o.stateMu.Unlock()
	o.persist(ctx)
}

func (o *Outbox) run() {
	defer close(o.done)
	for cmd := range o.queue {
		o.metrics.SetSyncQueueDepth(len(o.queue))
		o.deliver(cmd)
	}
}

func (o *Outbox) deliver(cmd Command) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(o.backoff(attempt))
		}
		cmd.Attempts++

		if !o.breaker.Allow() {
			lastErr = ErrCircuitOpen
			o.failures.Inc()
			o.metrics.IncSyncAttempt(string(cmd.Kind), false)
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		err := cmd.send(attemptCtx, o.client)
		cancel()

		if err == nil {
			if _, change := o.breaker.RecordSuccess(); change.Closed {
				o.logger.Info("backend sync circuit closed")
			}
			o.delivered.Inc()
			o.metrics.IncSyncAttempt(string(cmd.Kind), true)
			o.settleDelivered(ctx, cmd)
			return
		}

		lastErr = err
		o.failures.Inc()
		o.metrics.IncSyncAttempt(string(cmd.Kind), false)
		if _, change := o.breaker.RecordFailure(); change.Opened {
			o.logger.Warn("backend sync circuit opened", "error", err)
		}
		o.logger.Warn("backend sync attempt failed",
			"kind", cmd.Kind,
			"voucher_id", cmd.VoucherID,
			"attempt", cmd.Attempts,
			"error", err,
		)
	}
	o.deadLetter(ctx, cmd, lastErr.Error())
}

func (o *Outbox) backoff(attempt int) time.Duration {
	d := o.initialBackoff << (attempt - 2)
	if d <= 0 || d > o.maxBackoff {
		return o.maxBackoff
	}
	return d
}

func (o *Outbox) deadLetter(ctx context.Context, cmd Command, reason string) {
	failedAt := requestcontext.Now(ctx).UTC()
	cmd.LastError = reason
	cmd.FailedAt = &failedAt

	o.stateMu.Lock()
	o.removeInflightLocked(cmd.ID)
	o.dead = append(o.dead, cmd)
	dropped := o.trimDeadLocked()
	o.stateMu.Unlock()
	o.persist(ctx)

	o.deadLettered.Inc()
	o.metrics.IncSyncDeadLetter()
	o.logger.ErrorContext(ctx, "backend sync command dead-lettered",
		"kind", cmd.Kind,
		"voucher_id", cmd.VoucherID,
		"attempts", cmd.Attempts,
		"reason", reason,
	)
	for _, d := range dropped {
		o.logger.ErrorContext(ctx, "dead letter discarded at capacity",
			"kind", d.Kind, "voucher_id", d.VoucherID, "command_id", d.ID)
	}
}

// trimDeadLocked drops the oldest dead letters beyond the cap and returns
// them. Must be called with stateMu held.
func (o *Outbox) trimDeadLocked() []Command {
	over := len(o.dead) - o.maxDead
	if over <= 0 {
		return nil
	}
	dropped := append([]Command(nil), o.dead[:over]...)
	o.dead = append([]Command(nil), o.dead[over:]...)
	return dropped
}

// DeadLetters returns the commands that exhausted delivery, oldest first.
func (o *Outbox) DeadLetters() []Command {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return append([]Command(nil), o.dead...)
}

// Replay moves the dead letters present at call time back onto the queue,
// oldest first, with a fresh attempt budget. A dead letter leaves the list
// only once it is queued; those not queued before ctx ends stay put.
func (o *Outbox) Replay(ctx context.Context) (int, error) {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()
	if o.closed {
		return 0, sentinel.ErrClosed
	}

	o.stateMu.Lock()
	total := len(o.dead)
	o.stateMu.Unlock()

	replayed := 0
	for replayed < total {
		queued, empty := o.replayHead(ctx)
		if empty {
			break
		}
		if queued {
			replayed++
			continue
		}
		select {
		case <-ctx.Done():
			return replayed, ctx.Err()
		case <-time.After(replayPoll):
		}
	}
	if replayed > 0 {
		o.logger.InfoContext(ctx, "replayed dead-lettered sync commands", "count", replayed)
	}
	return replayed, nil
}

// replayHead queues the oldest dead letter if the queue has room.
func (o *Outbox) replayHead(ctx context.Context) (queued, empty bool) {
	o.stateMu.Lock()
	if len(o.dead) == 0 {
		o.stateMu.Unlock()
		return false, true
	}
	cmd := o.dead[0]
	cmd.Attempts = 0
	cmd.LastError = ""
	cmd.FailedAt = nil
	select {
	case o.queue <- cmd:
		o.dead = o.dead[1:]
		o.inflight = append(o.inflight, cmd)
		o.stateMu.Unlock()
	default:
		o.stateMu.Unlock()
		return false, false
	}
	o.enqueued.Inc()
	o.metrics.SetSyncQueueDepth(len(o.queue))
	o.persist(ctx)
	return true, false
}

// persist hands the outbox state to the store. The encoder reads the state
// as it is when it runs.
func (o *Outbox) persist(ctx context.Context) {
	if o.store == nil {
		return
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	if err := storage.PutEncoded(ctx, o.store, storage.KeySyncOutbox, o.encodeState); err != nil {
		o.logger.WarnContext(ctx, "failed to persist sync outbox", "error", err)
	}
}

func (o *Outbox) encodeState() ([]byte, error) {
	o.stateMu.Lock()
	state := persistedState{
		Pending:     append([]Command{}, o.inflight...),
		DeadLetters: append([]Command{}, o.dead...),
	}
	o.stateMu.Unlock()
	return json.Marshal(state)
}

// Load restores persisted state: dead letters are kept for Replay and
// undelivered commands are queued again ahead of new ones. Call it once,
// before the first notification.
func (o *Outbox) Load(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	raw, err := o.store.Get(ctx, storage.KeySyncOutbox)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load sync outbox: %w", err)
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("decode sync outbox: %w", err)
	}

	o.stateMu.Lock()
	o.dead = append(state.DeadLetters, o.dead...)
	dropped := o.trimDeadLocked()
	o.stateMu.Unlock()
	for _, d := range dropped {
		o.logger.ErrorContext(ctx, "dead letter discarded at capacity",
			"kind", d.Kind, "voucher_id", d.VoucherID, "command_id", d.ID)
	}

	requeued := 0
	for _, cmd := range state.Pending {
		if err := o.push(ctx, cmd); err != nil {
			if errors.Is(err, sentinel.ErrClosed) {
				return err
			}
			continue
		}
		requeued++
	}
	o.persist(ctx)
	o.logger.InfoContext(ctx, "restored sync outbox",
		"requeued", requeued, "dead_letters", len(o.DeadLetters()))
	return nil
}

// Stats is a point-in-time view of the outbox.
type Stats struct {
	Queued       int           `json:"queued"`
	Enqueued     int64         `json:"enqueued"`
	Delivered    int64         `json:"delivered"`
	Failures     int64         `json:"failedAttempts"`
	DeadLettered int64         `json:"deadLettered"`
	DeadLetters  int           `json:"deadLetters"`
	Circuit      circuit.State `json:"circuit"`
}

func (o *Outbox) Stats() Stats {
	o.stateMu.Lock()
	dead := len(o.dead)
	o.stateMu.Unlock()
	return Stats{
		Queued:       len(o.queue),
		Enqueued:     o.enqueued.Load(),
		Delivered:    o.delivered.Load(),
		Failures:     o.failures.Load(),
		DeadLettered: o.deadLettered.Load(),
		DeadLetters:  dead,
		Circuit:      o.breaker.State(),
	}
}

// Close stops accepting commands and waits for queued ones to finish
// delivery or dead-lettering, until ctx ends. Commands still undelivered at
// that point remain in the persisted state for the next Load.
func (o *Outbox) Close(ctx context.Context) error {
	o.closeMu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.closeMu.Unlock()

	select {
	case <-o.done:
		o.persist(ctx)
		return nil
	case <-ctx.Done():
		o.persist(context.WithoutCancel(ctx))
		o.stateMu.Lock()
		left := len(o.inflight)
		o.stateMu.Unlock()
		o.logger.WarnContext(ctx, "backend outbox closed with undelivered commands", "pending", left)
		return ctx.Err()
	}
}
