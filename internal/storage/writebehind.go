package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"cdigit/pkg/platform/sentinel"
)

const (
	defaultWriteAttempts = 3
	defaultWriteBackoff  = 100 * time.Millisecond
	defaultWriteTimeout  = 5 * time.Second
	defaultRetryInitial  = 500 * time.Millisecond
	defaultRetryMax      = 30 * time.Second
)

// WriteBehind is an asynchronous, coalescing KV writer. Put records the
// latest value for a key and returns immediately; a single worker pushes
// pending values to the backend with bounded retry. A key leaves the pending
// set only once the value it holds has been written; while any key is stuck
// the worker keeps re-draining with capped exponential backoff.
type WriteBehind struct {
	backend     KV
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	retryInit   time.Duration
	retryMax    time.Duration

	mu      sync.Mutex
	pending map[string]pendingWrite
	seq     uint64
	closed  bool

	wake    chan struct{}
	flushes chan chan error
	quit    chan struct{}
	stopped chan struct{}

	written atomic.Int64
	failed  atomic.Int64
}

type pendingWrite struct {
	value  []byte
	encode Encoder
	seq    uint64
}

func (p pendingWrite) resolve() ([]byte, error) {
	if p.encode != nil {
		return p.encode()
	}
	return p.value, nil
}

// WriteBehindOption configures a WriteBehind.
type WriteBehindOption func(*WriteBehind)

func WithWriteBehindLogger(logger *slog.Logger) WriteBehindOption {
	return func(w *WriteBehind) {
		w.logger = logger
	}
}

// WithWriteRetry sets the attempts per drain and the delay between attempts.
func WithWriteRetry(attempts int, backoff time.Duration) WriteBehindOption {
	return func(w *WriteBehind) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}

// WithRetryBackoff bounds the delay before re-draining keys the last drain
// could not write. The delay doubles per consecutive failed drain.
func WithRetryBackoff(initial, maxDelay time.Duration) WriteBehindOption {
	return func(w *WriteBehind) {
		if initial > 0 {
			w.retryInit = initial
		}
		if maxDelay > 0 {
			w.retryMax = maxDelay
		}
	}
}

// NewWriteBehind starts the background writer. Close must be called to stop it.
func NewWriteBehind(backend KV, opts ...WriteBehindOption) *WriteBehind {
	w := &WriteBehind{
		backend:     backend,
		logger:      slog.Default(),
		maxAttempts: defaultWriteAttempts,
		backoff:     defaultWriteBackoff,
		timeout:     defaultWriteTimeout,
		retryInit:   defaultRetryInitial,
		retryMax:    defaultRetryMax,
		pending:     make(map[string]pendingWrite),
		wake:        make(chan struct{}, 1),
		flushes:     make(chan chan error),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	go w.run()
	return w
}

// Put queues value for key. It never blocks on the backend.
func (w *WriteBehind) Put(_ context.Context, key string, value []byte) error {
	return w.queue(key, pendingWrite{value: append([]byte(nil), value...)})
}

// PutDeferred queues key to be encoded when the worker writes it. Later
// puts of the same key replace encode.
func (w *WriteBehind) PutDeferred(_ context.Context, key string, encode Encoder) error {
	if encode == nil {
		return errors.New("encoder is required")
	}
	return w.queue(key, pendingWrite{encode: encode})
}

func (w *WriteBehind) queue(key string, p pendingWrite) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return sentinel.ErrClosed
	}
	w.seq++
	p.seq = w.seq
	w.pending[key] = p
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Get serves pending values before falling through to the backend.
func (w *WriteBehind) Get(ctx context.Context, key string) ([]byte, error) {
	w.mu.Lock()
	p, ok := w.pending[key]
	w.mu.Unlock()
	if ok {
		raw, err := p.resolve()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return append([]byte(nil), raw...), nil
	}
	return w.backend.Get(ctx, key)
}

// Flush blocks until every value pending at call time has been attempted
// and reports the keys that could not be written.
func (w *WriteBehind) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case w.flushes <- reply:
	case <-w.stopped:
		return sentinel.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further writes, drains what is pending and stops the worker.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.Flush(ctx)
	close(w.quit)
	<-w.stopped
	return err
}

// Pending returns the number of keys awaiting a successful write.
func (w *WriteBehind) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Written and Failed count backend write outcomes since start.
func (w *WriteBehind) Written() int64 { return w.written.Load() }
func (w *WriteBehind) Failed() int64  { return w.failed.Load() }

func (w *WriteBehind) run() {
	defer close(w.stopped)
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	var (
		retryC   <-chan time.Time
		failures int
	)
	settle := func(err error) {
		if err == nil || w.Pending() == 0 {
			failures = 0
			retry.Stop()
			retryC = nil
			return
		}
		failures++
		retry.Reset(w.retryDelay(failures))
		retryC = retry.C
	}

	for {
		select {
		case <-w.wake:
			settle(w.drain())
		case <-retryC:
			settle(w.drain())
		case reply := <-w.flushes:
			err := w.drain()
			settle(err)
			reply <- err
		case <-w.quit:
			return
		}
	}
}

func (w *WriteBehind) retryDelay(failures int) time.Duration {
	d := w.retryInit
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= w.retryMax {
			return w.retryMax
		}
	}
	return min(d, w.retryMax)
}

func (w *WriteBehind) drain() error {
	w.mu.Lock()
	batch := make(map[string]pendingWrite, len(w.pending))
	for key, p := range w.pending {
		batch[key] = p
	}
	w.mu.Unlock()

	var errs []error
	for key, p := range batch {
		value, err := p.resolve()
		if err != nil {
			w.failed.Inc()
			errs = append(errs, fmt.Errorf("encode %s: %w", key, err))
			w.logger.Error("write-behind could not encode key", "key", key, "error", err)
			continue
		}
		if err := w.write(key, value); err != nil {
			w.failed.Inc()
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			w.logger.Error("write-behind gave up on key for this drain",
				"key", key, "attempts", w.maxAttempts, "error", err)
			continue
		}
		w.written.Inc()

		w.mu.Lock()
		if cur, ok := w.pending[key]; ok && cur.seq == p.seq {
			delete(w.pending, key)
		}
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (w *WriteBehind) write(key string, value []byte) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err = w.backend.Put(ctx, key, value)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < w.maxAttempts && w.backoff > 0 {
			time.Sleep(w.backoff << (attempt - 1))
		}
	}
	return err
}
