package events

import (
	"context"
	"log/slog"
	"sync"

	"cdigit/pkg/platform/sentinel"
)

// Handler consumes one event.
type Handler func(ctx context.Context, e Event) error

const defaultBusBuffer = 256

// Bus is an in-process publisher. Publish enqueues and returns; a single
// dispatcher calls subscribers in subscription order.
type Bus struct {
	logger *slog.Logger

	subMu    sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler

	mu     sync.RWMutex
	closed bool

	queue   chan Event
	stopped chan struct{}
}

type BusOption func(*Bus)

func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithBuffer sets how many events may wait for dispatch.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logger:   slog.Default(),
		handlers: make(map[Type][]Handler),
		queue:    make(chan Event, defaultBusBuffer),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatch()
	return b
}

// Subscribe registers h for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues e. It blocks only while the buffer is full, until ctx ends.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return sentinel.ErrClosed
	}
	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be dispatched.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.stopped
}

func (b *Bus) dispatch() {
	defer close(b.stopped)
	for e := range b.queue {
		b.subMu.RLock()
		handlers := append(append([]Handler(nil), b.handlers[e.Type]...), b.all...)
		b.subMu.RUnlock()

		for _, h := range handlers {
			if err := h(context.Background(), e); err != nil {
				b.logger.Error("event handler failed",
					"event_type", e.Type, "voucher_id", e.VoucherID, "error", err)
			}
		}
	}
}
