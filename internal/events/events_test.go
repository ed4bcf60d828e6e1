package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdigit/pkg/platform/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDispatchesByType(t *testing.T) {
	bus := NewBus(WithBusLogger(discardLogger()))

	var mu sync.Mutex
	var approved, all []string
	bus.Subscribe(TypeWorkflowApproved, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		approved = append(approved, e.VoucherID)
		return nil
	})
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.VoucherID)
		return errors.New("ignored")
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeWorkflowApproved, VoucherID: "V-1"}))
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeWorkflowRejected, VoucherID: "V-2"}))
	bus.Close()

	assert.Equal(t, []string{"V-1"}, approved)
	assert.Equal(t, []string{"V-1", "V-2"}, all)
	assert.ErrorIs(t, bus.Publish(ctx, Event{Type: TypeWorkflowApproved}), sentinel.ErrClosed)
}

func TestBusPublishRespectsContextWhenFull(t *testing.T) {
	bus := NewBus(WithBusLogger(discardLogger()), WithBuffer(1))
	release := make(chan struct{})
	bus.SubscribeAll(func(context.Context, Event) error {
		<-release
		return nil
	})
	defer func() {
		close(release)
		bus.Close()
	}()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{VoucherID: "in-handler"}))

	// Wait until the dispatcher holds the first event so the buffer is free.
	require.Eventually(t, func() bool { return len(bus.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(ctx, Event{VoucherID: "buffered"}))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(short, Event{VoucherID: "blocked"}), context.DeadlineExceeded)
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}

	err := Multi{ok, nil, failing}.Publish(context.Background(), Event{Type: TypeWorkflowCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}
