// Package events carries workflow outcome events to subscribers such as the
// core banking poster. The engine publishes; it never waits on consumers.
package events

import (
	"context"
	"errors"
	"time"
)

// Type names a workflow outcome.
type Type string

const (
	TypeWorkflowApproved  Type = "workflow.approved"
	TypeWorkflowRejected  Type = "workflow.rejected"
	TypeWorkflowCompleted Type = "workflow.completed"
)

// Event is one workflow outcome.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	WorkflowID  string    `json:"workflowId"`
	VoucherID   string    `json:"voucherId"`
	VoucherType string    `json:"voucherType"`
	Status      string    `json:"status"`
	ActorID     string    `json:"actorId"`
	ActorRole   string    `json:"actorRole"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
