// Package backendsync delivers workflow changes to the core backend through
// a bounded outbox. Delivery is retried with backoff behind a circuit
// breaker; commands that exhaust their attempts are kept as dead letters
// until replayed.
package backendsync

import (
	"context"
	"time"

	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
)

// Kind names the backend call a command makes.
type Kind string

const (
	KindWorkflowCreated Kind = "workflow_created"
	KindApprovalAction  Kind = "approval_action"
)

// Command is one pending backend notification. Workflow is a snapshot taken
// when the change was committed.
type Command struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	VoucherID  id.VoucherID           `json:"voucherId"`
	Workflow   *models.Workflow       `json:"workflow"`
	Action     *models.ApprovalAction `json:"action,omitempty"`
	EnqueuedAt time.Time              `json:"enqueuedAt"`
	Attempts   int                    `json:"attempts"`
	LastError  string                 `json:"lastError,omitempty"`
	FailedAt   *time.Time             `json:"failedAt,omitempty"`
}

// Client performs the backend calls.
type Client interface {
	WorkflowCreated(ctx context.Context, wf *models.Workflow) error
	ApprovalAction(ctx context.Context, action models.ApprovalAction, wf *models.Workflow) error
}

func (c Command) send(ctx context.Context, client Client) error {
	switch c.Kind {
	case KindApprovalAction:
		return client.ApprovalAction(ctx, *c.Action, c.Workflow)
	default:
		return client.WorkflowCreated(ctx, c.Workflow)
	}
}
