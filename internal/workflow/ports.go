package workflow

import (
	"context"

	"cdigit/internal/audit"
	"cdigit/internal/events"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
)

// Store persists workflows keyed by voucher id. Implementations return
// sentinel.ErrNotFound and sentinel.ErrConflict, and never hand out shared
// references.
type Store interface {
	Create(ctx context.Context, wf *models.Workflow) error
	Update(ctx context.Context, wf *models.Workflow) error
	FindByVoucher(ctx context.Context, voucherID id.VoucherID) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
}

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Notifier tells the core backend about workflow changes. Calls must not
// block on the network; failures are the notifier's to retry.
type Notifier interface {
	NotifyWorkflowCreated(ctx context.Context, wf *models.Workflow) error
	NotifyApprovalAction(ctx context.Context, action models.ApprovalAction, wf *models.Workflow) error
}

// EventPublisher receives workflow outcome events.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}
