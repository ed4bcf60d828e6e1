// Package models holds the approval workflow aggregate and its actions.
package models

import (
	"strings"
	"time"

	"cdigit/internal/policy"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
)

// Action is what an approver does to a workflow.
type Action string

const (
	ActionVerify  Action = "verify"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) String() string { return string(a) }

func (a Action) IsValid() bool {
	switch a {
	case ActionVerify, ActionApprove, ActionReject:
		return true
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown approval action %q", s)
	}
	return a, nil
}

// RequiredPermission is the permission a role needs to perform the action.
func (a Action) RequiredPermission() policy.Permission {
	switch a {
	case ActionVerify:
		return policy.PermVoucherVerify
	case ActionApprove:
		return policy.PermVoucherApprove
	default:
		return policy.PermVoucherReject
	}
}

// ApprovalAction is immutable once appended to a chain.
type ApprovalAction struct {
	VoucherID        id.VoucherID         `json:"voucherId"`
	Action           Action               `json:"action"`
	ActorID          id.ActorID           `json:"actorId"`
	ActorRole        policy.Role          `json:"actorRole"`
	Reason           string               `json:"reason,omitempty"`
	SignatureBinding string               `json:"signatureBinding,omitempty"`
	FromStatus       policy.VoucherStatus `json:"fromStatus"`
	ToStatus         policy.VoucherStatus `json:"toStatus"`
	Timestamp        time.Time            `json:"timestamp"`
}

// Transaction is the optional monetary context evaluated against thresholds.
type Transaction struct {
	Type     policy.TransactionType `json:"type"`
	Amount   float64                `json:"amount"`
	Currency string                 `json:"currency"`
	Segment  policy.Segment         `json:"segment"`
}

// Workflow is the approval record of one voucher. RequiresApproval is fixed
// at creation; the chain only grows.
type Workflow struct {
	ID               id.WorkflowID        `json:"id"`
	VoucherID        id.VoucherID         `json:"voucherId"`
	VoucherType      string               `json:"voucherType"`
	Transaction      *Transaction         `json:"transaction,omitempty"`
	Status           policy.VoucherStatus `json:"status"`
	CurrentApprover  policy.RoleSet       `json:"currentApprover"`
	ApprovalChain    []ApprovalAction     `json:"approvalChain"`
	RequiresApproval bool                 `json:"requiresApproval"`
	ApprovalReason   string               `json:"approvalReason"`
	CreatedBy        id.ActorID           `json:"createdBy"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
	ResolvedAt       *time.Time           `json:"resolvedAt,omitempty"`
}

// NewWorkflow builds a freshly created workflow. A workflow that requires
// approval starts awaiting verification by the approver roles; one that
// does not starts verified with no restriction on who acts next.
func NewWorkflow(wfID id.WorkflowID, voucherID id.VoucherID, voucherType string, tx *Transaction,
	decision policy.ApprovalDecision, createdBy id.ActorID, now time.Time) *Workflow {
	wf := &Workflow{
		ID:               wfID,
		VoucherID:        voucherID,
		VoucherType:      voucherType,
		Transaction:      tx,
		Status:           policy.StatusVerified,
		CurrentApprover:  policy.RoleSet{},
		ApprovalChain:    []ApprovalAction{},
		RequiresApproval: decision.Required,
		ApprovalReason:   decision.Reason,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if decision.Required {
		wf.Status = policy.StatusPendingVerification
		wf.CurrentApprover = append(policy.RoleSet{}, decision.ApproverRoles...)
	}
	return wf
}

// TargetStatus maps an action to the status it moves the workflow to.
func (w *Workflow) TargetStatus(a Action) policy.VoucherStatus {
	switch a {
	case ActionVerify:
		if w.RequiresApproval {
			return policy.StatusPendingApproval
		}
		return policy.StatusCompleted
	case ActionApprove:
		return policy.StatusApproved
	default:
		return policy.StatusRejected
	}
}

// IsRestrictedTo reports whether the workflow limits who may act next, and
// if so whether role is among them.
func (w *Workflow) IsRestrictedTo(role policy.Role) (restricted, allowed bool) {
	if w.CurrentApprover.IsEmpty() {
		return false, true
	}
	return true, w.CurrentApprover.Contains(role)
}

// AwaitsRole reports whether the workflow is pending and role may act on it.
func (w *Workflow) AwaitsRole(role policy.Role) bool {
	return w.Status.AwaitsAction() && w.CurrentApprover.Contains(role)
}

// Apply appends action and moves to next. Entering pending approval hands
// the workflow to approvers; a terminal status clears the approver set.
// Callers must have validated the transition.
func (w *Workflow) Apply(action ApprovalAction, next policy.VoucherStatus, approvers policy.RoleSet, now time.Time) {
	action.FromStatus = w.Status
	action.ToStatus = next
	action.Timestamp = now
	w.ApprovalChain = append(w.ApprovalChain, action)
	w.Status = next
	w.UpdatedAt = now

	switch {
	case next.IsTerminal():
		w.CurrentApprover = policy.RoleSet{}
		resolved := now
		w.ResolvedAt = &resolved
	case next == policy.StatusPendingApproval:
		w.CurrentApprover = append(policy.RoleSet{}, approvers...)
	}
}

// Clone returns a deep copy.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	if w.Transaction != nil {
		tx := *w.Transaction
		c.Transaction = &tx
	}
	c.CurrentApprover = append(policy.RoleSet{}, w.CurrentApprover...)
	c.ApprovalChain = append([]ApprovalAction{}, w.ApprovalChain...)
	if w.ResolvedAt != nil {
		r := *w.ResolvedAt
		c.ResolvedAt = &r
	}
	return &c
}
