package policy

import (
	dErrors "cdigit/pkg/domain-errors"
)

// VoucherStatus is the lifecycle position of a voucher under approval.
type VoucherStatus string

const (
	StatusDraft               VoucherStatus = "draft"
	StatusPendingVerification VoucherStatus = "pending_verification"
	StatusVerified            VoucherStatus = "verified"
	StatusPendingApproval     VoucherStatus = "pending_approval"
	StatusApproved            VoucherStatus = "approved"
	StatusRejected            VoucherStatus = "rejected"
	StatusCompleted           VoucherStatus = "completed"
)

var allStatuses = []VoucherStatus{
	StatusDraft, StatusPendingVerification, StatusVerified, StatusPendingApproval,
	StatusApproved, StatusRejected, StatusCompleted,
}

// transitions is the adjacency table of legal status changes. Terminal
// statuses have no outgoing edges.
var transitions = map[VoucherStatus][]VoucherStatus{
	StatusDraft:               {StatusPendingVerification},
	StatusPendingVerification: {StatusVerified, StatusPendingApproval, StatusRejected},
	StatusVerified:            {StatusPendingApproval, StatusCompleted, StatusRejected},
	StatusPendingApproval:     {StatusApproved, StatusRejected},
	StatusApproved:            {},
	StatusRejected:            {},
	StatusCompleted:           {},
}

// Statuses returns every status in lifecycle order.
func Statuses() []VoucherStatus {
	return append([]VoucherStatus(nil), allStatuses...)
}

func (s VoucherStatus) String() string { return string(s) }

func (s VoucherStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s VoucherStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// AwaitsAction reports whether a workflow in s is waiting on an approver.
func (s VoucherStatus) AwaitsAction() bool {
	return s == StatusPendingVerification || s == StatusPendingApproval
}

// ParseStatus validates a status name.
func ParseStatus(s string) (VoucherStatus, error) {
	status := VoucherStatus(s)
	if !status.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown voucher status %q", s)
	}
	return status, nil
}

// IsValidTransition reports whether from → to is a legal edge. An unknown
// from status has no edges.
func IsValidTransition(from, to VoucherStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal successors of from.
func NextStatuses(from VoucherStatus) []VoucherStatus {
	return append([]VoucherStatus(nil), transitions[from]...)
}
