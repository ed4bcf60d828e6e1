package handler

import (
	"strings"
	"time"

	"cdigit/internal/policy"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
)

// CreateWorkflowRequest is the HTTP request body for POST /workflows.
type CreateWorkflowRequest struct {
	VoucherID   string              `json:"voucherId"`
	VoucherType string              `json:"voucherType"`
	Transaction *TransactionRequest `json:"transaction,omitempty"`

	parsedVoucherID id.VoucherID
}

// TransactionRequest carries the monetary context of a voucher.
type TransactionRequest struct {
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Segment  string  `json:"segment"`
}

// Validate trims and parses the request.
func (r *CreateWorkflowRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	voucherID, err := id.ParseVoucherID(strings.TrimSpace(r.VoucherID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid voucherId")
	}
	r.parsedVoucherID = voucherID

	r.VoucherType = strings.TrimSpace(r.VoucherType)
	if r.VoucherType == "" {
		return dErrors.New(dErrors.CodeValidation, "voucherType is required")
	}
	if len(r.VoucherType) > 64 {
		return dErrors.New(dErrors.CodeValidation, "voucherType must be at most 64 characters")
	}

	if r.Transaction != nil {
		tx := r.Transaction
		tx.Type = strings.ToLower(strings.TrimSpace(tx.Type))
		tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
		tx.Segment = strings.ToLower(strings.TrimSpace(tx.Segment))
		if tx.Amount < 0 {
			return dErrors.New(dErrors.CodeValidation, "transaction.amount cannot be negative")
		}
	}
	return nil
}

func (r *CreateWorkflowRequest) toTransaction() *models.Transaction {
	if r.Transaction == nil {
		return nil
	}
	return &models.Transaction{
		Type:     policy.TransactionType(r.Transaction.Type),
		Amount:   r.Transaction.Amount,
		Currency: r.Transaction.Currency,
		Segment:  policy.Segment(r.Transaction.Segment),
	}
}

// ApprovalActionRequest is the HTTP request body for
// POST /workflows/{voucherID}/actions.
type ApprovalActionRequest struct {
	Action           string `json:"action"`
	Reason           string `json:"reason,omitempty"`
	SignatureBinding string `json:"signatureBinding,omitempty"`

	parsedAction models.Action
}

// Validate parses the action. Whether a reason is needed is the service's
// call.
func (r *ApprovalActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	action, err := models.ParseAction(r.Action)
	if err != nil {
		return err
	}
	r.parsedAction = action
	r.Reason = strings.TrimSpace(r.Reason)
	r.SignatureBinding = strings.TrimSpace(r.SignatureBinding)
	if len(r.Reason) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1024 characters")
	}
	return nil
}

// parseTimeParam reads an optional RFC 3339 query value.
func parseTimeParam(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
