package audit

import (
	"time"

	id "cdigit/pkg/domain"
)

// Entry is one audit log record. Success carries the outcome for every
// category: authenticated, granted, action applied, or signature verified.
type Entry struct {
	ID        id.EntryID `json:"id"`
	Category  Category   `json:"category"`
	Timestamp time.Time  `json:"timestamp"`

	ActorID  id.ActorID `json:"actorId,omitempty"`
	Role     string     `json:"role,omitempty"`
	Action   string     `json:"action"`
	Resource string     `json:"resource,omitempty"`
	Success  bool       `json:"success"`
	Reason   string     `json:"reason,omitempty"`

	VoucherID     id.VoucherID `json:"voucherId,omitempty"`
	WorkflowID    string       `json:"workflowId,omitempty"`
	FromStatus    string       `json:"fromStatus,omitempty"`
	ToStatus      string       `json:"toStatus,omitempty"`
	SignatureType string       `json:"signatureType,omitempty"`
	BindingHash   string       `json:"bindingHash,omitempty"`

	IPAddress string            `json:"ipAddress,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Device    string            `json:"device,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}
