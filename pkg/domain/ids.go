package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "cdigit/pkg/domain-errors"
)

// maxExternalIDLength bounds identifiers supplied by callers (voucher ids, actor ids).
const maxExternalIDLength = 128

// WorkflowID identifies an approval workflow. Generated by the engine.
type WorkflowID uuid.UUID

// EntryID identifies a single audit log entry.
type EntryID uuid.UUID

// VoucherID is the caller-supplied identity of a voucher.
type VoucherID string

// ActorID is the caller-supplied identity of the person acting.
type ActorID string

func NewWorkflowID() WorkflowID { return WorkflowID(uuid.New()) }

func NewEntryID() EntryID { return EntryID(uuid.New()) }

func (id WorkflowID) String() string { return uuid.UUID(id).String() }
func (id WorkflowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id WorkflowID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *WorkflowID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id EntryID) String() string { return uuid.UUID(id).String() }

func (id EntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EntryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id VoucherID) String() string { return string(id) }
func (id VoucherID) IsZero() bool   { return id == "" }

func (id ActorID) String() string { return string(id) }
func (id ActorID) IsZero() bool   { return id == "" }

// ParseWorkflowID parses a non-nil UUID workflow id.
func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID(s, "workflow ID")
	return WorkflowID(u), err
}

// ParseVoucherID validates a caller-supplied voucher id.
func ParseVoucherID(s string) (VoucherID, error) {
	v, err := parseExternalID(s, "voucher ID")
	return VoucherID(v), err
}

// ParseActorID validates a caller-supplied actor id.
func ParseActorID(s string) (ActorID, error) {
	v, err := parseExternalID(s, "actor ID")
	return ActorID(v), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be nil")
	}
	return u, nil
}

// parseExternalID accepts printable, non-blank identifiers of bounded length.
func parseExternalID(s, label string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	if len(s) > maxExternalIDLength {
		return "", dErrors.New(dErrors.CodeValidation, label+" is too long")
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeValidation, "invalid "+label)
		}
	}
	return s, nil
}
