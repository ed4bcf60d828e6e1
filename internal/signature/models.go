package signature

import (
	"fmt"
	"strings"
	"time"

	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
)

// Type is the capacity in which a party signs.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeTeller   Type = "teller"
	TypeApprover Type = "approver"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeCustomer, TypeTeller, TypeApprover:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown signature type %q", s)
	}
	return t, nil
}

// Signature is a captured signature. Data is an opaque payload reference
// such as an encoded image or a storage key.
type Signature struct {
	Data      string     `json:"data"`
	ActorID   id.ActorID `json:"actorId"`
	ActorRole string     `json:"actorRole"`
	Timestamp time.Time  `json:"timestamp"`
}

func (s Signature) validate() error {
	if strings.TrimSpace(s.Data) == "" {
		return dErrors.New(dErrors.CodeValidation, "signature data is required")
	}
	if s.ActorID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "signature actor is required")
	}
	return nil
}

// Voucher is the field set a signature is bound to.
type Voucher map[string]any

// ID returns the "id" field as a voucher id.
func (v Voucher) ID() (id.VoucherID, error) {
	raw, ok := v["id"]
	if !ok || raw == nil {
		return "", dErrors.New(dErrors.CodeValidation, "voucher id is required")
	}
	return id.ParseVoucherID(fmt.Sprint(raw))
}

// Clone deep-copies nested objects and arrays so the copy shares no
// mutable state with v.
func (v Voucher) Clone() Voucher {
	if v == nil {
		return nil
	}
	return cloneValue(map[string]any(v)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Voucher:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Binding ties a signature hash to a voucher hash at a point in time.
type Binding struct {
	SignatureHash string    `json:"signatureHash"`
	VoucherHash   string    `json:"voucherHash"`
	BindingHash   string    `json:"bindingHash"`
	Timestamp     time.Time `json:"timestamp"`
	Algorithm     Algorithm `json:"algorithm"`
}

// Metadata records who bound the signature and in what capacity.
type Metadata struct {
	ActorID       id.ActorID   `json:"actorId"`
	ActorRole     string       `json:"actorRole"`
	SignatureType Type         `json:"signatureType"`
	VoucherID     id.VoucherID `json:"voucherId"`
	Timestamp     time.Time    `json:"timestamp"`
}

// BoundSignature is immutable once created.
type BoundSignature struct {
	Signature Signature `json:"signature"`
	Binding   Binding   `json:"binding"`
	Metadata  Metadata  `json:"metadata"`
}

// Verification failure reasons, checked in this order.
const (
	ReasonSignatureTampered  = "signature tampered"
	ReasonVoucherModified    = "voucher modified"
	ReasonBindingCompromised = "binding compromised"
	ReasonUnsupported        = "unsupported algorithm"
)

// VerifyResult is a pass/fail judgement on one binding.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Err returns a crypto mismatch error for an invalid result, nil otherwise.
func (r VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return dErrors.New(dErrors.CodeCryptoMismatch, r.Reason)
}

// Request is one signature to bind as part of a multi-party signing.
type Request struct {
	Signature Signature `json:"signature"`
	Type      Type      `json:"signatureType"`
}

// SignatureResult is the verification outcome of one signature in a set.
type SignatureResult struct {
	SignatureType Type       `json:"signatureType"`
	ActorID       id.ActorID `json:"actorId"`
	VerifyResult
}

// MultiResult aggregates verification across several signatures. ByType
// holds the first failure of a type, or a pass when every one passed.
type MultiResult struct {
	AllValid bool                  `json:"allValid"`
	Results  []SignatureResult     `json:"results"`
	ByType   map[Type]VerifyResult `json:"byType"`
}

// Package is a voucher snapshot co-signed by several parties.
type Package struct {
	Voucher     Voucher          `json:"voucher"`
	Signatures  []BoundSignature `json:"signatures"`
	PackageHash string           `json:"packageHash"`
	CreatedAt   time.Time        `json:"createdAt"`
	Algorithm   Algorithm        `json:"algorithm"`
}

// PackageResult reports the package hash check and every contained binding.
type PackageResult struct {
	Valid            bool        `json:"valid"`
	PackageHashValid bool        `json:"packageHashValid"`
	Signatures       MultiResult `json:"signatures"`
}
