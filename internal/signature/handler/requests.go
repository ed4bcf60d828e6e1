package handler

import (
	"context"
	"strings"

	"cdigit/internal/signature"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
)

const maxSignaturesPerRequest = 16

// BindRequest is the HTTP request body for POST /signatures/bind.
type BindRequest struct {
	Signature     signature.Signature `json:"signature"`
	Voucher       signature.Voucher   `json:"voucher"`
	SignatureType string              `json:"signatureType"`

	parsedType signature.Type
}

func (r *BindRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Voucher) == 0 {
		return dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	t, err := signature.ParseType(r.SignatureType)
	if err != nil {
		return err
	}
	r.parsedType = t
	return nil
}

// VerifyRequest is the HTTP request body for POST /signatures/verify.
type VerifyRequest struct {
	BoundSignature *signature.BoundSignature `json:"boundSignature"`
	Voucher        signature.Voucher         `json:"voucher"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.BoundSignature == nil {
		return dErrors.New(dErrors.CodeValidation, "boundSignature is required")
	}
	if len(r.Voucher) == 0 {
		return dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	return nil
}

// BindMultipleRequest is the HTTP request body for POST /signatures/bind-multiple.
type BindMultipleRequest struct {
	Signatures []signature.Request `json:"signatures"`
	Voucher    signature.Voucher   `json:"voucher"`
}

func (r *BindMultipleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Signatures) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one signature is required")
	}
	if len(r.Signatures) > maxSignaturesPerRequest {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d signatures per request", maxSignaturesPerRequest)
	}
	if len(r.Voucher) == 0 {
		return dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	for i := range r.Signatures {
		t, err := signature.ParseType(string(r.Signatures[i].Type))
		if err != nil {
			return err
		}
		r.Signatures[i].Type = t
	}
	return nil
}

// VerifyAllRequest is the HTTP request body for POST /signatures/verify-all.
type VerifyAllRequest struct {
	BoundSignatures []signature.BoundSignature `json:"boundSignatures"`
	Voucher         signature.Voucher          `json:"voucher"`
}

func (r *VerifyAllRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.BoundSignatures) > maxSignaturesPerRequest {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d signatures per request", maxSignaturesPerRequest)
	}
	if len(r.Voucher) == 0 {
		return dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	return nil
}

// CreatePackageRequest is the HTTP request body for POST /signatures/packages.
type CreatePackageRequest struct {
	Voucher         signature.Voucher          `json:"voucher"`
	BoundSignatures []signature.BoundSignature `json:"boundSignatures"`
}

func (r *CreatePackageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Voucher) == 0 {
		return dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	if len(r.BoundSignatures) > maxSignaturesPerRequest {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d signatures per request", maxSignaturesPerRequest)
	}
	return nil
}

// VerifyPackageRequest is the HTTP request body for POST /signatures/packages/verify.
type VerifyPackageRequest struct {
	Package *signature.Package `json:"package"`
}

func (r *VerifyPackageRequest) Validate() error {
	if r == nil || r.Package == nil {
		return dErrors.New(dErrors.CodeValidation, "package is required")
	}
	return nil
}

// withSigner fills the signer from the authenticated caller when the body
// leaves it out, and stamps the request time when no capture time is given.
func withSigner(ctx context.Context, sig signature.Signature) signature.Signature {
	if sig.ActorID.IsZero() {
		sig.ActorID = requestcontext.ActorID(ctx)
		if strings.TrimSpace(sig.ActorRole) == "" {
			sig.ActorRole = requestcontext.ActorRole(ctx)
		}
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = requestcontext.Now(ctx)
	}
	return sig
}
