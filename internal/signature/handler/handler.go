// Package handler exposes signature binding and verification over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cdigit/internal/policy"
	"cdigit/internal/signature"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/requestcontext"
)

// Service defines the signature operations the handler needs.
type Service interface {
	Bind(ctx context.Context, sig signature.Signature, voucher signature.Voucher, sigType signature.Type) (*signature.BoundSignature, error)
	Verify(ctx context.Context, bound *signature.BoundSignature, current signature.Voucher) (signature.VerifyResult, error)
	BindMultiple(ctx context.Context, reqs []signature.Request, voucher signature.Voucher) ([]signature.BoundSignature, error)
	VerifyAll(ctx context.Context, bound []signature.BoundSignature, current signature.Voucher) (signature.MultiResult, error)
	CreatePackage(ctx context.Context, voucher signature.Voucher, bound []signature.BoundSignature) (*signature.Package, error)
	VerifyPackage(ctx context.Context, pkg *signature.Package) (signature.PackageResult, error)
}

// Authorizer gates a route on permissions of the authenticated role.
type Authorizer interface {
	RequirePermission(perms ...policy.Permission) func(http.Handler) http.Handler
}

// Handler wires signature endpoints to the binding engine.
type Handler struct {
	service Service
	authz   Authorizer
	logger  *slog.Logger
}

// New constructs a signature handler with its dependencies.
func New(service Service, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{service: service, authz: authz, logger: logger}
}

// Register mounts signature endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	bind := h.authz.RequirePermission(policy.PermSignatureBind)
	verify := h.authz.RequirePermission(policy.PermSignatureVerify)

	r.Route("/signatures", func(r chi.Router) {
		r.With(bind).Post("/bind", h.HandleBind)
		r.With(bind).Post("/bind-multiple", h.HandleBindMultiple)
		r.With(bind).Post("/packages", h.HandleCreatePackage)
		r.With(verify).Post("/verify", h.HandleVerify)
		r.With(verify).Post("/verify-all", h.HandleVerifyAll)
		r.With(verify).Post("/packages/verify", h.HandleVerifyPackage)
	})
}

type boundSignaturesResponse struct {
	BoundSignatures []signature.BoundSignature `json:"boundSignatures"`
}

// HandleBind handles POST /signatures/bind.
func (h *Handler) HandleBind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[BindRequest](w, r, h.logger)
	if !ok {
		return
	}

	bound, err := h.service.Bind(ctx, withSigner(ctx, req.Signature), req.Voucher, req.parsedType)
	if err != nil {
		h.fail(ctx, w, "bind signature failed", err)
		return
	}
	h.logger.InfoContext(ctx, "signature bound",
		"request_id", requestcontext.RequestID(ctx),
		"voucher_id", bound.Metadata.VoucherID,
		"signature_type", bound.Metadata.SignatureType,
	)
	httputil.WriteJSON(w, http.StatusCreated, bound)
}

// HandleVerify handles POST /signatures/verify. A mismatch is a normal 200
// answer with valid set to false.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, req.BoundSignature, req.Voucher)
	if err != nil {
		h.fail(ctx, w, "verify signature failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleBindMultiple handles POST /signatures/bind-multiple.
func (h *Handler) HandleBindMultiple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[BindMultipleRequest](w, r, h.logger)
	if !ok {
		return
	}

	reqs := make([]signature.Request, len(req.Signatures))
	for i, s := range req.Signatures {
		reqs[i] = signature.Request{Signature: withSigner(ctx, s.Signature), Type: s.Type}
	}
	bound, err := h.service.BindMultiple(ctx, reqs, req.Voucher)
	if err != nil {
		h.fail(ctx, w, "bind signatures failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, boundSignaturesResponse{BoundSignatures: bound})
}

// HandleVerifyAll handles POST /signatures/verify-all.
func (h *Handler) HandleVerifyAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[VerifyAllRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.VerifyAll(ctx, req.BoundSignatures, req.Voucher)
	if err != nil {
		h.fail(ctx, w, "verify signatures failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCreatePackage handles POST /signatures/packages.
func (h *Handler) HandleCreatePackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[CreatePackageRequest](w, r, h.logger)
	if !ok {
		return
	}

	pkg, err := h.service.CreatePackage(ctx, req.Voucher, req.BoundSignatures)
	if err != nil {
		h.fail(ctx, w, "create signature package failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pkg)
}

// HandleVerifyPackage handles POST /signatures/packages/verify.
func (h *Handler) HandleVerifyPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[VerifyPackageRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.VerifyPackage(ctx, req.Package)
	if err != nil {
		h.fail(ctx, w, "verify signature package failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
