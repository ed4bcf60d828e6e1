// Package signature binds captured signatures to voucher content and
// verifies the bindings. Hashing is pure; every bind and every verification
// is written to the signature-binding audit log.
package signature

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cdigit/internal/audit"
	"cdigit/internal/platform/metrics"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
)

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Engine produces and verifies bindings.
type Engine struct {
	algorithm Algorithm
	auditor   Auditor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithAuditor(a Auditor) Option {
	return func(e *Engine) {
		e.auditor = a
	}
}

// WithAlgorithm selects the digest for new bindings. Verification always
// uses the algorithm recorded in the binding.
func WithAlgorithm(a Algorithm) Option {
	return func(e *Engine) {
		if a.IsValid() {
			e.algorithm = a
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		algorithm: DefaultAlgorithm,
		logger:    slog.Default(),
		tracer:    otel.Tracer("cdigit/internal/signature"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Algorithm returns the digest used for new bindings.
func (e *Engine) Algorithm() Algorithm { return e.algorithm }

// HashSignature digests a signature with the engine's algorithm.
func (e *Engine) HashSignature(sig Signature) (string, error) {
	return e.algorithm.HashSignature(sig)
}

// HashVoucher digests a voucher with the engine's algorithm.
func (e *Engine) HashVoucher(v Voucher) (string, error) {
	return e.algorithm.HashVoucher(v)
}

// Bind binds sig to voucher in the capacity sigType. A signature without a
// timestamp is stamped with the binding time.
func (e *Engine) Bind(ctx context.Context, sig Signature, voucher Voucher, sigType Type) (*BoundSignature, error) {
	ctx, span := e.tracer.Start(ctx, "signature.Bind")
	defer span.End()

	voucherID, err := validateBind(sig, voucher, sigType)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("voucher.id", voucherID.String()),
		attribute.String("signature.type", sigType.String()),
	)

	bound, err := e.bind(requestcontext.Now(ctx), sig, voucher, voucherID, sigType)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	e.metrics.IncSignatureBound(sigType.String())
	e.record(ctx, audit.Entry{
		ActorID:       bound.Metadata.ActorID,
		Role:          bound.Metadata.ActorRole,
		Action:        "bind_signature",
		Resource:      "voucher:" + voucherID.String(),
		Success:       true,
		VoucherID:     voucherID,
		SignatureType: sigType.String(),
		BindingHash:   bound.Binding.BindingHash,
		Metadata:      map[string]string{"algorithm": e.algorithm.String()},
	})
	return bound, nil
}

func validateBind(sig Signature, voucher Voucher, sigType Type) (id.VoucherID, error) {
	if err := sig.validate(); err != nil {
		return "", err
	}
	if !sigType.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown signature type %q", sigType)
	}
	if len(voucher) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	return voucher.ID()
}

func (e *Engine) bind(now time.Time, sig Signature, voucher Voucher, voucherID id.VoucherID, sigType Type) (*BoundSignature, error) {
	ts := now.UTC().Truncate(time.Millisecond)
	if sig.Timestamp.IsZero() {
		sig.Timestamp = ts
	}
	sig.Timestamp = sig.Timestamp.UTC().Truncate(time.Millisecond)

	sigHash, err := e.algorithm.HashSignature(sig)
	if err != nil {
		return nil, err
	}
	voucherHash, err := e.algorithm.HashVoucher(voucher)
	if err != nil {
		return nil, err
	}
	bindingHash, err := e.algorithm.BindingHash(sigHash, voucherHash, ts)
	if err != nil {
		return nil, err
	}

	return &BoundSignature{
		Signature: sig,
		Binding: Binding{
			SignatureHash: sigHash,
			VoucherHash:   voucherHash,
			BindingHash:   bindingHash,
			Timestamp:     ts,
			Algorithm:     e.algorithm,
		},
		Metadata: Metadata{
			ActorID:       sig.ActorID,
			ActorRole:     sig.ActorRole,
			SignatureType: sigType,
			VoucherID:     voucherID,
			Timestamp:     ts,
		},
	}, nil
}

// Verify checks bound against the current voucher content: signature
// integrity first, then voucher integrity, then the composite hash. The
// first failing check decides the reason. Every call is audited.
func (e *Engine) Verify(ctx context.Context, bound *BoundSignature, current Voucher) (VerifyResult, error) {
	ctx, span := e.tracer.Start(ctx, "signature.Verify")
	defer span.End()

	if bound == nil {
		err := dErrors.New(dErrors.CodeValidation, "bound signature is required")
		recordSpanError(span, err)
		return VerifyResult{}, err
	}
	if len(current) == 0 {
		err := dErrors.New(dErrors.CodeValidation, "voucher is required")
		recordSpanError(span, err)
		return VerifyResult{}, err
	}

	result := check(bound, current)
	span.SetAttributes(
		attribute.String("voucher.id", bound.Metadata.VoucherID.String()),
		attribute.Bool("binding.valid", result.Valid),
	)

	e.metrics.IncSignatureVerification(result.Valid)
	e.record(ctx, audit.Entry{
		ActorID:       requestcontext.ActorID(ctx),
		Role:          requestcontext.ActorRole(ctx),
		Action:        "verify_binding",
		Resource:      "voucher:" + bound.Metadata.VoucherID.String(),
		Success:       result.Valid,
		Reason:        result.Reason,
		VoucherID:     bound.Metadata.VoucherID,
		SignatureType: bound.Metadata.SignatureType.String(),
		BindingHash:   bound.Binding.BindingHash,
		Metadata:      map[string]string{"signer": bound.Metadata.ActorID.String()},
	})
	if !result.Valid {
		e.logger.WarnContext(ctx, "signature binding verification failed",
			"voucher_id", bound.Metadata.VoucherID,
			"signature_type", bound.Metadata.SignatureType,
			"reason", result.Reason,
		)
	}
	return result, nil
}

// check is the pure verification judgement.
func check(bound *BoundSignature, current Voucher) VerifyResult {
	alg := bound.Binding.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	if !alg.IsValid() {
		return VerifyResult{Reason: ReasonUnsupported}
	}

	sigHash, err := alg.HashSignature(bound.Signature)
	if err != nil || sigHash != bound.Binding.SignatureHash {
		return VerifyResult{Reason: ReasonSignatureTampered}
	}
	voucherHash, err := alg.HashVoucher(current)
	if err != nil || voucherHash != bound.Binding.VoucherHash {
		return VerifyResult{Reason: ReasonVoucherModified}
	}
	bindingHash, err := alg.BindingHash(sigHash, voucherHash, bound.Binding.Timestamp)
	if err != nil || bindingHash != bound.Binding.BindingHash {
		return VerifyResult{Reason: ReasonBindingCompromised}
	}
	return VerifyResult{Valid: true}
}

func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if e.auditor == nil {
		return
	}
	entry.Category = audit.CategorySignatureBinding
	if _, err := e.auditor.Record(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to record signature audit entry",
			"action", entry.Action, "voucher_id", entry.VoucherID, "error", err)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
