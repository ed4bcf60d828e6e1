package signature

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cdigit/internal/audit"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
)

// BindMultiple binds every request to the same voucher. Inputs are
// validated up front so either all signatures bind or none do.
func (e *Engine) BindMultiple(ctx context.Context, reqs []Request, voucher Voucher) ([]BoundSignature, error) {
	ctx, span := e.tracer.Start(ctx, "signature.BindMultiple")
	defer span.End()

	if len(reqs) == 0 {
		err := dErrors.New(dErrors.CodeValidation, "at least one signature is required")
		recordSpanError(span, err)
		return nil, err
	}
	for _, r := range reqs {
		if _, err := validateBind(r.Signature, voucher, r.Type); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}

	voucherID, _ := voucher.ID()
	now := requestcontext.Now(ctx)
	bound := make([]BoundSignature, 0, len(reqs))
	for _, r := range reqs {
		b, err := e.bind(now, r.Signature, voucher, voucherID, r.Type)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		bound = append(bound, *b)
	}

	for _, b := range bound {
		e.metrics.IncSignatureBound(b.Metadata.SignatureType.String())
		e.record(ctx, audit.Entry{
			ActorID:       b.Metadata.ActorID,
			Role:          b.Metadata.ActorRole,
			Action:        "bind_signature",
			Resource:      "voucher:" + voucherID.String(),
			Success:       true,
			VoucherID:     voucherID,
			SignatureType: b.Metadata.SignatureType.String(),
			BindingHash:   b.Binding.BindingHash,
			Metadata:      map[string]string{"algorithm": e.algorithm.String()},
		})
	}
	return bound, nil
}

// VerifyAll verifies every binding against the same voucher. Hash checks run
// in parallel; results keep input order.
func (e *Engine) VerifyAll(ctx context.Context, bound []BoundSignature, current Voucher) (MultiResult, error) {
	if len(bound) == 0 {
		return MultiResult{}, dErrors.New(dErrors.CodeValidation, "at least one bound signature is required")
	}
	if len(current) == 0 {
		return MultiResult{}, dErrors.New(dErrors.CodeValidation, "voucher is required")
	}

	results := make([]SignatureResult, len(bound))
	var g errgroup.Group
	for i := range bound {
		g.Go(func() error {
			r, err := e.Verify(ctx, &bound[i], current)
			if err != nil {
				return err
			}
			results[i] = SignatureResult{
				SignatureType: bound[i].Metadata.SignatureType,
				ActorID:       bound[i].Metadata.ActorID,
				VerifyResult:  r,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MultiResult{}, err
	}
	return aggregate(results), nil
}

func aggregate(results []SignatureResult) MultiResult {
	out := MultiResult{AllValid: true, Results: results, ByType: make(map[Type]VerifyResult)}
	for _, r := range results {
		prev, seen := out.ByType[r.SignatureType]
		if !seen || (prev.Valid && !r.Valid) {
			out.ByType[r.SignatureType] = r.VerifyResult
		}
		if !r.Valid {
			out.AllValid = false
		}
	}
	return out
}
