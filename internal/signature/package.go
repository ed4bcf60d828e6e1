package signature

import (
	"context"
	"time"

	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
)

type packageSignature struct {
	SignatureType Type   `json:"signatureType"`
	BindingHash   string `json:"bindingHash"`
}

func packageHash(alg Algorithm, voucher Voucher, bound []BoundSignature, createdAt time.Time) (string, error) {
	sigs := make([]packageSignature, len(bound))
	for i, b := range bound {
		sigs[i] = packageSignature{SignatureType: b.Metadata.SignatureType, BindingHash: b.Binding.BindingHash}
	}
	return alg.hashCanonical(map[string]any{
		"voucher":    map[string]any(voucher),
		"signatures": sigs,
		"createdAt":  formatISO(createdAt),
	})
}

// CreatePackage wraps a voucher snapshot and its bindings under one hash.
func (e *Engine) CreatePackage(ctx context.Context, voucher Voucher, bound []BoundSignature) (*Package, error) {
	if len(voucher) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	if _, err := voucher.ID(); err != nil {
		return nil, err
	}
	if len(bound) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one bound signature is required")
	}

	voucher = voucher.Clone()
	createdAt := requestcontext.Now(ctx).UTC().Truncate(time.Millisecond)
	hash, err := packageHash(e.algorithm, voucher, bound, createdAt)
	if err != nil {
		return nil, err
	}
	return &Package{
		Voucher:     voucher,
		Signatures:  append([]BoundSignature(nil), bound...),
		PackageHash: hash,
		CreatedAt:   createdAt,
		Algorithm:   e.algorithm,
	}, nil
}

// VerifyPackage recomputes the package hash and verifies every binding
// against the packaged voucher snapshot.
func (e *Engine) VerifyPackage(ctx context.Context, pkg *Package) (PackageResult, error) {
	if pkg == nil || len(pkg.Voucher) == 0 || len(pkg.Signatures) == 0 {
		return PackageResult{}, dErrors.New(dErrors.CodeValidation, "package with voucher and signatures is required")
	}

	alg := pkg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	hashValid := false
	if alg.IsValid() {
		hash, err := packageHash(alg, pkg.Voucher, pkg.Signatures, pkg.CreatedAt)
		hashValid = err == nil && hash == pkg.PackageHash
	}

	sigs, err := e.VerifyAll(ctx, pkg.Signatures, pkg.Voucher)
	if err != nil {
		return PackageResult{}, err
	}
	return PackageResult{
		Valid:            hashValid && sigs.AllValid,
		PackageHashValid: hashValid,
		Signatures:       sigs,
	}, nil
}
