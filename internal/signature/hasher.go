package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	dErrors "cdigit/pkg/domain-errors"
)

// Algorithm identifies the digest used for a binding.
type Algorithm string

const (
	AlgorithmSHA256     Algorithm = "SHA-256"
	AlgorithmSHA3256    Algorithm = "SHA3-256"
	AlgorithmBLAKE2b256 Algorithm = "BLAKE2b-256"

	DefaultAlgorithm = AlgorithmSHA256
)

// isoLayout is the millisecond-precision UTC form used inside hashed payloads.
const isoLayout = "2006-01-02T15:04:05.000Z"

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func (a Algorithm) String() string { return string(a) }

func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmSHA256, AlgorithmSHA3256, AlgorithmBLAKE2b256:
		return true
	}
	return false
}

// ParseAlgorithm defaults an empty value to SHA-256.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(s)
	if !a.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported hash algorithm %q", s)
	}
	return a, nil
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmSHA3256:
		return sha3.New256(), nil
	case AlgorithmBLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported hash algorithm %q", a)
	}
}

// Sum returns the lowercase hex digest of data.
func (a Algorithm) Sum(data []byte) (string, error) {
	h, err := a.newHash()
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize serializes v as JSON with every object's keys sorted
// lexicographically at every depth. Numbers keep their literal form, so
// values that decode identically hash identically regardless of field order.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode for canonicalization: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode canonical form: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (a Algorithm) hashCanonical(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "value cannot be canonicalized")
	}
	return a.Sum(canonical)
}

// HashSignature digests the signature payload reference, actor and timestamp.
func (a Algorithm) HashSignature(sig Signature) (string, error) {
	return a.hashCanonical(map[string]any{
		"signature": sig.Data,
		"actorId":   sig.ActorID.String(),
		"actorRole": sig.ActorRole,
		"timestamp": formatISO(sig.Timestamp),
	})
}

// HashVoucher digests the voucher fields independent of key order.
func (a Algorithm) HashVoucher(v Voucher) (string, error) {
	return a.hashCanonical(map[string]any(v))
}

// BindingHash combines the two component hashes with the binding time.
func (a Algorithm) BindingHash(signatureHash, voucherHash string, ts time.Time) (string, error) {
	return a.Sum([]byte(signatureHash + ":" + voucherHash + ":" + formatISO(ts)))
}
