package signature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cdigit/internal/audit"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	trail  *audit.Trail
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 10, 8, 30, 0, 123456789, time.UTC))
	s.trail = audit.NewTrail(100)
	s.engine = New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(s.trail),
	)
}

func testVoucher() Voucher {
	return Voucher{
		"id":              "V-100",
		"transactionType": "withdrawal",
		"amount":          750000,
		"currency":        "ETB",
		"customer":        map[string]any{"name": "Abebe", "segment": "normal"},
	}
}

func tellerSignature() Signature {
	return Signature{Data: "data:image/png;base64,iVBORw0KGgo", ActorID: "teller-7", ActorRole: "Maker"}
}

func (s *EngineSuite) TestRoundTrip() {
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
	s.Require().NoError(err)

	s.Equal(AlgorithmSHA256, bound.Binding.Algorithm)
	s.Len(bound.Binding.BindingHash, 64)
	s.Equal(time.Date(2026, 2, 10, 8, 30, 0, 123000000, time.UTC), bound.Binding.Timestamp)
	s.Equal(bound.Binding.Timestamp, bound.Signature.Timestamp, "unset signature time takes the binding time")
	s.Equal(TypeTeller, bound.Metadata.SignatureType)

	result, err := s.engine.Verify(s.ctx, bound, testVoucher())
	s.Require().NoError(err)
	s.True(result.Valid)
	s.NoError(result.Err())

	entries := s.trail.SignatureBinding(audit.Filter{})
	s.Require().Len(entries, 2)
	s.Equal("verify_binding", entries[0].Action)
	s.True(entries[0].Success)
	s.Equal("bind_signature", entries[1].Action)
	s.Equal(bound.Binding.BindingHash, entries[1].BindingHash)
}

func (s *EngineSuite) TestRoundTripSurvivesJSON() {
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
	s.Require().NoError(err)

	raw, err := json.Marshal(bound)
	s.Require().NoError(err)
	var decoded BoundSignature
	s.Require().NoError(json.Unmarshal(raw, &decoded))

	rawVoucher, err := json.Marshal(testVoucher())
	s.Require().NoError(err)
	var voucher Voucher
	s.Require().NoError(json.Unmarshal(rawVoucher, &voucher))

	result, err := s.engine.Verify(s.ctx, &decoded, voucher)
	s.Require().NoError(err)
	s.True(result.Valid)
}

func (s *EngineSuite) TestAnySingleFieldMutationIsVoucherModified() {
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
	s.Require().NoError(err)

	mutations := map[string]func(Voucher){
		"amount":        func(v Voucher) { v["amount"] = 750001 },
		"currency":      func(v Voucher) { v["currency"] = "USD" },
		"nested field":  func(v Voucher) { v["customer"] = map[string]any{"name": "Abebe", "segment": "vip"} },
		"added field":   func(v Voucher) { v["memo"] = "x" },
		"removed field": func(v Voucher) { delete(v, "transactionType") },
	}
	for name, mutate := range mutations {
		s.Run(name, func() {
			v := testVoucher()
			mutate(v)
			result, err := s.engine.Verify(s.ctx, bound, v)
			s.Require().NoError(err)
			s.False(result.Valid)
			s.Equal(ReasonVoucherModified, result.Reason)
			s.True(dErrors.HasCode(result.Err(), dErrors.CodeCryptoMismatch))
		})
	}

	failed := s.trail.SignatureBinding(audit.Filter{Success: audit.Bool(false)})
	s.Len(failed, len(mutations))
	s.Equal(ReasonVoucherModified, failed[0].Reason)
}

func (s *EngineSuite) TestTamperedSignatureIsCheckedFirst() {
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
	s.Require().NoError(err)

	tampered := *bound
	tampered.Signature.Data = "data:image/png;base64,forged"
	v := testVoucher()
	v["amount"] = 1

	result, err := s.engine.Verify(s.ctx, &tampered, v)
	s.Require().NoError(err)
	s.Equal(ReasonSignatureTampered, result.Reason)
}

func (s *EngineSuite) TestCompromisedBinding() {
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
	s.Require().NoError(err)

	s.Run("timestamp moved", func() {
		moved := *bound
		moved.Binding.Timestamp = moved.Binding.Timestamp.Add(time.Second)
		result, err := s.engine.Verify(s.ctx, &moved, testVoucher())
		s.Require().NoError(err)
		s.Equal(ReasonBindingCompromised, result.Reason)
	})

	s.Run("binding hash replaced", func() {
		replaced := *bound
		replaced.Binding.BindingHash = strings.Repeat("0", 64)
		result, err := s.engine.Verify(s.ctx, &replaced, testVoucher())
		s.Require().NoError(err)
		s.Equal(ReasonBindingCompromised, result.Reason)
	})
}

func (s *EngineSuite) TestBindValidation() {
	cases := map[string]struct {
		sig     Signature
		voucher Voucher
		typ     Type
	}{
		"missing actor":     {Signature{Data: "x"}, testVoucher(), TypeTeller},
		"missing data":      {Signature{ActorID: "a"}, testVoucher(), TypeTeller},
		"missing voucher":   {tellerSignature(), nil, TypeTeller},
		"missing voucherId": {tellerSignature(), Voucher{"amount": 1}, TypeTeller},
		"unknown type":      {tellerSignature(), testVoucher(), Type("witness")},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.engine.Bind(s.ctx, tc.sig, tc.voucher, tc.typ)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err)
		})
	}
	s.Zero(s.trail.Len(audit.CategorySignatureBinding), "rejected input is not logged as a binding")
}

func (s *EngineSuite) TestAlternateAlgorithms() {
	for _, alg := range []Algorithm{AlgorithmSHA3256, AlgorithmBLAKE2b256} {
		s.Run(alg.String(), func() {
			engine := New(WithAlgorithm(alg))
			bound, err := engine.Bind(s.ctx, tellerSignature(), testVoucher(), TypeTeller)
			s.Require().NoError(err)
			s.Equal(alg, bound.Binding.Algorithm)

			result, err := s.engine.Verify(s.ctx, bound, testVoucher())
			s.Require().NoError(err)
			s.True(result.Valid, "verification follows the recorded algorithm")
		})
	}
}

func (s *EngineSuite) TestVerifyAll() {
	reqs := []Request{
		{Signature: Signature{Data: "cust-sig", ActorID: "cust-1", ActorRole: "Customer"}, Type: TypeCustomer},
		{Signature: tellerSignature(), Type: TypeTeller},
		{Signature: Signature{Data: "mgr-sig", ActorID: "mgr-1", ActorRole: "Manager"}, Type: TypeApprover},
	}
	bound, err := s.engine.BindMultiple(s.ctx, reqs, testVoucher())
	s.Require().NoError(err)
	s.Require().Len(bound, 3)

	s.Run("all valid", func() {
		result, err := s.engine.VerifyAll(s.ctx, bound, testVoucher())
		s.Require().NoError(err)
		s.True(result.AllValid)
		s.Len(result.Results, 3)
		s.Equal(TypeCustomer, result.Results[0].SignatureType)
		s.True(result.ByType[TypeApprover].Valid)
	})

	s.Run("one tampered", func() {
		tampered := append([]BoundSignature(nil), bound...)
		tampered[1].Signature.ActorID = "teller-8"
		result, err := s.engine.VerifyAll(s.ctx, tampered, testVoucher())
		s.Require().NoError(err)
		s.False(result.AllValid)
		s.Equal(ReasonSignatureTampered, result.ByType[TypeTeller].Reason)
		s.True(result.ByType[TypeCustomer].Valid)
	})

	s.Run("bind multiple is all or nothing", func() {
		before := s.trail.Len(audit.CategorySignatureBinding)
		bad := append(reqs[:1:1], Request{Signature: Signature{Data: "x"}, Type: TypeTeller})
		_, err := s.engine.BindMultiple(s.ctx, bad, testVoucher())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(before, s.trail.Len(audit.CategorySignatureBinding))
	})
}

func (s *EngineSuite) TestPackage() {
	reqs := []Request{
		{Signature: Signature{Data: "cust-sig", ActorID: "cust-1", ActorRole: "Customer"}, Type: TypeCustomer},
		{Signature: tellerSignature(), Type: TypeTeller},
	}
	bound, err := s.engine.BindMultiple(s.ctx, reqs, testVoucher())
	s.Require().NoError(err)

	pkg, err := s.engine.CreatePackage(s.ctx, testVoucher(), bound)
	s.Require().NoError(err)
	s.NotEmpty(pkg.PackageHash)

	s.Run("intact package verifies", func() {
		raw, err := json.Marshal(pkg)
		s.Require().NoError(err)
		var decoded Package
		s.Require().NoError(json.Unmarshal(raw, &decoded))

		result, err := s.engine.VerifyPackage(s.ctx, &decoded)
		s.Require().NoError(err)
		s.True(result.Valid)
		s.True(result.PackageHashValid)
		s.True(result.Signatures.AllValid)
	})

	s.Run("reordered signatures break the package hash only", func() {
		swapped := *pkg
		swapped.Signatures = []BoundSignature{pkg.Signatures[1], pkg.Signatures[0]}
		result, err := s.engine.VerifyPackage(s.ctx, &swapped)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.False(result.PackageHashValid)
		s.True(result.Signatures.AllValid)
	})

	s.Run("modified voucher snapshot fails both", func() {
		modified := *pkg
		modified.Voucher = testVoucher()
		modified.Voucher["amount"] = 10
		result, err := s.engine.VerifyPackage(s.ctx, &modified)
		s.Require().NoError(err)
		s.False(result.PackageHashValid)
		s.False(result.Signatures.AllValid)
		s.Equal(ReasonVoucherModified, result.Signatures.ByType[TypeCustomer].Reason)
	})
}

func (s *EngineSuite) TestPackageIsDetachedFromCallerVoucher() {
	voucher := testVoucher()
	bound, err := s.engine.Bind(s.ctx, tellerSignature(), voucher, TypeTeller)
	s.Require().NoError(err)
	pkg, err := s.engine.CreatePackage(s.ctx, voucher, []BoundSignature{*bound})
	s.Require().NoError(err)

	voucher["amount"] = 1
	voucher["customer"].(map[string]any)["segment"] = "vip"

	s.Equal(750000, pkg.Voucher["amount"])
	s.Equal("normal", pkg.Voucher["customer"].(map[string]any)["segment"])
	result, err := s.engine.VerifyPackage(s.ctx, pkg)
	s.Require().NoError(err)
	s.True(result.Valid)
}

func TestVoucherCloneIsDeep(t *testing.T) {
	original := Voucher{"id": "V-1", "lines": []any{map[string]any{"amount": 5}}}
	clone := original.Clone()
	clone["lines"].([]any)[0].(map[string]any)["amount"] = 6

	assert.Equal(t, 5, original["lines"].([]any)[0].(map[string]any)["amount"])
	assert.Nil(t, Voucher(nil).Clone())
}

func TestHashVoucherIsKeyOrderIndependent(t *testing.T) {
	a, err := DefaultAlgorithm.HashVoucher(Voucher{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := DefaultAlgorithm.HashVoucher(Voucher{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var fromJSON Voucher
	require.NoError(t, json.Unmarshal([]byte(`{"b":2,"nested":{"y":1,"x":[3,{"q":1,"p":2}]},"a":1}`), &fromJSON))
	var reordered Voucher
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"nested":{"x":[3,{"p":2,"q":1}],"y":1},"b":2}`), &reordered))
	h1, err := DefaultAlgorithm.HashVoucher(fromJSON)
	require.NoError(t, err)
	h2, err := DefaultAlgorithm.HashVoucher(reordered)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestCanonicalize(t *testing.T) {
	got, err := Canonicalize(map[string]any{"b": "<x>", "a": map[string]any{"d": 1.5, "c": true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":true,"d":1.5},"b":"<x>"}`, string(got))
}

func TestBindingHashIsDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h1, err := DefaultAlgorithm.BindingHash("sig", "voucher", ts)
	require.NoError(t, err)
	h2, err := DefaultAlgorithm.BindingHash("sig", "voucher", ts)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := DefaultAlgorithm.BindingHash("sig", "voucher", ts.Add(time.Millisecond))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestParse(t *testing.T) {
	typ, err := ParseType("Teller")
	require.NoError(t, err)
	assert.Equal(t, TypeTeller, typ)

	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSHA256, alg)

	_, err = ParseAlgorithm("MD5")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), fmt.Sprint(err))
}
