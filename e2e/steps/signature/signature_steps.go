package signature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetVoucherID() string
	GetBoundResult() map[string]interface{}
	SetBoundResult(v map[string]interface{})
}

// RegisterSteps registers signature binding step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &signatureSteps{tc: tc}

	ctx.Step(`^I bind a "([^"]*)" signature "([^"]*)" to the voucher with amount (\d+)$`, steps.bind)
	ctx.Step(`^I verify the bound signature against the voucher with amount (\d+)$`, steps.verify)
}

type signatureSteps struct {
	tc TestContext
}

func (s *signatureSteps) voucher(amount int) map[string]interface{} {
	return map[string]interface{}{
		"id":     s.tc.GetVoucherID(),
		"amount": amount,
	}
}

func (s *signatureSteps) bind(ctx context.Context, sigType, data string, amount int) error {
	err := s.tc.POST("/signatures/bind", map[string]interface{}{
		"signature":     map[string]interface{}{"data": data},
		"signatureType": sigType,
		"voucher":       s.voucher(amount),
	})
	if err != nil {
		return err
	}
	if s.tc.GetLastStatusCode() != 201 {
		return fmt.Errorf("bind returned %d: %s", s.tc.GetLastStatusCode(), string(s.tc.GetLastResponseBody()))
	}
	var bound map[string]interface{}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &bound); err != nil {
		return fmt.Errorf("failed to parse bound signature: %w", err)
	}
	s.tc.SetBoundResult(bound)
	return nil
}

func (s *signatureSteps) verify(ctx context.Context, amount int) error {
	bound := s.tc.GetBoundResult()
	if bound == nil {
		return fmt.Errorf("no signature has been bound in this scenario")
	}
	return s.tc.POST("/signatures/verify", map[string]interface{}{
		"boundSignature": bound,
		"voucher":        s.voucher(amount),
	})
}
