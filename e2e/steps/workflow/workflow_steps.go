package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string) error
	GetResponseField(field string) (interface{}, error)
	GetVoucherID() string
	SetVoucherID(voucherID string)
}

// RegisterSteps registers approval workflow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	ctx.Step(`^I create a "([^"]*)" voucher for (\d+(?:\.\d+)?) "([^"]*)" in the "([^"]*)" segment$`, steps.createVoucher)
	ctx.Step(`^I create a voucher without a transaction$`, steps.createPlainVoucher)
	ctx.Step(`^I create the same voucher again$`, steps.createSameVoucher)
	ctx.Step(`^I (verify|approve) the voucher$`, steps.actOnVoucher)
	ctx.Step(`^I reject the voucher with reason "([^"]*)"$`, steps.rejectWithReason)
	ctx.Step(`^I reject the voucher without a reason$`, steps.rejectWithoutReason)
	ctx.Step(`^I fetch the voucher workflow$`, steps.fetchWorkflow)
	ctx.Step(`^I fetch the voucher history$`, steps.fetchHistory)
	ctx.Step(`^I list my pending approvals$`, steps.listPending)
	ctx.Step(`^the voucher status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the history should contain (\d+) actions$`, steps.historyShouldContain)
	ctx.Step(`^the pending list should contain the voucher$`, steps.pendingShouldContain)
}

type workflowSteps struct {
	tc TestContext
}

func (s *workflowSteps) createVoucher(ctx context.Context, txType, amount, currency, segment string) error {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	s.tc.SetVoucherID("V-" + uuid.NewString()[:8])
	return s.tc.POST("/workflows", map[string]interface{}{
		"voucherId":   s.tc.GetVoucherID(),
		"voucherType": txType,
		"transaction": map[string]interface{}{
			"type":     txType,
			"amount":   value,
			"currency": currency,
			"segment":  segment,
		},
	})
}

func (s *workflowSteps) createPlainVoucher(ctx context.Context) error {
	s.tc.SetVoucherID("V-" + uuid.NewString()[:8])
	return s.tc.POST("/workflows", map[string]interface{}{
		"voucherId":   s.tc.GetVoucherID(),
		"voucherType": "general",
	})
}

func (s *workflowSteps) createSameVoucher(ctx context.Context) error {
	return s.tc.POST("/workflows", map[string]interface{}{
		"voucherId":   s.tc.GetVoucherID(),
		"voucherType": "general",
	})
}

func (s *workflowSteps) actOnVoucher(ctx context.Context, action string) error {
	return s.postAction(map[string]interface{}{"action": action})
}

func (s *workflowSteps) rejectWithReason(ctx context.Context, reason string) error {
	return s.postAction(map[string]interface{}{"action": "reject", "reason": reason})
}

func (s *workflowSteps) rejectWithoutReason(ctx context.Context) error {
	return s.postAction(map[string]interface{}{"action": "reject"})
}

func (s *workflowSteps) postAction(body map[string]interface{}) error {
	if s.tc.GetVoucherID() == "" {
		return fmt.Errorf("no voucher has been created in this scenario")
	}
	return s.tc.POST("/workflows/"+s.tc.GetVoucherID()+"/actions", body)
}

func (s *workflowSteps) fetchWorkflow(ctx context.Context) error {
	return s.tc.GET("/workflows/" + s.tc.GetVoucherID())
}

func (s *workflowSteps) fetchHistory(ctx context.Context) error {
	return s.tc.GET("/workflows/" + s.tc.GetVoucherID() + "/history")
}

func (s *workflowSteps) listPending(ctx context.Context) error {
	return s.tc.GET("/workflows/pending")
}

func (s *workflowSteps) statusShouldBe(ctx context.Context, expected string) error {
	status, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if status != expected {
		return fmt.Errorf("expected voucher status %q, got %v", expected, status)
	}
	return nil
}

func (s *workflowSteps) historyShouldContain(ctx context.Context, expected int) error {
	actions, err := s.tc.GetResponseField("actions")
	if err != nil {
		return err
	}
	list, ok := actions.([]interface{})
	if !ok {
		return fmt.Errorf("actions is not a list: %v", actions)
	}
	if len(list) != expected {
		return fmt.Errorf("expected %d actions, got %d", expected, len(list))
	}
	return nil
}

func (s *workflowSteps) pendingShouldContain(ctx context.Context) error {
	workflows, err := s.tc.GetResponseField("workflows")
	if err != nil {
		return err
	}
	list, ok := workflows.([]interface{})
	if !ok {
		return fmt.Errorf("workflows is not a list: %v", workflows)
	}
	for _, item := range list {
		wf, ok := item.(map[string]interface{})
		if ok && wf["voucherId"] == s.tc.GetVoucherID() {
			return nil
		}
	}
	return fmt.Errorf("voucher %s not found among %d pending workflows", s.tc.GetVoucherID(), len(list))
}
