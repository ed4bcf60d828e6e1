package e2e

import (
	"github.com/cucumber/godog"

	"cdigit/e2e/steps/common"
	"cdigit/e2e/steps/signature"
	"cdigit/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (actors, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register approval workflow steps
	workflow.RegisterSteps(ctx, tc)

	// Register signature binding steps
	signature.RegisterSteps(ctx, tc)
}
