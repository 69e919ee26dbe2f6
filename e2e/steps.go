package e2e

import (
	"github.com/cucumber/godog"

	"crowdfund/e2e/steps/campaign"
	"crowdfund/e2e/steps/common"
	"crowdfund/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (callers, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register identity registry steps
	verification.RegisterSteps(ctx, tc)

	// Register campaign ledger steps
	campaign.RegisterSteps(ctx, tc)
}
