package e2e

import (
	"github.com/cucumber/godog"

	"kindergarten/e2e/steps/auth"
	"kindergarten/e2e/steps/common"
	"kindergarten/e2e/steps/enrollment"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	enrollment.RegisterSteps(ctx, tc)
}
