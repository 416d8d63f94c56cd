package e2e

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/mindhelpbyus/ataraxia-next-sub003/e2e/steps/onboarding"
	"github.com/mindhelpbyus/ataraxia-next-sub003/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})
	ctx.Step(`^the response status should be (\d+)$`, func(want int) error {
		if got := tc.GetLastResponseStatus(); got != want {
			return fmt.Errorf("expected status %d, got %d", want, got)
		}
		return nil
	})
	ctx.Step(`^the error code should be "([^"]*)"$`, func(want string) error {
		got, err := tc.GetResponseField("error")
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("expected error %q, got %v", want, got)
		}
		return nil
	})

	onboarding.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
