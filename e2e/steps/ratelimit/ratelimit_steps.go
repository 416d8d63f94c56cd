package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the shared test context these steps need.
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	SetClientIP(ip string)
}

// RegisterSteps registers the intake throttling steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am calling the intake endpoints from IP "([^"]*)"$`, steps.callingFromIP)
	ctx.Step(`^I look up (\d+) unknown statuses$`, steps.lookUpUnknownStatuses)
	ctx.Step(`^the last response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc TestContext
}

func (s *ratelimitSteps) callingFromIP(_ context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *ratelimitSteps) lookUpUnknownStatuses(_ context.Context, n int) error {
	for i := range n {
		if err := s.tc.GET(fmt.Sprintf("/api/v1/therapists/status/unknown-%d", i), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *ratelimitSteps) retryAfterPresent(context.Context) error {
	raw := s.tc.GetLastResponseHeader("Retry-After")
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 1 {
		return fmt.Errorf("expected a positive Retry-After, got %q", raw)
	}
	return nil
}
