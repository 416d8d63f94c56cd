package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

const basePath = "/api/v1/therapists"

// TestContext is the slice of the shared test context these steps need.
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(path string) (any, error)
	GetLastResponseStatus() int
	ReviewerHeaders() map[string]string
	Remember(key, value string)
	Recall(key string) (string, error)
}

// RegisterSteps registers the intake and review steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &onboardingSteps{tc: tc, run: time.Now().UnixNano()}

	ctx.Step(`^a therapist "([^"]*)" has registered$`, steps.therapistRegisters)
	ctx.Step(`^the therapist "([^"]*)" registers again with license "([^"]*)"$`, steps.therapistRegistersWithLicense)
	ctx.Step(`^the registration status should be "([^"]*)"$`, steps.registrationStatusShouldBe)
	ctx.Step(`^the reviewer approves the application$`, steps.reviewerApproves)
	ctx.Step(`^the reviewer rejects the application because "([^"]*)"$`, steps.reviewerRejects)
	ctx.Step(`^the applicant approves their own application without a token$`, steps.approveWithoutToken)
	ctx.Step(`^I check the status of "([^"]*)"$`, steps.checkStatus)
	ctx.Step(`^the workflow state should be "([^"]*)"$`, steps.workflowStateShouldBe)
}

type onboardingSteps struct {
	tc  TestContext
	run int64
}

// subject makes names unique per run so scenarios can be replayed against one server.
func (s *onboardingSteps) subject(name string) string {
	return fmt.Sprintf("%s-%d", name, s.run)
}

func (s *onboardingSteps) therapistRegisters(ctx context.Context, name string) error {
	return s.therapistRegistersWithLicense(ctx, name, "PSY-12345")
}

func (s *onboardingSteps) therapistRegistersWithLicense(_ context.Context, name, license string) error {
	subject := s.subject(name)
	err := s.tc.POST(basePath+"/register", map[string]any{
		"external_subject_id": subject,
		"email":               subject + "@example.com",
		"first_name":          "Jane",
		"last_name":           "Doe",
		"license_number":      license,
		"license_state":       "CA",
	}, nil)
	if err != nil {
		return err
	}
	appID, err := s.tc.GetResponseField("data.application.id")
	if err != nil {
		return err
	}
	s.tc.Remember("application_id", fmt.Sprint(appID))
	return nil
}

func (s *onboardingSteps) registrationStatusShouldBe(_ context.Context, want string) error {
	return s.fieldShouldBe("data.registration_status", want)
}

func (s *onboardingSteps) workflowStateShouldBe(_ context.Context, want string) error {
	return s.fieldShouldBe("data.workflow_state", want)
}

func (s *onboardingSteps) fieldShouldBe(path, want string) error {
	got, err := s.tc.GetResponseField(path)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("%s: expected %q, got %q", path, want, got)
	}
	return nil
}

func (s *onboardingSteps) reviewerApproves(context.Context) error {
	appID, err := s.tc.Recall("application_id")
	if err != nil {
		return err
	}
	return s.tc.POST(basePath+"/"+appID+"/approve", nil, s.tc.ReviewerHeaders())
}

func (s *onboardingSteps) reviewerRejects(_ context.Context, reason string) error {
	appID, err := s.tc.Recall("application_id")
	if err != nil {
		return err
	}
	return s.tc.POST(basePath+"/"+appID+"/reject", map[string]any{"reason": reason}, s.tc.ReviewerHeaders())
}

func (s *onboardingSteps) approveWithoutToken(context.Context) error {
	appID, err := s.tc.Recall("application_id")
	if err != nil {
		return err
	}
	return s.tc.POST(basePath+"/"+appID+"/approve", nil, nil)
}

func (s *onboardingSteps) checkStatus(_ context.Context, name string) error {
	return s.tc.GET(basePath+"/status/"+s.subject(name), nil)
}
