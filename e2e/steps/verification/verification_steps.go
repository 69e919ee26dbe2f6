package verification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	Identity(name string) string
	SetCaller(name string)
	GetLastStatus() int
	GetResponseString(field string) (string, error)
}

// RegisterSteps registers identity registry step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^I submit a verification request as "([^"]*)" with national id "([^"]*)"$`, steps.submit)
	ctx.Step(`^the administrator approves "([^"]*)"$`, steps.approve)
	ctx.Step(`^the administrator rejects "([^"]*)"$`, steps.reject)
	ctx.Step(`^I approve "([^"]*)"$`, steps.approveAsCaller)
	ctx.Step(`^"([^"]*)" is a verified creator$`, steps.verifiedCreator)
	ctx.Step(`^I check the verification status of "([^"]*)"$`, steps.checkStatus)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) submit(ctx context.Context, fullName, nationalID string) error {
	return s.tc.POST("/verification/requests", map[string]string{
		"full_name":   fullName,
		"national_id": nationalID,
	})
}

func (s *verificationSteps) approve(ctx context.Context, name string) error {
	return s.decideAs("admin", name, "approve")
}

func (s *verificationSteps) reject(ctx context.Context, name string) error {
	return s.decideAs("admin", name, "reject")
}

func (s *verificationSteps) approveAsCaller(ctx context.Context, name string) error {
	return s.tc.POST("/admin/verification/requests/"+s.tc.Identity(name)+"/approve", nil)
}

func (s *verificationSteps) decideAs(caller, name, decision string) error {
	s.tc.SetCaller(caller)
	return s.tc.POST("/admin/verification/requests/"+s.tc.Identity(name)+"/"+decision, nil)
}

func (s *verificationSteps) verifiedCreator(ctx context.Context, name string) error {
	s.tc.SetCaller(name)
	if err := s.submit(ctx, "Creator "+name, "id-"+name); err != nil {
		return err
	}
	if status := s.tc.GetLastStatus(); status != http.StatusCreated {
		return fmt.Errorf("submit verification: status %d", status)
	}
	if err := s.approve(ctx, name); err != nil {
		return err
	}
	if status := s.tc.GetLastStatus(); status != http.StatusOK {
		return fmt.Errorf("approve verification: status %d", status)
	}
	s.tc.SetCaller(name)
	return nil
}

func (s *verificationSteps) checkStatus(ctx context.Context, name string) error {
	return s.tc.GET("/verification/status/" + s.tc.Identity(name))
}
