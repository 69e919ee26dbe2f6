package campaign

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	Identity(name string) string
	GetLastStatus() int
	GetResponseString(field string) (string, error)
	CampaignID() int64
	SetCampaignID(campaignID int64)
}

// RegisterSteps registers campaign ledger step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &campaignSteps{tc: tc}

	ctx.Step(`^I create a campaign "([^"]*)" with goal (-?\d+)$`, steps.create)
	ctx.Step(`^I contribute (-?\d+) to the campaign$`, steps.contribute)
	ctx.Step(`^I contribute (-?\d+) to campaign (\d+)$`, steps.contributeTo)
	ctx.Step(`^I withdraw the campaign funds$`, steps.withdraw)
	ctx.Step(`^I fetch the campaign$`, steps.fetch)
	ctx.Step(`^I ask how much "([^"]*)" contributed$`, steps.contributedBy)
}

type campaignSteps struct {
	tc TestContext
}

func (s *campaignSteps) create(ctx context.Context, title string, goal int64) error {
	if err := s.tc.POST("/campaigns", map[string]any{
		"title":       title,
		"description": "created by feature tests",
		"goal_amount": goal,
	}); err != nil {
		return err
	}
	if s.tc.GetLastStatus() != http.StatusCreated {
		return nil
	}
	raw, err := s.tc.GetResponseString("id")
	if err != nil {
		return err
	}
	campaignID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("campaign id %q: %w", raw, err)
	}
	s.tc.SetCampaignID(campaignID)
	return nil
}

func (s *campaignSteps) contribute(ctx context.Context, amount int64) error {
	return s.contributeTo(ctx, amount, s.tc.CampaignID())
}

func (s *campaignSteps) contributeTo(ctx context.Context, amount, campaignID int64) error {
	return s.tc.POST(fmt.Sprintf("/campaigns/%d/contributions", campaignID), map[string]int64{"amount": amount})
}

func (s *campaignSteps) withdraw(ctx context.Context) error {
	return s.tc.POST(fmt.Sprintf("/campaigns/%d/withdraw", s.tc.CampaignID()), nil)
}

func (s *campaignSteps) fetch(ctx context.Context) error {
	return s.tc.GET(fmt.Sprintf("/campaigns/%d", s.tc.CampaignID()))
}

func (s *campaignSteps) contributedBy(ctx context.Context, name string) error {
	return s.tc.GET(fmt.Sprintf("/campaigns/%d/contributions?contributor=%s", s.tc.CampaignID(), s.tc.Identity(name)))
}
