// ABOUTME: Chains are longer, named multi-stage plans for broad goal phrases.
// ABOUTME: Steps carry semantic string IDs; dependencies still reference array positions.

package plan

import (
	"strconv"
	"strings"
)

// ChainStep is a Step with a semantic ID and a human-readable description,
// used by the longer multi-agent chains.
type ChainStep struct {
	ID          string
	Description string
	Step
}

// Chain is the multi-stage counterpart of Plan, keyed by goal phrase.
type Chain struct {
	Goal         string
	Steps        []*ChainStep
	Dependencies map[int][]int
}

// ChainBuilder decomposes broad goal phrases into executable chains using the
// same ordered-keyword-match policy as the intent classifier.
type ChainBuilder struct{}

// NewChainBuilder creates a chain builder.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// BuildChain recognizes a goal phrase and emits its step template. An
// unrecognized phrase yields a chain with no steps.
func (b *ChainBuilder) BuildChain(goal string) *Chain {
	c := &Chain{
		Goal:         goal,
		Dependencies: map[int][]int{},
	}

	lower := strings.ToLower(goal)

	switch {
	case strings.Contains(lower, "launch product"):
		c.Steps = chainSteps(
			"Market Research", "ResearchAgent", "analyze_market",
			"Competitive Analysis", "ResearchAgent", "analyze_competitors",
			"Create Product Roadmap", "NotionAgent", "create_roadmap",
			"Setup GitHub Repository", "GitHubAgent", "create_repo",
			"Create Marketing Plan", "MarketingAgent", "create_plan",
			"Schedule Launch Announcement", "SocialMediaAgent", "schedule_posts",
			"Send Launch Email", "EmailAgent", "send_campaign",
		)
		// Roadmap and marketing plan both need the two research steps; the
		// announcement and launch email fan out from the marketing plan.
		c.Dependencies[2] = []int{0, 1}
		c.Dependencies[3] = []int{2}
		c.Dependencies[4] = []int{0, 1}
		c.Dependencies[5] = []int{4}
		c.Dependencies[6] = []int{4}

	case strings.Contains(lower, "create content"):
		c.Steps = chainSteps(
			"Research Topic", "ResearchAgent", "gather_information",
			"Generate Outline", "ContentAgent", "create_outline",
			"Write Content", "ContentAgent", "write_article",
			"Generate Images", "ImageAgent", "create_visuals",
			"Publish to Blog", "CMSAgent", "publish",
			"Share on Social Media", "SocialMediaAgent", "share_content",
		)
		c.Dependencies[1] = []int{0}
		c.Dependencies[2] = []int{1}
		c.Dependencies[3] = []int{1}
		c.Dependencies[4] = []int{2, 3}
		c.Dependencies[5] = []int{4}

	case strings.Contains(lower, "sales outreach"):
		c.Steps = chainSteps(
			"Identify Leads", "CRMAgent", "find_leads",
			"Research Prospects", "ResearchAgent", "analyze_companies",
			"Personalize Emails", "EmailAgent", "generate_personalized",
			"Send Outreach Emails", "EmailAgent", "send_bulk",
			"Track Responses", "CRMAgent", "log_interactions",
			"Schedule Follow-ups", "CalendarAgent", "create_reminders",
		)
		for i := 1; i < len(c.Steps); i++ {
			c.Dependencies[i] = []int{i - 1}
		}
	}

	return c
}

// chainSteps builds ChainSteps from (description, agent, action) triples.
func chainSteps(fields ...string) []*ChainStep {
	steps := make([]*ChainStep, 0, len(fields)/3)
	for i := 0; i+2 < len(fields); i += 3 {
		steps = append(steps, &ChainStep{
			ID:          stepID(len(steps) + 1),
			Description: fields[i],
			Step: Step{
				Agent:  fields[i+1],
				Action: fields[i+2],
				Status: StatusPending,
			},
		})
	}
	return steps
}

func stepID(n int) string {
	return "step" + strconv.Itoa(n)
}
