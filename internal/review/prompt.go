// Package review turns a CheckerChain product into a structured LLM review.
package review

import (
	"fmt"
	"strings"

	"checkerminer/internal/types"
)

// SystemPrompt is the analyst persona sent with every review.
const SystemPrompt = `You are a leading cryptocurrency and blockchain analyst with 10+ years of experience evaluating blockchain projects. Your analyses are known for being comprehensive, balanced, and highly accurate in predicting project success and security. You excel at identifying both red flags and promising indicators, even with limited information. Your reputation depends on delivering trustworthy, data-driven evaluations that closely match consensus opinion from other expert reviewers.`

// criterionGuide is one numbered section of the evaluation framework.
type criterionGuide struct {
	title  string
	points []string
}

var framework = []criterionGuide{
	{"Project (Innovation/Technology)", []string{
		"Technical innovation and uniqueness in the blockchain space",
		"Quality of technical implementation and architecture",
		"Blockchain integration and utilization of the technology",
		"Development activity and GitHub contributions (if available)",
	}},
	{"Userbase/Adoption", []string{
		"Current user base size and growth trajectory",
		"Active users and engagement metrics",
		"Adoption barriers and potential for mainstream use",
		"Community growth and engagement levels",
	}},
	{"Utility Value", []string{
		"Real-world applications and use cases",
		"Problem-solving capabilities",
		"Value proposition and market need",
		"Competitive advantage over alternatives",
	}},
	{"Security", []string{
		"Security audits and their results",
		"History of vulnerabilities or exploits",
		"Security practices and infrastructure",
		"Risk management approach",
	}},
	{"Team", []string{
		"Team credentials and experience in blockchain",
		"Leadership quality and track record",
		"Transparency about team identity",
		"Team size and composition relative to project scope",
	}},
	{"Price/Revenue/Tokenomics", []string{
		"Token utility and economics",
		"Token distribution and supply dynamics",
		"Revenue model sustainability",
		"Value accrual mechanisms",
	}},
	{"Marketing & Social Presence", []string{
		"Brand visibility and recognition",
		"Social media following and engagement",
		"Marketing strategy effectiveness",
		"Community building efforts",
	}},
	{"Roadmap", []string{
		"Clarity and detail of development roadmap",
		"Feasibility of planned milestones",
		"Track record of meeting deadlines",
		"Vision and long-term planning",
	}},
	{"Clarity & Confidence", []string{
		"Quality and completeness of documentation",
		"Transparency in operations and decisions",
		"Communication clarity with community",
		"Overall professionalism",
	}},
	{"Partnerships", []string{
		"Quality and relevance of partnerships",
		"Collaboration with established entities",
		"VC backing and investor quality",
		"Exchange listings and liquidity",
	}},
}

// ScoringBands are the guideline bands shown to the model.
var ScoringBands = []string{
	"0-2: Poor/Concerning (serious issues or red flags)",
	"3-4: Below Average (notable weaknesses)",
	"5-6: Average (meets basic industry standards)",
	"7-8: Above Average (strong implementation, exceeds standards)",
	"9-10: Exceptional (industry-leading, innovative excellence)",
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// BuildPrompt renders the review prompt for product.
func BuildPrompt(p *types.Product) string {
	var sb strings.Builder

	sb.WriteString("You are a highly experienced cryptocurrency and blockchain industry analyst with expertise in evaluating crypto products and projects. ")
	sb.WriteString("You have been tasked with conducting a comprehensive analysis of the following cryptocurrency/blockchain product and providing a detailed, objective trust score.\n\n")

	sb.WriteString("**Product Details:**\n")
	fmt.Fprintf(&sb, "- Name: %s\n", p.Name)
	fmt.Fprintf(&sb, "- Description: %s\n", p.Description)
	fmt.Fprintf(&sb, "- Category: %s\n", p.Category.String())
	fmt.Fprintf(&sb, "- URL: %s\n", p.URL)
	fmt.Fprintf(&sb, "- Location: %s\n", p.Location)
	fmt.Fprintf(&sb, "- Network: %s\n", p.Network)
	fmt.Fprintf(&sb, "- Team: %d members\n", len(p.Teams))
	fmt.Fprintf(&sb, "- Twitter Profile: %s\n", orDefault(p.TwitterProfile, "Not provided"))
	fmt.Fprintf(&sb, "- Current Review Cycle: %d\n", p.CurrentReviewCycle)
	fmt.Fprintf(&sb, "- Special Review Request: %s\n\n", orDefault(p.SpecialReviewRequest, "None"))

	sb.WriteString("**Evaluation Framework - Score each criterion from 0-10:**\n\n")
	for i, c := range framework {
		fmt.Fprintf(&sb, "%d. %s - Evaluate:\n", i+1, c.title)
		for _, pt := range c.points {
			fmt.Fprintf(&sb, "   - %s\n", pt)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("**Scoring Guidelines:**\n")
	for _, band := range ScoringBands {
		fmt.Fprintf(&sb, "- %s\n", band)
	}
	sb.WriteString("\n")

	sb.WriteString("Carefully analyze available information for each criterion. ")
	sb.WriteString("When information is limited, make reasonable inferences based on similar projects in the space, but don't assign high scores without evidence. ")
	sb.WriteString("Balance your assessment between optimism about potential and realistic evaluation of current status.\n\n")
	sb.WriteString("All scores must be integers between 0-10.\n")

	return sb.String()
}

// ReviewSchema returns the strict JSON schema for types.ReviewScore.
func ReviewSchema() *types.ResponseSchema {
	breakdownProps := make(map[string]interface{}, len(types.Criteria))
	for _, c := range types.Criteria {
		breakdownProps[c] = map[string]interface{}{
			"type":        "integer",
			"description": types.CriterionDescriptions[c],
		}
	}
	required := append([]string(nil), types.Criteria...)

	return &types.ResponseSchema{
		Name: "review_score",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product": map[string]interface{}{
					"type":        "string",
					"description": "Product name",
				},
				"overall_score": map[string]interface{}{
					"type":        "integer",
					"description": "Overall review score out of 100",
				},
				"breakdown": map[string]interface{}{
					"type":                 "object",
					"description":          "Breakdown of scores by evaluation criteria",
					"properties":           breakdownProps,
					"required":             required,
					"additionalProperties": false,
				},
			},
			"required":             []string{"product", "overall_score", "breakdown"},
			"additionalProperties": false,
		},
	}
}
