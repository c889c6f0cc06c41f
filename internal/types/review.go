package types

// ScoreBreakdown holds the per-criterion review scores, each 0-10.
type ScoreBreakdown struct {
	Project      int `json:"project"`      // Innovation/Technology
	Userbase     int `json:"userbase"`     // Userbase/Adoption
	Utility      int `json:"utility"`      // Utility Value
	Security     int `json:"security"`     // Security
	Team         int `json:"team"`         // Team evaluation
	Tokenomics   int `json:"tokenomics"`   // Price/Revenue/Tokenomics
	Marketing    int `json:"marketing"`    // Marketing & Social Presence
	Roadmap      int `json:"roadmap"`      // Roadmap
	Clarity      int `json:"clarity"`      // Clarity & Confidence
	Partnerships int `json:"partnerships"` // Partnerships (Collabs, VCs, Exchanges)
}

// Criteria lists the breakdown keys in their canonical order.
var Criteria = []string{
	"project",
	"userbase",
	"utility",
	"security",
	"team",
	"tokenomics",
	"marketing",
	"roadmap",
	"clarity",
	"partnerships",
}

// CriterionDescriptions maps each criterion to its human label.
var CriterionDescriptions = map[string]string{
	"project":      "Innovation/Technology score",
	"userbase":     "Userbase/Adoption score",
	"utility":      "Utility Value score",
	"security":     "Security score",
	"team":         "Team evaluation score",
	"tokenomics":   "Price/Revenue/Tokenomics score",
	"marketing":    "Marketing & Social Presence score",
	"roadmap":      "Roadmap score",
	"clarity":      "Clarity & Confidence score",
	"partnerships": "Partnerships (Collabs, VCs, Exchanges) score",
}

// Values returns the breakdown keyed by criterion name.
func (b ScoreBreakdown) Values() map[string]int {
	return map[string]int{
		"project":      b.Project,
		"userbase":     b.Userbase,
		"utility":      b.Utility,
		"security":     b.Security,
		"team":         b.Team,
		"tokenomics":   b.Tokenomics,
		"marketing":    b.Marketing,
		"roadmap":      b.Roadmap,
		"clarity":      b.Clarity,
		"partnerships": b.Partnerships,
	}
}

// ReviewScore is the structured review produced by the LLM.
type ReviewScore struct {
	Product      string         `json:"product"`
	OverallScore int            `json:"overall_score"` // model's own estimate, informational
	Breakdown    ScoreBreakdown `json:"breakdown"`
}
