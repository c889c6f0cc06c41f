// Package scoring turns an LLM review breakdown into the overall 0-100 score
// the miner reports.
package scoring

import (
	"math"

	"checkerminer/internal/types"
)

const (
	// MinScore and MaxScore bound every reported prediction.
	MinScore = 0.0
	MaxScore = 100.0

	// FallbackScore is reported when a product could not be reviewed even
	// after a retry.
	FallbackScore = 50.0
)

// Weights per criterion. They sum to 10 so a perfect breakdown maps to 100.
// Security and marketing carry the most weight; team and clarity the least.
var Weights = map[string]float64{
	"project":      1.1,
	"userbase":     0.9,
	"utility":      1.2,
	"security":     1.7,
	"team":         0.4,
	"tokenomics":   1.1,
	"marketing":    1.5,
	"roadmap":      1.0,
	"clarity":      0.4,
	"partnerships": 0.7,
}

// Normalize pulls extreme criterion scores gently toward the centre:
// very low scores are boosted by 10%, very high scores trimmed by 2%.
func Normalize(score int) float64 {
	s := float64(score)
	switch {
	case score <= 2:
		return s * 1.1
	case score >= 9:
		return math.Min(10, s*0.98)
	default:
		return s
	}
}

// OverallScore computes the weighted score of a breakdown, clamped to
// [MinScore, MaxScore] and rounded to two decimals.
func OverallScore(b types.ScoreBreakdown) float64 {
	values := b.Values()
	var total float64
	for _, criterion := range types.Criteria {
		total += Normalize(values[criterion]) * Weights[criterion]
	}
	return Round2(Clamp(total))
}

// FromReview is OverallScore for a full review; a nil review yields false.
func FromReview(r *types.ReviewScore) (float64, bool) {
	if r == nil {
		return 0, false
	}
	return OverallScore(r.Breakdown), true
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Valid reports whether a score may be returned to a caller.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= MinScore && v <= MaxScore
}
