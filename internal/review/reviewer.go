package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"checkerminer/internal/logging"
	"checkerminer/internal/types"
)

// ErrIncompleteReview is returned when the model omits breakdown criteria.
var ErrIncompleteReview = errors.New("review breakdown is incomplete")

// Reviewer produces structured reviews with an LLM.
type Reviewer struct {
	client types.LLMClient
	schema *types.ResponseSchema
}

// NewReviewer creates a reviewer backed by client.
func NewReviewer(client types.LLMClient) *Reviewer {
	return &Reviewer{client: client, schema: ReviewSchema()}
}

// Model returns the model name of the underlying client.
func (r *Reviewer) Model() string {
	return r.client.GetModel()
}

// Review asks the model for a ReviewScore of p.
func (r *Reviewer) Review(ctx context.Context, p *types.Product) (*types.ReviewScore, error) {
	if p == nil {
		return nil, errors.New("nil product")
	}
	timer := logging.StartTimer(logging.CategoryReview, "review "+p.ID)
	defer timer.Stop()

	raw, err := r.client.CompleteStructured(ctx, SystemPrompt, BuildPrompt(p), r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to generate review score: %w", err)
	}

	score, err := ParseReview(raw)
	if err != nil {
		logging.ReviewWarn("unusable review for %s: %v", p.ID, err)
		return nil, err
	}
	if score.Product == "" {
		score.Product = p.Name
	}
	logging.ReviewDebug("review for %s: %+v", p.ID, score.Breakdown)
	return score, nil
}

// ParseReview decodes a model response into a ReviewScore. Markdown code
// fences around the JSON are tolerated.
func ParseReview(raw string) (*types.ReviewScore, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("empty review response")
	}

	var envelope struct {
		Breakdown map[string]*int `json:"breakdown"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode review: %w", err)
	}
	var missing []string
	for _, c := range types.Criteria {
		if v, ok := envelope.Breakdown[c]; !ok || v == nil {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteReview, strings.Join(missing, ", "))
	}

	var score types.ReviewScore
	if err := json.Unmarshal([]byte(body), &score); err != nil {
		return nil, fmt.Errorf("failed to decode review: %w", err)
	}
	return &score, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
