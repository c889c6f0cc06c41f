package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_UnmarshalCategoryForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `{"_id":"p1","category":"DeFi"}`, "DeFi"},
		{"object", `{"_id":"p1","category":{"_id":"c1","name":"Wallet"}}`, "Wallet"},
		{"null", `{"_id":"p1","category":null}`, ""},
		{"missing", `{"_id":"p1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Product
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &p))
			assert.Equal(t, "p1", p.ID)
			assert.Equal(t, tt.want, p.Category.String())
		})
	}
}

func TestProduct_UnmarshalFullPayload(t *testing.T) {
	raw := `{
		"_id": "66f0",
		"name": "ChainVault",
		"description": "Non-custodial vault",
		"category": {"name": "Wallet"},
		"url": "https://chainvault.example",
		"location": "Berlin",
		"network": "Ethereum",
		"teams": [{"name": "Ada"}, {"name": "Lin"}],
		"twitterProfile": "@chainvault",
		"currentReviewCycle": 3,
		"specialReviewRequest": "audit focus"
	}`
	var p Product
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "ChainVault", p.Name)
	assert.Len(t, p.Teams, 2)
	assert.Equal(t, 3, p.CurrentReviewCycle)
	assert.Equal(t, "@chainvault", p.TwitterProfile)
	assert.Equal(t, "audit focus", p.SpecialReviewRequest)
}

func TestCategory_RejectsGarbage(t *testing.T) {
	var c Category
	assert.Error(t, json.Unmarshal([]byte(`42`), &c))
}

func TestScoreBreakdown_ValuesCoversCriteria(t *testing.T) {
	values := ScoreBreakdown{Security: 7}.Values()
	require.Len(t, values, len(Criteria))
	for _, c := range Criteria {
		_, ok := values[c]
		assert.True(t, ok, "missing criterion %s", c)
		assert.NotEmpty(t, CriterionDescriptions[c])
	}
	assert.Equal(t, 7, values["security"])
}
