package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Product is an unreviewed CheckerChain product as returned by the API.
type Product struct {
	ID                   string       `json:"_id"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	Category             Category     `json:"category"`
	URL                  string       `json:"url"`
	Location             string       `json:"location"`
	Network              string       `json:"network"`
	Teams                []TeamMember `json:"teams"`
	TwitterProfile       string       `json:"twitterProfile"`
	CurrentReviewCycle   int          `json:"currentReviewCycle"`
	SpecialReviewRequest string       `json:"specialReviewRequest"`
}

// TeamMember is one entry of a product's team list.
type TeamMember struct {
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Linkedin string `json:"linkedin,omitempty"`
}

// Category is the product category. The API sends it either as a bare
// string or as an object carrying a name.
type Category struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts both `"defi"` and `{"name":"defi"}`.
func (c *Category) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Category{}
		return nil
	}
	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("category: %w", err)
		}
		*c = Category{Name: name}
		return nil
	}
	type plain Category
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	*c = Category(p)
	return nil
}

// String returns the category name.
func (c Category) String() string {
	return c.Name
}
