package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteStructured asks the provider to answer with a JSON document that
	// conforms to schema. The raw JSON text is returned.
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema *ResponseSchema) (string, error)
	GetModel() string
}

// ResponseSchema is a named JSON schema used for structured output.
type ResponseSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

// ProductSource resolves products by id.
type ProductSource interface {
	FetchProduct(ctx context.Context, id string) (*Product, error)
}
