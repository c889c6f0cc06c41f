package perception

import (
	"errors"
	"time"

	"checkerminer/internal/types"
)

// LLMClient is an alias to types.LLMClient for use within this package.
type LLMClient = types.LLMClient

// ResponseSchema is an alias to types.ResponseSchema.
type ResponseSchema = types.ResponseSchema

// ErrAPIKeyMissing is returned by clients constructed without credentials.
var ErrAPIKeyMissing = errors.New("API key not configured")

// Provider represents an LLM provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Sampling holds the generation parameters shared by every provider.
type Sampling struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
}

// DefaultSampling matches the review settings the scoring weights were tuned on.
func DefaultSampling() Sampling {
	return Sampling{
		MaxTokens:   1000,
		Temperature: 0.5,
		TopP:        1.0,
		Stop:        []string{"\n\n"},
	}
}

// OpenAIConfig holds configuration for OpenAI client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerSec float64
	Sampling       Sampling
}

// GeminiConfig holds configuration for Gemini client.
type GeminiConfig struct {
	APIKey   string
	BaseURL  string // Optional, overrides the public endpoint
	Model    string
	Timeout  time.Duration
	Sampling Sampling
}

// OpenAIMessage represents a message.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIResponseFormat enforces structured output (JSON schema).
type OpenAIResponseFormat struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *OpenAIJSONSchema `json:"json_schema,omitempty"`
}

// OpenAIJSONSchema defines the structured output schema.
type OpenAIJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// OpenAIRequest represents the OpenAI API request.
type OpenAIRequest struct {
	Model            string                `json:"model"`
	Messages         []OpenAIMessage       `json:"messages"`
	MaxTokens        int                   `json:"max_tokens,omitempty"`
	Temperature      float64               `json:"temperature"`
	TopP             float64               `json:"top_p,omitempty"`
	FrequencyPenalty float64               `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64               `json:"presence_penalty,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	ResponseFormat   *OpenAIResponseFormat `json:"response_format,omitempty"`
}

// OpenAIResponse represents the API response.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}
