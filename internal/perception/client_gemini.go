package perception

import (
	"checkerminer/internal/logging"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient implements LLMClient on top of the Google GenAI SDK.
type GeminiClient struct {
	client   *genai.Client
	mu       sync.RWMutex
	model    string
	sampling Sampling
	timeout  time.Duration
}

// DefaultGeminiConfig returns the default Gemini review settings.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:   apiKey,
		Model:    "gemini-2.5-flash",
		Timeout:  120 * time.Second,
		Sampling: DefaultSampling(),
	}
}

// NewGeminiClient creates a Gemini client. The SDK client is built eagerly so
// credential problems surface at startup.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.Timeout},
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logging.API("[Gemini] client initialized: model=%s", config.Model)
	return &GeminiClient{
		client:   client,
		model:    config.Model,
		sampling: config.Sampling,
		timeout:  config.Timeout,
	}, nil
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt, nil)
}

// CompleteStructured requests a JSON response constrained by schema.
func (c *GeminiClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema *ResponseSchema) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt, schema)
}

func (c *GeminiClient) generate(ctx context.Context, systemPrompt, userPrompt string, schema *ResponseSchema) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	cfg := c.generationConfig(systemPrompt, schema)

	model := c.GetModel()
	logging.APIDebug("[Gemini] generate: model=%s user_len=%d structured=%v", model, len(userPrompt), schema != nil)
	resp, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}, cfg)
	if err != nil {
		logging.APIError("[Gemini] generate failed after %v: %v", time.Since(startTime), err)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}

	logging.API("[Gemini] generate: completed in %v response_len=%d", time.Since(startTime), len(text))
	return text, nil
}

func (c *GeminiClient) generationConfig(systemPrompt string, schema *ResponseSchema) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:   genai.Ptr(float32(c.sampling.Temperature)),
		StopSequences: c.sampling.Stop,
	}
	if c.sampling.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.sampling.MaxTokens)
	}
	if c.sampling.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(c.sampling.TopP))
	}
	if c.sampling.FrequencyPenalty != 0 {
		cfg.FrequencyPenalty = genai.Ptr(float32(c.sampling.FrequencyPenalty))
	}
	if c.sampling.PresencePenalty != 0 {
		cfg.PresencePenalty = genai.Ptr(float32(c.sampling.PresencePenalty))
	}
	if strings.TrimSpace(systemPrompt) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = BuildGeminiSchema(schema.Schema)
		// Stop sequences truncate pretty-printed JSON.
		cfg.StopSequences = nil
	}
	return cfg
}

// SetModel changes the model used for generation.
func (c *GeminiClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}
