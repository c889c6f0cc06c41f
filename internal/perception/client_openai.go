package perception

import (
	"bytes"
	"checkerminer/internal/logging"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OpenAIClient implements LLMClient for the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	mu           sync.RWMutex
	model        string
	sampling     Sampling
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// DefaultOpenAIConfig returns the review defaults (gpt-4o, 1000 tokens).
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:         apiKey,
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o",
		Timeout:        120 * time.Second,
		MaxRetries:     3,
		RequestsPerSec: 10,
		Sampling:       DefaultSampling(),
	}
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom config.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	limit := rate.Inf
	if config.RequestsPerSec > 0 {
		limit = rate.Limit(config.RequestsPerSec)
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		model:        config.Model,
		sampling:     config.Sampling,
		maxRetries:   config.MaxRetries,
		retryBackoff: time.Second,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, nil)
}

// CompleteStructured sends a prompt and asks for a strict json_schema response.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema *ResponseSchema) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, BuildOpenAIResponseFormat(schema))
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, format *OpenAIResponseFormat) (string, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	model := c.GetModel()
	logging.APIDebug("[OpenAI] complete: model=%s system_len=%d user_len=%d structured=%v", model, len(systemPrompt), len(userPrompt), format != nil)

	if c.apiKey == "" {
		logging.APIError("[OpenAI] complete: API key not configured")
		return "", ErrAPIKeyMissing
	}

	messages := make([]OpenAIMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: userPrompt})

	reqBody := OpenAIRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        c.sampling.MaxTokens,
		Temperature:      c.sampling.Temperature,
		TopP:             c.sampling.TopP,
		FrequencyPenalty: c.sampling.FrequencyPenalty,
		PresencePenalty:  c.sampling.PresencePenalty,
		Stop:             c.sampling.Stop,
		ResponseFormat:   format,
	}

	var lastErr error
	formatDropped := false
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 && !formatDropped {
			select {
			case <-time.After(c.retryBackoff * time.Duration(1<<uint(i-1))):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		formatDropped = false

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		body, status, err := c.post(ctx, reqBody)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d: %s", status, strings.TrimSpace(string(body)))
			continue
		}

		if status != http.StatusOK {
			// Some models reject response_format; resend once without it.
			// The resend does not count against maxRetries.
			if reqBody.ResponseFormat != nil && status == http.StatusBadRequest {
				bodyStr := string(body)
				if strings.Contains(bodyStr, "response_format") || strings.Contains(bodyStr, "json_schema") {
					logging.APIWarn("[OpenAI] model %s rejected structured output, retrying without response_format", model)
					reqBody.ResponseFormat = nil
					lastErr = fmt.Errorf("request rejected structured output: %s", bodyStr)
					formatDropped = true
					i--
					continue
				}
			}
			return "", fmt.Errorf("API request failed with status %d: %s", status, string(body))
		}

		var openaiResp OpenAIResponse
		if err := json.Unmarshal(body, &openaiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if openaiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
		}

		if len(openaiResp.Choices) == 0 {
			logging.APIError("[OpenAI] complete: no completion returned")
			return "", fmt.Errorf("no completion returned")
		}

		msg := openaiResp.Choices[0].Message
		if msg.Refusal != "" {
			return "", fmt.Errorf("model refused: %s", msg.Refusal)
		}

		response := strings.TrimSpace(msg.Content)
		logging.API("[OpenAI] complete: completed in %v response_len=%d tokens=%d", time.Since(startTime), len(response), openaiResp.Usage.TotalTokens)
		return response, nil
	}

	logging.APIError("[OpenAI] complete: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) post(ctx context.Context, reqBody OpenAIRequest) ([]byte, int, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// SetModel changes the model used for completions.
func (c *OpenAIClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}
