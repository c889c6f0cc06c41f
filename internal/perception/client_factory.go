package perception

import (
	"checkerminer/internal/config"
	"context"
	"fmt"
)

// SamplingFromConfig converts the llm section into sampling parameters.
func SamplingFromConfig(cfg config.LLMConfig) Sampling {
	return Sampling{
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Stop:             cfg.Stop,
	}
}

// NewClientFromConfig builds the configured provider client wrapped with
// request metrics.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	llm := cfg.LLM
	timeout := cfg.GetLLMTimeout()

	var (
		client LLMClient
		err    error
	)
	switch Provider(llm.Provider) {
	case ProviderOpenAI, "":
		if llm.APIKey == "" {
			return nil, ErrAPIKeyMissing
		}
		oc := DefaultOpenAIConfig(llm.APIKey)
		if llm.BaseURL != "" {
			oc.BaseURL = llm.BaseURL
		}
		if llm.Model != "" {
			oc.Model = llm.Model
		}
		oc.Timeout = timeout
		oc.MaxRetries = llm.MaxRetries
		oc.RequestsPerSec = llm.RequestsPerSec
		oc.Sampling = SamplingFromConfig(llm)
		client = NewOpenAIClientWithConfig(oc)

	case ProviderGemini:
		gc := DefaultGeminiConfig(llm.APIKey)
		// The openai default base URL does not apply to Gemini.
		if llm.BaseURL != "" && llm.BaseURL != config.DefaultConfig().LLM.BaseURL {
			gc.BaseURL = llm.BaseURL
		}
		if llm.Model != "" && llm.Model != config.DefaultConfig().LLM.Model {
			gc.Model = llm.Model
		}
		gc.Timeout = timeout
		gc.Sampling = SamplingFromConfig(llm)
		client, err = NewGeminiClient(ctx, gc)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llm.Provider)
	}

	return NewInstrumentedClient(client), nil
}
