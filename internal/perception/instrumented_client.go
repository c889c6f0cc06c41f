package perception

import (
	"context"
	"time"

	"checkerminer/internal/logging"
	"checkerminer/internal/metrics"
)

// InstrumentedClient wraps any LLMClient and records request counts and
// latency per model. Every review call made by the miner flows through it.
type InstrumentedClient struct {
	underlying LLMClient
}

// NewInstrumentedClient wraps client. Wrapping an already instrumented client
// returns it unchanged.
func NewInstrumentedClient(client LLMClient) *InstrumentedClient {
	if ic, ok := client.(*InstrumentedClient); ok {
		return ic
	}
	return &InstrumentedClient{underlying: client}
}

// Unwrap returns the wrapped client.
func (c *InstrumentedClient) Unwrap() LLMClient {
	return c.underlying
}

// ModelSetter is implemented by clients whose model can change at runtime.
type ModelSetter interface {
	SetModel(model string)
}

// SetModel switches client to model, looking through instrumentation
// wrappers. It reports false when no client in the chain supports it.
func SetModel(client LLMClient, model string) bool {
	for client != nil {
		if s, ok := client.(ModelSetter); ok {
			s.SetModel(model)
			return true
		}
		w, ok := client.(interface{ Unwrap() LLMClient })
		if !ok {
			return false
		}
		client = w.Unwrap()
	}
	return false
}

// CompleteWithSystem forwards to the wrapped client.
func (c *InstrumentedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := c.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	c.record(start, err)
	return resp, err
}

// CompleteStructured forwards to the wrapped client.
func (c *InstrumentedClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema *ResponseSchema) (string, error) {
	start := time.Now()
	resp, err := c.underlying.CompleteStructured(ctx, systemPrompt, userPrompt, schema)
	c.record(start, err)
	return resp, err
}

// GetModel returns the wrapped client's model.
func (c *InstrumentedClient) GetModel() string {
	return c.underlying.GetModel()
}

func (c *InstrumentedClient) record(start time.Time, err error) {
	d := time.Since(start)
	metrics.RecordLLMRequest(c.GetModel(), err, d)
	if err != nil {
		logging.APIWarn("llm request failed: model=%s duration=%v err=%v", c.GetModel(), d, err)
	}
}
