// Package checker talks to the CheckerChain product API.
package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkerminer/internal/logging"
	"checkerminer/internal/metrics"
	"checkerminer/internal/types"

	"golang.org/x/time/rate"
)

// ErrProductNotFound is returned when the API has no product for an id.
var ErrProductNotFound = errors.New("product not found")

// Config holds configuration for the CheckerChain client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerSec float64
}

// envelope is the response wrapper used by every CheckerChain endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Client fetches products from CheckerChain.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	retryBackoff time.Duration
}

// NewClient creates a new CheckerChain client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, 1),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: 500 * time.Millisecond,
	}
}

// FetchProduct returns the product with the given id.
// Unknown ids yield ErrProductNotFound.
func (c *Client) FetchProduct(ctx context.Context, id string) (*types.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrProductNotFound)
	}

	timer := logging.StartTimer(logging.CategoryChecker, "FetchProduct "+id)
	defer timer.Stop()

	data, err := c.get(ctx, "/products/"+url.PathEscape(id))
	if err != nil {
		metrics.RecordProductFetch(outcomeFor(err))
		return nil, err
	}

	var p types.Product
	if err := json.Unmarshal(data, &p); err != nil {
		metrics.RecordProductFetch("error")
		return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	metrics.RecordProductFetch("success")
	return &p, nil
}

// FetchUnreviewed lists the products currently awaiting review.
func (c *Client) FetchUnreviewed(ctx context.Context) ([]types.Product, error) {
	data, err := c.get(ctx, "/products/unreviewed")
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var products []types.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode unreviewed products: %w", err)
	}
	logging.Checker("fetched %d unreviewed products", len(products))
	return products, nil
}

// get performs a GET with pacing and retries, returning the envelope data.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBackoff * time.Duration(1<<uint(attempt-1))
			logging.CheckerDebug("retrying %s in %v (attempt %d): %v", path, backoff, attempt+1, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, path)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("checkerchain returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("checkerchain returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil, fmt.Errorf("%w: %s %s", ErrProductNotFound, path, env.Message)
		}
		return env.Data, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrProductNotFound) {
		return "not_found"
	}
	return "error"
}
