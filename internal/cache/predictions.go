package cache

import (
	"context"
	"encoding/json"
	"time"

	"checkerminer/internal/metrics"
)

// KeyPrefix namespaces prediction keys in shared backends.
const KeyPrefix = "checkerminer:pred:"

// PredictionCache stores one overall score per product id.
type PredictionCache struct {
	backend Cache
	ttl     time.Duration
}

// NewPredictionCache wraps backend. ttl <= 0 keeps predictions until cleared.
func NewPredictionCache(backend Cache, ttl time.Duration) *PredictionCache {
	return &PredictionCache{backend: backend, ttl: ttl}
}

func key(productID string) string {
	return KeyPrefix + productID
}

// Get returns the cached score for productID.
func (p *PredictionCache) Get(productID string) (float64, bool) {
	v, ok := p.backend.Get(key(productID))
	if ok {
		var score float64
		score, ok = toFloat(v)
		if ok {
			metrics.RecordCacheLookup(true)
			return score, true
		}
	}
	metrics.RecordCacheLookup(false)
	return 0, false
}

// Set caches score for productID.
func (p *PredictionCache) Set(productID string, score float64) {
	p.backend.Set(key(productID), score, p.ttl)
}

// Delete drops the prediction for productID.
func (p *PredictionCache) Delete(productID string) {
	p.backend.Delete(key(productID))
}

// Clear drops every prediction.
func (p *PredictionCache) Clear() {
	p.backend.Clear()
}

// Stats reports backend statistics.
func (p *PredictionCache) Stats() CacheStats {
	return p.backend.Stats()
}

// Ping checks that the backend is reachable. Backends without a remote
// connection always succeed.
func (p *PredictionCache) Ping(ctx context.Context) error {
	if hc, ok := p.backend.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the backend.
func (p *PredictionCache) Close() error {
	return p.backend.Close()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
