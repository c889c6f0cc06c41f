// Package metrics exposes Prometheus instruments for the miner.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkerminer_forward_requests_total",
		Help: "Total number of forward requests handled",
	})

	forwardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkerminer_forward_duration_seconds",
		Help:    "Wall time of a forward pass",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkerminer_predictions_total",
		Help: "Predictions returned by source",
	}, []string{"source"}) // source=cache|llm|retry|fallback|missing

	productFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkerminer_product_fetch_total",
		Help: "CheckerChain product fetches by outcome",
	}, []string{"outcome"}) // outcome=success|not_found|error

	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkerminer_llm_requests_total",
		Help: "LLM review requests by model and outcome",
	}, []string{"model", "outcome"}) // outcome=success|error

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkerminer_llm_request_duration_seconds",
		Help:    "LLM request latency",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"model"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkerminer_cache_lookups_total",
		Help: "Prediction cache lookups by result",
	}, []string{"result"}) // result=hit|miss
)

// RecordForward records one forward pass.
func RecordForward(d time.Duration) {
	forwardRequestsTotal.Inc()
	forwardDuration.Observe(d.Seconds())
}

// RecordPrediction records where a returned prediction came from.
func RecordPrediction(source string) {
	predictionsTotal.WithLabelValues(source).Inc()
}

// RecordProductFetch records a CheckerChain fetch outcome.
func RecordProductFetch(outcome string) {
	productFetchTotal.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records an LLM call.
func RecordLLMRequest(model string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	llmRequestsTotal.WithLabelValues(model, outcome).Inc()
	llmRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordCacheLookup records a prediction cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}
