// Package miner implements the forward pass: for every queried product id it
// returns an overall review score, reusing cached predictions and falling
// back to a neutral score when the model cannot produce a usable review.
package miner

import (
	"context"
	"errors"
	"time"

	"checkerminer/internal/cache"
	"checkerminer/internal/checker"
	"checkerminer/internal/logging"
	"checkerminer/internal/metrics"
	"checkerminer/internal/scoring"
	"checkerminer/internal/store"
	"checkerminer/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Prediction sources reported to metrics. The persisted subset lives in store.
const (
	SourceCache   = "cache"
	SourceMissing = "missing"
)

// Reviewer produces a structured review for a product.
type Reviewer interface {
	Review(ctx context.Context, p *types.Product) (*types.ReviewScore, error)
	Model() string
}

// Recorder persists accepted predictions.
type Recorder interface {
	Record(ctx context.Context, p store.Prediction) error
}

// Options tunes the forward pass.
type Options struct {
	MaxConcurrency int
	RetryRounds    int
	FallbackScore  float64
}

// DefaultOptions returns one retry round, eight concurrent reviews and a
// neutral fallback of 50.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 8,
		RetryRounds:    1,
		FallbackScore:  scoring.FallbackScore,
	}
}

// Miner answers forward requests.
type Miner struct {
	products types.ProductSource
	reviewer Reviewer
	cache    *cache.PredictionCache
	recorder Recorder
	opts     Options
}

// New creates a Miner. recorder may be nil to skip persistence.
func New(products types.ProductSource, reviewer Reviewer, predictions *cache.PredictionCache, recorder Recorder, opts Options) *Miner {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.RetryRounds < 0 {
		opts.RetryRounds = 0
	}
	return &Miner{
		products: products,
		reviewer: reviewer,
		cache:    predictions,
		recorder: recorder,
		opts:     opts,
	}
}

// job is one distinct product awaiting a review.
type job struct {
	id      string
	product *types.Product
}

type outcome struct {
	score  float64
	review *types.ReviewScore
	err    error
}

// Forward returns one prediction per query id, in query order. A nil entry
// means the product could not be found or the request was cancelled.
//
// Each product is fetched once per call. Retry rounds review the product
// fetched in the first round rather than fetching it again, so a retry
// never turns a found product into a missing one.
func (m *Miner) Forward(ctx context.Context, query []string) []*float64 {
	start := time.Now()
	defer func() { metrics.RecordForward(time.Since(start)) }()

	reqID := uuid.NewString()
	logging.Miner("[%s] received mine request for %d products: %v", reqID, len(query), query)

	predictions := make([]*float64, len(query))
	slots := make(map[string][]int)
	var pending []string

	for i, id := range query {
		if score, ok := m.cache.Get(id); ok {
			logging.MinerDebug("[%s] using cached prediction for %s: %.2f", reqID, id, score)
			predictions[i] = ptr(score)
			metrics.RecordPrediction(SourceCache)
			continue
		}
		if _, seen := slots[id]; !seen {
			pending = append(pending, id)
		}
		slots[id] = append(slots[id], i)
	}

	if len(pending) == 0 {
		logging.Miner("[%s] no new products to score, returning cached results", reqID)
		return predictions
	}

	jobs := m.fetch(ctx, reqID, pending)
	for _, id := range pending {
		if !containsJob(jobs, id) {
			metrics.RecordPrediction(SourceMissing)
		}
	}

	fill := func(id string, score float64) {
		for _, i := range slots[id] {
			predictions[i] = ptr(score)
		}
	}

	toReview := jobs
	for round := 0; round <= m.opts.RetryRounds && len(toReview) > 0; round++ {
		if ctx.Err() != nil {
			break
		}
		source := store.SourceLLM
		if round > 0 {
			source = store.SourceRetry
			logging.Miner("[%s] running %d retry tasks", reqID, len(toReview))
		} else {
			logging.Miner("[%s] running scoring tasks for %d products", reqID, len(toReview))
		}

		results := m.reviewAll(ctx, toReview)
		var failed []job
		for k, j := range toReview {
			r := results[k]
			if r.err == nil && scoring.Valid(r.score) {
				m.accept(ctx, j.id, r.score, source, r.review)
				fill(j.id, r.score)
				logging.Miner("[%s] score for product %s: %.2f (%s)", reqID, j.id, r.score, source)
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			if r.err != nil {
				logging.MinerWarn("[%s] attempt %d failed for product %s: %v", reqID, round+1, j.id, r.err)
			} else {
				logging.MinerWarn("[%s] invalid score %v for product %s", reqID, r.score, j.id)
			}
			failed = append(failed, j)
		}
		toReview = failed
	}

	if ctx.Err() == nil {
		for _, j := range toReview {
			score := m.opts.FallbackScore
			logging.MinerError("[%s] retries exhausted for %s, using fallback score %.2f", reqID, j.id, score)
			m.accept(ctx, j.id, score, store.SourceFallback, nil)
			fill(j.id, score)
		}
	}

	scored := 0
	for _, p := range predictions {
		if p != nil {
			scored++
		}
	}
	logging.Miner("[%s] scored %d/%d products in %v", reqID, scored, len(query), time.Since(start))
	return predictions
}

// fetch resolves pending ids concurrently. Unknown ids and fetch errors are
// logged and dropped; the returned jobs keep pending order.
func (m *Miner) fetch(ctx context.Context, reqID string, pending []string) []job {
	products := make([]*types.Product, len(pending))

	var g errgroup.Group
	g.SetLimit(m.opts.MaxConcurrency)
	for i, id := range pending {
		g.Go(func() error {
			p, err := m.products.FetchProduct(ctx, id)
			switch {
			case errors.Is(err, checker.ErrProductNotFound):
				logging.MinerWarn("[%s] product not found for %s", reqID, id)
			case err != nil:
				logging.MinerWarn("[%s] failed to fetch product %s: %v", reqID, id, err)
			default:
				products[i] = p
			}
			return nil
		})
	}
	_ = g.Wait()

	jobs := make([]job, 0, len(pending))
	for i, id := range pending {
		if products[i] != nil {
			jobs = append(jobs, job{id: id, product: products[i]})
		}
	}
	return jobs
}

// reviewAll reviews every job with bounded concurrency. Failures are
// reported per job and never cancel sibling reviews.
func (m *Miner) reviewAll(ctx context.Context, jobs []job) []outcome {
	results := make([]outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(m.opts.MaxConcurrency)
	for i, j := range jobs {
		g.Go(func() error {
			review, err := m.reviewer.Review(ctx, j.product)
			if err != nil {
				results[i] = outcome{err: err}
				return nil
			}
			score, ok := scoring.FromReview(review)
			if !ok {
				results[i] = outcome{err: errors.New("empty review")}
				return nil
			}
			results[i] = outcome{score: score, review: review}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// accept caches and persists a final score.
func (m *Miner) accept(ctx context.Context, id string, score float64, source string, review *types.ReviewScore) {
	m.cache.Set(id, score)
	metrics.RecordPrediction(source)

	if m.recorder == nil {
		return
	}
	p := store.Prediction{ProductID: id, Score: score, Source: source}
	if review != nil {
		b := review.Breakdown
		p.Breakdown = &b
		p.Model = m.reviewer.Model()
	}
	if err := m.recorder.Record(context.WithoutCancel(ctx), p); err != nil {
		logging.MinerWarn("failed to persist prediction for %s: %v", id, err)
	}
}

func containsJob(jobs []job, id string) bool {
	for _, j := range jobs {
		if j.id == id {
			return true
		}
	}
	return false
}

func ptr(v float64) *float64 {
	return &v
}
