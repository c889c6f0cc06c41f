package miner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkerminer/internal/cache"
	"checkerminer/internal/checker"
	"checkerminer/internal/store"
	"checkerminer/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProducts struct {
	mu       sync.Mutex
	products map[string]*types.Product
	failing  map[string]bool
	calls    map[string]int
}

func newFakeProducts(ids ...string) *fakeProducts {
	f := &fakeProducts{
		products: map[string]*types.Product{},
		failing:  map[string]bool{},
		calls:    map[string]int{},
	}
	for _, id := range ids {
		f.products[id] = &types.Product{ID: id, Name: "product " + id}
	}
	return f
}

func (f *fakeProducts) FetchProduct(ctx context.Context, id string) (*types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.failing[id] {
		return nil, errors.New("connection reset")
	}
	p, ok := f.products[id]
	if !ok {
		return nil, checker.ErrProductNotFound
	}
	return p, nil
}

// fakeReviewer answers from a per-product script; one entry per attempt.
type fakeReviewer struct {
	mu     sync.Mutex
	script map[string][]func() (*types.ReviewScore, error)
	calls  map[string]int
	block  chan struct{}
	total  atomic.Int32
}

func newFakeReviewer() *fakeReviewer {
	return &fakeReviewer{
		script: map[string][]func() (*types.ReviewScore, error){},
		calls:  map[string]int{},
	}
}

func (f *fakeReviewer) on(id string, attempts ...func() (*types.ReviewScore, error)) {
	f.script[id] = attempts
}

func (f *fakeReviewer) Review(ctx context.Context, p *types.Product) (*types.ReviewScore, error) {
	f.total.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	n := f.calls[p.ID]
	f.calls[p.ID]++
	attempts := f.script[p.ID]
	f.mu.Unlock()

	if n >= len(attempts) {
		return uniform(5)()
	}
	return attempts[n]()
}

func (f *fakeReviewer) Model() string { return "fake" }

func (f *fakeReviewer) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func uniform(v int) func() (*types.ReviewScore, error) {
	return func() (*types.ReviewScore, error) {
		return &types.ReviewScore{Breakdown: types.ScoreBreakdown{
			Project: v, Userbase: v, Utility: v, Security: v, Team: v,
			Tokenomics: v, Marketing: v, Roadmap: v, Clarity: v, Partnerships: v,
		}}, nil
	}
}

func failure(msg string) func() (*types.ReviewScore, error) {
	return func() (*types.ReviewScore, error) { return nil, errors.New(msg) }
}

func nilReview() (*types.ReviewScore, error) { return nil, nil }

type fakeRecorder struct {
	mu    sync.Mutex
	saved []store.Prediction
}

func (r *fakeRecorder) Record(ctx context.Context, p store.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, p)
	return nil
}

func (r *fakeRecorder) bySource() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]string{}
	for _, p := range r.saved {
		out[p.ProductID] = p.Source
	}
	return out
}

func newTestMiner(products *fakeProducts, reviewer *fakeReviewer, rec *fakeRecorder) (*Miner, *cache.PredictionCache) {
	pc := cache.NewPredictionCache(cache.NewMemoryCache(0), 0)
	var recorder Recorder
	if rec != nil {
		recorder = rec
	}
	return New(products, reviewer, pc, recorder, DefaultOptions()), pc
}

func f64(v float64) *float64 { return &v }

func TestForward_FirstAttemptSuccess(t *testing.T) {
	products := newFakeProducts("a", "b")
	reviewer := newFakeReviewer()
	reviewer.on("a", uniform(5))
	reviewer.on("b", uniform(10))
	rec := &fakeRecorder{}
	m, pc := newTestMiner(products, reviewer, rec)

	got := m.Forward(context.Background(), []string{"a", "b"})

	want := []*float64{f64(50), f64(98)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Forward mismatch (-want +got):\n%s", diff)
	}

	score, ok := pc.Get("b")
	require.True(t, ok)
	assert.Equal(t, 98.0, score)
	assert.Equal(t, map[string]string{"a": store.SourceLLM, "b": store.SourceLLM}, rec.bySource())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, p := range rec.saved {
		require.NotNil(t, p.Breakdown)
		assert.Equal(t, "fake", p.Model)
	}
}

func TestForward_CacheHitSkipsFetchAndReview(t *testing.T) {
	products := newFakeProducts("a")
	reviewer := newFakeReviewer()
	m, pc := newTestMiner(products, reviewer, nil)
	pc.Set("a", 71.5)

	got := m.Forward(context.Background(), []string{"a"})

	if diff := cmp.Diff([]*float64{f64(71.5)}, got); diff != "" {
		t.Errorf("Forward mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, products.calls["a"])
	assert.Zero(t, reviewer.total.Load())
}

func TestForward_NotFoundAndFetchErrorYieldNil(t *testing.T) {
	products := newFakeProducts("a", "broken")
	products.failing["broken"] = true
	reviewer := newFakeReviewer()
	m, pc := newTestMiner(products, reviewer, nil)

	got := m.Forward(context.Background(), []string{"missing", "a", "broken"})

	require.Len(t, got, 3)
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, 50.0, *got[1])
	assert.Nil(t, got[2])

	_, ok := pc.Get("missing")
	assert.False(t, ok, "missing products must not be cached")
	_, ok = pc.Get("broken")
	assert.False(t, ok)
}

func TestForward_RetrySucceeds(t *testing.T) {
	products := newFakeProducts("a")
	reviewer := newFakeReviewer()
	reviewer.on("a", failure("timeout"), uniform(0))
	rec := &fakeRecorder{}
	m, _ := newTestMiner(products, reviewer, rec)

	got := m.Forward(context.Background(), []string{"a"})

	require.NotNil(t, got[0])
	assert.Equal(t, 0.0, *got[0])
	assert.Equal(t, 2, reviewer.callsFor("a"))
	assert.Equal(t, 1, products.calls["a"], "retry reuses the fetched product")
	assert.Equal(t, map[string]string{"a": store.SourceRetry}, rec.bySource())
}

func TestForward_RetryFailsUsesFallback(t *testing.T) {
	products := newFakeProducts("a", "b")
	reviewer := newFakeReviewer()
	reviewer.on("a", failure("boom"), failure("boom again"))
	reviewer.on("b", nilReview, nilReview)
	rec := &fakeRecorder{}
	m, pc := newTestMiner(products, reviewer, rec)

	got := m.Forward(context.Background(), []string{"a", "b"})

	if diff := cmp.Diff([]*float64{f64(50), f64(50)}, got); diff != "" {
		t.Errorf("Forward mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, reviewer.callsFor("a"))
	assert.Equal(t, 2, reviewer.callsFor("b"))

	score, ok := pc.Get("a")
	require.True(t, ok)
	assert.Equal(t, 50.0, score)
	assert.Equal(t, map[string]string{"a": store.SourceFallback, "b": store.SourceFallback}, rec.bySource())

	// The fallback is cached, so a second request does not call the model.
	m.Forward(context.Background(), []string{"a"})
	assert.Equal(t, 2, reviewer.callsFor("a"))
}

func TestForward_DuplicateIDsReviewedOnce(t *testing.T) {
	products := newFakeProducts("a")
	reviewer := newFakeReviewer()
	reviewer.on("a", uniform(5))
	m, _ := newTestMiner(products, reviewer, nil)

	got := m.Forward(context.Background(), []string{"a", "a", "a"})

	if diff := cmp.Diff([]*float64{f64(50), f64(50), f64(50)}, got); diff != "" {
		t.Errorf("Forward mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, reviewer.callsFor("a"))
	assert.Equal(t, 1, products.calls["a"])
}

func TestForward_EmptyQuery(t *testing.T) {
	m, _ := newTestMiner(newFakeProducts(), newFakeReviewer(), nil)
	got := m.Forward(context.Background(), nil)
	assert.Empty(t, got)
}

func TestForward_CancelledContextLeavesNil(t *testing.T) {
	products := newFakeProducts("a")
	reviewer := newFakeReviewer()
	reviewer.block = make(chan struct{})
	rec := &fakeRecorder{}
	m, pc := newTestMiner(products, reviewer, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	got := m.Forward(ctx, []string{"a"})

	require.Len(t, got, 1)
	assert.Nil(t, got[0])
	_, ok := pc.Get("a")
	assert.False(t, ok, "cancelled requests must not cache a fallback")
	assert.Empty(t, rec.bySource())
}

func TestForward_BoundedConcurrency(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	products := newFakeProducts(ids...)

	var inflight, peak atomic.Int32
	reviewer := newFakeReviewer()
	for _, id := range ids {
		reviewer.on(id, func() (*types.ReviewScore, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return uniform(5)()
		})
	}

	pc := cache.NewPredictionCache(cache.NewMemoryCache(0), 0)
	opts := DefaultOptions()
	opts.MaxConcurrency = 2
	m := New(products, reviewer, pc, nil, opts)

	got := m.Forward(context.Background(), ids)
	for i, p := range got {
		require.NotNil(t, p, "slot %d", i)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestForward_ZeroRetryRoundsFallsBackImmediately(t *testing.T) {
	products := newFakeProducts("a")
	reviewer := newFakeReviewer()
	reviewer.on("a", failure("boom"))

	pc := cache.NewPredictionCache(cache.NewMemoryCache(0), 0)
	opts := DefaultOptions()
	opts.RetryRounds = 0
	opts.FallbackScore = 42
	m := New(products, reviewer, pc, nil, opts)

	got := m.Forward(context.Background(), []string{"a"})
	require.NotNil(t, got[0])
	assert.Equal(t, 42.0, *got[0])
	assert.Equal(t, 1, reviewer.callsFor("a"))
}
