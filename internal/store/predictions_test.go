package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"checkerminer/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *PredictionStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "miner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type mapWarmer map[string]float64

func (m mapWarmer) Set(id string, score float64) { m[id] = score }

func TestPredictionStore_RecordLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	latest, err := s.Latest(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	breakdown := &types.ScoreBreakdown{Project: 7, Security: 9, Partnerships: 3}
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "p1", Score: 61.2, Source: SourceLLM, Model: "gpt-4o", Breakdown: breakdown}))
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "p1", Score: 50, Source: SourceFallback}))

	latest, err = s.Latest(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 50.0, latest.Score)
	assert.Equal(t, SourceFallback, latest.Source)
	assert.Nil(t, latest.Breakdown)
	assert.WithinDuration(t, time.Now(), latest.CreatedAt, time.Minute)
}

func TestPredictionStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &types.ScoreBreakdown{Utility: 8}
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "a", Score: 10, Source: SourceLLM, Model: "m", Breakdown: b, CreatedAt: created}))
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "b", Score: 20, Source: SourceRetry, Model: "m", CreatedAt: created}))
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "c", Score: 30, Source: SourceLLM, Model: "m", CreatedAt: created}))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	want := []Prediction{
		{ProductID: "c", Score: 30, Source: SourceLLM, Model: "m", CreatedAt: created},
		{ProductID: "b", Score: 20, Source: SourceRetry, Model: "m", CreatedAt: created},
		{ProductID: "a", Score: 10, Source: SourceLLM, Model: "m", Breakdown: b, CreatedAt: created},
	}
	if diff := cmp.Diff(want, all, cmpopts.IgnoreFields(Prediction{}, "ID")); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestPredictionStore_Warm(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Prediction{ProductID: "a", Score: 40, Source: SourceLLM}))
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "a", Score: 45, Source: SourceRetry}))
	require.NoError(t, s.Record(ctx, Prediction{ProductID: "b", Score: 70, Source: SourceLLM}))

	w := mapWarmer{}
	n, err := s.Warm(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, mapWarmer{"a": 45, "b": 70}, w)
}

func TestPredictionStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Prediction{ProductID: "x", Score: 77.7, Source: SourceLLM}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Ping(context.Background()))

	latest, err := s.Latest(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 77.7, latest.Score)
}

func TestPredictionStore_RejectsEmptyID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Record(context.Background(), Prediction{Score: 1}))
}

func TestPredictionStore_PingAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "miner.db"))
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
