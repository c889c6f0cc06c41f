package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"checkerminer/internal/checker"
	"checkerminer/internal/config"
	"checkerminer/internal/health"
	"checkerminer/internal/perception"
	"checkerminer/internal/store"
	"checkerminer/internal/types"
	"checkerminer/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const reviewJSON = `{"product":"Acme","overall_score":60,"breakdown":{"project":5,"userbase":5,"utility":5,"security":5,"team":5,"tokenomics":5,"marketing":5,"roadmap":5,"clarity":5,"partnerships":5}}`

type cannedLLM struct{}

func (cannedLLM) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	return reviewJSON, nil
}

func (cannedLLM) CompleteStructured(ctx context.Context, sys, user string, schema *types.ResponseSchema) (string, error) {
	return "```json\n" + reviewJSON + "\n```", nil
}

func (cannedLLM) GetModel() string { return "canned" }

func newCheckerChain(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/products/unreviewed":
			w.Write([]byte(`{"success":true,"data":[{"_id":"p1","name":"Acme"},{"_id":"p2","name":"Bolt"}]}`))
		case "/products/p1", "/products/p2":
			id := strings.TrimPrefix(r.URL.Path, "/products/")
			w.Write([]byte(`{"success":true,"data":{"_id":"` + id + `","name":"Acme","category":"DeFi"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	c := config.DefaultConfig()
	c.LLM.APIKey = "test"
	c.Store.DatabasePath = filepath.Join(t.TempDir(), "miner.db")
	return c
}

func TestAssembleApp_ForwardPersistsAndWarms(t *testing.T) {
	logger = zap.NewNop()
	srv := newCheckerChain(t)
	c := testConfig(t)
	products := checker.NewClient(checker.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})

	a, err := assembleApp(context.Background(), c, products, cannedLLM{})
	require.NoError(t, err)

	preds := a.miner.Forward(context.Background(), []string{"p1", "nope"})
	require.Len(t, preds, 2)
	require.NotNil(t, preds[0])
	assert.Equal(t, 50.0, *preds[0])
	assert.Nil(t, preds[1])
	require.NoError(t, a.Close())

	// A fresh app over the same database starts with the score cached.
	a, err = assembleApp(context.Background(), c, products, cannedLLM{})
	require.NoError(t, err)
	defer a.Close()
	score, ok := a.predictions.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 50.0, score)

	latest, err := a.store.Latest(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, store.SourceLLM, latest.Source)
	assert.Equal(t, "canned", latest.Model)
}

func TestAssembleApp_StoreDisabled(t *testing.T) {
	c := testConfig(t)
	c.Store.Enabled = false

	a, err := assembleApp(context.Background(), c, checker.NewClient(checker.Config{BaseURL: "http://127.0.0.1:0"}), cannedLLM{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.store)
}

func TestBuildApp_InvalidConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.LLM.APIKey = ""
	_, err := buildApp(context.Background(), c)
	assert.Error(t, err)
}

func TestWriteScores(t *testing.T) {
	v := 61.237
	var buf bytes.Buffer
	require.NoError(t, writeScores(&buf, []string{"p1", "p2"}, []*float64{&v, nil}))

	out := buf.String()
	assert.Contains(t, out, "PRODUCT")
	assert.Contains(t, out, "61.24")
	assert.Contains(t, out, "null")
	assert.Contains(t, out, "scored 1/2 products")
}

func TestWritePredictions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePredictions(&buf, nil))
	assert.Contains(t, buf.String(), "no predictions recorded")

	buf.Reset()
	require.NoError(t, writePredictions(&buf, []store.Prediction{
		{ProductID: "p9", Score: 50, Source: store.SourceFallback, CreatedAt: time.Now()},
	}))
	assert.Contains(t, buf.String(), "p9")
	assert.Contains(t, buf.String(), "fallback")
	assert.Contains(t, buf.String(), "50.00")
}

func TestCompatCmd(t *testing.T) {
	orig := version.Version
	t.Cleanup(func() { version.Version = orig })
	version.Version = "1.2.0"

	var out bytes.Buffer
	compatCmd.SetOut(&out)
	require.NoError(t, compatCmd.RunE(compatCmd, []string{"1.1.0"}))
	assert.Contains(t, out.String(), "compatible")

	assert.Error(t, compatCmd.RunE(compatCmd, []string{"2.0.0"}))
}

func TestApplyReload(t *testing.T) {
	cfg = config.DefaultConfig()
	t.Cleanup(func() { cfg = nil })
	a := &app{llm: perception.NewInstrumentedClient(perception.NewOpenAIClient("sk-test"))}

	next := config.DefaultConfig()
	next.Logging.Level = "debug"
	a.applyReload(next)
	assert.Equal(t, "debug", cfg.Logging.Level)

	next.Logging.Level = "loud"
	a.applyReload(next)
	assert.Equal(t, "debug", cfg.Logging.Level)

	next = config.DefaultConfig()
	next.Logging.Level = "debug"
	next.LLM.Model = "gpt-4o-mini"
	a.applyReload(next)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", a.llm.GetModel())
}

func TestApplyReload_ModelUnsupported(t *testing.T) {
	cfg = config.DefaultConfig()
	t.Cleanup(func() { cfg = nil })
	a := &app{llm: cannedLLM{}}

	next := config.DefaultConfig()
	next.LLM.Model = "gpt-4o-mini"
	a.applyReload(next)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestHealthManager(t *testing.T) {
	c := testConfig(t)
	a, err := assembleApp(context.Background(), c, checker.NewClient(checker.Config{BaseURL: "http://127.0.0.1:0"}), cannedLLM{})
	require.NoError(t, err)

	m := a.healthManager(c.Cache.Backend)
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, health.StatusHealthy, resp.Checks["cache"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Checks["store"].Status)
	assert.Contains(t, resp.Checks["store"].Message, "miner.db")

	// A closed store degrades the miner without making it unready.
	require.NoError(t, a.Close())
	resp = m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, health.StatusDegraded, resp.Checks["store"].Status)
}

func TestScoreRequiresInput(t *testing.T) {
	scoreUnreviewed = false
	assert.Error(t, runScore(scoreCmd, nil))
}
