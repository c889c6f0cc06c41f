package main

import (
	"context"
	"errors"
	"fmt"

	"checkerminer/internal/cache"
	"checkerminer/internal/checker"
	"checkerminer/internal/config"
	"checkerminer/internal/health"
	"checkerminer/internal/logging"
	"checkerminer/internal/miner"
	"checkerminer/internal/perception"
	"checkerminer/internal/review"
	"checkerminer/internal/store"
	"checkerminer/internal/types"
	"checkerminer/internal/version"
)

// app holds the wired components shared by serve and score.
type app struct {
	checker     *checker.Client
	llm         types.LLMClient
	predictions *cache.PredictionCache
	store       *store.PredictionStore
	miner       *miner.Miner
}

// buildApp wires every component from cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	llm, err := perception.NewClientFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	logging.Boot("LLM provider=%s model=%s", cfg.LLM.Provider, llm.GetModel())

	products := checker.NewClient(checker.Config{
		BaseURL:        cfg.CheckerChain.BaseURL,
		Timeout:        cfg.GetCheckerChainTimeout(),
		MaxRetries:     cfg.CheckerChain.MaxRetries,
		RequestsPerSec: cfg.CheckerChain.RequestsPerSec,
	})

	return assembleApp(ctx, cfg, products, llm)
}

// assembleApp builds the cache, store and miner around the given product
// source and LLM client.
func assembleApp(ctx context.Context, cfg *config.Config, products *checker.Client, llm types.LLMClient) (*app, error) {
	backend, err := cache.New(cfg.Cache, cfg.GetCacheCleanupInterval())
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	a := &app{
		checker:     products,
		llm:         llm,
		predictions: cache.NewPredictionCache(backend, cfg.GetCacheTTL()),
	}

	var recorder miner.Recorder
	if cfg.Store.Enabled {
		a.store, err = store.Open(cfg.Store.DatabasePath)
		if err != nil {
			a.predictions.Close()
			return nil, err
		}
		recorder = a.store
		logging.Boot("prediction store at %s", a.store.Path())
		if cfg.Store.WarmOnStart {
			if _, err := a.store.Warm(ctx, a.predictions); err != nil {
				logging.BootWarn("cache warm-up failed: %v", err)
			}
		}
	}

	a.miner = miner.New(products, review.NewReviewer(llm), a.predictions, recorder, miner.Options{
		MaxConcurrency: cfg.Miner.MaxConcurrency,
		RetryRounds:    cfg.Miner.RetryRounds,
		FallbackScore:  cfg.Miner.FallbackScore,
	})
	return a, nil
}

// healthManager registers a check for every backing service.
func (a *app) healthManager(backend string) *health.Manager {
	m := health.NewManager(version.Current())
	m.RegisterChecker(health.NewPingChecker("cache", backend, a.predictions.Ping))
	if a.store != nil {
		// History writes are best effort; a broken store does not stop scoring.
		sc := health.NewPingChecker("store", "sqlite "+a.store.Path(), a.store.Ping)
		sc.OnFailure = health.StatusDegraded
		m.RegisterChecker(sc)
	}
	return m
}

// Close releases the cache and the store.
func (a *app) Close() error {
	var errs []error
	if a.predictions != nil {
		errs = append(errs, a.predictions.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
