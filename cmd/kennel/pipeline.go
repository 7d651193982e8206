// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/config"
	"github.com/packlabs/kennel/pkg/costs"
	"github.com/packlabs/kennel/pkg/fabric"
	"github.com/packlabs/kennel/pkg/judge"
	"github.com/packlabs/kennel/pkg/llm"
	"github.com/packlabs/kennel/pkg/metrics"
	"github.com/packlabs/kennel/pkg/observability"
	"github.com/packlabs/kennel/pkg/orchestrator"
	"github.com/packlabs/kennel/pkg/pack"
	"github.com/packlabs/kennel/pkg/router"
	"github.com/packlabs/kennel/pkg/storage"
	"github.com/packlabs/kennel/pkg/types"
	"github.com/packlabs/kennel/pkg/workerpool"
)

// pipeline is the fully wired service.
type pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	store   *storage.Store
	orch    *orchestrator.Orchestrator
	rtr     *router.Router
	pack    *pack.Engine
	core    *fabric.Bus
	agent   *fabric.Bus
	auto    *fabric.Bus
	bridge  *fabric.Bridge
	ticker  *fabric.Ticker
	pool    *workerpool.Pool
	ledger  *costs.Ledger
	unsubAutomation func()
}

// buildPipeline assembles the whole service from configuration. withMetrics
// is false for one-shot commands so the default registry stays clean.
func buildPipeline(cfg *config.Config, logger *zap.Logger, withMetrics bool) (*pipeline, error) {
	core := fabric.NewCoreBus(logger)
	agent := fabric.NewBus(fabric.BusAgent, logger)
	auto := fabric.NewBus(fabric.BusAutomation, logger)

	store, err := storage.NewStore(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	retrying := storage.NewRetryingStore(store, storage.DefaultRetryConfig(),
		func(op string, err error) {
			core.Emit(fabric.KindStoreFailure, map[string]any{
				"op":    op,
				"error": err.Error(),
			})
		}, logger)

	ledger := costs.NewLedger(cfg.BudgetUSD, logger)
	governor := costs.NewGovernor()
	breaker := costs.NewBreaker(costs.BreakerConfig{
		Ledger:         ledger,
		TargetBurnRate: cfg.TargetBurnRate,
		Logger:         logger,
	})

	provider := llm.Provider(cfg.LLMProvider)
	if cfg.Degraded {
		provider = llm.ProviderHeuristic
	}
	generator, err := llm.FromProvider(provider, llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	var scorer judge.Scorer
	if generator.Name() == "heuristic" {
		scorer = judge.NewHeuristicScorer()
	} else {
		scorer = judge.NewLLMScorer(generator, types.Tier(cfg.DefaultTier))
	}

	tracer := observability.NewLoggingTracer(logger)
	pool := workerpool.New(workerpool.Config{Logger: logger})

	judgeEngine := judge.NewEngine(judge.Config{
		Pool:   pool,
		Scorer: scorer,
		Tracer: tracer,
		Logger: logger,
	})

	packEngine := pack.NewEngine(pack.Config{
		Logger: logger,
		Tracer: tracer,
		Events: agent,
	})
	restoreTrackRecords(store, packEngine, logger)

	qtable := router.NewQTable(func(state *types.QState) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return retrying.StoreQState(ctx, state)
	}, logger)
	if state, err := store.LoadQState(context.Background()); err == nil {
		qtable.Restore(state)
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("q-state load failed", zap.Error(err))
	}

	bandit := router.NewBandit(func(dog types.DogName) (float64, float64) {
		if d := packEngine.Dog(dog); d != nil {
			return d.Record.Params()
		}
		return 1, 1
	})

	rtr := router.New(router.Config{
		Classifier: router.NewClassifier(types.Tier(cfg.DefaultTier), logger),
		QTable:     qtable,
		Bandit:     bandit,
		Ledger:     ledger,
		Emitter:    core,
		Logger:     logger,
	})

	var mets *metrics.Metrics
	if withMetrics {
		mets = metrics.New(prometheus.DefaultRegisterer)
	}

	orch := orchestrator.New(orchestrator.Config{
		Router:   rtr,
		Judge:    judgeEngine,
		Pack:     packEngine,
		Store:    retrying,
		Ledger:   ledger,
		Governor: governor,
		Breaker:  breaker,
		CoreBus:  core,
		Metrics:  mets,
		Tracer:   tracer,
		Logger:   logger,
		Deadline: time.Duration(cfg.DeadlineMs) * time.Millisecond,
	})

	bridge := fabric.NewBridge(
		map[fabric.BusID]*fabric.Bus{
			fabric.BusCore:       core,
			fabric.BusAgent:      agent,
			fabric.BusAutomation: auto,
		},
		[]fabric.Rule{
			{From: fabric.BusAgent, FromKind: fabric.KindConsensusReached, To: fabric.BusAutomation, ToKind: fabric.KindTriggerFired},
			{From: fabric.BusCore, FromKind: fabric.KindUserFeedback, To: fabric.BusAutomation, ToKind: fabric.KindTriggerJudgmentFeedback},
		},
		logger,
	)

	ticker := fabric.NewTicker(auto, logger)

	p := &pipeline{
		cfg:    cfg,
		logger: logger,
		store:  store,
		orch:   orch,
		rtr:    rtr,
		pack:   packEngine,
		core:   core,
		agent:  agent,
		auto:   auto,
		bridge: bridge,
		ticker: ticker,
		pool:   pool,
		ledger: ledger,
	}
	p.subscribeAutomation(retrying)
	return p, nil
}

// subscribeAutomation wires the minute tick: flush learned routing state,
// persist track records, log the budget forecast.
func (p *pipeline) subscribeAutomation(store *storage.RetryingStore) {
	ch, unsubscribe := p.auto.Subscribe(16, fabric.KindAutomationTick)
	p.unsubAutomation = unsubscribe
	go func() {
		for range ch {
			if err := p.rtr.Flush(); err != nil {
				p.logger.Warn("q-state flush failed", zap.Error(err))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			for _, name := range types.PackNames() {
				dog := p.pack.Dog(name)
				if dog == nil {
					continue
				}
				alpha, beta := dog.Record.Params()
				if err := store.StoreTrackRecord(ctx, name, alpha, beta); err != nil {
					p.logger.Warn("track record persist failed",
						zap.String("dog", string(name)), zap.Error(err))
				}
			}
			cancel()
			if at, ok := p.ledger.ForecastExhaustion(); ok {
				p.logger.Info("budget forecast",
					zap.Float64("remaining_usd", p.ledger.RemainingBudget()),
					zap.Time("exhaustion", at),
				)
			}
		}
	}()
}

// start begins the bridge and ticker.
func (p *pipeline) start() error {
	if err := p.bridge.Start(); err != nil {
		return err
	}
	if err := p.ticker.Add("0 * * * * *"); err != nil {
		return err
	}
	p.ticker.Start()
	return nil
}

// shutdown tears everything down in dependency order.
func (p *pipeline) shutdown() {
	p.ticker.Stop()
	p.bridge.Stop()
	if p.unsubAutomation != nil {
		p.unsubAutomation()
	}
	p.orch.Shutdown(0)
	if err := p.pool.Close(5 * time.Second); err != nil {
		p.logger.Warn("worker pool close", zap.Error(err))
	}
	if err := p.store.Close(); err != nil {
		p.logger.Warn("store close", zap.Error(err))
	}
}

// restoreTrackRecords rebuilds dog Beta parameters from the store.
func restoreTrackRecords(store *storage.Store, packEngine *pack.Engine, logger *zap.Logger) {
	records, err := store.LoadTrackRecords(context.Background())
	if err != nil {
		logger.Warn("track record load failed", zap.Error(err))
		return
	}
	for name, params := range records {
		if dog := packEngine.Dog(name); dog != nil {
			dog.Record = pack.RestoreTrackRecord(params[0], params[1])
		}
	}
}
