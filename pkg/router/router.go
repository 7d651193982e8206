// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/costs"
	"github.com/packlabs/kennel/pkg/fabric"
	"github.com/packlabs/kennel/pkg/types"
)

// degradedDimensionCap bounds scoring depth when even the cheapest tier
// does not fit the remaining budget.
const degradedDimensionCap = 18

// routeActions is the closed action catalog for the Q-table: tier/strategy
// pairs ordered cheapest first.
var routeActions = []string{
	"eco/single",
	"eco/consensus",
	"standard/consensus",
	"premium/consensus",
	"premium/dialectic",
}

// Emitter publishes routing events. Satisfied by *fabric.Bus.
type Emitter interface {
	Emit(kind string, payload map[string]any)
}

// Router composes the classifier, the static Lightning Paths, the Q-table,
// and the Thompson bandit into RouteDecisions, degrading against the cost
// ledger when the estimate overshoots the remaining budget.
type Router struct {
	classifier *Classifier
	qtable     *QTable
	bandit     *Bandit
	ledger     *costs.Ledger
	emitter    Emitter
	logger     *zap.Logger
}

// Config wires a Router. Classifier and QTable are required; a nil Bandit
// skips variant trimming, a nil Ledger disables budget degradation, and a
// nil Emitter silences events.
type Config struct {
	Classifier *Classifier
	QTable     *QTable
	Bandit     *Bandit
	Ledger     *costs.Ledger
	Emitter    Emitter
	Logger     *zap.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Router{
		classifier: cfg.Classifier,
		qtable:     cfg.QTable,
		bandit:     cfg.Bandit,
		ledger:     cfg.Ledger,
		emitter:    cfg.Emitter,
		logger:     cfg.Logger,
	}
}

// Route classifies the item and produces a RouteDecision. Classification
// errors propagate; every other failure mode degrades instead of failing.
func (r *Router) Route(ctx context.Context, item *types.Item) (*types.RouteDecision, *types.Classification, error) {
	cls, err := r.classifier.Classify(ctx, item)
	if err != nil {
		return nil, nil, err
	}

	state := StateKeyFor(cls, time.Now())
	action, explored := r.qtable.Choose(state, routeActions)
	tier, strategy := parseAction(action)

	seed := PathFor(cls.Domain)
	voters := seed
	if r.bandit != nil {
		voters = r.bandit.SelectVariant(seed, minWeightFor(cls.Domain))
	}

	decision := &types.RouteDecision{
		VoterSet:      voters,
		Tier:          tier,
		MaxDimensions: dimensionCapFor(cls.Complexity),
		Strategy:      strategy,
		CostBudget:    r.costAtTier(cls, tier),
		Explored:      explored,
		Rationale:     fmt.Sprintf("%s via %s", cls.Domain, action),
	}

	r.applyBudget(item, cls, decision)

	if r.emitter != nil {
		r.emitter.Emit(fabric.KindRoutingDecision, map[string]any{
			"item_id":   item.ID,
			"state":     state.Canonical(),
			"action":    action,
			"tier":      string(decision.Tier),
			"strategy":  string(decision.Strategy),
			"voter_set": dogNames(decision.VoterSet),
			"explored":  decision.Explored,
			"degraded":  decision.Degraded,
			"est_cost":  decision.CostBudget,
			"max_dims":  decision.MaxDimensions,
		})
	}
	r.logger.Debug("route decided",
		zap.String("item_id", item.ID),
		zap.String("state", state.Canonical()),
		zap.String("action", action),
		zap.Bool("explored", explored),
		zap.Bool("degraded", decision.Degraded),
	)
	return decision, cls, nil
}

// applyBudget degrades the decision in place when the tier estimate does
// not fit the remaining budget: first the next cheaper tier that fits,
// then the floor (cheapest tier, capped dimensions, single strategy).
func (r *Router) applyBudget(item *types.Item, cls *types.Classification, decision *types.RouteDecision) {
	if r.ledger == nil {
		return
	}
	remaining := r.ledger.RemainingBudget()
	if decision.CostBudget <= remaining {
		return
	}

	tiers := types.Tiers()
	for i := len(tiers) - 1; i >= 0; i-- {
		if types.TierPrice(tiers[i]) >= types.TierPrice(decision.Tier) {
			continue
		}
		if est := r.costAtTier(cls, tiers[i]); est <= remaining {
			decision.Tier = tiers[i]
			decision.CostBudget = est
			decision.Degraded = true
			decision.Rationale += " (degraded: cheaper tier)"
			r.emitDegraded(item, decision, remaining)
			return
		}
	}

	// Nothing fits: floor the decision rather than refusing to judge.
	decision.Tier = tiers[0]
	decision.CostBudget = r.costAtTier(cls, tiers[0])
	if decision.MaxDimensions > degradedDimensionCap {
		decision.MaxDimensions = degradedDimensionCap
	}
	decision.Strategy = types.StrategySingle
	decision.Degraded = true
	decision.Rationale += " (degraded: budget floor)"
	r.emitDegraded(item, decision, remaining)
}

func (r *Router) emitDegraded(item *types.Item, decision *types.RouteDecision, remaining float64) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(fabric.KindBudgetDegraded, map[string]any{
		"item_id":   item.ID,
		"tier":      string(decision.Tier),
		"strategy":  string(decision.Strategy),
		"max_dims":  decision.MaxDimensions,
		"remaining": remaining,
		"est_cost":  decision.CostBudget,
	})
}

// Learn feeds a feedback reward back into the Q-table for the state/action
// that produced a decision and announces the update.
func (r *Router) Learn(cls *types.Classification, decision *types.RouteDecision, reward float64, at time.Time) {
	state := StateKeyFor(cls, at)
	action := ActionFor(decision)
	r.qtable.Update(state, action, reward, state)

	if r.emitter != nil {
		r.emitter.Emit(fabric.KindQValueUpdated, map[string]any{
			"state":   state.Canonical(),
			"action":  action,
			"reward":  reward,
			"epsilon": r.qtable.Epsilon(),
		})
	}
}

// Flush forces the Q-table to persist. Used on automation ticks and
// shutdown.
func (r *Router) Flush() error { return r.qtable.Flush() }

// StateKeyFor derives the Q-learning state from a classification and a
// wall-clock time.
func StateKeyFor(cls *types.Classification, at time.Time) types.StateKey {
	return types.StateKey{
		Intent:     cls.Intent,
		Domain:     cls.Domain,
		Complexity: cls.Complexity,
		TimeBucket: types.TimeBucketFor(at),
	}
}

// ActionFor renders a decision back into its Q-table action key.
func ActionFor(decision *types.RouteDecision) string {
	return string(decision.Tier) + "/" + string(decision.Strategy)
}

// parseAction splits an action key back into tier and strategy. Malformed
// keys fall back to standard/consensus.
func parseAction(action string) (types.Tier, types.Strategy) {
	parts := strings.SplitN(action, "/", 2)
	if len(parts) != 2 {
		return types.TierStandard, types.StrategyConsensus
	}
	return types.Tier(parts[0]), types.Strategy(parts[1])
}

// dimensionCapFor bounds scoring depth by complexity.
func dimensionCapFor(c types.Complexity) int {
	return int(dimensionCallFactor(c))
}

// costAtTier rescales the classifier's estimate onto the routed tier.
func (r *Router) costAtTier(cls *types.Classification, tier types.Tier) float64 {
	base := types.TierPrice(r.classifier.EstimateTier())
	if base == 0 {
		return cls.EstCost
	}
	return cls.EstCost / base * types.TierPrice(tier)
}

func dogNames(dogs []types.DogName) []string {
	out := make([]string, len(dogs))
	for i, d := range dogs {
		out[i] = string(d)
	}
	return out
}
