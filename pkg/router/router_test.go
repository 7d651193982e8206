// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlabs/kennel/pkg/costs"
	"github.com/packlabs/kennel/pkg/fabric"
	"github.com/packlabs/kennel/pkg/types"
)

// captureEmitter records event kinds and payloads.
type captureEmitter struct {
	mu     sync.Mutex
	events []fabric.Event
}

func (c *captureEmitter) Emit(kind string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fabric.Event{Kind: kind, Payload: payload})
}

func (c *captureEmitter) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

// pinAction locks the Q-table so Route deterministically picks one action.
func pinAction(q *QTable, state types.StateKey, action string) {
	q.Restore(&types.QState{
		Values: map[string]map[string]types.QValue{
			state.Canonical(): {action: {Value: 1.0, Visits: 100}},
		},
		Epsilon: 1e-12,
	})
}

func TestRouteWithAmpleBudget(t *testing.T) {
	emitter := &captureEmitter{}
	classifier := NewClassifier(types.TierStandard, nil)
	item := &types.Item{ID: "i1", Kind: types.ItemCodeReview, Body: "review this diff for the handler"}

	cls, err := classifier.Classify(context.Background(), item)
	require.NoError(t, err)

	qt := NewQTable(nil, nil)
	pinAction(qt, StateKeyFor(cls, time.Now()), "standard/consensus")

	r := New(Config{
		Classifier: classifier,
		QTable:     qt,
		Ledger:     costs.NewLedger(1000.0, nil),
		Emitter:    emitter,
	})

	decision, gotCls, err := r.Route(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, types.TierStandard, decision.Tier)
	assert.Equal(t, types.StrategyConsensus, decision.Strategy)
	assert.False(t, decision.Degraded)
	assert.Equal(t, cls.Domain, gotCls.Domain)
	assert.Equal(t, PathFor(cls.Domain), decision.VoterSet, "nil bandit keeps the full path")
	assert.Positive(t, decision.MaxDimensions)
	assert.Contains(t, emitter.kinds(), fabric.KindRoutingDecision)
	assert.NotContains(t, emitter.kinds(), fabric.KindBudgetDegraded)
}

func TestRouteDegradesToCheaperTier(t *testing.T) {
	emitter := &captureEmitter{}
	classifier := NewClassifier(types.TierStandard, nil)
	item := &types.Item{ID: "i2", Kind: types.ItemCodeReview, Body: "review this diff for the handler"}

	cls, err := classifier.Classify(context.Background(), item)
	require.NoError(t, err)

	qt := NewQTable(nil, nil)
	pinAction(qt, StateKeyFor(cls, time.Now()), "premium/consensus")

	// Premium costs 5× the standard estimate; a budget of 2× covers the
	// standard tier but not premium.
	r := New(Config{
		Classifier: classifier,
		QTable:     qt,
		Ledger:     costs.NewLedger(2*cls.EstCost, nil),
		Emitter:    emitter,
	})

	decision, _, err := r.Route(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, types.TierStandard, decision.Tier)
	assert.Equal(t, types.StrategyConsensus, decision.Strategy, "cheaper-tier degradation keeps the strategy")
	assert.True(t, decision.Degraded)
	assert.Contains(t, decision.Rationale, "cheaper tier")
	assert.Contains(t, emitter.kinds(), fabric.KindBudgetDegraded)
}

func TestRouteDegradesToFloor(t *testing.T) {
	emitter := &captureEmitter{}
	classifier := NewClassifier(types.TierStandard, nil)
	item := &types.Item{ID: "i3", Kind: types.ItemCodeReview, Body: "review this diff for the handler"}

	cls, err := classifier.Classify(context.Background(), item)
	require.NoError(t, err)

	qt := NewQTable(nil, nil)
	pinAction(qt, StateKeyFor(cls, time.Now()), "premium/consensus")

	// Not even the eco estimate fits: the floor still routes the item.
	r := New(Config{
		Classifier: classifier,
		QTable:     qt,
		Ledger:     costs.NewLedger(cls.EstCost/1000, nil),
		Emitter:    emitter,
	})

	decision, _, err := r.Route(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, types.TierEco, decision.Tier)
	assert.Equal(t, types.StrategySingle, decision.Strategy)
	assert.True(t, decision.Degraded)
	assert.LessOrEqual(t, decision.MaxDimensions, degradedDimensionCap)
	assert.Contains(t, decision.Rationale, "budget floor")
	assert.Contains(t, emitter.kinds(), fabric.KindBudgetDegraded)
}

func TestRoutePropagatesClassifierError(t *testing.T) {
	r := New(Config{Classifier: NewClassifier(types.TierStandard, nil), QTable: NewQTable(nil, nil)})
	_, _, err := r.Route(context.Background(), &types.Item{ID: "i4", Body: "  "})
	assert.ErrorIs(t, err, ErrEmptyItem)
}

func TestLearnUpdatesQTableAndEmits(t *testing.T) {
	emitter := &captureEmitter{}
	classifier := NewClassifier(types.TierStandard, nil)
	qt := NewQTable(nil, nil)
	r := New(Config{Classifier: classifier, QTable: qt, Emitter: emitter})

	cls := &types.Classification{Intent: "review", Domain: "code", Complexity: types.ComplexityModerate}
	decision := &types.RouteDecision{Tier: types.TierStandard, Strategy: types.StrategyConsensus}
	at := time.Now()

	r.Learn(cls, decision, 1.0, at)

	assert.Equal(t, "standard/consensus", qt.Argmax(StateKeyFor(cls, at)))
	assert.Contains(t, emitter.kinds(), fabric.KindQValueUpdated)
}

func TestParseActionFallback(t *testing.T) {
	tier, strategy := parseAction("premium/dialectic")
	assert.Equal(t, types.TierPremium, tier)
	assert.Equal(t, types.StrategyDialectic, strategy)

	tier, strategy = parseAction("garbage")
	assert.Equal(t, types.TierStandard, tier)
	assert.Equal(t, types.StrategyConsensus, strategy)
}

func TestActionForRoundTrips(t *testing.T) {
	for _, action := range routeActions {
		tier, strategy := parseAction(action)
		assert.Equal(t, action, ActionFor(&types.RouteDecision{Tier: tier, Strategy: strategy}))
	}
}
