// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/costs"
	"github.com/packlabs/kennel/pkg/fabric"
	"github.com/packlabs/kennel/pkg/judge"
	"github.com/packlabs/kennel/pkg/pack"
	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/router"
	"github.com/packlabs/kennel/pkg/storage"
	"github.com/packlabs/kennel/pkg/types"
	"github.com/packlabs/kennel/pkg/workerpool"
)

type testPipeline struct {
	orch       *Orchestrator
	store      *storage.RetryingStore
	core       *fabric.Bus
	classifier *router.Classifier
	qtable     *router.QTable
	ledger     *costs.Ledger
}

func newTestPipeline(t *testing.T, breaker *costs.Breaker) *testPipeline {
	t.Helper()

	st, err := storage.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	retrying := storage.NewRetryingStore(st, storage.DefaultRetryConfig(), nil, nil)

	core := fabric.NewCoreBus(zap.NewNop())
	ledger := costs.NewLedger(100.0, nil)
	classifier := router.NewClassifier(types.TierStandard, nil)
	qtable := router.NewQTable(nil, nil)
	rtr := router.New(router.Config{Classifier: classifier, QTable: qtable, Ledger: ledger, Emitter: core})

	pool := workerpool.New(workerpool.Config{Size: 4})
	t.Cleanup(func() { pool.Close(time.Second) }) //nolint:errcheck
	judgeEngine := judge.NewEngine(judge.Config{Pool: pool, Scorer: judge.NewHeuristicScorer()})

	orch := New(Config{
		Router:   rtr,
		Judge:    judgeEngine,
		Pack:     pack.NewEngine(pack.Config{}),
		Store:    retrying,
		Ledger:   ledger,
		Governor: costs.NewGovernor(),
		Breaker:  breaker,
		CoreBus:  core,
	})
	t.Cleanup(func() { orch.Shutdown(2 * time.Second) })

	return &testPipeline{orch: orch, store: retrying, core: core, classifier: classifier, qtable: qtable, ledger: ledger}
}

// pinAction classifies the item and locks the Q-table onto one action so
// Submit routes deterministically.
func (p *testPipeline) pinAction(t *testing.T, item *types.Item, action string) {
	t.Helper()
	cls, err := p.classifier.Classify(context.Background(), item)
	require.NoError(t, err)
	state := router.StateKeyFor(cls, time.Now())
	p.qtable.Restore(&types.QState{
		Values: map[string]map[string]types.QValue{
			state.Canonical(): {action: {Value: 1.0, Visits: 100}},
		},
		Epsilon: 1e-12,
	})
}

func reviewItem() *types.Item {
	return &types.Item{
		Kind: types.ItemCodeReview,
		Body: "review this diff: the change is tested, documented, and keeps the interface consistent",
	}
}

func TestSubmitCriticalPath(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "standard/consensus")

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.JudgmentID)
	assert.Equal(t, item.ID, resp.ItemID)
	assert.Equal(t, types.FailureNone, resp.Failure)
	assert.Len(t, resp.AxiomScores, 5)
	assert.Positive(t, resp.QScore)
	assert.LessOrEqual(t, resp.Confidence, phi.Inv+phi.Tolerance)
	assert.Equal(t, types.TierStandard, resp.Tier)
	assert.Equal(t, types.StrategyConsensus, resp.Strategy)
	require.NotNil(t, resp.Consensus, "consensus strategies run a pack round")
	total := resp.Consensus.Tallies.Approve + resp.Consensus.Tallies.Reject + resp.Consensus.Tallies.Abstain
	assert.Positive(t, total)
}

func TestSubmitStoresBeforeEmitting(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "standard/consensus")

	events, unsubscribe := p.core.Subscribe(16, fabric.KindJudgmentCreated)
	defer unsubscribe()

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, resp.JudgmentID, event.Payload["judgment_id"])
		// The event only fires after the row is durable.
		stored, err := p.store.LoadJudgment(context.Background(), resp.JudgmentID)
		require.NoError(t, err)
		assert.Equal(t, resp.QScore, stored.QScore)
	case <-time.After(3 * time.Second):
		t.Fatal("judgment event never arrived")
	}
}

func TestSubmitFailedJudgmentIsStoredButNotAnnounced(t *testing.T) {
	p := newTestPipeline(t, nil)

	events, unsubscribe := p.core.Subscribe(16, fabric.KindJudgmentCreated)
	defer unsubscribe()

	resp, err := p.orch.Submit(context.Background(), &types.Item{Body: "   "})
	require.NoError(t, err)
	require.Equal(t, types.FailureClassifier, resp.Failure)

	// The row still lands for audit.
	require.Eventually(t, func() bool {
		_, err := p.store.LoadJudgment(context.Background(), resp.JudgmentID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	// But no creation event follows it.
	select {
	case event := <-events:
		t.Fatalf("unexpected judgment event for failed judgment: %v", event.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubmitSingleStrategySkipsConsensus(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "eco/single")

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, types.StrategySingle, resp.Strategy)
	assert.Nil(t, resp.Consensus)
}

func TestSubmitClassifierFailure(t *testing.T) {
	p := newTestPipeline(t, nil)

	resp, err := p.orch.Submit(context.Background(), &types.Item{Body: "   "})
	require.NoError(t, err, "classification failures degrade, they do not error")

	assert.Equal(t, types.FailureClassifier, resp.Failure)
	assert.Equal(t, types.VerdictBark, resp.Verdict)
	assert.Zero(t, resp.QScore)
	assert.Zero(t, resp.Confidence)
	assert.Nil(t, resp.Consensus)

	// Failure judgments are recorded like any other.
	assert.Eventually(t, func() bool {
		_, err := p.store.LoadJudgment(context.Background(), resp.JudgmentID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitNilItem(t *testing.T) {
	p := newTestPipeline(t, nil)
	_, err := p.orch.Submit(context.Background(), nil)
	require.Error(t, err)
}

func TestSubmitOpenBreakerForcesFloor(t *testing.T) {
	// The breaker watches an exhausted ledger while the routing ledger is
	// healthy: degradation comes from the breaker, not the budget check.
	exhausted := costs.NewLedger(0.001, nil)
	exhausted.Append("spent", 0, 0, types.TierPremium, 1.0, false)
	breaker := costs.NewBreaker(costs.BreakerConfig{Ledger: exhausted, ReopenDelay: time.Hour})

	p := newTestPipeline(t, breaker)
	item := reviewItem()
	p.pinAction(t, item, "premium/consensus")

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, types.TierEco, resp.Tier)
	assert.Equal(t, types.StrategySingle, resp.Strategy)
	assert.Nil(t, resp.Consensus)
}

func TestGetReturnsPersistedJudgment(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "standard/consensus")

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := p.store.LoadJudgment(context.Background(), resp.JudgmentID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	got, err := p.orch.Get(context.Background(), resp.JudgmentID)
	require.NoError(t, err)
	assert.Equal(t, resp.JudgmentID, got.JudgmentID)
	assert.Equal(t, resp.QScore, got.QScore)
	assert.Equal(t, resp.Tier, got.Tier, "route context is recalled from memory")

	_, err = p.orch.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFeedbackClosesTheLoop(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "standard/consensus")

	events, unsubscribe := p.core.Subscribe(16, fabric.KindUserFeedback)
	defer unsubscribe()

	resp, err := p.orch.Submit(context.Background(), item)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := p.store.LoadJudgment(context.Background(), resp.JudgmentID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, p.orch.Feedback(context.Background(), resp.JudgmentID, types.FeedbackCorrect, "nailed it"))

	select {
	case event := <-events:
		assert.Equal(t, resp.JudgmentID, event.Payload["judgment_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("feedback event never arrived")
	}

	// The reward reached the Q-table for the routed state/action.
	cls, err := p.classifier.Classify(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "standard/consensus", p.qtable.Argmax(router.StateKeyFor(cls, time.Now())))
}

func TestFeedbackUnknownJudgment(t *testing.T) {
	p := newTestPipeline(t, nil)
	err := p.orch.Feedback(context.Background(), "never-judged", types.FeedbackIncorrect, "")
	assert.ErrorIs(t, err, ErrUnknownJudgment)
}

func TestHealthSnapshot(t *testing.T) {
	breaker := costs.NewBreaker(costs.BreakerConfig{Ledger: costs.NewLedger(100.0, nil)})
	p := newTestPipeline(t, breaker)

	h := p.orch.Health()
	assert.Equal(t, "CLOSED", h.BreakerState)
	assert.Equal(t, 100.0, h.RemainingBudget)
	assert.GreaterOrEqual(t, h.TailInFlight, int64(0))
}

func TestSubmitAsyncAndCancel(t *testing.T) {
	p := newTestPipeline(t, nil)
	item := reviewItem()
	p.pinAction(t, item, "eco/single")

	ticket := p.orch.SubmitAsync(item)
	assert.NotEmpty(t, ticket)

	assert.False(t, p.orch.Cancel("no-such-ticket"))
}

func TestTopicForPrefersContextOverride(t *testing.T) {
	cls := &types.Classification{Intent: "review", Domain: "code"}
	assert.Equal(t, "review:code", topicFor(&types.Item{}, cls))
	assert.Equal(t, "destructive_operation",
		topicFor(&types.Item{Context: map[string]any{"topic": "destructive_operation"}}, cls))
}

func TestRewardFor(t *testing.T) {
	assert.Equal(t, 1.0, rewardFor(types.FeedbackCorrect))
	assert.InDelta(t, phi.Inv2, rewardFor(types.FeedbackPartial), 1e-9)
	assert.Equal(t, -1.0, rewardFor(types.FeedbackIncorrect))
}

func TestForceFloor(t *testing.T) {
	route := &types.RouteDecision{
		Tier:          types.TierPremium,
		Strategy:      types.StrategyDialectic,
		MaxDimensions: 36,
	}
	forceFloor(route)
	assert.Equal(t, types.TierEco, route.Tier)
	assert.Equal(t, types.StrategySingle, route.Strategy)
	assert.Equal(t, 18, route.MaxDimensions)
	assert.True(t, route.Degraded)
}

func TestBuildResponseEnvelope(t *testing.T) {
	judgment := &types.Judgment{
		ID:         "j1",
		ItemID:     "i1",
		QScore:     71,
		Verdict:    types.VerdictWag,
		Confidence: 0.6,
		Dimensions: []types.DimensionScore{{Dimension: types.ResidualDimension, Score: 88, Valid: true}},
	}
	consensus := &types.ConsensusResult{
		ID:        "c1",
		Approved:  true,
		Agreement: 0.9,
		Outcome:   types.OutcomeApproved,
		Division:  types.DivisionUnanimous,
	}
	route := &types.RouteDecision{Tier: types.TierStandard, Strategy: types.StrategyConsensus}

	resp := buildResponse(judgment, consensus, route, 42*time.Millisecond)
	assert.Equal(t, "j1", resp.JudgmentID)
	assert.Equal(t, 88.0, resp.Residual)
	require.NotNil(t, resp.Consensus)
	assert.True(t, resp.Consensus.Approved)
	assert.Equal(t, types.TierStandard, resp.Tier)

	// Nil consensus and route are legal: failure judgments carry neither.
	bare := buildResponse(judgment, nil, nil, 0)
	assert.Nil(t, bare.Consensus)
	assert.Empty(t, bare.Tier)
}
