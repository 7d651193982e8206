// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package judge scores items across 36 dimensions (35 named plus one
// residual), aggregates them into five axiom scores under the φ weight
// template, and derives the Q-Score, verdict, and clamped confidence.
package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/observability"
	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/types"
	"github.com/packlabs/kennel/pkg/workerpool"
)

// ErrInsufficientSignal is returned when more than maxScorerFailures of the
// attempted named dimensions fail; the judgment cannot be trusted.
var ErrInsufficientSignal = errors.New("insufficient signal: too many scorer failures")

const (
	// maxScorerFailures is the largest tolerable count of failed named
	// dimension scorers before the judgment itself fails.
	maxScorerFailures = 7

	// dimensionSoftTimeout is logged when exceeded; dimensionHardTimeout
	// cancels the scorer.
	dimensionSoftTimeout = 2 * time.Second
	dimensionHardTimeout = 5 * time.Second
)

// State tracks a judgment through its lifecycle.
type State string

const (
	StatePending     State = "pending"
	StateScoring     State = "scoring"
	StateAggregating State = "aggregating"
	StateSkepticized State = "skepticized"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Engine computes a Judgment from an Item within a Classification.
type Engine struct {
	pool   *workerpool.Pool
	scorer Scorer
	tracer observability.Tracer
	logger *zap.Logger
}

// Config configures the judgment engine. Nil fields pick defaults.
type Config struct {
	Pool   *workerpool.Pool
	Scorer Scorer
	Tracer observability.Tracer
	Logger *zap.Logger
}

// NewEngine creates a judgment engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Pool == nil {
		cfg.Pool = workerpool.New(workerpool.Config{Logger: cfg.Logger})
	}
	if cfg.Scorer == nil {
		cfg.Scorer = NewHeuristicScorer()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		pool:   cfg.Pool,
		scorer: cfg.Scorer,
		tracer: cfg.Tracer,
		logger: cfg.Logger,
	}
}

// Judge scores the item and aggregates the result. The route may cap the
// number of dimensions actually scored; capped dimensions are imputed to
// the mean of their scored axiom siblings and the residual is penalised in
// proportion to the missing signal.
func (e *Engine) Judge(ctx context.Context, item *types.Item, cls *types.Classification, route *types.RouteDecision) (*types.Judgment, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanJudgment)
	defer e.tracer.EndSpan(span)

	state := StatePending
	reasoning := []string{fmt.Sprintf("state:%s", state)}

	named := NamedDimensions()
	maxDims := len(named)
	if route != nil && route.MaxDimensions > 0 && route.MaxDimensions < maxDims {
		maxDims = route.MaxDimensions
	}
	attempted := named[:maxDims]

	if len(attempted) == 0 {
		return nil, ErrInsufficientSignal
	}

	state = StateScoring
	reasoning = append(reasoning, fmt.Sprintf("state:%s dims=%d/%d", state, maxDims, len(named)))
	e.logger.Debug("scoring item",
		zap.String("item_id", item.ID),
		zap.Int("dimensions", maxDims),
	)

	results, err := e.pool.ScoreChunk(ctx, attempted, func(taskCtx context.Context, dim string) (float64, error) {
		return e.scoreOne(taskCtx, dim, item)
	})
	if err != nil {
		return nil, fmt.Errorf("score chunk: %w", err)
	}

	scores := make(map[string]types.DimensionScore, len(named)+1)
	failures := 0
	for i, r := range results {
		dim := attempted[i]
		if r.Err != nil {
			failures++
			scores[dim] = types.DimensionScore{Dimension: dim, ScorerVersion: e.scorer.Version(), Valid: false}
			e.logger.Debug("dimension scorer failed", zap.String("dimension", dim), zap.Error(r.Err))
			continue
		}
		scores[dim] = types.DimensionScore{
			Dimension:     dim,
			Score:         phi.ClampScore(r.Score),
			ScorerVersion: e.scorer.Version(),
			Valid:         true,
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Too many failures, or a capped route left no valid signal at all.
	if failures > maxScorerFailures || failures == len(attempted) {
		e.logger.Warn("judgment failed: insufficient signal",
			zap.String("item_id", item.ID),
			zap.Int("failures", failures),
		)
		return nil, fmt.Errorf("%w (%d failed scorers)", ErrInsufficientSignal, failures)
	}

	state = StateAggregating
	reasoning = append(reasoning, fmt.Sprintf("state:%s failures=%d", state, failures))

	// Impute capped dimensions from their scored axiom siblings.
	for _, dim := range named[maxDims:] {
		axiom, _ := AxiomOf(dim)
		scores[dim] = types.DimensionScore{
			Dimension:     dim,
			Score:         e.axiomSiblingMean(axiom, scores),
			ScorerVersion: e.scorer.Version(),
			Valid:         true,
			Imputed:       true,
		}
	}

	axiomScores := make(map[types.Axiom]float64, 5)
	for _, axiom := range types.Axioms() {
		axiomScores[axiom] = e.aggregateAxiom(axiom, scores)
	}

	// Residual from actually-scored (non-imputed) named dimensions only,
	// penalised proportionally for missing signal.
	sigma, validCount := namedSpread(scores)
	residual := phi.ClampScore(100 * (1 - sigma/50))
	residual *= float64(validCount) / float64(len(named))

	qScore := geometricQ(axiomScores)
	verdict := types.VerdictForScore(qScore)

	// Confidence blends score level with inverse residual spread, then is
	// hard-clamped to φ⁻¹. No code path may emit more.
	spreadInv := 1 - sigma/50
	if spreadInv < 0 {
		spreadInv = 0
	}
	confidence := 0.5*(qScore/100) + 0.5*spreadInv

	state = StateSkepticized
	if residual < 100*phi.Inv2 {
		// High unexplained variance: the judgment doubts itself.
		confidence *= phi.Inv
		reasoning = append(reasoning, fmt.Sprintf("state:%s residual=%.1f self-skepticism applied", state, residual))
	} else {
		reasoning = append(reasoning, fmt.Sprintf("state:%s residual=%.1f", state, residual))
	}
	confidence = phi.ClampConfidence(confidence)

	dimensions := make([]types.DimensionScore, 0, len(named)+1)
	for _, dim := range named {
		dimensions = append(dimensions, scores[dim])
	}
	dimensions = append(dimensions, types.DimensionScore{
		Dimension:     types.ResidualDimension,
		Score:         residual,
		ScorerVersion: "residual/1",
		Valid:         true,
	})

	state = StateDone
	reasoning = append(reasoning, fmt.Sprintf("state:%s q=%.2f verdict=%s", state, qScore, verdict))

	judgment := &types.Judgment{
		ID:            uuid.New().String(),
		ItemID:        item.ID,
		AxiomScores:   axiomScores,
		Dimensions:    dimensions,
		QScore:        qScore,
		Verdict:       verdict,
		Confidence:    confidence,
		ReasoningPath: reasoning,
		CreatedAt:     time.Now().UTC(),
	}

	if span != nil {
		span.SetAttribute("judgment.id", judgment.ID)
		span.SetAttribute("judgment.q_score", qScore)
		span.SetAttribute("judgment.verdict", string(verdict))
	}
	e.logger.Info("judgment complete",
		zap.String("judgment_id", judgment.ID),
		zap.String("item_id", item.ID),
		zap.Float64("q_score", qScore),
		zap.String("verdict", string(verdict)),
		zap.Float64("confidence", confidence),
	)
	return judgment, nil
}

// scoreOne runs the scorer for a single dimension under the hard deadline.
func (e *Engine) scoreOne(ctx context.Context, dim string, item *types.Item) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, dimensionHardTimeout)
	defer cancel()

	start := time.Now()
	score, err := e.scorer.Score(ctx, dim, item, item.Context)
	if elapsed := time.Since(start); elapsed > dimensionSoftTimeout {
		e.logger.Warn("dimension scorer slow",
			zap.String("dimension", dim),
			zap.Duration("elapsed", elapsed),
		)
	}
	return score, err
}

// aggregateAxiom computes the weight-template mean over an axiom's seven
// dimensions, dropping the weight of any failed slot.
func (e *Engine) aggregateAxiom(axiom types.Axiom, scores map[string]types.DimensionScore) float64 {
	weights := phi.WeightTemplate()
	dims := axiomDimensions[axiom]

	var sum, weightSum float64
	for i, dim := range dims {
		ds, ok := scores[dim]
		if !ok || !ds.Valid {
			continue
		}
		sum += weights[i] * ds.Score
		weightSum += weights[i]
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// axiomSiblingMean is the unweighted mean of the axiom's valid, non-imputed
// scores; 50 when the axiom has no scored sibling at all.
func (e *Engine) axiomSiblingMean(axiom types.Axiom, scores map[string]types.DimensionScore) float64 {
	var sum float64
	var n int
	for _, dim := range axiomDimensions[axiom] {
		ds, ok := scores[dim]
		if !ok || !ds.Valid || ds.Imputed {
			continue
		}
		sum += ds.Score
		n++
	}
	if n == 0 {
		return 50
	}
	return sum / float64(n)
}

// namedSpread returns the population standard deviation over the valid,
// non-imputed named dimension scores, plus their count.
func namedSpread(scores map[string]types.DimensionScore) (sigma float64, validCount int) {
	var sum float64
	for _, ds := range scores {
		if ds.Valid && !ds.Imputed {
			sum += ds.Score
			validCount++
		}
	}
	if validCount == 0 {
		return 0, 0
	}
	mean := sum / float64(validCount)
	var varianceSum float64
	for _, ds := range scores {
		if ds.Valid && !ds.Imputed {
			diff := ds.Score - mean
			varianceSum += diff * diff
		}
	}
	return math.Sqrt(varianceSum / float64(validCount)), validCount
}

// geometricQ is the geometric mean of the five axiom scores, scaled back
// to [0,100]. Any zero axiom collapses the whole score to zero.
func geometricQ(axioms map[types.Axiom]float64) float64 {
	product := 1.0
	for _, axiom := range types.Axioms() {
		a := axioms[axiom]
		if a <= 0 {
			return 0
		}
		product *= a / 100
	}
	return 100 * math.Pow(product, 1.0/5.0)
}
