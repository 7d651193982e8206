// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package judge

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/types"
)

// Scorer scores one dimension of one item. Implementations may call out to
// a model, run a heuristic, or do static analysis; the engine treats all of
// them uniformly and applies the per-dimension deadline from outside.
type Scorer interface {
	// Score returns a value in [0,100] for the dimension.
	Score(ctx context.Context, dimension string, item *types.Item, judgeCtx map[string]any) (float64, error)

	// Version identifies the scorer implementation for audit trails.
	Version() string
}

// ============================================================================
// Heuristic scorer
// ============================================================================

// HeuristicScorer scores dimensions from cheap lexical features of the item.
// It is deterministic for a given (dimension, item) pair, which makes it the
// degraded-mode default and the baseline the LLM scorer is diffed against.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the deterministic lexical scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Version identifies the scorer implementation.
func (s *HeuristicScorer) Version() string { return "heuristic/1" }

// Signal words shifting scores up or down. Kept deliberately small; the
// heuristic is a floor, not a judge.
var (
	positiveSignals = []string{"tested", "reviewed", "patched", "documented", "verified", "refactored", "fixed"}
	negativeSignals = []string{"hack", "todo", "untested", "rm -rf", "force push", "wip", "broken"}
)

// Score derives a [0,100] score from body features plus a per-dimension
// deterministic offset, so different dimensions disagree with each other the
// way independent judges would.
func (s *HeuristicScorer) Score(ctx context.Context, dimension string, item *types.Item, judgeCtx map[string]any) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	body := strings.ToLower(item.Body)
	base := 50.0

	for _, w := range positiveSignals {
		if strings.Contains(body, w) {
			base += 6
		}
	}
	for _, w := range negativeSignals {
		if strings.Contains(body, w) {
			base -= 9
		}
	}

	// Very short bodies carry little evidence either way.
	if len(item.Body) < 16 {
		base -= 8
	}

	// Deterministic per-(dimension,item) jitter in [-5,+5].
	h := fnv.New32a()
	h.Write([]byte(dimension))
	h.Write([]byte(item.Body))
	base += float64(h.Sum32()%11) - 5

	return phi.ClampScore(base), nil
}

// ============================================================================
// LLM scorer
// ============================================================================

// LLMScorer asks a language model for a single numeric score. The response
// contract is one number on the first line; anything unparsable is an error
// so the pool's retry and the engine's null-slot handling kick in.
type LLMScorer struct {
	generator types.Generator
	tier      types.Tier
}

// NewLLMScorer creates a scorer backed by the given adapter and tier.
func NewLLMScorer(generator types.Generator, tier types.Tier) *LLMScorer {
	return &LLMScorer{generator: generator, tier: tier}
}

// Version identifies the scorer implementation.
func (s *LLMScorer) Version() string { return "llm/" + s.generator.Name() }

// Score prompts the model for a 0–100 rating of one dimension.
func (s *LLMScorer) Score(ctx context.Context, dimension string, item *types.Item, judgeCtx map[string]any) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate the following %s on the %q dimension from 0 to 100.\n"+
			"Respond with only the number on the first line.\n\n%s",
		item.Kind, dimension, item.Body,
	)

	gen, err := s.generator.Generate(ctx, prompt, 16, s.tier)
	if err != nil {
		return 0, fmt.Errorf("dimension %s: %w", dimension, err)
	}

	line := strings.TrimSpace(gen.Text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(line, "."), 64)
	if err != nil {
		return 0, fmt.Errorf("dimension %s: unparsable score %q", dimension, line)
	}
	if score < 0 || score > 100 {
		return 0, fmt.Errorf("dimension %s: score %v out of range", dimension, score)
	}
	return score, nil
}
