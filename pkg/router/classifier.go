// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package router maps classified items onto voter sets, model tiers, and
// scoring depth: a keyword classifier seeds static Lightning Paths, an
// ε-greedy Q-table refines them, Thompson sampling over dog track records
// picks among variants, and the cost ledger forces degradation when the
// budget runs dry.
package router

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// ErrEmptyItem is returned for items with no body to classify.
var ErrEmptyItem = errors.New("classifier: empty item body")

// Classifier derives {intent, domain, complexity, est_cost} from an item.
// Token counts come from tiktoken (cl100k_base); when the encoder cannot
// be loaded it falls back to a character estimate.
type Classifier struct {
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
	defaultTier types.Tier
	logger      *zap.Logger
}

// NewClassifier creates a classifier estimating costs at the given tier.
func NewClassifier(defaultTier types.Tier, logger *zap.Logger) *Classifier {
	if defaultTier == "" {
		defaultTier = types.TierStandard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{defaultTier: defaultTier, logger: logger}
}

var intentKeywords = []struct {
	intent string
	words  []string
}{
	{"review", []string{"review", "diff", "patch", "pull request", "lgtm"}},
	{"analyze", []string{"analyze", "analysis", "evaluate", "assess", "score"}},
	{"detect", []string{"detect", "pattern", "anomaly", "scan"}},
	{"execute", []string{"run", "execute", "deploy", "invoke", "install"}},
}

var domainKeywords = []struct {
	domain string
	words  []string
}{
	{"security", []string{"rm -rf", "secret", "credential", "vulnerability", "exploit", "sudo"}},
	{"code", []string{"func ", "class ", "import ", "refactor", "bug", "test", "compile"}},
	{"market", []string{"token", "price", "liquidity", "swap", "chart", "volume"}},
	{"ops", []string{"deploy", "rollback", "kubernetes", "container", "pipeline", "incident"}},
}

// Classify derives a Classification. It never mutates the item.
func (c *Classifier) Classify(ctx context.Context, item *types.Item) (*types.Classification, error) {
	if item == nil || strings.TrimSpace(item.Body) == "" {
		return nil, ErrEmptyItem
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	body := strings.ToLower(item.Body)

	intent := "ask"
	for _, ik := range intentKeywords {
		if containsAny(body, ik.words) {
			intent = ik.intent
			break
		}
	}
	// Item kind is a stronger signal than keywords.
	switch item.Kind {
	case types.ItemCodeReview:
		intent = "review"
	case types.ItemToolInvocation:
		intent = "execute"
	case types.ItemPatternDetection:
		intent = "detect"
	}

	domain := "general"
	for _, dk := range domainKeywords {
		if containsAny(body, dk.words) {
			domain = dk.domain
			break
		}
	}
	if item.Kind == types.ItemTokenAnalysis {
		domain = "market"
	}

	tokens := c.countTokens(item.Body)
	complexity := complexityFor(tokens)
	estCost := float64(tokens) / 1000 * types.TierPrice(c.defaultTier) * dimensionCallFactor(complexity)

	cls := &types.Classification{
		Intent:     intent,
		Domain:     domain,
		Complexity: complexity,
		EstCost:    estCost,
	}
	c.logger.Debug("item classified",
		zap.String("item_id", item.ID),
		zap.String("intent", intent),
		zap.String("domain", domain),
		zap.String("complexity", string(complexity)),
		zap.Int("tokens", tokens),
		zap.Float64("est_cost", estCost),
	)
	return cls, nil
}

// EstimateTier returns the tier cost estimates are denominated in.
func (c *Classifier) EstimateTier() types.Tier { return c.defaultTier }

// countTokens lazily initializes the tiktoken encoder.
func (c *Classifier) countTokens(text string) int {
	c.encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tiktoken unavailable, using char estimate", zap.Error(err))
			return
		}
		c.encoder = enc
	})
	if c.encoder == nil {
		return len(text) / 4
	}
	return len(c.encoder.Encode(text, nil, nil))
}

func complexityFor(tokens int) types.Complexity {
	switch {
	case tokens < 32:
		return types.ComplexityTrivial
	case tokens < 128:
		return types.ComplexitySimple
	case tokens < 512:
		return types.ComplexityModerate
	case tokens < 2048:
		return types.ComplexityComplex
	default:
		return types.ComplexityEpic
	}
}

// dimensionCallFactor scales the estimate by how much scoring a routed item
// of this complexity typically triggers.
func dimensionCallFactor(c types.Complexity) float64 {
	switch c {
	case types.ComplexityTrivial:
		return 4
	case types.ComplexitySimple:
		return 9
	case types.ComplexityModerate:
		return 18
	case types.ComplexityComplex:
		return 27
	default:
		return 36
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
