// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm provides Generator adapters: the Anthropic SDK client for
// live scoring and a deterministic heuristic generator for degraded mode
// and tests.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// tierModels maps cost tiers onto Anthropic model IDs. Overridable per
// tier through AnthropicConfig.Models.
var tierModels = map[types.Tier]string{
	types.TierEco:      "claude-3-5-haiku-latest",
	types.TierStandard: "claude-sonnet-4-5",
	types.TierPremium:  "claude-opus-4-1",
}

// AnthropicConfig configures the SDK-backed generator.
type AnthropicConfig struct {
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string

	// Models overrides the per-tier model mapping.
	Models map[types.Tier]string

	// Temperature for all calls. Scoring wants determinism; default 0.
	Temperature float64

	Logger *zap.Logger
}

// AnthropicGenerator implements types.Generator over the official SDK.
type AnthropicGenerator struct {
	client      anthropic.Client
	models      map[types.Tier]string
	temperature float64
	logger      *zap.Logger
}

// NewAnthropicGenerator creates an SDK-backed generator. The API key comes
// from the config or the ANTHROPIC_API_KEY environment variable.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	models := make(map[types.Tier]string, len(tierModels))
	for tier, model := range tierModels {
		models[tier] = model
	}
	for tier, model := range cfg.Models {
		if model != "" {
			models[tier] = model
		}
	}

	return &AnthropicGenerator{
		client:      anthropic.NewClient(option.WithAPIKey(key)),
		models:      models,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}, nil
}

// Name implements types.Generator.
func (g *AnthropicGenerator) Name() string { return "anthropic" }

// Generate implements types.Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, maxTokens int, tier types.Tier) (*types.Generation, error) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	model, ok := g.models[tier]
	if !ok {
		model = g.models[types.TierStandard]
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(g.temperature),
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	tokensIn := int(message.Usage.InputTokens)
	tokensOut := int(message.Usage.OutputTokens)
	generation := &types.Generation{
		Text:      sb.String(),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      float64(tokensIn+tokensOut) / 1000 * types.TierPrice(tier),
	}
	g.logger.Debug("anthropic generation",
		zap.String("model", model),
		zap.String("tier", string(tier)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut),
		zap.Float64("cost", generation.Cost),
	)
	return generation, nil
}
