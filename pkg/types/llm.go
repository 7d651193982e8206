// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "context"

// Generation is the result of a single model call.
type Generation struct {
	Text      string
	TokensIn  int
	TokensOut int
	Cost      float64
}

// Generator is the language-model adapter surface the core consumes.
// Adapters may time out, rate-limit, or silently downgrade tier; the router
// observes the returned Cost to update its forecast.
type Generator interface {
	// Generate maps a prompt to text plus token counts and cost.
	Generate(ctx context.Context, prompt string, maxTokens int, tier Tier) (*Generation, error)

	// Name returns the adapter name.
	Name() string
}

// TierPrice returns the approximate USD cost per 1k tokens for a tier.
// Used for pre-call estimates; adapters report actual cost after the call.
func TierPrice(t Tier) float64 {
	switch t {
	case TierPremium:
		return 0.015
	case TierStandard:
		return 0.003
	default:
		return 0.00025
	}
}
