// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package costs

import (
	"sync"

	"github.com/packlabs/kennel/pkg/phi"
)

// Governor keeps the injected-token ratio inside the φ dead zone
// [φ⁻², φ⁻¹] by nudging the next operation's injection budget: above the
// zone ×0.95, below ×1.05. The injected ratio itself may never exceed φ⁻¹.
type Governor struct {
	mu              sync.Mutex
	ema             float64
	hasSample       bool
	smoothing       float64
	injectionBudget float64 // multiplier applied to the base injection allowance
}

// NewGovernor creates a governor at the neutral multiplier 1.0.
func NewGovernor() *Governor {
	return &Governor{smoothing: 0.2, injectionBudget: 1.0}
}

// Observe feeds one operation's injected/total token counts and adjusts
// the injection budget for the next operation.
func (g *Governor) Observe(injectedTokens, totalTokens int) {
	if totalTokens <= 0 {
		return
	}
	ratio := float64(injectedTokens) / float64(totalTokens)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasSample {
		g.ema = ratio
		g.hasSample = true
	} else {
		g.ema = g.smoothing*ratio + (1-g.smoothing)*g.ema
	}

	switch {
	case g.ema > phi.Inv:
		g.injectionBudget *= 0.95
	case g.ema < phi.Inv2:
		g.injectionBudget *= 1.05
	default:
		// Dead zone: homeostasis, no adjustment.
	}

	// The multiplier never permits an injected ratio above φ⁻¹.
	if g.injectionBudget > phi.Inv/phi.Inv2 {
		g.injectionBudget = phi.Inv / phi.Inv2
	}
	if g.injectionBudget < 0.05 {
		g.injectionBudget = 0.05
	}
}

// InjectionBudget returns the current multiplier for the next operation's
// injection allowance.
func (g *Governor) InjectionBudget() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.injectionBudget
}

// InfluenceRatio returns the current EMA of the injected-token ratio.
func (g *Governor) InfluenceRatio() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ema
}
