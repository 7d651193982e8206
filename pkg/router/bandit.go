// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/packlabs/kennel/pkg/types"
)

// ParamsFunc supplies a dog's Beta(α,β) track-record parameters. Unknown
// dogs report the uniform prior (1,1).
type ParamsFunc func(dog types.DogName) (alpha, beta float64)

// Bandit runs Thompson sampling over dog track records: each dog draws a
// weight from its Beta posterior, and voter variants are admitted or cut
// by their summed draw.
type Bandit struct {
	mu     sync.Mutex
	params ParamsFunc
	rng    *rand.Rand
}

// NewBandit creates a bandit over the given track-record source.
func NewBandit(params ParamsFunc) *Bandit {
	return &Bandit{
		params: params,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Sample draws one Beta-posterior weight per dog.
func (b *Bandit) Sample(dogs []types.DogName) map[types.DogName]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[types.DogName]float64, len(dogs))
	for _, dog := range dogs {
		alpha, beta := 1.0, 1.0
		if b.params != nil {
			alpha, beta = b.params(dog)
		}
		if alpha < 1 {
			alpha = 1
		}
		if beta < 1 {
			beta = 1
		}
		out[dog] = b.sampleBeta(alpha, beta)
	}
	return out
}

// SelectVariant trims the seed path to the strongest variant whose summed
// draw clears minWeight. The guardian is never trimmed. Returns the seed
// unchanged when every trim would fall below the threshold.
func (b *Bandit) SelectVariant(seed []types.DogName, minWeight float64) []types.DogName {
	if len(seed) == 0 {
		return seed
	}
	draws := b.Sample(seed)

	// Cut the weakest non-guardian dogs one at a time while the remainder
	// still clears the threshold.
	kept := make([]types.DogName, len(seed))
	copy(kept, seed)
	for len(kept) > 3 {
		weakest := -1
		weakestDraw := math.Inf(1)
		var sum float64
		for i, dog := range kept {
			d := draws[dog]
			sum += d
			if dog == types.DogGuardian {
				continue
			}
			if d < weakestDraw {
				weakest, weakestDraw = i, d
			}
		}
		if weakest < 0 || sum-weakestDraw < minWeight {
			break
		}
		kept = append(kept[:weakest], kept[weakest+1:]...)
	}
	return kept
}

// sampleBeta draws Beta(α,β) as X/(X+Y) with X~Gamma(α), Y~Gamma(β).
// Caller holds the lock.
func (b *Bandit) sampleBeta(alpha, beta float64) float64 {
	x := b.sampleGamma(alpha)
	y := b.sampleGamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma is the Marsaglia-Tsang squeeze method for shape ≥ 1; shapes
// below 1 are boosted and corrected with a uniform power.
func (b *Bandit) sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := b.rng.Float64()
		return b.sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := b.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := b.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
