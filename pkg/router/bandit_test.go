// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlabs/kennel/pkg/types"
)

func TestBanditSampleRange(t *testing.T) {
	b := NewBandit(nil)
	draws := b.Sample(types.PackNames())
	require.Len(t, draws, 11)
	for dog, draw := range draws {
		assert.Greater(t, draw, 0.0, "dog %s", dog)
		assert.Less(t, draw, 1.0, "dog %s", dog)
	}
}

func TestBanditClampsDegenerateParams(t *testing.T) {
	b := NewBandit(func(dog types.DogName) (float64, float64) {
		return 0, -5
	})
	draws := b.Sample([]types.DogName{types.DogScout})
	draw := draws[types.DogScout]
	assert.Greater(t, draw, 0.0)
	assert.Less(t, draw, 1.0)
}

func TestSelectVariantKeepsGuardianAndQuorum(t *testing.T) {
	b := NewBandit(nil)
	seed := PathFor("code")
	require.Len(t, seed, 8)

	// A zero threshold lets the bandit trim to the floor of three, but the
	// guardian always survives.
	kept := b.SelectVariant(seed, 0)
	assert.Len(t, kept, 3)
	assert.Contains(t, kept, types.DogGuardian)
}

func TestSelectVariantRespectsMinWeight(t *testing.T) {
	b := NewBandit(nil)
	seed := PathFor("security")

	// No trim can clear an unreachable threshold: the seed comes back whole.
	kept := b.SelectVariant(seed, 100)
	assert.Equal(t, seed, kept)
}

func TestSelectVariantEmptySeed(t *testing.T) {
	b := NewBandit(nil)
	assert.Empty(t, b.SelectVariant(nil, 1.0))
}

func TestLightningPathsCarryGuardian(t *testing.T) {
	for _, domain := range []string{"security", "code", "market", "ops", "general", "unknown"} {
		path := PathFor(domain)
		assert.Contains(t, path, types.DogGuardian, "domain %s", domain)
		assert.GreaterOrEqual(t, len(path), 7, "domain %s", domain)
	}
}

func TestPathForReturnsCopy(t *testing.T) {
	path := PathFor("ops")
	path[0] = types.DogOracle
	assert.Equal(t, types.DogGuardian, PathFor("ops")[0])
}

func TestMinWeightFor(t *testing.T) {
	assert.Equal(t, 2.2, minWeightFor("security"))
	assert.Equal(t, 1.5, minWeightFor("nonsense"))
}
