// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdictForScore(t *testing.T) {
	tests := []struct {
		name string
		q    float64
		want Verdict
	}{
		{"perfect", 100, VerdictHowl},
		{"howl boundary", 80, VerdictHowl},
		{"just under howl", 79.999, VerdictWag},
		{"wag boundary", 50, VerdictWag},
		{"just under wag", 49.999, VerdictGrowl},
		{"growl boundary", 38.196601125, VerdictGrowl},
		{"just under growl", 38.19, VerdictBark},
		{"zero", 0, VerdictBark},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerdictForScore(tt.q))
		})
	}
}

func TestPackNames(t *testing.T) {
	names := PackNames()
	require.Len(t, names, 11)
	seen := make(map[DogName]bool, len(names))
	for _, n := range names {
		assert.False(t, seen[n], "duplicate dog %s", n)
		seen[n] = true
	}
	assert.True(t, seen[DogGuardian])
	assert.True(t, seen[DogCynic])
}

func TestStateKeyCanonical(t *testing.T) {
	key := StateKey{Intent: "review", Domain: "code", Complexity: ComplexityModerate, TimeBucket: 2}
	assert.Equal(t, "review|code|moderate|afternoon", key.Canonical())

	// Same fields always render the same key.
	other := StateKey{Intent: "review", Domain: "code", Complexity: ComplexityModerate, TimeBucket: 2}
	assert.Equal(t, key.Canonical(), other.Canonical())
}

func TestTimeBucketFor(t *testing.T) {
	tests := []struct {
		hour int
		want int
	}{
		{0, 0}, {5, 0}, {6, 1}, {11, 1}, {12, 2}, {17, 2}, {18, 3}, {23, 3},
	}
	for _, tt := range tests {
		at := time.Date(2026, 8, 24, tt.hour, 0, 0, 0, time.UTC)
		assert.Equal(t, tt.want, TimeBucketFor(at), "hour %d", tt.hour)
	}
}

func TestJudgmentResidual(t *testing.T) {
	j := &Judgment{Dimensions: []DimensionScore{
		{Dimension: "elegance", Score: 70, Valid: true},
		{Dimension: ResidualDimension, Score: 91.5, Valid: true},
	}}
	assert.Equal(t, 91.5, j.Residual())

	empty := &Judgment{}
	assert.Zero(t, empty.Residual())
}

func TestTiersOrderedCheapestFirst(t *testing.T) {
	tiers := Tiers()
	require.Len(t, tiers, 3)
	for i := 1; i < len(tiers); i++ {
		assert.Less(t, TierPrice(tiers[i-1]), TierPrice(tiers[i]))
	}
}
