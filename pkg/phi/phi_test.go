// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package phi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstants(t *testing.T) {
	assert.InDelta(t, 1.618033988749895, Phi, 1e-12)
	assert.InDelta(t, 0.618033988749895, Inv, 1e-12)
	assert.InDelta(t, Inv*Inv, Inv2, 1e-12)
	assert.InDelta(t, Inv*Inv2, Inv3, 1e-12)
	assert.InDelta(t, Inv*Inv3, Inv4, 1e-12)

	// φ⁻¹ = φ − 1, the defining identity.
	assert.InDelta(t, Phi-1, Inv, 1e-12)
}

func TestWeightTemplate(t *testing.T) {
	w := WeightTemplate()
	require.Len(t, w, 7)
	assert.Equal(t, Phi, w[0])
	assert.Equal(t, Inv, w[1])
	assert.Equal(t, 1.0, w[2])
	assert.Equal(t, Phi, w[3])
	assert.Equal(t, Inv2, w[4])
	assert.Equal(t, Inv, w[5])
	assert.Equal(t, Inv, w[6])
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 42.5, 42.5},
		{"below zero", -3, 0},
		{"above hundred", 101, 100},
		{"upper boundary", 100, 100},
		{"lower boundary", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampScore(tt.in))
		})
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.5, ClampConfidence(0.5))
	assert.Equal(t, Inv, ClampConfidence(0.9))
	assert.Equal(t, Inv, ClampConfidence(1.0))
	assert.Equal(t, 0.0, ClampConfidence(-0.1))
}

func TestAtLeast(t *testing.T) {
	assert.True(t, AtLeast(80, 80))
	assert.True(t, AtLeast(80+1e-12, 80))
	assert.True(t, AtLeast(80-1e-10, 80), "within tolerance counts as at-least")
	assert.False(t, AtLeast(79.999, 80))
}
