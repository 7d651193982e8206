// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package phi holds the golden-ratio constants that parameterize judgment
// aggregation, consensus thresholds, and learning rates across kennel.
// All thresholds quoted elsewhere as "61.8%" or "38.2%" are exactly Inv
// and Inv2; comparisons against them use Tolerance.
package phi

import "math"

// Tolerance is the comparison tolerance for φ-derived thresholds.
const Tolerance = 1e-9

var (
	// Phi is the golden ratio (1+√5)/2.
	Phi = (1 + math.Sqrt(5)) / 2

	// Inv is φ⁻¹ = (√5−1)/2 ≈ 0.61803. Hard upper bound on confidence,
	// consensus approval threshold, and the Q-learning rate.
	Inv = (math.Sqrt(5) - 1) / 2

	// Inv2 is φ⁻² ≈ 0.38197. Residual anomaly threshold (×100) and the
	// Q-learning discount factor.
	Inv2 = Inv * Inv

	// Inv3 is φ⁻³ ≈ 0.23607.
	Inv3 = Inv * Inv * Inv

	// Inv4 is φ⁻⁴ ≈ 0.14590. Exploration-rate floor.
	Inv4 = Inv2 * Inv2
)

// WeightTemplate is the universal per-axiom dimension weighting,
// applied in the dimension order of each axiom.
func WeightTemplate() [7]float64 {
	return [7]float64{Phi, Inv, 1.0, Phi, Inv2, Inv, Inv}
}

// ClampScore clamps v to the [0,100] score range.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampConfidence bounds a raw confidence to [0, φ⁻¹]. Every confidence
// value leaving the system passes through here.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > Inv {
		return Inv
	}
	return v
}

// AtLeast reports whether v ≥ threshold within Tolerance.
func AtLeast(v, threshold float64) bool {
	return v >= threshold-Tolerance
}
