// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package judge

import "github.com/packlabs/kennel/pkg/types"

// axiomDimensions maps each axiom to its seven dimensions, in weight-template
// order. The template weight for position i applies to dimension i.
var axiomDimensions = map[types.Axiom][7]string{
	types.AxiomPhi: {
		"elegance", "proportion", "simplicity", "coherence",
		"rhythm", "balance", "economy",
	},
	types.AxiomVerify: {
		"correctness", "test_coverage", "reproducibility", "evidence",
		"determinism", "traceability", "validation",
	},
	types.AxiomCulture: {
		"convention", "readability", "naming", "documentation",
		"idiom", "consistency", "accessibility",
	},
	types.AxiomBurn: {
		"efficiency", "resource_use", "latency", "risk",
		"blast_radius", "reversibility", "cost_awareness",
	},
	types.AxiomFidelity: {
		"intent_match", "completeness", "precision", "context_fit",
		"honesty", "robustness", "durability",
	},
}

// NamedDimensions returns the 35 named dimensions in canonical axiom-major
// order. The residual (THE_UNNAMEABLE) is not included; the engine computes
// it from these.
func NamedDimensions() []string {
	out := make([]string, 0, 35)
	for _, axiom := range types.Axioms() {
		dims := axiomDimensions[axiom]
		out = append(out, dims[:]...)
	}
	return out
}

// AxiomDimensions returns the seven dimensions of one axiom in template order.
func AxiomDimensions(a types.Axiom) [7]string {
	return axiomDimensions[a]
}

// AxiomOf returns the axiom a named dimension belongs to. Returns false for
// unknown dimensions and for the residual.
func AxiomOf(dimension string) (types.Axiom, bool) {
	for _, axiom := range types.Axioms() {
		for _, d := range axiomDimensions[axiom] {
			if d == dimension {
				return axiom, true
			}
		}
	}
	return "", false
}
