// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pack

import (
	"sync"

	"github.com/packlabs/kennel/pkg/types"
)

// MarkovPredictor learns a per-topic transition matrix over consensus
// outcomes and forecasts the next one. Predictions are informational only;
// they never short-circuit a round.
type MarkovPredictor struct {
	mu     sync.Mutex
	chains map[string]*chain
}

type chain struct {
	last        types.ConsensusOutcome
	hasLast     bool
	transitions map[types.ConsensusOutcome]map[types.ConsensusOutcome]int
}

// NewMarkovPredictor creates an empty predictor.
func NewMarkovPredictor() *MarkovPredictor {
	return &MarkovPredictor{chains: make(map[string]*chain)}
}

// Predict forecasts the next outcome for a topic. With no history it
// predicts approval at the uninformative probability 1/3.
func (m *MarkovPredictor) Predict(topic string) types.OutcomePrediction {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chains[topic]
	if !ok || !c.hasLast {
		return types.OutcomePrediction{Predicted: types.OutcomeApproved, Probability: 1.0 / 3}
	}
	row := c.transitions[c.last]
	total := 0
	for _, n := range row {
		total += n
	}
	if total == 0 {
		return types.OutcomePrediction{Predicted: types.OutcomeApproved, Probability: 1.0 / 3}
	}

	best := types.OutcomeApproved
	bestN := -1
	for _, outcome := range []types.ConsensusOutcome{types.OutcomeApproved, types.OutcomeRejected, types.OutcomeInsufficient} {
		if n := row[outcome]; n > bestN {
			best, bestN = outcome, n
		}
	}
	return types.OutcomePrediction{Predicted: best, Probability: float64(bestN) / float64(total)}
}

// Record appends an observed outcome to the topic's chain.
func (m *MarkovPredictor) Record(topic string, outcome types.ConsensusOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chains[topic]
	if !ok {
		c = &chain{transitions: make(map[types.ConsensusOutcome]map[types.ConsensusOutcome]int)}
		m.chains[topic] = c
	}
	if c.hasLast {
		row := c.transitions[c.last]
		if row == nil {
			row = make(map[types.ConsensusOutcome]int)
			c.transitions[c.last] = row
		}
		row[outcome]++
	}
	c.last = outcome
	c.hasLast = true
}
