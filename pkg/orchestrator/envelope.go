// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"time"

	"github.com/packlabs/kennel/pkg/types"
)

// ConsensusSummary is the caller-facing digest of a consensus round.
type ConsensusSummary struct {
	ID           string                 `json:"consensus_id"`
	Approved     bool                   `json:"approved"`
	Agreement    float64                `json:"agreement"`
	Outcome      types.ConsensusOutcome `json:"outcome"`
	Division     types.Division         `json:"division"`
	GuardianVeto bool                   `json:"guardian_veto"`
	EarlyExit    bool                   `json:"early_exit"`
	Tallies      types.VoteTallies      `json:"tallies"`
}

// Response is the formatted verdict returned on the critical path. The
// background tail may still be persisting when the caller reads it.
type Response struct {
	JudgmentID  string                  `json:"judgment_id"`
	ItemID      string                  `json:"item_id"`
	QScore      float64                 `json:"q_score"`
	Verdict     types.Verdict           `json:"verdict"`
	Confidence  float64                 `json:"confidence"`
	AxiomScores map[types.Axiom]float64 `json:"axiom_scores"`
	Residual    float64                 `json:"residual"`
	Failure     types.FailureKind       `json:"failure,omitempty"`
	Consensus   *ConsensusSummary       `json:"consensus,omitempty"`
	Tier        types.Tier              `json:"tier"`
	Strategy    types.Strategy          `json:"strategy"`
	Degraded    bool                    `json:"degraded"`
	Duration    time.Duration           `json:"duration_ns"`
	CreatedAt   time.Time               `json:"created_at"`
}

// buildResponse assembles the envelope from the pipeline outputs. consensus
// may be nil (single strategy, failed judgment, or insufficient round).
func buildResponse(judgment *types.Judgment, consensus *types.ConsensusResult, route *types.RouteDecision, elapsed time.Duration) *Response {
	resp := &Response{
		JudgmentID:  judgment.ID,
		ItemID:      judgment.ItemID,
		QScore:      judgment.QScore,
		Verdict:     judgment.Verdict,
		Confidence:  judgment.Confidence,
		AxiomScores: judgment.AxiomScores,
		Residual:    judgment.Residual(),
		Failure:     judgment.Failure,
		Duration:    elapsed,
		CreatedAt:   judgment.CreatedAt,
	}
	if route != nil {
		resp.Tier = route.Tier
		resp.Strategy = route.Strategy
		resp.Degraded = route.Degraded
	}
	if consensus != nil {
		resp.Consensus = &ConsensusSummary{
			ID:           consensus.ID,
			Approved:     consensus.Approved,
			Agreement:    consensus.Agreement,
			Outcome:      consensus.Outcome,
			Division:     consensus.Division,
			GuardianVeto: consensus.GuardianVeto,
			EarlyExit:    consensus.EarlyExit,
			Tallies:      consensus.Tallies,
		}
	}
	return resp
}
