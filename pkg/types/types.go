// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the kennel judgment
// pipeline. This package breaks import cycles by providing common types
// that judge, pack, router, and orchestrator packages all depend on.
package types

import (
	"time"

	"github.com/packlabs/kennel/pkg/phi"
)

// ============================================================================
// Items and classification
// ============================================================================

// ItemKind describes what kind of payload was admitted.
type ItemKind string

const (
	ItemCodeReview       ItemKind = "code_review"
	ItemTokenAnalysis    ItemKind = "token_analysis"
	ItemPatternDetection ItemKind = "pattern_detection"
	ItemToolInvocation   ItemKind = "tool_invocation"
	ItemFreeText         ItemKind = "free_text"
)

// Item is an immutable input payload. Once admitted, nothing mutates it;
// the orchestrator owns the lifetime of a single Item→Judgment transaction.
type Item struct {
	ID         string
	Kind       ItemKind
	Body       string
	Context    map[string]any
	UserID     string
	SessionID  string
	ReceivedAt time.Time
}

// Complexity buckets a classified item by expected effort.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityEpic     Complexity = "epic"
)

// Classification is derived from an Item and never mutated afterwards.
type Classification struct {
	Intent     string
	Domain     string
	Complexity Complexity
	EstCost    float64
}

// ============================================================================
// Judgments
// ============================================================================

// Axiom names one of the five scoring axioms. Each axiom aggregates seven
// dimensions under the φ weight template.
type Axiom string

const (
	AxiomPhi      Axiom = "PHI"
	AxiomVerify   Axiom = "VERIFY"
	AxiomCulture  Axiom = "CULTURE"
	AxiomBurn     Axiom = "BURN"
	AxiomFidelity Axiom = "FIDELITY"
)

// Axioms returns the five axioms in canonical order.
func Axioms() []Axiom {
	return []Axiom{AxiomPhi, AxiomVerify, AxiomCulture, AxiomBurn, AxiomFidelity}
}

// ResidualDimension is the 36th, unnamed meta-dimension: it measures
// unexplained variance across the 35 named dimension scores.
const ResidualDimension = "THE_UNNAMEABLE"

// DimensionScore is the outcome of scoring a single dimension.
// Valid=false marks a slot whose scorer failed after retries; invalid
// slots are excluded from axiom aggregates and penalize the residual.
type DimensionScore struct {
	Dimension     string  `json:"dimension"`
	Score         float64 `json:"score"`
	ScorerVersion string  `json:"scorer_version"`
	Valid         bool    `json:"valid"`
	Imputed       bool    `json:"imputed,omitempty"`
}

// Verdict is the four-band outcome derived from the Q-Score.
type Verdict string

const (
	VerdictHowl  Verdict = "HOWL"  // Q ≥ 80
	VerdictWag   Verdict = "WAG"   // 50 ≤ Q < 80
	VerdictGrowl Verdict = "GROWL" // 38.2 ≤ Q < 50
	VerdictBark  Verdict = "BARK"  // Q < 38.2
)

// VerdictForScore maps a Q-Score to its verdict band. Boundaries are exact:
// the lower boundary belongs to the lower band's upper neighbour, i.e.
// q=80 is HOWL, q=50 is WAG, q=38.2 is GROWL.
func VerdictForScore(q float64) Verdict {
	switch {
	case phi.AtLeast(q, 80):
		return VerdictHowl
	case phi.AtLeast(q, 50):
		return VerdictWag
	case phi.AtLeast(q, 100*phi.Inv2):
		return VerdictGrowl
	default:
		return VerdictBark
	}
}

// FailureKind classifies a failed judgment.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureInsufficientSignal FailureKind = "insufficient-signal"
	FailureClassifier         FailureKind = "classifier-failure"
	FailureCancelled          FailureKind = "cancelled"
)

// Judgment is the append-only result of scoring an Item. Feedback points to
// judgments by id but never mutates them.
type Judgment struct {
	ID            string             `json:"id"`
	ItemID        string             `json:"item_id"`
	AxiomScores   map[Axiom]float64  `json:"axiom_scores"`
	Dimensions    []DimensionScore   `json:"dimensions"` // 36 entries incl. residual
	QScore        float64            `json:"q_score"`
	Verdict       Verdict            `json:"verdict"`
	Confidence    float64            `json:"confidence"` // hard-bounded at φ⁻¹
	ReasoningPath []string           `json:"reasoning_path"`
	Failure       FailureKind        `json:"failure,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Residual returns the residual (THE_UNNAMEABLE) dimension score, or 0
// when the judgment carries no residual entry.
func (j *Judgment) Residual() float64 {
	for _, d := range j.Dimensions {
		if d.Dimension == ResidualDimension {
			return d.Score
		}
	}
	return 0
}

// ============================================================================
// Dogs, votes, and consensus
// ============================================================================

// DogName identifies one of the eleven voters in the pack.
type DogName string

const (
	DogGuardian     DogName = "guardian"
	DogAnalyst      DogName = "analyst"
	DogSage         DogName = "sage"
	DogScout        DogName = "scout"
	DogArchitect    DogName = "architect"
	DogScholar      DogName = "scholar"
	DogJanitor      DogName = "janitor"
	DogDeployer     DogName = "deployer"
	DogOracle       DogName = "oracle"
	DogCartographer DogName = "cartographer"
	DogCynic        DogName = "cynic"
)

// PackNames returns all eleven dog names in canonical order.
func PackNames() []DogName {
	return []DogName{
		DogGuardian, DogAnalyst, DogSage, DogScout, DogArchitect, DogScholar,
		DogJanitor, DogDeployer, DogOracle, DogCartographer, DogCynic,
	}
}

// VoteChoice is a single dog's stance. Abstentions are excluded from
// agreement totals.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
	VoteAbstain VoteChoice = "abstain"
)

// Vote is a weighted, explained stance from one dog on one topic.
type Vote struct {
	Dog        DogName    `json:"dog"`
	Choice     VoteChoice `json:"choice"`
	Score      float64    `json:"score"`
	Reasoning  string     `json:"reasoning"`
	Weight     float64    `json:"weight"`     // min(φ⁻¹, track-record accuracy)
	Confidence float64    `json:"confidence"` // min(φ⁻¹, strength/20)
	CastAt     time.Time  `json:"cast_at"`
}

// ConsensusOutcome is the terminal state of a consensus round.
type ConsensusOutcome string

const (
	OutcomeApproved     ConsensusOutcome = "approved"
	OutcomeRejected     ConsensusOutcome = "rejected"
	OutcomeInsufficient ConsensusOutcome = "insufficient"
)

// Division classifies how split the pack was, from the normalized Shannon
// entropy of the vote distribution.
type Division string

const (
	DivisionUnanimous     Division = "unanimous"
	DivisionSlight        Division = "slight"
	DivisionDivided       Division = "divided"
	DivisionDeeplyDivided Division = "deeply_divided"
)

// VoteTallies counts choices in a round.
type VoteTallies struct {
	Approve int `json:"approve"`
	Reject  int `json:"reject"`
	Abstain int `json:"abstain"`
}

// AnomalySeverity grades a vote anomaly. Anomalies are recorded but never
// block a round.
type AnomalySeverity string

const (
	AnomalyMinor       AnomalySeverity = "minor"       // |z| > 1.5
	AnomalySignificant AnomalySeverity = "significant" // |z| > 2.5
)

// VoteAnomaly flags a vote that deviates from the dog's recent behaviour.
type VoteAnomaly struct {
	Dog      DogName         `json:"dog"`
	ZScore   float64         `json:"z_score"`
	Severity AnomalySeverity `json:"severity"`
}

// OutcomePrediction is the Markov-chain forecast made before voting starts.
// Informational only: it never short-circuits a round.
type OutcomePrediction struct {
	Predicted   ConsensusOutcome `json:"predicted"`
	Probability float64          `json:"probability"`
}

// ConsensusResult is the full record of one consensus round.
type ConsensusResult struct {
	ID            string             `json:"consensus_id"`
	Topic         string             `json:"topic"`
	Approved      bool               `json:"approved"`
	Agreement     float64            `json:"agreement"` // blended agreement in [0,1]
	GuardianVeto  bool               `json:"guardian_veto"`
	Votes         []Vote             `json:"votes"`
	Tallies       VoteTallies        `json:"tallies"`
	Division      Division           `json:"division"`
	EarlyExit     bool               `json:"early_exit"`
	SkippedVoters []DogName          `json:"skipped_voters,omitempty"`
	Entropy       float64            `json:"entropy"`
	Prediction    *OutcomePrediction `json:"prediction,omitempty"`
	Anomalies     []VoteAnomaly      `json:"anomalies,omitempty"`
	Outcome       ConsensusOutcome   `json:"outcome"`
	DecidedAt     time.Time          `json:"decided_at"`
}

// ============================================================================
// Routing and learning
// ============================================================================

// Tier names a model cost tier, cheapest first.
type Tier string

const (
	TierEco      Tier = "eco"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Tiers returns the tiers ordered cheapest → most expensive.
func Tiers() []Tier {
	return []Tier{TierEco, TierStandard, TierPremium}
}

// Strategy selects how the pack is consulted for a routed item.
type Strategy string

const (
	StrategySingle    Strategy = "single"
	StrategyConsensus Strategy = "consensus"
	StrategyDialectic Strategy = "dialectic"
)

// RouteDecision is what the router hands the judge and the pack.
type RouteDecision struct {
	VoterSet      []DogName `json:"voter_set"`
	Tier          Tier      `json:"tier"`
	MaxDimensions int       `json:"max_dimensions_scored"`
	Strategy      Strategy  `json:"strategy"`
	CostBudget    float64   `json:"cost_budget"`
	Explored      bool      `json:"explored"`
	Degraded      bool      `json:"degraded"`
	Rationale     string    `json:"rationale,omitempty"`
}

// StateKey is the structured Q-learning state. It replaces ad-hoc string
// concatenation with a canonical record; TimeBucket is the hour of day
// divided into four six-hour buckets.
type StateKey struct {
	Intent     string     `json:"intent"`
	Domain     string     `json:"domain"`
	Complexity Complexity `json:"complexity"`
	TimeBucket int        `json:"time_bucket"`
}

// Canonical renders the key in its stable serialized form.
func (k StateKey) Canonical() string {
	return k.Intent + "|" + k.Domain + "|" + string(k.Complexity) + "|" + timeBucketNames[k.TimeBucket&3]
}

var timeBucketNames = [4]string{"night", "morning", "afternoon", "evening"}

// TimeBucketFor maps a wall-clock time onto one of the four buckets.
func TimeBucketFor(t time.Time) int {
	return t.Hour() / 6
}

// QValue is one cell of the sparse state-action value table.
type QValue struct {
	Value      float64   `json:"value"`
	Visits     int       `json:"visits"`
	LastUpdate time.Time `json:"last_update"`
}

// QState is the serializable snapshot of the Q-table plus exploration rate.
type QState struct {
	Values  map[string]map[string]QValue `json:"values"` // state key → action key → value
	Epsilon float64                      `json:"epsilon"`
}

// FeedbackOutcome is the caller's assessment of a judgment.
type FeedbackOutcome string

const (
	FeedbackCorrect   FeedbackOutcome = "correct"
	FeedbackIncorrect FeedbackOutcome = "incorrect"
	FeedbackPartial   FeedbackOutcome = "partial"
)

// ============================================================================
// Cost accounting
// ============================================================================

// CostRecord is one append-only entry in the cost ledger.
type CostRecord struct {
	OpID         string    `json:"op_id"`
	TokensIn     int       `json:"tokens_in"`
	TokensOut    int       `json:"tokens_out"`
	Tier         Tier      `json:"model_tier"`
	Cost         float64   `json:"cost"`
	BudgetBefore float64   `json:"budget_before"`
	BudgetAfter  float64   `json:"budget_after"`
	Degraded     bool      `json:"degraded"`
	Timestamp    time.Time `json:"timestamp"`
}
