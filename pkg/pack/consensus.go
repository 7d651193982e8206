// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pack

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/observability"
	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/types"
)

const (
	// earlyExitThreshold is the blended agreement (either side) that ends a
	// round before all voters respond.
	earlyExitThreshold = 0.85

	// earlyExitQuorum is the minimum non-abstain count before early exit is
	// considered.
	earlyExitQuorum = 7

	// minQuorum is the minimum non-abstain count for a decisive outcome.
	minQuorum = 3

	// weightedBlend and simpleBlend mix the two agreement measures.
	weightedBlend = 0.7
	simpleBlend   = 0.3

	// topicHistoryLimit bounds per-topic consensus history (Fib(10)).
	topicHistoryLimit = 55

	defaultVoteTimeout   = 500 * time.Millisecond
	defaultGlobalTimeout = 1500 * time.Millisecond
)

// Emitter is the event surface the consensus engine publishes on. The agent
// bus satisfies it; nil disables emission.
type Emitter interface {
	Emit(kind string, payload map[string]any)
}

// Event kinds emitted on the agent bus.
const (
	EventVoteCast      = "DOG_VOTE_CAST"
	EventConsensus     = "CONSENSUS_REACHED"
	EventVetoRejection = "CONSENSUS_REJECTED_VETO"
)

// Engine runs streaming weighted consensus rounds over the dog pack.
type Engine struct {
	dogs   map[types.DogName]*Dog
	order  []types.DogName
	markov *MarkovPredictor
	logger *zap.Logger
	tracer observability.Tracer
	events Emitter

	voteTimeout   time.Duration
	globalTimeout time.Duration

	historyMu sync.Mutex
	history   map[string][]*types.ConsensusResult
}

// Config configures the consensus engine. Nil or zero fields pick defaults;
// an empty Dogs slice builds the full canonical pack.
type Config struct {
	Dogs          []*Dog
	Logger        *zap.Logger
	Tracer        observability.Tracer
	Events        Emitter
	VoteTimeout   time.Duration
	GlobalTimeout time.Duration
}

// NewEngine creates a consensus engine over the given dogs.
func NewEngine(cfg Config) *Engine {
	dogs := cfg.Dogs
	if len(dogs) == 0 {
		for _, name := range types.PackNames() {
			dogs = append(dogs, NewDog(name))
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.VoteTimeout <= 0 {
		cfg.VoteTimeout = defaultVoteTimeout
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = defaultGlobalTimeout
	}

	e := &Engine{
		dogs:          make(map[types.DogName]*Dog, len(dogs)),
		markov:        NewMarkovPredictor(),
		logger:        cfg.Logger,
		tracer:        cfg.Tracer,
		events:        cfg.Events,
		voteTimeout:   cfg.VoteTimeout,
		globalTimeout: cfg.GlobalTimeout,
		history:       make(map[string][]*types.ConsensusResult),
	}
	for _, d := range dogs {
		e.dogs[d.Name] = d
		e.order = append(e.order, d.Name)
	}
	return e
}

// Dog returns a dog by name, or nil.
func (e *Engine) Dog(name types.DogName) *Dog {
	return e.dogs[name]
}

type voteArrival struct {
	vote     types.Vote
	timedOut bool
}

// Run executes one streaming consensus round. The voter subset preserves the
// router's order; nil means the whole pack. Aggregation is commutative, so
// vote arrival order never changes the outcome, but the logged order is the
// arrival order for diagnostics.
func (e *Engine) Run(ctx context.Context, topic string, voters []types.DogName, payload map[string]any) (*types.ConsensusResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanConsensus)
	defer e.tracer.EndSpan(span)

	if len(voters) == 0 {
		voters = e.order
	}

	prediction := e.markov.Predict(topic)

	roundCtx, cancelRound := context.WithTimeout(ctx, e.globalTimeout)
	defer cancelRound()

	arrivals := make(chan voteArrival, len(voters))
	launched := 0
	for _, name := range voters {
		dog, ok := e.dogs[name]
		if !ok {
			continue
		}
		launched++
		go func(d *Dog) {
			voteCtx, cancelVote := context.WithTimeout(roundCtx, e.voteTimeout)
			defer cancelVote()

			vote, err := d.castVote(voteCtx, topic, payload)
			if err != nil {
				// Timeouts, cancellations, and voter failures all count as
				// abstain with weight 0.
				e.logger.Debug("voter abstained on error",
					zap.String("dog", string(d.Name)),
					zap.Error(err),
				)
				arrivals <- voteArrival{
					vote:     types.Vote{Dog: d.Name, Choice: types.VoteAbstain, CastAt: time.Now().UTC()},
					timedOut: true,
				}
				return
			}
			arrivals <- voteArrival{vote: vote}
		}(dog)
	}

	votes := make([]types.Vote, 0, launched)
	responded := make(map[types.DogName]bool, launched)
	earlyExit := false

collect:
	for len(votes) < launched {
		select {
		case a := <-arrivals:
			votes = append(votes, a.vote)
			responded[a.vote.Dog] = true
			if !a.timedOut {
				e.emit(EventVoteCast, map[string]any{
					"topic": topic,
					"dog":   string(a.vote.Dog),
					"vote":  string(a.vote.Choice),
				})
			}
			if e.shouldExitEarly(votes) {
				earlyExit = true
				cancelRound()
				break collect
			}
		case <-roundCtx.Done():
			break collect
		}
	}

	skipped := make([]types.DogName, 0)
	for _, name := range voters {
		if _, ok := e.dogs[name]; !ok {
			continue
		}
		if !responded[name] {
			if earlyExit {
				skipped = append(skipped, name)
			} else {
				// Global timeout: the silent voter is an abstention.
				votes = append(votes, types.Vote{Dog: name, Choice: types.VoteAbstain, CastAt: time.Now().UTC()})
			}
		}
	}

	result := e.decide(topic, votes, earlyExit, skipped, &prediction)
	e.learn(topic, result)
	e.remember(topic, result)

	if span != nil {
		span.SetAttribute("consensus.id", result.ID)
		span.SetAttribute("consensus.outcome", string(result.Outcome))
		span.SetAttribute("consensus.agreement", result.Agreement)
	}
	e.logger.Info("consensus round complete",
		zap.String("consensus_id", result.ID),
		zap.String("topic", topic),
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("agreement", result.Agreement),
		zap.Bool("early_exit", result.EarlyExit),
		zap.Bool("guardian_veto", result.GuardianVeto),
	)
	return result, nil
}

// agreement computes the blended agreement over the given votes. Returns
// the blend and the non-abstain count.
func agreement(votes []types.Vote) (blend float64, nonAbstain int) {
	var weightApprove, weightTotal float64
	var nApprove, nReject int
	for _, v := range votes {
		switch v.Choice {
		case types.VoteApprove:
			weightApprove += v.Weight
			weightTotal += v.Weight
			nApprove++
		case types.VoteReject:
			weightTotal += v.Weight
			nReject++
		}
	}
	nonAbstain = nApprove + nReject
	if nonAbstain == 0 {
		return 0, 0
	}

	var weighted float64
	if weightTotal > 0 {
		weighted = weightApprove / weightTotal
	}
	simple := float64(nApprove) / float64(nonAbstain)
	return weightedBlend*weighted + simpleBlend*simple, nonAbstain
}

// shouldExitEarly checks the early-exit condition: at least earlyExitQuorum
// non-abstain voters and blended agreement ≥ 0.85 on either side.
func (e *Engine) shouldExitEarly(votes []types.Vote) bool {
	blend, nonAbstain := agreement(votes)
	if nonAbstain < earlyExitQuorum {
		return false
	}
	return phi.AtLeast(blend, earlyExitThreshold) || phi.AtLeast(1-blend, earlyExitThreshold)
}

// decide computes the final ConsensusResult from the collected votes.
func (e *Engine) decide(topic string, votes []types.Vote, earlyExit bool, skipped []types.DogName, prediction *types.OutcomePrediction) *types.ConsensusResult {
	blend, nonAbstain := agreement(votes)

	tallies := types.VoteTallies{}
	guardianVeto := false
	anomalies := make([]types.VoteAnomaly, 0)
	for _, v := range votes {
		switch v.Choice {
		case types.VoteApprove:
			tallies.Approve++
		case types.VoteReject:
			tallies.Reject++
		default:
			tallies.Abstain++
		}
		if v.Choice == types.VoteReject {
			if dog := e.dogs[v.Dog]; dog != nil && dog.CanVeto(topic) {
				guardianVeto = true
			}
		}
		if v.Choice != types.VoteAbstain {
			if dog := e.dogs[v.Dog]; dog != nil {
				if z, ok := dog.Record.ObserveScore(v.Score); ok {
					if abs := math.Abs(z); abs > 2.5 {
						anomalies = append(anomalies, types.VoteAnomaly{Dog: v.Dog, ZScore: z, Severity: types.AnomalySignificant})
					} else if abs > 1.5 {
						anomalies = append(anomalies, types.VoteAnomaly{Dog: v.Dog, ZScore: z, Severity: types.AnomalyMinor})
					}
				}
			}
		}
	}

	approved := !guardianVeto && nonAbstain >= minQuorum && phi.AtLeast(blend, phi.Inv)

	var outcome types.ConsensusOutcome
	switch {
	case nonAbstain < minQuorum:
		outcome = types.OutcomeInsufficient
	case approved:
		outcome = types.OutcomeApproved
	default:
		outcome = types.OutcomeRejected
	}

	entropy := voteEntropy(tallies)

	result := &types.ConsensusResult{
		ID:            uuid.New().String(),
		Topic:         topic,
		Approved:      approved,
		Agreement:     blend,
		GuardianVeto:  guardianVeto,
		Votes:         votes,
		Tallies:       tallies,
		Division:      divisionFor(entropy),
		EarlyExit:     earlyExit,
		SkippedVoters: skipped,
		Entropy:       entropy,
		Prediction:    prediction,
		Anomalies:     anomalies,
		Outcome:       outcome,
		DecidedAt:     time.Now().UTC(),
	}

	payload := map[string]any{
		"consensus_id": result.ID,
		"topic":        topic,
		"approved":     approved,
		"agreement":    blend,
		"voters":       voterNames(votes),
		"ts":           result.DecidedAt.UnixMilli(),
	}
	e.emit(EventConsensus, payload)
	if guardianVeto {
		e.emit(EventVetoRejection, payload)
	}
	return result
}

// learn updates track records and the Markov chain from a decisive outcome.
// Insufficient rounds teach nothing.
func (e *Engine) learn(topic string, result *types.ConsensusResult) {
	if result.Outcome == types.OutcomeApproved || result.Outcome == types.OutcomeRejected {
		for _, v := range result.Votes {
			if v.Choice == types.VoteAbstain {
				continue
			}
			dog := e.dogs[v.Dog]
			if dog == nil {
				continue
			}
			matched := (v.Choice == types.VoteApprove && result.Outcome == types.OutcomeApproved) ||
				(v.Choice == types.VoteReject && result.Outcome == types.OutcomeRejected)
			if matched {
				dog.Record.RecordSuccess()
			} else {
				dog.Record.RecordFailure()
			}
		}
	}
	e.markov.Record(topic, result.Outcome)
}

// remember appends the result to the topic's bounded history.
func (e *Engine) remember(topic string, result *types.ConsensusResult) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	h := append(e.history[topic], result)
	if len(h) > topicHistoryLimit {
		h = h[len(h)-topicHistoryLimit:]
	}
	e.history[topic] = h
}

// History returns the bounded consensus history for a topic, oldest first.
func (e *Engine) History(topic string) []*types.ConsensusResult {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	h := e.history[topic]
	out := make([]*types.ConsensusResult, len(h))
	copy(out, h)
	return out
}

func (e *Engine) emit(kind string, payload map[string]any) {
	if e.events != nil {
		e.events.Emit(kind, payload)
	}
}

// voteEntropy is the Shannon entropy of the approve/reject/abstain
// distribution, normalized to [0,1] by log2(3).
func voteEntropy(t types.VoteTallies) float64 {
	total := t.Approve + t.Reject + t.Abstain
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, n := range []int{t.Approve, t.Reject, t.Abstain} {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(3)
}

// divisionFor maps normalized entropy onto the φ division bands.
func divisionFor(entropy float64) types.Division {
	switch {
	case entropy > phi.Inv:
		return types.DivisionDeeplyDivided
	case entropy > phi.Inv2:
		return types.DivisionDivided
	case entropy > phi.Inv3:
		return types.DivisionSlight
	default:
		return types.DivisionUnanimous
	}
}

func voterNames(votes []types.Vote) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		out = append(out, string(v.Dog))
	}
	return out
}
