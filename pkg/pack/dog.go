// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package pack implements the eleven-dog voting collective: Beta-weighted
// track records, a streaming consensus protocol with early exit, guardian
// veto on safety topics, Markov outcome prediction, and z-score vote
// anomaly detection.
package pack

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/packlabs/kennel/pkg/types"
)

// Voter produces a vote on a topic. Implementations may be heuristic or
// model-backed; the consensus engine treats both uniformly and enforces the
// per-voter deadline from outside.
type Voter interface {
	Vote(ctx context.Context, topic string, payload map[string]any) (types.VoteChoice, float64, string, error)
}

// VoterFunc adapts a function to the Voter interface.
type VoterFunc func(ctx context.Context, topic string, payload map[string]any) (types.VoteChoice, float64, string, error)

// Vote implements Voter.
func (f VoterFunc) Vote(ctx context.Context, topic string, payload map[string]any) (types.VoteChoice, float64, string, error) {
	return f(ctx, topic, payload)
}

// guardianVetoTopics are the topic patterns on which a guardian rejection
// overrides any level of agreement. "safety:" matches as a prefix.
var guardianVetoTopics = []string{"safety:", "destructive_operation", "high_risk_deployment"}

// Dog is one named voter with a learned track record and domain affinities.
type Dog struct {
	Name           types.DogName
	DomainAffinity map[string]float64
	Record         *TrackRecord
	voter          Voter
}

// dogProfile seeds each dog's affinities and voting temperament.
type dogProfile struct {
	affinity map[string]float64
	// bias shifts the dog's approval threshold: positive = lenient,
	// negative = demanding.
	bias float64
}

var dogProfiles = map[types.DogName]dogProfile{
	types.DogGuardian:     {affinity: map[string]float64{"security": 1.0, "ops": 0.7}, bias: -8},
	types.DogAnalyst:      {affinity: map[string]float64{"market": 1.0, "code": 0.5}, bias: 0},
	types.DogSage:         {affinity: map[string]float64{"general": 0.9, "code": 0.6}, bias: 2},
	types.DogScout:        {affinity: map[string]float64{"market": 0.8, "general": 0.6}, bias: 4},
	types.DogArchitect:    {affinity: map[string]float64{"code": 1.0, "ops": 0.6}, bias: -3},
	types.DogScholar:      {affinity: map[string]float64{"code": 0.7, "general": 0.8}, bias: 0},
	types.DogJanitor:      {affinity: map[string]float64{"code": 0.8, "ops": 0.8}, bias: -5},
	types.DogDeployer:     {affinity: map[string]float64{"ops": 1.0, "code": 0.5}, bias: -2},
	types.DogOracle:       {affinity: map[string]float64{"market": 0.9, "general": 0.7}, bias: 3},
	types.DogCartographer: {affinity: map[string]float64{"general": 0.8, "ops": 0.5}, bias: 1},
	types.DogCynic:        {affinity: map[string]float64{"code": 0.6, "market": 0.6}, bias: -10},
}

// NewDog creates a named dog with its profile affinities, a fresh track
// record, and the default heuristic voter.
func NewDog(name types.DogName) *Dog {
	d := &Dog{
		Name:   name,
		Record: NewTrackRecord(),
	}
	if p, ok := dogProfiles[name]; ok {
		d.DomainAffinity = p.affinity
	} else {
		d.DomainAffinity = map[string]float64{"general": 0.5}
	}
	d.voter = VoterFunc(d.heuristicVote)
	return d
}

// SetVoter replaces the dog's voting implementation. Used to plug in
// model-backed voters or test doubles.
func (d *Dog) SetVoter(v Voter) {
	if v != nil {
		d.voter = v
	}
}

// CanVeto reports whether a rejection from this dog on the topic is an
// unconditional veto. Only the guardian holds veto power.
func (d *Dog) CanVeto(topic string) bool {
	if d.Name != types.DogGuardian {
		return false
	}
	return VetoTopic(topic)
}

// VetoTopic reports whether the topic falls under the guardian's veto set.
func VetoTopic(topic string) bool {
	for _, pattern := range guardianVetoTopics {
		if strings.HasSuffix(pattern, ":") {
			if strings.HasPrefix(topic, pattern) {
				return true
			}
		} else if topic == pattern {
			return true
		}
	}
	return false
}

// heuristicVote derives a stance from the judgment carried in the payload.
// The payload convention: "q_score" float64, "verdict" string, "domain"
// string. Dogs lean with their bias and a deterministic per-(dog,topic)
// wobble so the pack disagrees realistically.
func (d *Dog) heuristicVote(ctx context.Context, topic string, payload map[string]any) (types.VoteChoice, float64, string, error) {
	select {
	case <-ctx.Done():
		return types.VoteAbstain, 0, "", ctx.Err()
	default:
	}

	q, ok := payload["q_score"].(float64)
	if !ok {
		return types.VoteAbstain, 0, "no judgment signal in payload", nil
	}

	p := dogProfiles[d.Name]
	score := q + p.bias

	if domain, ok := payload["domain"].(string); ok {
		if aff, ok := d.DomainAffinity[domain]; ok {
			// Familiar ground firms up the stance either way.
			score += (aff - 0.5) * 6
		}
	}

	// Deterministic per-(dog, topic) wobble in [-4, +4].
	h := fnv.New32a()
	h.Write([]byte(d.Name))
	h.Write([]byte(topic))
	score += float64(h.Sum32()%9) - 4

	// The guardian rejects anything on its veto topics that is not clearly
	// safe, regardless of pack mood.
	if d.Name == types.DogGuardian && VetoTopic(topic) && q < 90 {
		return types.VoteReject, score, fmt.Sprintf("guardian: %s is a protected topic (q=%.1f)", topic, q), nil
	}

	if score >= 50 {
		return types.VoteApprove, score, fmt.Sprintf("%s approves (score %.1f)", d.Name, score), nil
	}
	return types.VoteReject, score, fmt.Sprintf("%s rejects (score %.1f)", d.Name, score), nil
}

// castVote runs the dog's voter and wraps the result with weight and
// confidence from the track record.
func (d *Dog) castVote(ctx context.Context, topic string, payload map[string]any) (types.Vote, error) {
	choice, score, reasoning, err := d.voter.Vote(ctx, topic, payload)
	if err != nil {
		return types.Vote{Dog: d.Name, Choice: types.VoteAbstain, CastAt: time.Now().UTC()}, err
	}
	weight := d.Record.VoteWeight()
	if choice == types.VoteAbstain {
		weight = 0
	}
	return types.Vote{
		Dog:        d.Name,
		Choice:     choice,
		Score:      score,
		Reasoning:  reasoning,
		Weight:     weight,
		Confidence: d.Record.VoteConfidence(),
		CastAt:     time.Now().UTC(),
	}, nil
}
