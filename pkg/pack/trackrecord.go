// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pack

import (
	"math"
	"sync"

	"github.com/packlabs/kennel/pkg/phi"
)

// anomalyWindow is the number of recent vote scores kept per dog for
// z-score anomaly detection (Fib(8)).
const anomalyWindow = 21

// TrackRecord is a per-dog Beta(α,β) accuracy distribution plus a bounded
// window of recent vote scores. All updates are serialized per dog.
//
// Invariant: α ≥ 1 and β ≥ 1 at all times.
type TrackRecord struct {
	mu     sync.Mutex
	alpha  float64
	beta   float64
	recent []float64 // ring of last anomalyWindow vote scores
	next   int
	filled bool
}

// NewTrackRecord starts from the uniform prior Beta(1,1).
func NewTrackRecord() *TrackRecord {
	return &TrackRecord{alpha: 1, beta: 1}
}

// RestoreTrackRecord rebuilds a record from persisted parameters, clamping
// both below at 1 to preserve the invariant.
func RestoreTrackRecord(alpha, beta float64) *TrackRecord {
	if alpha < 1 {
		alpha = 1
	}
	if beta < 1 {
		beta = 1
	}
	return &TrackRecord{alpha: alpha, beta: beta}
}

// RecordSuccess credits one correct call.
func (tr *TrackRecord) RecordSuccess() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.alpha++
}

// RecordFailure debits one wrong call.
func (tr *TrackRecord) RecordFailure() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.beta++
}

// Accuracy is α/(α+β).
func (tr *TrackRecord) Accuracy() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.alpha / (tr.alpha + tr.beta)
}

// Strength is α+β: how much evidence backs the accuracy.
func (tr *TrackRecord) Strength() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.alpha + tr.beta
}

// Params returns (α, β) for persistence and sampling.
func (tr *TrackRecord) Params() (alpha, beta float64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.alpha, tr.beta
}

// VoteWeight is min(φ⁻¹, accuracy): even a perfect record never dominates.
func (tr *TrackRecord) VoteWeight() float64 {
	acc := tr.Accuracy()
	if acc > phi.Inv {
		return phi.Inv
	}
	return acc
}

// VoteConfidence is min(φ⁻¹, strength/20).
func (tr *TrackRecord) VoteConfidence() float64 {
	c := tr.Strength() / 20
	if c > phi.Inv {
		return phi.Inv
	}
	return c
}

// ObserveScore appends a vote score to the anomaly window and returns the
// z-score of the new value against the window that preceded it. Returns
// (0, false) until the window holds at least five samples.
func (tr *TrackRecord) ObserveScore(score float64) (z float64, ok bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	n := len(tr.recent)
	if tr.filled {
		n = anomalyWindow
	}
	if n >= 5 {
		var sum float64
		for _, v := range tr.recent {
			sum += v
		}
		mean := sum / float64(n)
		var varianceSum float64
		for _, v := range tr.recent {
			d := v - mean
			varianceSum += d * d
		}
		sigma := math.Sqrt(varianceSum / float64(n))
		if sigma > 0 {
			z = (score - mean) / sigma
			ok = true
		}
	}

	if tr.filled {
		tr.recent[tr.next] = score
		tr.next = (tr.next + 1) % anomalyWindow
	} else {
		tr.recent = append(tr.recent, score)
		if len(tr.recent) == anomalyWindow {
			tr.filled = true
		}
	}
	return z, ok
}
