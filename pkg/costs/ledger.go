// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package costs tracks per-operation token spend against a budget: an
// append-only cost ledger, a φ-governor that homeostatically adjusts the
// injection ratio, and a budget-driven circuit breaker.
package costs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// defaultRingSize bounds the in-memory cost record ring.
const defaultRingSize = 1024

// Ledger is a single-writer append log of CostRecords over a fixed budget.
// Readers get consistent snapshots; writers hold the mutex only across O(1)
// updates.
type Ledger struct {
	mu     sync.RWMutex
	budget float64
	spent  float64
	ring   []types.CostRecord
	next   int
	filled bool
	logger *zap.Logger
}

// NewLedger creates a ledger with the given total budget in USD.
func NewLedger(budget float64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		budget: budget,
		ring:   make([]types.CostRecord, defaultRingSize),
		logger: logger,
	}
}

// Append records one operation's spend and returns the completed record
// with the pre/post budget filled in.
func (l *Ledger) Append(opID string, tokensIn, tokensOut int, tier types.Tier, cost float64, degraded bool) types.CostRecord {
	l.mu.Lock()
	before := l.budget - l.spent
	l.spent += cost
	record := types.CostRecord{
		OpID:         opID,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		Tier:         tier,
		Cost:         cost,
		BudgetBefore: before,
		BudgetAfter:  before - cost,
		Degraded:     degraded,
		Timestamp:    time.Now().UTC(),
	}
	l.ring[l.next] = record
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.filled = true
	}
	l.mu.Unlock()

	l.logger.Debug("cost recorded",
		zap.String("op_id", opID),
		zap.Float64("cost", cost),
		zap.Float64("remaining", record.BudgetAfter),
	)
	return record
}

// RemainingBudget returns budget − total spend. May be negative.
func (l *Ledger) RemainingBudget() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.budget - l.spent
}

// BurnRate returns USD spent per second over the trailing window.
func (l *Ledger) BurnRate(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-window)

	l.mu.RLock()
	defer l.mu.RUnlock()
	var burned float64
	for _, r := range l.records() {
		if r.Timestamp.After(cutoff) {
			burned += r.Cost
		}
	}
	return burned / window.Seconds()
}

// ForecastExhaustion estimates when the budget runs out at the 5-minute
// burn rate. Returns (zero, false) when the rate is zero or the budget is
// already exhausted.
func (l *Ledger) ForecastExhaustion() (time.Time, bool) {
	remaining := l.RemainingBudget()
	if remaining <= 0 {
		return time.Time{}, false
	}
	rate := l.BurnRate(5 * time.Minute)
	if rate <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(time.Duration(remaining / rate * float64(time.Second))), true
}

// Snapshot returns the retained records, oldest first.
func (l *Ledger) Snapshot() []types.CostRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	records := l.records()
	out := make([]types.CostRecord, len(records))
	copy(out, records)
	return out
}

// records assembles the ring contents oldest-first. Caller holds the lock.
func (l *Ledger) records() []types.CostRecord {
	if !l.filled {
		return l.ring[:l.next]
	}
	out := make([]types.CostRecord, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	out = append(out, l.ring[:l.next]...)
	return out
}
