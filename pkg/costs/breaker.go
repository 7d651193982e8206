// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package costs

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker vetoes an operation class.
var ErrCircuitOpen = errors.New("budget circuit open")

// BreakerState is the classic three-state breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker vetoes expensive operation classes when the budget is exhausted
// or the burn rate overshoots twice the target.
//
// State transitions:
//   - CLOSED → OPEN: remainingBudget ≤ 0 or burnRate > 2× target
//   - OPEN → HALF_OPEN: after reopenDelay, one probe allowed
//   - HALF_OPEN → CLOSED: probe succeeds
//   - HALF_OPEN → OPEN: probe fails, re-opens for reopenDelay
type Breaker struct {
	ledger         *Ledger
	targetBurnRate float64 // USD per second
	reopenDelay    time.Duration
	logger         *zap.Logger

	mu          sync.Mutex
	state       BreakerState
	openedAt    time.Time
	probeTaken  bool
}

// BreakerConfig configures a Breaker. Zero fields pick defaults.
type BreakerConfig struct {
	Ledger         *Ledger
	TargetBurnRate float64
	ReopenDelay    time.Duration
	Logger         *zap.Logger
}

// NewBreaker creates a closed breaker over the ledger.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Breaker{
		ledger:         cfg.Ledger,
		targetBurnRate: cfg.TargetBurnRate,
		reopenDelay:    cfg.ReopenDelay,
		logger:         cfg.Logger,
	}
}

// Allow reports whether the operation class may proceed. In HALF_OPEN
// exactly one probe passes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		if b.tripped() {
			b.transition(BreakerOpen)
			return false
		}
		return true

	case BreakerOpen:
		if time.Since(b.openedAt) >= b.reopenDelay {
			b.transition(BreakerHalfOpen)
			b.probeTaken = true
			return true
		}
		return false

	case BreakerHalfOpen:
		if b.probeTaken {
			return false
		}
		b.probeTaken = true
		return true

	default:
		return true
	}
}

// RecordSuccess closes the breaker after a successful half-open probe.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.transition(BreakerClosed)
	}
}

// RecordFailure re-opens after a failed probe, or opens a closed breaker
// whose budget signals have tripped.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
	case BreakerClosed:
		if b.tripped() {
			b.transition(BreakerOpen)
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// tripped checks the budget signals. Caller holds the lock.
func (b *Breaker) tripped() bool {
	if b.ledger == nil {
		return false
	}
	if b.ledger.RemainingBudget() <= 0 {
		return true
	}
	if b.targetBurnRate > 0 && b.ledger.BurnRate(time.Minute) > 2*b.targetBurnRate {
		return true
	}
	return false
}

func (b *Breaker) transition(next BreakerState) {
	prev := b.state
	b.state = next
	if next == BreakerOpen {
		b.openedAt = time.Now()
		b.probeTaken = false
	}
	b.logger.Info("budget breaker transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
