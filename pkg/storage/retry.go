// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// RetryConfig controls exponential backoff for transient store failures.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// FailureHandler is notified when a write fails after all retries. The
// orchestrator uses it to emit a store-failure event.
type FailureHandler func(op string, err error)

// RetryingStore wraps a Store, retrying transient write failures with
// exponential backoff. Reads are not retried.
type RetryingStore struct {
	*Store
	cfg       RetryConfig
	onFailure FailureHandler
	logger    *zap.Logger
}

// NewRetryingStore wraps the store. onFailure may be nil.
func NewRetryingStore(store *Store, cfg RetryConfig, onFailure FailureHandler, logger *zap.Logger) *RetryingStore {
	if cfg.MaxAttempts == 0 {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingStore{Store: store, cfg: cfg, onFailure: onFailure, logger: logger}
}

// StoreJudgment retries transient failures.
func (rs *RetryingStore) StoreJudgment(ctx context.Context, judgment *types.Judgment) error {
	return rs.withRetry(ctx, "store_judgment", func() error {
		return rs.Store.StoreJudgment(ctx, judgment)
	})
}

// StoreConsensus retries transient failures.
func (rs *RetryingStore) StoreConsensus(ctx context.Context, judgmentID string, result *types.ConsensusResult) error {
	return rs.withRetry(ctx, "store_consensus", func() error {
		return rs.Store.StoreConsensus(ctx, judgmentID, result)
	})
}

// StoreCostRecord retries transient failures.
func (rs *RetryingStore) StoreCostRecord(ctx context.Context, record types.CostRecord) error {
	return rs.withRetry(ctx, "store_cost_record", func() error {
		return rs.Store.StoreCostRecord(ctx, record)
	})
}

// StoreQState retries transient failures.
func (rs *RetryingStore) StoreQState(ctx context.Context, state *types.QState) error {
	return rs.withRetry(ctx, "store_qstate", func() error {
		return rs.Store.StoreQState(ctx, state)
	})
}

// StoreFeedback retries transient failures.
func (rs *RetryingStore) StoreFeedback(ctx context.Context, id, judgmentID string, outcome types.FeedbackOutcome, note string) error {
	return rs.withRetry(ctx, "store_feedback", func() error {
		return rs.Store.StoreFeedback(ctx, id, judgmentID, outcome, note)
	})
}

func (rs *RetryingStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < rs.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				rs.logger.Info("store write succeeded after retry",
					zap.String("op", op), zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			break
		}
		if attempt == rs.cfg.MaxAttempts-1 {
			break
		}

		backoff := rs.backoff(attempt)
		rs.logger.Warn("store write failed, backing off",
			zap.String("op", op), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = rs.cfg.MaxAttempts
		}
	}

	if rs.onFailure != nil {
		rs.onFailure(op, lastErr)
	}
	return lastErr
}

func (rs *RetryingStore) backoff(attempt int) time.Duration {
	d := float64(rs.cfg.InitialBackoff) * math.Pow(rs.cfg.BackoffMultiplier, float64(attempt))
	if d > float64(rs.cfg.MaxBackoff) {
		d = float64(rs.cfg.MaxBackoff)
	}
	return time.Duration(d)
}

// isTransient reports whether a store error is worth retrying. Constraint
// violations and marshalling errors are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"database is locked",
		"database table is locked",
		"busy",
		"i/o timeout",
		"disk i/o error",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
