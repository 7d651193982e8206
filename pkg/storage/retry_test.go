// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlabs/kennel/pkg/types"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"locked", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"busy", errors.New("SQLITE_BUSY: database busy"), true},
		{"disk io", errors.New("disk I/O error"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"constraint", errors.New("UNIQUE constraint failed: judgments.id"), false},
		{"marshal", errors.New("json: unsupported type"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestRetryingStorePassesThroughWrites(t *testing.T) {
	rs := NewRetryingStore(newTestStore(t), DefaultRetryConfig(), nil, nil)
	ctx := context.Background()

	require.NoError(t, rs.StoreJudgment(ctx, sampleJudgment("j1")))
	got, err := rs.LoadJudgment(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
}

func TestRetryingStoreReportsTerminalFailure(t *testing.T) {
	var failedOp string
	var failedErr error
	onFailure := func(op string, err error) {
		failedOp = op
		failedErr = err
	}
	rs := NewRetryingStore(newTestStore(t), DefaultRetryConfig(), onFailure, nil)
	ctx := context.Background()

	require.NoError(t, rs.StoreJudgment(ctx, sampleJudgment("j1")))

	// A duplicate insert is a constraint violation: non-transient, so the
	// wrapper fails immediately and notifies the handler once.
	err := rs.StoreJudgment(ctx, sampleJudgment("j1"))
	require.Error(t, err)
	assert.Equal(t, "store_judgment", failedOp)
	assert.ErrorContains(t, failedErr, "judgment")
}

func TestRetryingStoreQStateAndFeedback(t *testing.T) {
	rs := NewRetryingStore(newTestStore(t), DefaultRetryConfig(), nil, nil)
	ctx := context.Background()

	require.NoError(t, rs.StoreQState(ctx, &types.QState{Epsilon: 0.1}))
	state, err := rs.LoadQState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.1, state.Epsilon)

	require.NoError(t, rs.StoreJudgment(ctx, sampleJudgment("j2")))
	require.NoError(t, rs.StoreFeedback(ctx, "f1", "j2", types.FeedbackPartial, ""))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	rs := NewRetryingStore(newTestStore(t), RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        150 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, nil, nil)

	assert.Equal(t, 50*time.Millisecond, rs.backoff(0))
	assert.Equal(t, 100*time.Millisecond, rs.backoff(1))
	assert.Equal(t, 150*time.Millisecond, rs.backoff(2), "capped at MaxBackoff")
	assert.Equal(t, 150*time.Millisecond, rs.backoff(3))
}
