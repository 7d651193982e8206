// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSize(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultSize(), 1)
}

func TestScoreChunkOrderPreserved(t *testing.T) {
	p := New(Config{Size: 4})
	defer p.Close(time.Second) //nolint:errcheck

	names := []string{"a", "b", "c", "d", "e"}
	results, err := p.ScoreChunk(context.Background(), names, func(ctx context.Context, name string) (float64, error) {
		return float64(len(name)) + float64(name[0]), nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(names))
	for i, name := range names {
		require.NoError(t, results[i].Err)
		assert.Equal(t, float64(len(name))+float64(name[0]), results[i].Score)
	}
}

func TestScoreChunkPerSlotErrors(t *testing.T) {
	p := New(Config{Size: 2})
	defer p.Close(time.Second) //nolint:errcheck

	boom := errors.New("boom")
	results, err := p.ScoreChunk(context.Background(), []string{"ok", "fail"}, func(ctx context.Context, name string) (float64, error) {
		if name == "fail" {
			return 0, boom
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 42.0, results[0].Score)
	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, ErrTaskExhausted)
}

func TestRetryLandsOnDifferentWorker(t *testing.T) {
	p := New(Config{Size: 3})
	defer p.Close(time.Second) //nolint:errcheck

	var calls atomic.Int32
	results, err := p.ScoreChunk(context.Background(), []string{"flaky"}, func(ctx context.Context, name string) (float64, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return 77, nil
	})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 77.0, results[0].Score)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPanicIsAnError(t *testing.T) {
	p := New(Config{Size: 2})
	defer p.Close(time.Second) //nolint:errcheck

	results, err := p.ScoreChunk(context.Background(), []string{"p"}, func(ctx context.Context, name string) (float64, error) {
		panic("scorer blew up")
	})
	require.NoError(t, err)
	require.Error(t, results[0].Err)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Config{Size: 1})
	require.NoError(t, p.Close(time.Second))

	results, err := p.ScoreChunk(context.Background(), []string{"x"}, func(ctx context.Context, name string) (float64, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ErrPoolClosed)
}

func TestCancelledContext(t *testing.T) {
	p := New(Config{Size: 2})
	defer p.Close(time.Second) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ScoreChunk(ctx, []string{"x", "y"}, func(ctx context.Context, name string) (float64, error) {
		return 1, nil
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestStats(t *testing.T) {
	p := New(Config{Size: 2})
	defer p.Close(time.Second) //nolint:errcheck

	_, err := p.ScoreChunk(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, name string) (float64, error) {
		return 1, nil
	})
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(3), stats.TasksProcessed)
	assert.Zero(t, stats.TasksFailed)
}
