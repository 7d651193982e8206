// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// defaultTailGrace is how long Shutdown waits for in-flight tails.
const defaultTailGrace = 5 * time.Second

// TailScheduler runs detached background work (persistence, event emission,
// learning updates) after the critical path has already answered. A
// semaphore of 4×CPU bounds concurrency; tails run under the scheduler's
// own lifetime, not the request context.
type TailScheduler struct {
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	inFlight atomic.Int64
	logger   *zap.Logger
}

// NewTailScheduler creates a scheduler. size ≤ 0 picks 4×CPU.
func NewTailScheduler(size int, logger *zap.Logger) *TailScheduler {
	if size <= 0 {
		size = 4 * runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TailScheduler{
		sem:    make(chan struct{}, size),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Go schedules one tail. The goroutine blocks on the semaphore, not the
// caller. Returns false after Shutdown.
func (t *TailScheduler) Go(name string, fn func(ctx context.Context)) bool {
	if t.closed.Load() {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		select {
		case t.sem <- struct{}{}:
		case <-t.ctx.Done():
			t.logger.Debug("tail dropped at shutdown", zap.String("tail", name))
			return
		}
		defer func() { <-t.sem }()

		t.inFlight.Add(1)
		defer t.inFlight.Add(-1)

		start := time.Now()
		fn(t.ctx)
		t.logger.Debug("tail complete",
			zap.String("tail", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()
	return true
}

// InFlight returns the number of tails currently holding a semaphore slot.
func (t *TailScheduler) InFlight() int64 {
	return t.inFlight.Load()
}

// Shutdown stops accepting tails and waits up to grace for in-flight ones,
// then cancels the rest. grace ≤ 0 picks the default.
func (t *TailScheduler) Shutdown(grace time.Duration) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if grace <= 0 {
		grace = defaultTailGrace
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		t.logger.Warn("tail grace expired, cancelling remaining tails")
	}
	t.cancel()
	<-done
}
