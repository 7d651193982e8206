// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package workerpool runs independent scoring tasks on a bounded parallel
// fan-out. Pool size is fixed at construction as max(1, ⌈cpus·φ⁻¹⌉) so the
// scorers never oversubscribe the host.
package workerpool

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/phi"
)

var (
	// ErrPoolClosed is returned for tasks submitted or queued after Close.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrTaskExhausted is returned when a task failed on three distinct
	// workers. The caller fills the slot with an invalid score.
	ErrTaskExhausted = errors.New("task failed after retries on distinct workers")
)

const maxAttempts = 3

// TaskFunc computes one dimension score. Implementations must observe ctx.
type TaskFunc func(ctx context.Context) (float64, error)

// Result is one slot of a ScoreChunk response. Err is non-nil when the
// task exhausted its retries; Score is then meaningless.
type Result struct {
	Score float64
	Err   error
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Size              int
	TasksProcessed    int64
	TasksFailed       int64
	AvgProcessingTime time.Duration
}

// Config configures a Pool. Zero values pick defaults.
type Config struct {
	// Size overrides the φ-derived worker count. Tests only.
	Size int

	// QueueDepth bounds the pending-task queue. Default 128.
	QueueDepth int

	Logger *zap.Logger
}

// DefaultSize returns max(1, ⌈cpus·φ⁻¹⌉) for the current host.
func DefaultSize() int {
	n := int(math.Ceil(float64(runtime.NumCPU()) * phi.Inv))
	if n < 1 {
		n = 1
	}
	return n
}

type task struct {
	fn       TaskFunc
	ctx      context.Context
	result   chan Result
	attempts int
	// triedBy tracks which workers already attempted this task so retries
	// land on a different worker whenever the pool has more than one.
	triedBy map[int]bool
}

// Pool is a fixed-size worker pool with a bounded queue and round-robin
// pickup. Workers pull from a shared queue; a failed task is re-queued for
// a worker that has not yet attempted it.
type Pool struct {
	size   int
	queue  chan *task
	logger *zap.Logger

	closed    atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inFlight  sync.WaitGroup

	tasksProcessed atomic.Int64
	tasksFailed    atomic.Int64
	totalNanos     atomic.Int64
}

// New creates and starts a pool.
func New(cfg Config) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize()
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 128
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:   size,
		queue:  make(chan *task, depth),
		logger: logger,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logger.Debug("worker pool started", zap.Int("size", size), zap.Int("queue_depth", depth))
	return p
}

// Size returns the fixed worker count.
func (p *Pool) Size() int { return p.size }

func (p *Pool) worker(poolCtx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-poolCtx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(poolCtx, id, t)
		}
	}
}

func (p *Pool) run(poolCtx context.Context, workerID int, t *task) {
	// Retry on a different worker: if this worker already tried the task
	// and another worker could take it, push it back.
	if t.triedBy[workerID] && len(t.triedBy) < p.size {
		select {
		case p.queue <- t:
			return
		default:
			// Queue full; run here rather than stall the round.
		}
	}
	t.triedBy[workerID] = true
	t.attempts++

	start := time.Now()
	score, err := p.invoke(t)
	elapsed := time.Since(start)

	select {
	case <-t.ctx.Done():
		p.finish(t, Result{Err: t.ctx.Err()}, elapsed, true)
		return
	default:
	}

	if err != nil {
		if t.attempts >= maxAttempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.Debug("task exhausted",
				zap.Int("attempts", t.attempts),
				zap.Error(err),
			)
			p.finish(t, Result{Err: errors.Join(ErrTaskExhausted, err)}, elapsed, true)
			return
		}
		// Requeue for another worker.
		select {
		case p.queue <- t:
		case <-poolCtx.Done():
			p.finish(t, Result{Err: ErrPoolClosed}, elapsed, true)
		case <-t.ctx.Done():
			p.finish(t, Result{Err: t.ctx.Err()}, elapsed, true)
		}
		return
	}

	p.finish(t, Result{Score: score}, elapsed, false)
}

func (p *Pool) invoke(t *task) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("scorer panic")
			p.logger.Warn("scorer panicked", zap.Any("panic", r))
		}
	}()
	return t.fn(t.ctx)
}

func (p *Pool) finish(t *task, r Result, elapsed time.Duration, failed bool) {
	if failed {
		p.tasksFailed.Add(1)
	} else {
		p.tasksProcessed.Add(1)
	}
	p.totalNanos.Add(int64(elapsed))
	t.result <- r
	p.inFlight.Done()
}

// submit enqueues one task. Returns the channel its result arrives on.
func (p *Pool) submit(ctx context.Context, fn TaskFunc) (chan Result, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	t := &task{
		fn:      fn,
		ctx:     ctx,
		result:  make(chan Result, 1),
		triedBy: make(map[int]bool, maxAttempts),
	}
	p.inFlight.Add(1)
	select {
	case p.queue <- t:
		return t.result, nil
	case <-ctx.Done():
		p.inFlight.Done()
		return nil, ctx.Err()
	}
}

// ScoreChunk runs one TaskFunc per name, in parallel, and returns results
// in the same order and length as names. Individual failures surface as
// per-slot errors, never as a chunk error; the only chunk-level errors are
// pool closure and context cancellation at submit time.
func (p *Pool) ScoreChunk(ctx context.Context, names []string, score func(ctx context.Context, name string) (float64, error)) ([]Result, error) {
	results := make([]Result, len(names))
	channels := make([]chan Result, len(names))

	for i, name := range names {
		name := name
		ch, err := p.submit(ctx, func(taskCtx context.Context) (float64, error) {
			return score(taskCtx, name)
		})
		if err != nil {
			// Mark this and all remaining slots as failed-to-submit.
			for j := i; j < len(names); j++ {
				results[j] = Result{Err: err}
			}
			break
		}
		channels[i] = ch
	}

	for i, ch := range channels {
		if ch == nil {
			continue
		}
		select {
		case results[i] = <-ch:
		case <-ctx.Done():
			results[i] = Result{Err: ctx.Err()}
		}
	}
	return results, nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	processed := p.tasksProcessed.Load()
	failed := p.tasksFailed.Load()
	var avg time.Duration
	if total := processed + failed; total > 0 {
		avg = time.Duration(p.totalNanos.Load() / total)
	}
	return Stats{
		Size:              p.size,
		TasksProcessed:    processed,
		TasksFailed:       failed,
		AvgProcessingTime: avg,
	}
}

// Close rejects all future submissions, lets in-flight tasks finish within
// timeout, then force-terminates the workers.
func (p *Pool) Close(timeout time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	done := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = context.DeadlineExceeded
	}

	p.cancel()
	p.wg.Wait()
	// Reject anything the workers never picked up. The queue stays open so
	// a worker mid-requeue never hits a closed channel.
	for {
		select {
		case t := <-p.queue:
			t.result <- Result{Err: ErrPoolClosed}
			p.inFlight.Done()
		default:
			p.logger.Debug("worker pool closed", zap.Error(err))
			return err
		}
	}
}
