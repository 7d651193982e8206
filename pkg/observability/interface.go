// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package observability provides lightweight span tracing for the judgment
// pipeline. The default implementation is a no-op; a logging tracer is
// available for local debugging. Prometheus metrics live in pkg/metrics.
package observability

import (
	"context"
	"sync"
	"time"
)

// Span names used across the judgment pipeline.
const (
	SpanCriticalPath   = "orchestrator.critical_path"
	SpanClassification = "router.classify"
	SpanRouting        = "router.route"
	SpanJudgment       = "judge.evaluate"
	SpanDimensionScore = "judge.dimension"
	SpanConsensus      = "pack.consensus"
	SpanDogVote        = "pack.vote"
	SpanBackgroundTail = "orchestrator.tail"
	SpanStoreWrite     = "storage.write"
	SpanBridgeForward  = "fabric.bridge.forward"
)

// Tracer instruments kennel operations.
//
// Thread-safe: all methods can be called concurrently.
type Tracer interface {
	// StartSpan creates a new span and returns a context containing it.
	StartSpan(ctx context.Context, name string) (context.Context, *Span)

	// EndSpan completes a span. Always call via defer after StartSpan.
	EndSpan(span *Span)
}

// Span is a single traced operation. Attribute access is serialized.
type Span struct {
	Name      string
	StartedAt time.Time
	EndedAt   time.Time

	mu    sync.Mutex
	attrs map[string]any
}

// SetAttribute records a key/value attribute on the span. Safe on nil spans.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
}

// Attributes returns a copy of the span's attributes.
func (s *Span) Attributes() map[string]any {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

type contextKey string

const spanContextKey contextKey = "kennel.span"

// SpanFromContext retrieves the current span from context, if any.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}

// ContextWithSpan returns a new context with the span attached.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}
