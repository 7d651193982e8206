// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NoOpTracer discards all spans. Used as the default when no tracer is
// configured so call sites never nil-check.
type NoOpTracer struct{}

// NewNoOpTracer creates a tracer that discards everything.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

// StartSpan returns the context unchanged and a nil span.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	return ctx, nil
}

// EndSpan is a no-op.
func (t *NoOpTracer) EndSpan(span *Span) {}

// LoggingTracer emits every completed span to a zap logger at debug level.
type LoggingTracer struct {
	logger *zap.Logger
}

// NewLoggingTracer creates a tracer backed by the given logger.
func NewLoggingTracer(logger *zap.Logger) *LoggingTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingTracer{logger: logger}
}

// StartSpan creates a span and attaches it to the context.
func (t *LoggingTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, StartedAt: time.Now()}
	return ContextWithSpan(ctx, span), span
}

// EndSpan stamps the span and logs it.
func (t *LoggingTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndedAt = time.Now()
	t.logger.Debug("span completed",
		zap.String("span", span.Name),
		zap.Duration("duration", span.EndedAt.Sub(span.StartedAt)),
		zap.Any("attributes", span.Attributes()),
	)
}
