// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoOpTracerNeverPanics(t *testing.T) {
	tracer := NewNoOpTracer()
	ctx, span := tracer.StartSpan(context.Background(), SpanJudgment)
	assert.Nil(t, span)
	assert.NotNil(t, ctx)

	// Nil spans absorb attribute writes.
	span.SetAttribute("verdict", "WAG")
	tracer.EndSpan(span)
	assert.Nil(t, span.Attributes())
}

func TestLoggingTracerSpanLifecycle(t *testing.T) {
	tracer := NewLoggingTracer(zap.NewNop())
	ctx, span := tracer.StartSpan(context.Background(), SpanConsensus)
	require.NotNil(t, span)
	assert.Equal(t, SpanConsensus, span.Name)
	assert.Same(t, span, SpanFromContext(ctx))

	span.SetAttribute("topic", "review:code")
	span.SetAttribute("voters", 7)
	tracer.EndSpan(span)

	attrs := span.Attributes()
	assert.Equal(t, "review:code", attrs["topic"])
	assert.Equal(t, 7, attrs["voters"])
	assert.False(t, span.EndedAt.IsZero())
}

func TestSpanFromEmptyContext(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
}
