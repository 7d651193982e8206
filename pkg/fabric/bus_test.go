// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package fabric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %s", event.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus(BusAgent, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	bus.Emit(KindDogVoteCast, map[string]any{"dog": "scout"})

	event := receive(t, ch)
	assert.Equal(t, BusAgent, event.Bus)
	assert.Equal(t, KindDogVoteCast, event.Kind)
	assert.Equal(t, "scout", event.Payload["dog"])
	assert.NotEmpty(t, event.CorrelationID)
	assert.False(t, event.EmittedAt.IsZero())
}

func TestBusKindFilter(t *testing.T) {
	bus := NewBus(BusAgent, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(8, KindConsensusReached)
	defer unsubscribe()

	bus.Emit(KindDogVoteCast, map[string]any{})
	bus.Emit(KindConsensusReached, map[string]any{})

	event := receive(t, ch)
	assert.Equal(t, KindConsensusReached, event.Kind)
	assertNoEvent(t, ch)
}

func TestBusDropsOldestWhenFull(t *testing.T) {
	bus := NewBus(BusAgent, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(2)
	defer unsubscribe()

	for i := 0; i < 4; i++ {
		bus.Emit(KindDogVoteCast, map[string]any{"seq": i})
	}

	// Buffer of two: the first two emissions were displaced.
	first := receive(t, ch)
	second := receive(t, ch)
	assert.Equal(t, 2, first.Payload["seq"])
	assert.Equal(t, 3, second.Payload["seq"])

	emitted, dropped := bus.Stats()
	assert.Equal(t, int64(4), emitted)
	assert.Equal(t, int64(2), dropped)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(BusAgent, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(8)

	unsubscribe()
	bus.Emit(KindDogVoteCast, map[string]any{})
	assertNoEvent(t, ch)
}

func TestBusEmitEventPreservesCorrelation(t *testing.T) {
	bus := NewBus(BusAutomation, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	original := NewEvent(BusAgent, KindTriggerFired, map[string]any{})
	bus.EmitEvent(original)

	event := receive(t, ch)
	assert.Equal(t, original.CorrelationID, event.CorrelationID)
	assert.Equal(t, BusAutomation, event.Bus, "the receiving bus stamps its own identity")
}

func TestValidateMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload map[string]any
		wantErr bool
	}{
		{"known kind", KindJudgmentCreated, map[string]any{"id": "j1"}, false},
		{"unknown kind", "SOMETHING_ELSE", map[string]any{}, true},
		{"nil payload", KindUserFeedback, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent(BusCore, tt.kind, tt.payload)
			err := ValidateMiddleware(&event)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEnrichMiddlewareStampsTimestamp(t *testing.T) {
	event := NewEvent(BusCore, KindJudgmentCreated, map[string]any{})
	require.NoError(t, EnrichMiddleware(&event))
	assert.Equal(t, event.EmittedAt.UnixMilli(), event.Payload["ts"])

	// An existing stamp survives enrichment.
	stamped := NewEvent(BusCore, KindJudgmentCreated, map[string]any{"ts": int64(42)})
	require.NoError(t, EnrichMiddleware(&stamped))
	assert.Equal(t, int64(42), stamped.Payload["ts"])
}

func TestCoreBusRejectsUnknownKinds(t *testing.T) {
	bus := NewCoreBus(zap.NewNop())
	ch, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	bus.Emit("NOT_A_CORE_KIND", map[string]any{})
	assertNoEvent(t, ch)
	emitted, _ := bus.Stats()
	assert.Zero(t, emitted)

	bus.Emit(KindJudgmentCreated, map[string]any{"id": "j1"})
	event := receive(t, ch)
	assert.Equal(t, KindJudgmentCreated, event.Kind)
	assert.Contains(t, event.Payload, "ts")
}
