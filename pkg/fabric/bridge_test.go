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

func testBuses() map[BusID]*Bus {
	return map[BusID]*Bus{
		BusCore:       NewBus(BusCore, zap.NewNop()),
		BusAutomation: NewBus(BusAutomation, zap.NewNop()),
		BusAgent:      NewBus(BusAgent, zap.NewNop()),
	}
}

func TestBridgeForwardsUnderRule(t *testing.T) {
	buses := testBuses()
	br := NewBridge(buses, []Rule{
		{
			From: BusAgent, FromKind: KindConsensusReached,
			To: BusAutomation, ToKind: KindTriggerFired,
			Transform: func(payload map[string]any) map[string]any {
				payload["source"] = "pack"
				return payload
			},
		},
	}, zap.NewNop())
	require.NoError(t, br.Start())
	defer br.Stop()

	ch, unsubscribe := buses[BusAutomation].Subscribe(8, KindTriggerFired)
	defer unsubscribe()

	buses[BusAgent].Emit(KindConsensusReached, map[string]any{"topic": "review:code"})

	event := receive(t, ch)
	assert.Equal(t, KindTriggerFired, event.Kind)
	assert.Equal(t, "review:code", event.Payload["topic"])
	assert.Equal(t, "pack", event.Payload["source"])

	forwarded, _ := br.Stats()
	assert.Equal(t, int64(1), forwarded)
}

func TestBridgeRoutesFeedbackToAutomation(t *testing.T) {
	// User feedback lands on the validated core bus and fans out to the
	// automation bus as a trigger, not the other way around.
	buses := map[BusID]*Bus{
		BusCore:       NewCoreBus(zap.NewNop()),
		BusAutomation: NewBus(BusAutomation, zap.NewNop()),
		BusAgent:      NewBus(BusAgent, zap.NewNop()),
	}
	br := NewBridge(buses, []Rule{
		{From: BusCore, FromKind: KindUserFeedback, To: BusAutomation, ToKind: KindTriggerJudgmentFeedback},
	}, zap.NewNop())
	require.NoError(t, br.Start())
	defer br.Stop()

	ch, unsubscribe := buses[BusAutomation].Subscribe(8, KindTriggerJudgmentFeedback)
	defer unsubscribe()

	buses[BusCore].Emit(KindUserFeedback, map[string]any{"judgment_id": "j1", "outcome": "correct"})

	event := receive(t, ch)
	assert.Equal(t, KindTriggerJudgmentFeedback, event.Kind)
	assert.Equal(t, "j1", event.Payload["judgment_id"])
}

func TestBridgeSuppressesLoops(t *testing.T) {
	// Two rules that form a cycle: Core→Agent and Agent→Core on the same
	// payload. The original emission crosses once in each direction; the
	// third hop hits the visited set and stops.
	buses := testBuses()
	br := NewBridge(buses, []Rule{
		{From: BusCore, FromKind: "PING", To: BusAgent, ToKind: "PONG"},
		{From: BusAgent, FromKind: "PONG", To: BusCore, ToKind: "PING"},
	}, zap.NewNop())
	require.NoError(t, br.Start())
	defer br.Stop()

	agentCh, unsubAgent := buses[BusAgent].Subscribe(8, "PONG")
	defer unsubAgent()
	coreCh, unsubCore := buses[BusCore].Subscribe(8, "PING")
	defer unsubCore()

	buses[BusCore].Emit("PING", map[string]any{"n": 1})

	// The subscriber sees the original plus the one bounce-back.
	receive(t, coreCh)
	receive(t, coreCh)
	receive(t, agentCh)

	assert.Eventually(t, func() bool {
		forwarded, looped := br.Stats()
		return forwarded == 2 && looped >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// No further traffic: the cycle is dead.
	assertNoEvent(t, coreCh)
	assertNoEvent(t, agentCh)
}

func TestBridgeVisitedSetExpires(t *testing.T) {
	buses := testBuses()
	br := NewBridge(buses, []Rule{
		{From: BusCore, FromKind: "PING", To: BusAgent, ToKind: "PONG"},
	}, zap.NewNop())
	require.NoError(t, br.Start())
	defer br.Stop()

	buses[BusCore].Emit("PING", map[string]any{"n": 1})
	assert.Eventually(t, func() bool {
		forwarded, _ := br.Stats()
		return forwarded == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, br.VisitedSize())

	// Keys expire after the TTL, bounding the set.
	time.Sleep(visitedTTL + 100*time.Millisecond)
	assert.Zero(t, br.VisitedSize())
}

func TestBridgeRejectsUnknownBus(t *testing.T) {
	buses := map[BusID]*Bus{BusCore: NewBus(BusCore, zap.NewNop())}
	br := NewBridge(buses, []Rule{
		{From: BusCore, FromKind: "PING", To: BusAgent, ToKind: "PONG"},
	}, zap.NewNop())
	require.Error(t, br.Start())
}
