// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package fabric is the in-process event fabric: three logical buses (Core,
// Automation, Agent) with per-subscriber queues, an ordered middleware chain
// on the Core bus, and a loop-safe bridge that forwards events across buses
// under a TTL'd visited set.
package fabric

import (
	"time"

	"github.com/google/uuid"
)

// BusID names one of the three logical buses.
type BusID string

const (
	BusCore       BusID = "core"
	BusAutomation BusID = "automation"
	BusAgent      BusID = "agent"
)

// Core bus event kinds.
const (
	KindJudgmentCreated = "JUDGMENT_CREATED"
	KindUserFeedback    = "USER_FEEDBACK"
	KindQValueUpdated   = "Q_VALUE_UPDATED"
	KindRoutingDecision = "ROUTING_DECISION"
	KindBudgetDegraded  = "BUDGET_DEGRADED"
	KindStoreFailure    = "STORE_FAILURE"
)

// Automation bus event kinds.
const (
	KindAutomationTick          = "AUTOMATION_TICK"
	KindTriggerFired            = "TRIGGER_FIRED"
	KindTriggerJudgmentFeedback = "TRIGGER_JUDGMENT_FEEDBACK"
)

// Agent bus event kinds.
const (
	KindDogVoteCast       = "DOG_VOTE_CAST"
	KindConsensusReached  = "CONSENSUS_REACHED"
	KindConsensusVetoed   = "CONSENSUS_REJECTED_VETO"
	KindCollectivePattern = "COLLECTIVE_PATTERN_DETECTED"
)

// Event is one ephemeral message on a bus. Events are never persisted by
// the fabric itself; persistence is a subscriber's responsibility.
type Event struct {
	Bus           BusID
	Kind          string
	Payload       map[string]any
	EmittedAt     time.Time
	CorrelationID string
}

// NewEvent builds an event for the given bus.
func NewEvent(bus BusID, kind string, payload map[string]any) Event {
	return Event{
		Bus:           bus,
		Kind:          kind,
		Payload:       payload,
		EmittedAt:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
