// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package fabric

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Middleware runs before subscriber dispatch on a bus. Returning an error
// drops the event. The Core bus runs validate → enrich → log in order.
type Middleware func(event *Event) error

// subscriber holds one subscriber's queue. Delivery is at-most-once per
// emission; a full queue drops the oldest event rather than blocking the
// dispatcher.
type subscriber struct {
	id      int
	kinds   map[string]bool // empty = all kinds
	ch      chan Event
	dropped atomic.Int64
}

// Bus is one in-process pub/sub bus. Emit never blocks the publisher;
// subscriber errors are isolated to the subscriber's own queue.
type Bus struct {
	id     BusID
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers []*subscriber
	middlewares []Middleware
	nextSubID   int

	emitted atomic.Int64
	dropped atomic.Int64
}

// NewBus creates a bus with the given identity.
func NewBus(id BusID, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{id: id, logger: logger}
}

// ID returns the bus identity.
func (b *Bus) ID() BusID { return b.id }

// Use appends a middleware to the chain. Middlewares run in registration
// order before subscriber dispatch.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// Subscribe registers a queue for the given kinds (none = all kinds).
// Returns the receive channel and an unsubscribe function. Long-running
// subscribers must drain their channel promptly; the bus drops the oldest
// queued event when the buffer is full.
func (b *Bus) Subscribe(buffer int, kinds ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{
		ch:    make(chan Event, buffer),
		kinds: make(map[string]bool, len(kinds)),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	b.nextSubID++
	sub.id = b.nextSubID
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == sub.id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
	return sub.ch, unsubscribe
}

// Emit publishes an event. Non-blocking from the publisher's perspective:
// the middleware chain runs inline (O(1) transforms only), then each
// subscriber's queue is offered the event with drop-oldest on overflow.
func (b *Bus) Emit(kind string, payload map[string]any) {
	b.EmitEvent(NewEvent(b.id, kind, payload))
}

// EmitEvent publishes a pre-built event, preserving its correlation id.
// Used by the bridge so forwarded events stay correlated.
func (b *Bus) EmitEvent(event Event) {
	event.Bus = b.id

	b.mu.RLock()
	middlewares := b.middlewares
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, mw := range middlewares {
		if err := mw(&event); err != nil {
			b.logger.Warn("event rejected by middleware",
				zap.String("bus", string(b.id)),
				zap.String("kind", event.Kind),
				zap.Error(err),
			)
			return
		}
	}

	b.emitted.Add(1)
	for _, sub := range subs {
		if len(sub.kinds) > 0 && !sub.kinds[event.Kind] {
			continue
		}
		b.offer(sub, event)
	}
}

// offer delivers to one subscriber, dropping its oldest queued event if
// the buffer is full.
func (b *Bus) offer(sub *subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	// Queue full: drop the oldest, then retry once.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	}
}

// Stats returns (events emitted, events dropped across subscribers).
func (b *Bus) Stats() (emitted, dropped int64) {
	return b.emitted.Load(), b.dropped.Load()
}

// ============================================================================
// Core bus middleware chain
// ============================================================================

// knownCoreKinds is the closed set of Core-bus event kinds. The validate
// middleware rejects anything else; event shapes are tagged variants, not
// open maps.
var knownCoreKinds = map[string]bool{
	KindJudgmentCreated: true,
	KindUserFeedback:    true,
	KindQValueUpdated:   true,
	KindRoutingDecision: true,
	KindBudgetDegraded:  true,
	KindStoreFailure:    true,
}

// ValidateMiddleware rejects unknown Core event kinds and nil payloads.
func ValidateMiddleware(event *Event) error {
	if !knownCoreKinds[event.Kind] {
		return fmt.Errorf("unknown core event kind %q", event.Kind)
	}
	if event.Payload == nil {
		return fmt.Errorf("event %q has nil payload", event.Kind)
	}
	return nil
}

// EnrichMiddleware stamps the emission timestamp into the payload so
// subscribers that persist events keep the bus-side time.
func EnrichMiddleware(event *Event) error {
	if _, ok := event.Payload["ts"]; !ok {
		event.Payload["ts"] = event.EmittedAt.UnixMilli()
	}
	return nil
}

// LogMiddleware logs every event at debug level.
func LogMiddleware(logger *zap.Logger) Middleware {
	return func(event *Event) error {
		logger.Debug("event",
			zap.String("bus", string(event.Bus)),
			zap.String("kind", event.Kind),
			zap.String("correlation_id", event.CorrelationID),
		)
		return nil
	}
}

// NewCoreBus builds the Core bus with its standard middleware chain
// (validate → enrich → log).
func NewCoreBus(logger *zap.Logger) *Bus {
	bus := NewBus(BusCore, logger)
	bus.Use(ValidateMiddleware)
	bus.Use(EnrichMiddleware)
	bus.Use(LogMiddleware(logger))
	return bus
}
