// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package fabric

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// visitedTTL bounds how long a forwarded event key suppresses re-forwarding.
const visitedTTL = time.Second

// Transform rewrites a payload while an event crosses buses. Nil keeps the
// payload as-is.
type Transform func(payload map[string]any) map[string]any

// Rule forwards (From, FromKind) emissions onto (To, ToKind) after applying
// Transform. Rules are fixed at construction.
type Rule struct {
	From      BusID
	FromKind  string
	To        BusID
	ToKind    string
	Transform Transform
}

// Bridge forwards events between buses under the rule table, suppressing
// loops with an immutable visited key carried alongside the event (never
// inside its payload). Keys expire after one second, which also bounds the
// visited-set memory.
type Bridge struct {
	rules  []Rule
	buses  map[BusID]*Bus
	logger *zap.Logger

	mu      sync.Mutex
	visited map[uint64]time.Time

	forwarded atomic.Int64
	looped    atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBridge wires the rule table across the given buses. Call Start to
// begin forwarding and Stop to detach.
func NewBridge(buses map[BusID]*Bus, rules []Rule, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		rules:   rules,
		buses:   buses,
		logger:  logger,
		visited: make(map[uint64]time.Time),
		stop:    make(chan struct{}),
	}
}

// Start subscribes to every source bus named by the rule table and begins
// forwarding. One goroutine per (bus, kind) source.
func (br *Bridge) Start() error {
	for _, rule := range br.rules {
		src, ok := br.buses[rule.From]
		if !ok {
			return fmt.Errorf("bridge rule references unknown bus %q", rule.From)
		}
		if _, ok := br.buses[rule.To]; !ok {
			return fmt.Errorf("bridge rule references unknown bus %q", rule.To)
		}

		ch, unsubscribe := src.Subscribe(128, rule.FromKind)
		br.wg.Add(1)
		go func(rule Rule, ch <-chan Event, unsubscribe func()) {
			defer br.wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-br.stop:
					return
				case event, ok := <-ch:
					if !ok {
						return
					}
					br.forward(rule, event)
				}
			}
		}(rule, ch, unsubscribe)
	}

	// Periodic sweep keeps the visited set bounded even without traffic.
	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		ticker := time.NewTicker(visitedTTL)
		defer ticker.Stop()
		for {
			select {
			case <-br.stop:
				return
			case <-ticker.C:
				br.sweep(time.Now())
			}
		}
	}()
	return nil
}

// Stop detaches the bridge from all buses.
func (br *Bridge) Stop() {
	br.stopOnce.Do(func() { close(br.stop) })
	br.wg.Wait()
}

// forward applies one rule to one event, skipping when the visited set has
// seen the key within the TTL.
func (br *Bridge) forward(rule Rule, event Event) {
	key := visitedKey(event.Bus, event.Kind, event.Payload)
	if !br.admit(key) {
		br.looped.Add(1)
		br.logger.Debug("bridge loop suppressed",
			zap.String("from", string(rule.From)),
			zap.String("kind", event.Kind),
		)
		return
	}
	payload := event.Payload
	if rule.Transform != nil {
		payload = rule.Transform(payload)
	}

	out := event
	out.Kind = rule.ToKind
	out.Payload = payload
	br.buses[rule.To].EmitEvent(out)
	br.forwarded.Add(1)
}

// admit reports whether the key is new (or expired) and marks it.
func (br *Bridge) admit(key uint64) bool {
	now := time.Now()
	br.mu.Lock()
	defer br.mu.Unlock()
	if seen, ok := br.visited[key]; ok && now.Sub(seen) < visitedTTL {
		return false
	}
	br.visited[key] = now
	return true
}

func (br *Bridge) sweep(now time.Time) {
	br.mu.Lock()
	defer br.mu.Unlock()
	for k, seen := range br.visited {
		if now.Sub(seen) >= visitedTTL {
			delete(br.visited, k)
		}
	}
}

// Stats returns (events forwarded, loops suppressed).
func (br *Bridge) Stats() (forwarded, looped int64) {
	return br.forwarded.Load(), br.looped.Load()
}

// VisitedSize returns the current visited-set size (after sweeping expired
// keys), for tests asserting the TTL bound.
func (br *Bridge) VisitedSize() int {
	br.sweep(time.Now())
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.visited)
}

// visitedKey hashes (bus, kind, payload) into the immutable loop key.
// The payload hash uses canonical JSON so map iteration order is moot.
func visitedKey(bus BusID, kind string, payload map[string]any) uint64 {
	h := fnv.New64a()
	h.Write([]byte(bus))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	if data, err := json.Marshal(payload); err == nil {
		h.Write(data)
	}
	return h.Sum64()
}
