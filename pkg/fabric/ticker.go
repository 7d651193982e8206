// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package fabric

import (
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Ticker drives the Automation bus: a cron engine emits AUTOMATION_TICK on
// a fixed schedule, which downstream subscribers use for debounced flushes
// (QState persistence, ledger snapshots).
type Ticker struct {
	bus        *Bus
	cronEngine *cron.Cron
	logger     *zap.Logger
	ticks      atomic.Int64
}

// NewTicker creates a ticker bound to the Automation bus.
func NewTicker(bus *Bus, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{
		bus:        bus,
		cronEngine: cron.New(cron.WithSeconds()),
		logger:     logger,
	}
}

// Add registers a tick schedule in 6-field cron format (with seconds).
// Each firing emits AUTOMATION_TICK carrying the schedule spec.
func (t *Ticker) Add(spec string) error {
	_, err := t.cronEngine.AddFunc(spec, func() {
		n := t.ticks.Add(1)
		t.bus.Emit(KindAutomationTick, map[string]any{
			"schedule": spec,
			"tick":     n,
		})
	})
	if err != nil {
		return fmt.Errorf("add tick schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins firing ticks.
func (t *Ticker) Start() {
	t.cronEngine.Start()
	t.logger.Info("automation ticker started")
}

// Stop halts the cron engine, waiting for any in-flight tick to finish.
func (t *Ticker) Stop() {
	ctx := t.cronEngine.Stop()
	<-ctx.Done()
	t.logger.Info("automation ticker stopped", zap.Int64("ticks", t.ticks.Load()))
}
