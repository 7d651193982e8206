// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package metrics exposes Prometheus instrumentation for the judgment
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	JudgmentsTotal    *prometheus.CounterVec
	JudgmentFailures  *prometheus.CounterVec
	QScore            prometheus.Histogram
	JudgmentDuration  prometheus.Histogram
	ConsensusRounds   *prometheus.CounterVec
	Agreement         prometheus.Histogram
	EarlyExits        prometheus.Counter
	GuardianVetoes    prometheus.Counter
	RoutingDecisions  *prometheus.CounterVec
	BudgetRemaining   prometheus.Gauge
	BusEventsEmitted  *prometheus.GaugeVec
	BusEventsDropped  *prometheus.GaugeVec
	TailQueueDepth    prometheus.Gauge
}

// New registers all collectors on the given registerer. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JudgmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "judgments_total",
			Help:      "Completed judgments by verdict band.",
		}, []string{"verdict"}),
		JudgmentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "judgment_failures_total",
			Help:      "Failed judgments by failure kind.",
		}, []string{"kind"}),
		QScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kennel",
			Name:      "q_score",
			Help:      "Distribution of judgment Q-Scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		JudgmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kennel",
			Name:      "judgment_duration_seconds",
			Help:      "Critical-path latency from admit to formatted verdict.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		ConsensusRounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "consensus_rounds_total",
			Help:      "Consensus rounds by outcome.",
		}, []string{"outcome"}),
		Agreement: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kennel",
			Name:      "consensus_agreement",
			Help:      "Blended agreement per consensus round.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		EarlyExits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "consensus_early_exits_total",
			Help:      "Rounds decided before every voter reported.",
		}),
		GuardianVetoes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "guardian_vetoes_total",
			Help:      "Rounds rejected by guardian veto.",
		}),
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kennel",
			Name:      "routing_decisions_total",
			Help:      "Route decisions by tier and degradation.",
		}, []string{"tier", "degraded"}),
		BudgetRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kennel",
			Name:      "budget_remaining_usd",
			Help:      "Remaining ledger budget in USD.",
		}),
		BusEventsEmitted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kennel",
			Name:      "bus_events_emitted",
			Help:      "Events emitted per bus.",
		}, []string{"bus"}),
		BusEventsDropped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kennel",
			Name:      "bus_events_dropped",
			Help:      "Events dropped across subscriber queues per bus.",
		}, []string{"bus"}),
		TailQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kennel",
			Name:      "background_tail_in_flight",
			Help:      "Background tails currently holding a semaphore slot.",
		}),
	}
}
