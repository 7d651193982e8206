// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package orchestrator owns the Item→Judgment transaction: the bounded
// critical path (classify → route → judge → consensus → format) and the
// detached background tail (persist, then emit, then learn).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/costs"
	"github.com/packlabs/kennel/pkg/fabric"
	"github.com/packlabs/kennel/pkg/judge"
	"github.com/packlabs/kennel/pkg/metrics"
	"github.com/packlabs/kennel/pkg/observability"
	"github.com/packlabs/kennel/pkg/pack"
	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/router"
	"github.com/packlabs/kennel/pkg/storage"
	"github.com/packlabs/kennel/pkg/types"
)

// defaultDeadline bounds the critical path.
const defaultDeadline = 3 * time.Second

// routeMemoryLimit bounds the judgment→route memory used by feedback.
const routeMemoryLimit = 1024

// ErrUnknownJudgment is returned by Feedback and Get for ids that were
// never judged (or have been evicted and never persisted).
var ErrUnknownJudgment = errors.New("orchestrator: unknown judgment")

// Store is the persistence surface the orchestrator needs. Satisfied by
// *storage.RetryingStore.
type Store interface {
	StoreJudgment(ctx context.Context, judgment *types.Judgment) error
	StoreConsensus(ctx context.Context, judgmentID string, result *types.ConsensusResult) error
	StoreCostRecord(ctx context.Context, record types.CostRecord) error
	StoreFeedback(ctx context.Context, id, judgmentID string, outcome types.FeedbackOutcome, note string) error
	LoadJudgment(ctx context.Context, id string) (*types.Judgment, error)
	LoadConsensus(ctx context.Context, judgmentID string) (*types.ConsensusResult, error)
}

// routeContext is what feedback needs to close the learning loop.
type routeContext struct {
	cls      *types.Classification
	decision *types.RouteDecision
	routedAt time.Time
}

// Orchestrator composes router, judge, pack, costs, storage, and the event
// fabric into one pipeline.
type Orchestrator struct {
	router   *router.Router
	judge    *judge.Engine
	pack     *pack.Engine
	store    Store
	ledger   *costs.Ledger
	governor *costs.Governor
	breaker  *costs.Breaker
	core     *fabric.Bus
	metrics  *metrics.Metrics
	tracer   observability.Tracer
	logger   *zap.Logger
	tail     *TailScheduler
	deadline time.Duration

	memMu    sync.Mutex
	routeMem map[string]routeContext
	memOrder []string

	asyncMu sync.Mutex
	cancels map[string]context.CancelFunc
}

// Config wires an Orchestrator. Router, Judge, and Pack are required.
type Config struct {
	Router   *router.Router
	Judge    *judge.Engine
	Pack     *pack.Engine
	Store    Store
	Ledger   *costs.Ledger
	Governor *costs.Governor
	Breaker  *costs.Breaker
	CoreBus  *fabric.Bus
	Metrics  *metrics.Metrics
	Tracer   observability.Tracer
	Logger   *zap.Logger
	Tail     *TailScheduler
	Deadline time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tail == nil {
		cfg.Tail = NewTailScheduler(0, cfg.Logger)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	return &Orchestrator{
		router:   cfg.Router,
		judge:    cfg.Judge,
		pack:     cfg.Pack,
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		governor: cfg.Governor,
		breaker:  cfg.Breaker,
		core:     cfg.CoreBus,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		tail:     cfg.Tail,
		deadline: cfg.Deadline,
		routeMem: make(map[string]routeContext),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit runs the critical path and returns the formatted verdict. The
// background tail (persistence, event emission) is detached: the response
// may arrive before the judgment is durable. Failure modes degrade into
// failure judgments rather than errors; only an unusable item errors.
func (o *Orchestrator) Submit(ctx context.Context, item *types.Item) (*Response, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanCriticalPath)
	defer o.tracer.EndSpan(span)

	if item == nil {
		return nil, fmt.Errorf("item cannot be nil")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now().UTC()
	}

	route, cls, err := o.router.Route(ctx, item)
	if err != nil {
		// The classifier is the gate: when it fails, the item is judged
		// unusable with zero confidence but still recorded.
		o.logger.Warn("classification failed", zap.String("item_id", item.ID), zap.Error(err))
		judgment := o.failureJudgment(item, types.FailureClassifier, types.VerdictBark, 0, err.Error())
		o.scheduleTail(judgment, nil, nil)
		return buildResponse(judgment, nil, nil, time.Since(start)), nil
	}

	if o.breaker != nil && !o.breaker.Allow() {
		forceFloor(route)
	}

	judgment, err := o.judge.Judge(ctx, item, cls, route)
	switch {
	case err == nil:
		if o.breaker != nil {
			o.breaker.RecordSuccess()
		}
	case errors.Is(err, judge.ErrInsufficientSignal):
		// Not enough dimension signal to trust any score: a GROWL
		// placeholder at zero confidence, no consensus round.
		judgment = o.failureJudgment(item, types.FailureInsufficientSignal, types.VerdictGrowl, 100*phi.Inv2, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		judgment = o.failureJudgment(item, types.FailureCancelled, types.VerdictBark, 0, err.Error())
	default:
		if o.breaker != nil {
			o.breaker.RecordFailure()
		}
		return nil, fmt.Errorf("judge item %s: %w", item.ID, err)
	}

	o.rememberRoute(judgment.ID, cls, route)

	var consensus *types.ConsensusResult
	if judgment.Failure == types.FailureNone && route.Strategy != types.StrategySingle {
		consensus, err = o.pack.Run(ctx, topicFor(item, cls), route.VoterSet, map[string]any{
			"item_id": item.ID,
			"q_score": judgment.QScore,
			"domain":  cls.Domain,
		})
		if err != nil {
			o.logger.Warn("consensus round failed", zap.String("item_id", item.ID), zap.Error(err))
			consensus = nil
		}
	}

	var record *types.CostRecord
	if o.ledger != nil {
		tokensIn := len(item.Body) / 4
		tokensOut := route.MaxDimensions
		r := o.ledger.Append(judgment.ID, tokensIn, tokensOut, route.Tier, route.CostBudget, route.Degraded)
		record = &r
	}
	if o.governor != nil {
		contextTokens := 0
		for _, v := range item.Context {
			if s, ok := v.(string); ok {
				contextTokens += len(s) / 4
			}
		}
		o.governor.Observe(contextTokens, contextTokens+len(item.Body)/4)
	}

	o.observe(judgment, consensus, route, time.Since(start))
	o.scheduleTail(judgment, consensus, record)
	return buildResponse(judgment, consensus, route, time.Since(start)), nil
}

// SubmitAsync runs Submit in the background and returns a ticket usable
// with Cancel. The result is retrievable via Get once persisted.
func (o *Orchestrator) SubmitAsync(item *types.Item) string {
	ticket := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	o.asyncMu.Lock()
	o.cancels[ticket] = cancel
	o.asyncMu.Unlock()

	o.tail.Go("submit:"+ticket, func(tailCtx context.Context) {
		defer func() {
			o.asyncMu.Lock()
			delete(o.cancels, ticket)
			o.asyncMu.Unlock()
			cancel()
		}()
		// The submission honours both the scheduler lifetime and Cancel.
		merged, stop := mergeDone(ctx, tailCtx)
		defer stop()
		if _, err := o.Submit(merged, item); err != nil {
			o.logger.Warn("async submission failed",
				zap.String("ticket", ticket), zap.Error(err))
		}
	})
	return ticket
}

// Cancel aborts an async submission. Returns false for unknown tickets.
func (o *Orchestrator) Cancel(ticket string) bool {
	o.asyncMu.Lock()
	defer o.asyncMu.Unlock()
	cancel, ok := o.cancels[ticket]
	if ok {
		cancel()
		delete(o.cancels, ticket)
	}
	return ok
}

// Get loads a persisted judgment and its consensus round.
func (o *Orchestrator) Get(ctx context.Context, judgmentID string) (*Response, error) {
	judgment, err := o.store.LoadJudgment(ctx, judgmentID)
	if err != nil {
		return nil, err
	}
	consensus, err := o.store.LoadConsensus(ctx, judgmentID)
	if err != nil {
		consensus = nil
	}
	var route *types.RouteDecision
	if rc, ok := o.recallRoute(judgmentID); ok {
		route = rc.decision
	}
	return buildResponse(judgment, consensus, route, 0), nil
}

// Feedback records the caller's assessment of a judgment, emits a feedback
// event, and closes the routing learning loop. Judgments stay immutable.
func (o *Orchestrator) Feedback(ctx context.Context, judgmentID string, outcome types.FeedbackOutcome, note string) error {
	if _, err := o.store.LoadJudgment(ctx, judgmentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUnknownJudgment
		}
		return err
	}

	if err := o.store.StoreFeedback(ctx, uuid.New().String(), judgmentID, outcome, note); err != nil {
		return err
	}
	if o.core != nil {
		o.core.Emit(fabric.KindUserFeedback, map[string]any{
			"judgment_id": judgmentID,
			"outcome":     string(outcome),
		})
	}

	if rc, ok := o.recallRoute(judgmentID); ok {
		o.router.Learn(rc.cls, rc.decision, rewardFor(outcome), rc.routedAt)
	}
	return nil
}

// Health is the liveness snapshot served by the ingress.
type Health struct {
	BreakerState    string  `json:"breaker_state"`
	RemainingBudget float64 `json:"remaining_budget_usd"`
	TailInFlight    int64   `json:"tail_in_flight"`
	CoreEmitted     int64   `json:"core_events_emitted"`
	CoreDropped     int64   `json:"core_events_dropped"`
}

// Health reports pipeline health.
func (o *Orchestrator) Health() Health {
	h := Health{TailInFlight: o.tail.InFlight()}
	if o.breaker != nil {
		h.BreakerState = o.breaker.State().String()
	}
	if o.ledger != nil {
		h.RemainingBudget = o.ledger.RemainingBudget()
	}
	if o.core != nil {
		h.CoreEmitted, h.CoreDropped = o.core.Stats()
	}
	return h
}

// Shutdown drains the background tail and flushes learned state.
func (o *Orchestrator) Shutdown(grace time.Duration) {
	o.tail.Shutdown(grace)
	if err := o.router.Flush(); err != nil {
		o.logger.Warn("q-state flush failed at shutdown", zap.Error(err))
	}
}

// scheduleTail detaches persistence and emission. The judgment is stored
// before JUDGMENT_CREATED is emitted; a consumer reacting to the event can
// always read the row.
func (o *Orchestrator) scheduleTail(judgment *types.Judgment, consensus *types.ConsensusResult, record *types.CostRecord) {
	o.tail.Go("persist:"+judgment.ID, func(ctx context.Context) {
		ctx, span := o.tracer.StartSpan(ctx, observability.SpanBackgroundTail)
		defer o.tracer.EndSpan(span)

		stored := true
		if o.store != nil {
			if err := o.store.StoreJudgment(ctx, judgment); err != nil {
				stored = false
				o.logger.Error("judgment persist failed",
					zap.String("judgment_id", judgment.ID), zap.Error(err))
			}
			if consensus != nil {
				if err := o.store.StoreConsensus(ctx, judgment.ID, consensus); err != nil {
					o.logger.Error("consensus persist failed",
						zap.String("judgment_id", judgment.ID), zap.Error(err))
				}
			}
			if record != nil {
				if err := o.store.StoreCostRecord(ctx, *record); err != nil {
					o.logger.Error("cost record persist failed",
						zap.String("op_id", record.OpID), zap.Error(err))
				}
			}
		}

		// Store, then emit. Never the other way around. Failed judgments
		// persist for audit but are never announced.
		if stored && judgment.Failure == types.FailureNone && o.core != nil {
			o.core.Emit(fabric.KindJudgmentCreated, map[string]any{
				"judgment_id": judgment.ID,
				"item_id":     judgment.ItemID,
				"q_score":     judgment.QScore,
				"verdict":     string(judgment.Verdict),
				"confidence":  judgment.Confidence,
			})
		}
	})
}

// observe updates metrics. All counters are nil-safe.
func (o *Orchestrator) observe(judgment *types.Judgment, consensus *types.ConsensusResult, route *types.RouteDecision, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	if judgment.Failure != types.FailureNone {
		o.metrics.JudgmentFailures.WithLabelValues(string(judgment.Failure)).Inc()
	}
	o.metrics.JudgmentsTotal.WithLabelValues(string(judgment.Verdict)).Inc()
	o.metrics.QScore.Observe(judgment.QScore)
	o.metrics.JudgmentDuration.Observe(elapsed.Seconds())
	o.metrics.RoutingDecisions.WithLabelValues(string(route.Tier), fmt.Sprintf("%t", route.Degraded)).Inc()
	if consensus != nil {
		o.metrics.ConsensusRounds.WithLabelValues(string(consensus.Outcome)).Inc()
		o.metrics.Agreement.Observe(consensus.Agreement)
		if consensus.EarlyExit {
			o.metrics.EarlyExits.Inc()
		}
		if consensus.GuardianVeto {
			o.metrics.GuardianVetoes.Inc()
		}
	}
	if o.ledger != nil {
		o.metrics.BudgetRemaining.Set(o.ledger.RemainingBudget())
	}
	if o.core != nil {
		emitted, dropped := o.core.Stats()
		o.metrics.BusEventsEmitted.WithLabelValues(string(fabric.BusCore)).Set(float64(emitted))
		o.metrics.BusEventsDropped.WithLabelValues(string(fabric.BusCore)).Set(float64(dropped))
	}
	o.metrics.TailQueueDepth.Set(float64(o.tail.InFlight()))
}

// failureJudgment builds the placeholder judgment for a failed pipeline
// stage. Zero confidence, empty axiom scores, recorded like any other.
func (o *Orchestrator) failureJudgment(item *types.Item, kind types.FailureKind, verdict types.Verdict, qScore float64, detail string) *types.Judgment {
	return &types.Judgment{
		ID:            uuid.New().String(),
		ItemID:        item.ID,
		AxiomScores:   map[types.Axiom]float64{},
		Dimensions:    nil,
		QScore:        qScore,
		Verdict:       verdict,
		Confidence:    0,
		ReasoningPath: []string{"state:failed " + detail},
		Failure:       kind,
		CreatedAt:     time.Now().UTC(),
	}
}

func (o *Orchestrator) rememberRoute(judgmentID string, cls *types.Classification, decision *types.RouteDecision) {
	o.memMu.Lock()
	defer o.memMu.Unlock()
	if _, exists := o.routeMem[judgmentID]; !exists {
		o.memOrder = append(o.memOrder, judgmentID)
		if len(o.memOrder) > routeMemoryLimit {
			evict := o.memOrder[0]
			o.memOrder = o.memOrder[1:]
			delete(o.routeMem, evict)
		}
	}
	o.routeMem[judgmentID] = routeContext{cls: cls, decision: decision, routedAt: time.Now()}
}

func (o *Orchestrator) recallRoute(judgmentID string) (routeContext, bool) {
	o.memMu.Lock()
	defer o.memMu.Unlock()
	rc, ok := o.routeMem[judgmentID]
	return rc, ok
}

// forceFloor degrades a route in place when the breaker is open.
func forceFloor(route *types.RouteDecision) {
	route.Tier = types.Tiers()[0]
	route.Strategy = types.StrategySingle
	if route.MaxDimensions > 18 {
		route.MaxDimensions = 18
	}
	route.Degraded = true
	route.Rationale += " (degraded: breaker open)"
}

// topicFor derives the consensus topic. An explicit topic in the item
// context wins; otherwise intent:domain.
func topicFor(item *types.Item, cls *types.Classification) string {
	if t, ok := item.Context["topic"].(string); ok && t != "" {
		return t
	}
	return cls.Intent + ":" + cls.Domain
}

// rewardFor maps feedback onto the Q-learning reward signal.
func rewardFor(outcome types.FeedbackOutcome) float64 {
	switch outcome {
	case types.FeedbackCorrect:
		return 1
	case types.FeedbackPartial:
		return phi.Inv2
	default:
		return -1
	}
}

// mergeDone returns a context cancelled when either parent is done.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
