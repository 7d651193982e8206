// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/phi"
	"github.com/packlabs/kennel/pkg/types"
)

const (
	// epsilonStart, epsilonDecay, and the φ⁻⁴ floor govern exploration.
	epsilonStart = 0.10
	epsilonDecay = 0.99

	// convergedVisits is the visit count past which a state is trusted to
	// exploit its argmax (subject to the exploration roll).
	convergedVisits = 20

	// persistDebounce is the minimum interval between QState flushes.
	persistDebounce = 5 * time.Second
)

// PersistFunc flushes a QState snapshot. Called at most once per
// persistDebounce while dirty.
type PersistFunc func(state *types.QState) error

// QTable is the sparse state-action value table with ε-greedy exploration
// and debounced persistence. Single writer; readers get snapshots.
type QTable struct {
	mu      sync.Mutex
	values  map[string]map[string]types.QValue
	epsilon float64
	rng     *rand.Rand

	persist     PersistFunc
	lastPersist time.Time
	dirty       bool
	logger      *zap.Logger
}

// NewQTable creates an empty table. persist may be nil.
func NewQTable(persist PersistFunc, logger *zap.Logger) *QTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QTable{
		values:  make(map[string]map[string]types.QValue),
		epsilon: epsilonStart,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		persist: persist,
		logger:  logger,
	}
}

// Restore replaces the table contents from a persisted snapshot. A missing
// or stale snapshot is not fatal; callers simply skip Restore.
func (q *QTable) Restore(state *types.QState) {
	if state == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values = make(map[string]map[string]types.QValue, len(state.Values))
	for s, actions := range state.Values {
		row := make(map[string]types.QValue, len(actions))
		for a, v := range actions {
			row[a] = v
		}
		q.values[s] = row
	}
	if state.Epsilon > 0 {
		q.epsilon = state.Epsilon
	}
	q.logger.Info("q-state restored", zap.Int("states", len(q.values)), zap.Float64("epsilon", q.epsilon))
}

// Snapshot returns a deep copy of the current state.
func (q *QTable) Snapshot() *types.QState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *QTable) snapshotLocked() *types.QState {
	out := &types.QState{Values: make(map[string]map[string]types.QValue, len(q.values)), Epsilon: q.epsilon}
	for s, actions := range q.values {
		row := make(map[string]types.QValue, len(actions))
		for a, v := range actions {
			row[a] = v
		}
		out.Values[s] = row
	}
	return out
}

// Choose picks an action for the state. Converged states exploit their
// argmax unless the exploration roll fires; everything else is ε-greedy.
// Returns the chosen action and whether it was an exploration.
func (q *QTable) Choose(key types.StateKey, actions []string) (string, bool) {
	if len(actions) == 0 {
		return "", false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	state := key.Canonical()
	row := q.values[state]

	visits := 0
	for _, v := range row {
		visits += v.Visits
	}

	explore := q.rng.Float64() < q.epsilon
	if visits < convergedVisits || explore {
		if explore || len(row) == 0 {
			return actions[q.rng.Intn(len(actions))], true
		}
	}

	best := actions[0]
	bestValue := -1.0
	for _, a := range actions {
		if v, ok := row[a]; ok && v.Value > bestValue {
			best, bestValue = a, v.Value
		}
	}
	if bestValue < 0 {
		return actions[q.rng.Intn(len(actions))], true
	}
	return best, false
}

// Update applies the Q-learning rule with α=φ⁻¹ and γ=φ⁻², decays ε, and
// schedules a debounced persist.
func (q *QTable) Update(state types.StateKey, action string, reward float64, next types.StateKey) {
	q.mu.Lock()

	s := state.Canonical()
	row := q.values[s]
	if row == nil {
		row = make(map[string]types.QValue)
		q.values[s] = row
	}
	current := row[action]

	maxNext := 0.0
	for _, v := range q.values[next.Canonical()] {
		if v.Value > maxNext {
			maxNext = v.Value
		}
	}

	current.Value += phi.Inv * (reward + phi.Inv2*maxNext - current.Value)
	current.Visits++
	current.LastUpdate = time.Now().UTC()
	row[action] = current

	q.epsilon *= epsilonDecay
	if q.epsilon < phi.Inv4/10 {
		q.epsilon = phi.Inv4 / 10
	}
	q.dirty = true

	var toFlush *types.QState
	if q.persist != nil && time.Since(q.lastPersist) >= persistDebounce {
		q.lastPersist = time.Now()
		q.dirty = false
		toFlush = q.snapshotLocked()
	}
	q.mu.Unlock()

	if toFlush != nil {
		if err := q.persist(toFlush); err != nil {
			q.logger.Warn("q-state persist failed", zap.Error(err))
		}
	}
}

// Flush forces a persist of any dirty state, ignoring the debounce. Used
// on shutdown and on automation ticks.
func (q *QTable) Flush() error {
	q.mu.Lock()
	if q.persist == nil || !q.dirty {
		q.mu.Unlock()
		return nil
	}
	q.dirty = false
	q.lastPersist = time.Now()
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	return q.persist(snapshot)
}

// Epsilon returns the current exploration rate.
func (q *QTable) Epsilon() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epsilon
}

// Argmax returns the best-known action for a state, or "" when unseen.
func (q *QTable) Argmax(key types.StateKey) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	best := ""
	bestValue := -1.0
	for a, v := range q.values[key.Canonical()] {
		if v.Value > bestValue {
			best, bestValue = a, v.Value
		}
	}
	return best
}
