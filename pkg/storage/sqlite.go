// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage persists judgments, consensus rounds, cost records, and
// learned routing state in SQLite. Rich structures are stored as JSON
// alongside the columns queries filter on.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the "sqlite3" driver
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// Store is the SQLite persistence layer. Thread-safe for concurrent access.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// NewStore opens (or creates) the database at dbPath and initializes the
// schema. Use ":memory:" for tests.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS judgments (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		q_score REAL NOT NULL,
		verdict TEXT NOT NULL,
		confidence REAL NOT NULL,
		failure TEXT NOT NULL DEFAULT '',
		payload_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_judgments_item_id ON judgments(item_id);
	CREATE INDEX IF NOT EXISTS idx_judgments_created_at ON judgments(created_at);

	CREATE TABLE IF NOT EXISTS consensus_results (
		id TEXT PRIMARY KEY,
		judgment_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		approved INTEGER NOT NULL,
		agreement REAL NOT NULL,
		guardian_veto INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		decided_at INTEGER NOT NULL,
		FOREIGN KEY (judgment_id) REFERENCES judgments(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_consensus_judgment_id ON consensus_results(judgment_id);

	CREATE TABLE IF NOT EXISTS cost_records (
		op_id TEXT NOT NULL,
		tokens_in INTEGER NOT NULL,
		tokens_out INTEGER NOT NULL,
		model_tier TEXT NOT NULL,
		cost REAL NOT NULL,
		budget_before REAL NOT NULL,
		budget_after REAL NOT NULL,
		degraded INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_records_op_id ON cost_records(op_id);
	CREATE INDEX IF NOT EXISTS idx_cost_records_timestamp ON cost_records(timestamp);

	CREATE TABLE IF NOT EXISTS qstate (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		judgment_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		note TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (judgment_id) REFERENCES judgments(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_judgment_id ON feedback(judgment_id);

	CREATE TABLE IF NOT EXISTS track_records (
		dog TEXT PRIMARY KEY,
		alpha REAL NOT NULL,
		beta REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StoreJudgment persists a judgment. Judgments are append-only: inserting
// an existing id is an error.
func (s *Store) StoreJudgment(ctx context.Context, judgment *types.Judgment) error {
	if judgment == nil {
		return fmt.Errorf("judgment cannot be nil")
	}
	if judgment.ID == "" {
		return fmt.Errorf("judgment ID cannot be empty")
	}

	payload, err := json.Marshal(judgment)
	if err != nil {
		return fmt.Errorf("failed to marshal judgment: %w", err)
	}

	query := `
		INSERT INTO judgments (id, item_id, q_score, verdict, confidence, failure, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		judgment.ID, judgment.ItemID, judgment.QScore, string(judgment.Verdict),
		judgment.Confidence, string(judgment.Failure), string(payload),
		judgment.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store judgment: %w", err)
	}
	return nil
}

// LoadJudgment fetches a judgment by id.
func (s *Store) LoadJudgment(ctx context.Context, id string) (*types.Judgment, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM judgments WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load judgment: %w", err)
	}

	var judgment types.Judgment
	if err := json.Unmarshal([]byte(payload), &judgment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal judgment: %w", err)
	}
	return &judgment, nil
}

// ListJudgments returns the newest judgments first, up to limit.
func (s *Store) ListJudgments(ctx context.Context, limit int) ([]types.Judgment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM judgments ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list judgments: %w", err)
	}
	defer rows.Close()

	var out []types.Judgment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var judgment types.Judgment
		if err := json.Unmarshal([]byte(payload), &judgment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal judgment: %w", err)
		}
		out = append(out, judgment)
	}
	return out, rows.Err()
}

// StoreConsensus persists the consensus round backing a judgment.
func (s *Store) StoreConsensus(ctx context.Context, judgmentID string, result *types.ConsensusResult) error {
	if result == nil {
		return fmt.Errorf("consensus result cannot be nil")
	}
	if result.ID == "" {
		return fmt.Errorf("consensus ID cannot be empty")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal consensus result: %w", err)
	}

	query := `
		INSERT INTO consensus_results (id, judgment_id, topic, approved, agreement, guardian_veto, outcome, payload_json, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.ID, judgmentID, result.Topic, boolToInt(result.Approved),
		result.Agreement, boolToInt(result.GuardianVeto), string(result.Outcome),
		string(payload), result.DecidedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store consensus result: %w", err)
	}
	return nil
}

// LoadConsensus fetches the consensus round for a judgment.
func (s *Store) LoadConsensus(ctx context.Context, judgmentID string) (*types.ConsensusResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM consensus_results WHERE judgment_id = ?`, judgmentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consensus result: %w", err)
	}

	var result types.ConsensusResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consensus result: %w", err)
	}
	return &result, nil
}

// StoreCostRecord appends one cost record.
func (s *Store) StoreCostRecord(ctx context.Context, record types.CostRecord) error {
	query := `
		INSERT INTO cost_records (op_id, tokens_in, tokens_out, model_tier, cost, budget_before, budget_after, degraded, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.OpID, record.TokensIn, record.TokensOut, string(record.Tier),
		record.Cost, record.BudgetBefore, record.BudgetAfter,
		boolToInt(record.Degraded), record.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store cost record: %w", err)
	}
	return nil
}

// StoreQState upserts the single learned-routing snapshot row.
func (s *Store) StoreQState(ctx context.Context, state *types.QState) error {
	if state == nil {
		return fmt.Errorf("q-state cannot be nil")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal q-state: %w", err)
	}

	query := `
		INSERT INTO qstate (id, payload_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload_json = excluded.payload_json, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, string(payload), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to store q-state: %w", err)
	}
	return nil
}

// LoadQState fetches the learned-routing snapshot, or ErrNotFound when the
// system has never persisted one.
func (s *Store) LoadQState(ctx context.Context) (*types.QState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM qstate WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load q-state: %w", err)
	}

	var state types.QState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal q-state: %w", err)
	}
	return &state, nil
}

// StoreFeedback records caller feedback against a judgment. Judgments are
// immutable; feedback only references them.
func (s *Store) StoreFeedback(ctx context.Context, id, judgmentID string, outcome types.FeedbackOutcome, note string) error {
	if judgmentID == "" {
		return fmt.Errorf("judgment ID cannot be empty")
	}
	query := `
		INSERT INTO feedback (id, judgment_id, outcome, note, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, id, judgmentID, string(outcome), note, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	return nil
}

// StoreTrackRecord upserts one dog's Beta parameters.
func (s *Store) StoreTrackRecord(ctx context.Context, dog types.DogName, alpha, beta float64) error {
	query := `
		INSERT INTO track_records (dog, alpha, beta, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(dog) DO UPDATE SET alpha = excluded.alpha, beta = excluded.beta, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, string(dog), alpha, beta, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to store track record: %w", err)
	}
	return nil
}

// LoadTrackRecords fetches all persisted dog Beta parameters.
func (s *Store) LoadTrackRecords(ctx context.Context) (map[types.DogName][2]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dog, alpha, beta FROM track_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to load track records: %w", err)
	}
	defer rows.Close()

	out := make(map[types.DogName][2]float64)
	for rows.Next() {
		var dog string
		var alpha, beta float64
		if err := rows.Scan(&dog, &alpha, &beta); err != nil {
			return nil, err
		}
		out[types.DogName(dog)] = [2]float64{alpha, beta}
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
