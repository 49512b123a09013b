// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package deliverylog provides a Postgres-backed audit log of inbound email
// deliveries. Each processed webhook call becomes one row, so operators can
// trace dropped, rejected or duplicated messages.
package deliverylog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is a single processed inbound delivery.
type Record struct {
	ID            string    `json:"id" yaml:"id"`
	ReceivedAt    time.Time `json:"received_at" yaml:"received_at"`
	Sender        string    `json:"sender" yaml:"sender"`
	TransactionID string    `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	MessageID     string    `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Stage         string    `json:"stage" yaml:"stage"`
	Status        int       `json:"status" yaml:"status"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store persists delivery records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a delivery log backed by the given Postgres pool.
// It ensures the inbound_deliveries table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure delivery log schema: %w", err)
	}
	slog.Info("delivery log initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inbound_deliveries (
			id             UUID PRIMARY KEY,
			received_at    TIMESTAMPTZ NOT NULL,
			sender         TEXT NOT NULL DEFAULT '',
			transaction_id TEXT NOT NULL DEFAULT '',
			message_id     TEXT NOT NULL DEFAULT '',
			stage          TEXT NOT NULL,
			status         INTEGER NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_tx ON inbound_deliveries(transaction_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_received ON inbound_deliveries(received_at);
	`)
	return err
}

// Record inserts a delivery record.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inbound_deliveries
			(id, received_at, sender, transaction_id, message_id, stage, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.ReceivedAt, r.Sender, r.TransactionID, r.MessageID, r.Stage, r.Status, r.Error)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// ListByTransaction returns the deliveries routed to a transaction, oldest first.
func (s *Store) ListByTransaction(ctx context.Context, transactionID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, received_at, sender, transaction_id, message_id, stage, status, error
		FROM inbound_deliveries
		WHERE transaction_id = $1
		ORDER BY received_at
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListSince returns deliveries received at or after since, oldest first.
func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, received_at, sender, transaction_id, message_id, stage, status, error
		FROM inbound_deliveries
		WHERE received_at >= $1
		ORDER BY received_at
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// collectRecords scans multiple rows into a slice of Records.
func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.ReceivedAt, &r.Sender, &r.TransactionID,
			&r.MessageID, &r.Stage, &r.Status, &r.Error,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
