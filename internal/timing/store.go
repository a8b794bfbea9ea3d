package timing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists timing records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS timings (
			request_id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			guardrail_passed INTEGER NOT NULL,
			guardrail_reason TEXT,
			record TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timings_started ON timings(started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Insert stores one record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	passed := 0
	if rec.GuardrailPassed {
		passed = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO timings (request_id, started_at, guardrail_passed, guardrail_reason, record)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.RequestID, rec.StartedAt, passed, rec.GuardrailReason, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert timing record: %w", err)
	}
	return nil
}

// List returns all records ordered by start time.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM timings ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query timings: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan timing row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timing record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes all records.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timings`); err != nil {
		return fmt.Errorf("failed to clear timings: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
