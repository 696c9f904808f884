// Package store implements durable side-state for the orchestrator: a
// SQLite-backed audit ledger recording every command's outcome, and an
// optional Redis write-through mirror of the Conversation Handler's
// bounded in-memory history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerEntry is one audited command outcome.
type LedgerEntry struct {
	UtteranceID string
	IntentKind  string
	Status      string
	Method      string
	ErrorCode   string
	Parameters  map[string]any
	CreatedAt   time.Time
}

// Ledger persists LedgerEntry records to a local SQLite database. It is
// the core's only durable record of what AURA did and when; conversation
// content and deferred content are intentionally not retained here.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// NewLedger opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func NewLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening ledger database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrating ledger database: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS commands (
		utterance_id TEXT PRIMARY KEY,
		intent_kind  TEXT NOT NULL,
		status       TEXT NOT NULL,
		method       TEXT NOT NULL,
		error_code   TEXT,
		parameters   TEXT,
		created_at   TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commands_created_at ON commands(created_at);
	CREATE INDEX IF NOT EXISTS idx_commands_intent_kind ON commands(intent_kind);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record appends one LedgerEntry. It is safe for concurrent use.
func (l *Ledger) Record(ctx context.Context, e LedgerEntry) error {
	paramsJSON, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("store: marshalling parameters: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO commands (utterance_id, intent_kind, status, method, error_code, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(utterance_id) DO UPDATE SET
			status = excluded.status,
			method = excluded.method,
			error_code = excluded.error_code
	`, e.UtteranceID, e.IntentKind, e.Status, e.Method, e.ErrorCode, string(paramsJSON), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: recording ledger entry: %w", err)
	}
	return nil
}

// RecentByIntent returns up to limit of the most recent entries for kind,
// newest first. It backs the introspection surface's /v1/state endpoint.
func (l *Ledger) RecentByIntent(ctx context.Context, kind string, limit int) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT utterance_id, intent_kind, status, method, error_code, parameters, created_at
		FROM commands WHERE intent_kind = ? ORDER BY created_at DESC LIMIT ?
	`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var paramsJSON string
		var errorCode sql.NullString
		if err := rows.Scan(&e.UtteranceID, &e.IntentKind, &e.Status, &e.Method, &errorCode, &paramsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning ledger row: %w", err)
		}
		e.ErrorCode = errorCode.String
		if paramsJSON != "" {
			_ = json.Unmarshal([]byte(paramsJSON), &e.Parameters)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
