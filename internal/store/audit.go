// ABOUTME: SQLite-backed audit log of invocation status transitions using modernc.org/sqlite
// ABOUTME: Records tool name, session key, and status only; never arguments or results

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore persists invocation status transitions. It implements the
// approval gateway's Recorder interface.
type AuditStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditStore opens (or creates) the audit database at the given path.
// Parent directories are created if needed. Use ":memory:" for an ephemeral
// store.
func NewAuditStore(path string, logger *slog.Logger) (*AuditStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit-store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps an in-memory database coherent across the
	// pool and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &AuditStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit store initialized", "path", path)
	return s, nil
}

func (s *AuditStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocation_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			invocation_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			session_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_invocation
			ON invocation_transitions(invocation_id);
		CREATE INDEX IF NOT EXISTS idx_transitions_status
			ON invocation_transitions(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// RecordTransition appends one status transition. Failures are logged and
// swallowed; the audit log must never block or fail an invocation.
func (s *AuditStore) RecordTransition(invocationID, toolName, sessionKey, status string) {
	_, err := s.db.Exec(`
		INSERT INTO invocation_transitions (invocation_id, tool_name, session_key, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		invocationID, toolName, sessionKey, status, time.Now().UTC())
	if err != nil {
		s.logger.Error("recording invocation transition",
			"invocation_id", invocationID,
			"status", status,
			"error", err)
	}
}

// StatusCounts returns how many transitions were recorded per status, for
// diagnostics counters.
func (s *AuditStore) StatusCounts() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*)
		FROM invocation_transitions
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

// Transitions returns the recorded transitions for one invocation, oldest
// first.
func (s *AuditStore) Transitions(invocationID string) ([]Transition, error) {
	rows, err := s.db.Query(`
		SELECT invocation_id, tool_name, session_key, status, created_at
		FROM invocation_transitions
		WHERE invocation_id = ?
		ORDER BY id`,
		invocationID)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.InvocationID, &tr.ToolName, &tr.SessionKey, &tr.Status, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// Transition is one recorded status change.
type Transition struct {
	InvocationID string
	ToolName     string
	SessionKey   string
	Status       string
	CreatedAt    time.Time
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
