package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtzanidakis/agentcrew/internal/config"
	_ "modernc.org/sqlite"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrParentNotFound = errors.New("parent task not found")
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN for the whole pool.
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL lets the dashboard read while an executor writes; the busy
	// timeout makes concurrent writers retry instead of failing.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			role            TEXT NOT NULL,
			model           TEXT NOT NULL,
			personality     TEXT,
			status          TEXT NOT NULL DEFAULT 'idle',
			current_task_id TEXT,
			last_active_at  DATETIME,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id                TEXT PRIMARY KEY,
			parent_task_id    TEXT REFERENCES tasks(id),
			title             TEXT NOT NULL,
			description       TEXT,
			status            TEXT NOT NULL DEFAULT 'pending',
			priority          TEXT NOT NULL DEFAULT 'medium',
			assigned_agent_id TEXT,
			created_by        TEXT NOT NULL,
			result            TEXT,
			metadata          TEXT,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			from_agent_id TEXT,
			to_agent_id   TEXT,
			task_id       TEXT,
			type          TEXT NOT NULL,
			content       TEXT NOT NULL,
			metadata      TEXT,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_task ON messages(task_id, id)`,
		`CREATE TABLE IF NOT EXISTS agent_connections (
			id            TEXT PRIMARY KEY,
			from_agent_id TEXT NOT NULL,
			to_agent_id   TEXT NOT NULL,
			type          TEXT NOT NULL,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_active ON agent_connections(active, expires_at)`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id     TEXT NOT NULL,
			agent_id    TEXT,
			action      TEXT NOT NULL,
			details     TEXT,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd    REAL NOT NULL DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id, id)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			name        TEXT PRIMARY KEY,
			description TEXT,
			value       BLOB NOT NULL,
			nonce       BLOB NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orchestration_runs (
			id           TEXT PRIMARY KEY,
			root_task_id TEXT,
			title        TEXT NOT NULL,
			phase        TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'running',
			error        TEXT,
			subtasks     INTEGER NOT NULL DEFAULT 0,
			started_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
