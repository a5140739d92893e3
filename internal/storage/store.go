// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/equitydesk/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	message_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	tool_calls TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_symbol ON transcripts(symbol, id);

CREATE TABLE IF NOT EXISTS briefs (
	symbol       TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	cached       INTEGER NOT NULL DEFAULT 0
);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the local history database. Methods are safe for concurrent use;
// the connection pool is capped at one because SQLite has a single writer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// TranscriptEntry is one recorded turn as stored locally.
type TranscriptEntry struct {
	Symbol  string
	Mode    string
	Message model.Message
}

// RecordTurn writes one finalized turn to the transcript.
func (s *Store) RecordTurn(symbol string, mode string, msg model.Message) error {
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO transcripts (symbol, mode, message_id, role, content, sources, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, symbol, mode, msg.ID, string(msg.Role), msg.Content, string(sources), string(toolCalls), msg.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// ListTranscript returns a symbol's recorded turns in conversation order.
// limit <= 0 returns everything.
func (s *Store) ListTranscript(symbol string, limit int) ([]TranscriptEntry, error) {
	query := `
		SELECT symbol, mode, message_id, role, content, sources, tool_calls, created_at
		FROM transcripts WHERE symbol = ? ORDER BY id`
	args := []any{symbol}
	if limit > 0 {
		// Most recent N turns, still in conversation order.
		query = `
			SELECT symbol, mode, message_id, role, content, sources, tool_calls, created_at
			FROM (
				SELECT id, symbol, mode, message_id, role, content, sources, tool_calls, created_at
				FROM transcripts WHERE symbol = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		var role, sources, toolCalls string
		var createdAt int64
		if err := rows.Scan(&e.Symbol, &e.Mode, &e.Message.ID, &role, &e.Message.Content, &sources, &toolCalls, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		e.Message.Role = model.Role(role)
		e.Message.Timestamp = time.Unix(createdAt, 0)
		if err := json.Unmarshal([]byte(sources), &e.Message.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources: %w", err)
		}
		if err := json.Unmarshal([]byte(toolCalls), &e.Message.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to decode tool calls: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentSymbols returns the symbols with recorded history, most recently
// active first.
func (s *Store) RecentSymbols(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT symbol FROM transcripts
		GROUP BY symbol ORDER BY MAX(id) DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// =============================================================================
// BRIEFS
// =============================================================================

// SaveBrief upserts a symbol's completed brief.
func (s *Store) SaveBrief(b model.Brief) error {
	_, err := s.db.Exec(`
		INSERT INTO briefs (symbol, content, generated_at, cached)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			content = excluded.content,
			generated_at = excluded.generated_at,
			cached = excluded.cached
	`, b.Symbol, b.Content, b.GeneratedAt.Unix(), boolToInt(b.Cached))
	if err != nil {
		return fmt.Errorf("failed to save brief: %w", err)
	}
	return nil
}

// LoadBrief returns a symbol's stored brief, or ErrNotFound.
func (s *Store) LoadBrief(symbol string) (*model.Brief, error) {
	var b model.Brief
	var generatedAt int64
	var cached int
	err := s.db.QueryRow(`
		SELECT symbol, content, generated_at, cached FROM briefs WHERE symbol = ?
	`, symbol).Scan(&b.Symbol, &b.Content, &generatedAt, &cached)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load brief: %w", err)
	}
	b.GeneratedAt = time.Unix(generatedAt, 0)
	b.Cached = cached != 0
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
