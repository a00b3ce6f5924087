// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps an audit log of executed commands in SQLite.
// It records command invocations only, never conversation text.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
	"github.com/jeranaias/rigrun-dispatch/internal/util"
)

const (
	// maxInputWidth bounds the stored raw input in display columns
	maxInputWidth = 512

	// maxErrorWidth bounds the stored error text
	maxErrorWidth = 1024
)

// Entry is one recorded execution.
type Entry struct {
	ID        string
	Prefix    string
	AgentID   string
	Command   string
	Input     string
	StartedAt time.Time
	Elapsed   time.Duration
	Success   bool
	Error     string
}

// Store is a SQLite-backed commands.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores one execution.
func (s *Store) Record(ctx context.Context, exec commands.Execution) error {
	if exec.Command == nil {
		return fmt.Errorf("execution %s has no command", exec.ID)
	}

	success := 1
	errText := ""
	if exec.Err != nil {
		success = 0
		errText = util.TruncateWidth(util.SingleLine(exec.Err.Error()), maxErrorWidth)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, prefix, agent_id, command, input, started_at, elapsed_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		exec.ID,
		exec.Command.Prefix.String(),
		exec.Command.AgentID,
		exec.Command.Name,
		util.TruncateWidth(util.SingleLine(exec.Command.RawInput), maxInputWidth),
		exec.StartedAt.UnixMilli(),
		exec.Elapsed.Milliseconds(),
		success,
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prefix, agent_id, command, input, started_at, elapsed_ms, success, error
		FROM executions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedMs, elapsedMs int64
		var success int
		if err := rows.Scan(&e.ID, &e.Prefix, &e.AgentID, &e.Command, &e.Input,
			&startedMs, &elapsedMs, &success, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMs)
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		e.Success = success == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
