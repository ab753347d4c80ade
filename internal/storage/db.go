// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package storage is the durable tier of go-repomap: a SQLite database that
// holds cache entries and the persisted quota state. Cached values are
// zstd-compressed.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/petar-djukic/go-repomap/internal/logging"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);

CREATE TABLE IF NOT EXISTS quota_state (
	tier        TEXT    PRIMARY KEY,
	remaining   INTEGER NOT NULL,
	limit_value INTEGER NOT NULL,
	reset_at    INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
`

// Config configures Open.
type Config struct {
	Path   string // database file, or MemoryPath
	Logger *slog.Logger
	Now    func() time.Time
}

// DB is an open storage database. It is safe for concurrent use.
type DB struct {
	conn   *sql.DB
	path   string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the database at cfg.Path and applies the schema.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	db := &DB{
		conn:   conn,
		path:   cfg.Path,
		enc:    enc,
		dec:    dec,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if db.logger == nil {
		db.logger = logging.Discard()
	}
	if db.now == nil {
		db.now = time.Now
	}
	db.logger.Debug("storage opened", "path", cfg.Path)
	return db, nil
}

// Path returns the database location.
func (db *DB) Path() string { return db.path }

// Close releases the connection and the codecs.
func (db *DB) Close() error {
	db.dec.Close()
	encErr := db.enc.Close()
	if err := db.conn.Close(); err != nil {
		return err
	}
	return encErr
}
