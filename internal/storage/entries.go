// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetEntry returns the value stored under (namespace, key) and its expiry.
// Expired rows are deleted and reported as absent.
func (db *DB) GetEntry(ctx context.Context, namespace, key string) ([]byte, time.Time, bool, error) {
	var (
		blob      []byte
		expiresAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&blob, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("reading cache entry: %w", err)
	}

	expiry := time.Unix(0, expiresAt)
	if !db.now().Before(expiry) {
		if err := db.DeleteEntry(ctx, namespace, key); err != nil {
			db.logger.Warn("evicting expired cache entry", "namespace", namespace, "error", err)
		}
		return nil, time.Time{}, false, nil
	}

	value, err := db.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decompressing cache entry: %w", err)
	}
	return value, expiry, true, nil
}

// PutEntry stores value under (namespace, key) until expiresAt, replacing any
// existing row.
func (db *DB) PutEntry(ctx context.Context, namespace, key string, value []byte, expiresAt time.Time) error {
	blob := db.enc.EncodeAll(value, nil)
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (namespace, key, value, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		namespace, key, blob, expiresAt.UnixNano(), db.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// DeleteEntry removes one row. Deleting a missing row is not an error.
func (db *DB) DeleteEntry(ctx context.Context, namespace, key string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, db.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
