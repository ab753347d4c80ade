// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// LoadQuota returns every persisted tier.
func (db *DB) LoadQuota(ctx context.Context) ([]types.QuotaState, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tier, remaining, limit_value, reset_at FROM quota_state ORDER BY tier`)
	if err != nil {
		return nil, fmt.Errorf("reading quota state: %w", err)
	}
	defer rows.Close()

	var states []types.QuotaState
	for rows.Next() {
		var (
			s       types.QuotaState
			tier    string
			resetAt int64
		)
		if err := rows.Scan(&tier, &s.Remaining, &s.Limit, &resetAt); err != nil {
			return nil, fmt.Errorf("scanning quota state: %w", err)
		}
		s.Tier = types.QuotaTier(tier)
		if resetAt > 0 {
			s.ResetAt = time.Unix(resetAt, 0)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// SaveQuota upserts one tier.
func (db *DB) SaveQuota(ctx context.Context, s types.QuotaState) error {
	var resetAt int64
	if !s.ResetAt.IsZero() {
		resetAt = s.ResetAt.Unix()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO quota_state (tier, remaining, limit_value, reset_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(s.Tier), s.Remaining, s.Limit, resetAt, db.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing quota state: %w", err)
	}
	return nil
}
