// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

func openTestDB(t *testing.T, now func() time.Time) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "repomap.db"), Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(Config{Path: MemoryPath})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.PutEntry(ctx, "maps", "k", []byte("v"), time.Now().Add(time.Hour)))
	v, _, ok, err := db.GetEntry(ctx, "maps", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestEntries_RoundTripCompressed(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()
	value := []byte(strings.Repeat("func Handler(w http.ResponseWriter) {}\n", 200))
	expires := time.Now().Add(time.Hour)

	require.NoError(t, db.PutEntry(ctx, "fetch", "abc", value, expires))

	got, expiry, ok, err := db.GetEntry(ctx, "fetch", "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, expires.UnixNano(), expiry.UnixNano())

	// Namespaces do not collide.
	_, _, ok, err = db.GetEntry(ctx, "maps", "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntries_ExpiredRowIsAbsentAndEvicted(t *testing.T) {
	now := time.Now()
	db := openTestDB(t, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, db.PutEntry(ctx, "maps", "k", []byte("old"), now.Add(time.Minute)))
	now = now.Add(2 * time.Minute)

	_, _, ok, err := db.GetEntry(ctx, "maps", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := db.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired row was already evicted on read")

	// Expired keys may be overwritten.
	require.NoError(t, db.PutEntry(ctx, "maps", "k", []byte("new"), now.Add(time.Minute)))
	v, _, ok, err := db.GetEntry(ctx, "maps", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", string(v))
}

func TestPurgeExpired(t *testing.T) {
	now := time.Now()
	db := openTestDB(t, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, db.PutEntry(ctx, "fetch", "a", []byte("1"), now.Add(time.Second)))
	require.NoError(t, db.PutEntry(ctx, "fetch", "b", []byte("2"), now.Add(time.Hour)))
	now = now.Add(time.Minute)

	n, err := db.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQuota_SaveAndLoad(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()
	reset := time.Unix(1_900_000_000, 0)

	require.NoError(t, db.SaveQuota(ctx, types.QuotaState{Tier: types.TierGeneral, Remaining: 10, Limit: 5000, ResetAt: reset}))
	require.NoError(t, db.SaveQuota(ctx, types.QuotaState{Tier: types.TierSearch, Remaining: 30, Limit: 30}))
	require.NoError(t, db.SaveQuota(ctx, types.QuotaState{Tier: types.TierGeneral, Remaining: 9, Limit: 5000, ResetAt: reset}))

	states, err := db.LoadQuota(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, types.TierGeneral, states[0].Tier)
	assert.Equal(t, 9, states[0].Remaining)
	assert.True(t, states[0].ResetAt.Equal(reset))
	assert.True(t, states[1].ResetAt.IsZero())
}
