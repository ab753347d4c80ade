// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

type memStore struct {
	mu     sync.Mutex
	states map[types.QuotaTier]types.QuotaState
	saves  int
}

func newMemStore() *memStore {
	return &memStore{states: make(map[types.QuotaTier]types.QuotaState)}
}

func (m *memStore) LoadQuota(context.Context) ([]types.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.QuotaState
	for _, s := range m.states {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) SaveQuota(_ context.Context, s types.QuotaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.Tier] = s
	m.saves++
	return nil
}

func consumeN(t *testing.T, tr *Tracker, tier types.QuotaTier, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		release, err := tr.Acquire(context.Background(), tier)
		require.NoError(t, err)
		require.NoError(t, tr.Consume(context.Background(), tier))
		release()
	}
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(Config{})

	general := tr.State(types.TierGeneral)
	assert.Equal(t, 5000, general.Limit)
	assert.Equal(t, 5000, general.Remaining)

	search := tr.State(types.TierSearch)
	assert.Equal(t, 30, search.Limit)

	states := tr.States()
	require.Len(t, states, 2)
	assert.Equal(t, types.TierGeneral, states[0].Tier)
	assert.Equal(t, types.TierSearch, states[1].Tier)
}

func TestAcquire_BlocksUntilReset(t *testing.T) {
	tr := NewTracker(Config{Policy: Block})
	ctx := context.Background()
	reset := time.Now().Add(150 * time.Millisecond)
	require.NoError(t, tr.Update(ctx, types.TierGeneral, 2, 5000, reset))

	consumeN(t, tr, types.TierGeneral, 2)
	assert.Equal(t, 0, tr.State(types.TierGeneral).Remaining)

	start := time.Now()
	release, err := tr.Acquire(ctx, types.TierGeneral)
	require.NoError(t, err)
	release()

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "call must wait for the reset")
	assert.Equal(t, 5000, tr.State(types.TierGeneral).Remaining)
}

func TestAcquire_FailFastReturnsRetryAfter(t *testing.T) {
	tr := NewTracker(Config{Policy: FailFast})
	ctx := context.Background()
	require.NoError(t, tr.Update(ctx, types.TierSearch, 1, 30, time.Now().Add(time.Minute)))

	consumeN(t, tr, types.TierSearch, 1)

	_, err := tr.Acquire(ctx, types.TierSearch)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRateLimitExceeded)

	var qerr *types.Error
	require.ErrorAs(t, err, &qerr)
	assert.Greater(t, qerr.RetryAfter, 50*time.Second)
	assert.LessOrEqual(t, qerr.RetryAfter, time.Minute)

	// The general tier is independent.
	release, err := tr.Acquire(ctx, types.TierGeneral)
	require.NoError(t, err)
	release()
}

func TestAcquire_InFlightBoundedByRemaining(t *testing.T) {
	tr := NewTracker(Config{})
	ctx := context.Background()
	require.NoError(t, tr.Update(ctx, types.TierGeneral, 1, 5000, time.Now().Add(time.Hour)))

	release, err := tr.Acquire(ctx, types.TierGeneral)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = tr.Acquire(waitCtx, types.TierGeneral)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second call must wait while the only slot is in flight")

	admitted := make(chan struct{})
	go func() {
		r, err := tr.Acquire(ctx, types.TierGeneral)
		if err == nil {
			r()
		}
		close(admitted)
	}()
	release()

	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("waiter not admitted after release")
	}
}

func TestAcquire_ContextCancelledWhileBlocked(t *testing.T) {
	tr := NewTracker(Config{Policy: Block})
	ctx := context.Background()
	require.NoError(t, tr.Exhaust(ctx, types.TierGeneral, time.Now().Add(time.Hour)))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := tr.Acquire(waitCtx, types.TierGeneral)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdate_DeclaredValuesAreAuthoritative(t *testing.T) {
	tr := NewTracker(Config{})
	ctx := context.Background()
	consumeN(t, tr, types.TierGeneral, 3)
	assert.Equal(t, 4997, tr.State(types.TierGeneral).Remaining)

	reset := time.Unix(1_900_000_000, 0)
	require.NoError(t, tr.Update(ctx, types.TierGeneral, 4200, 5000, reset))

	s := tr.State(types.TierGeneral)
	assert.Equal(t, 4200, s.Remaining)
	assert.True(t, s.ResetAt.Equal(reset))
}

func TestTracker_PersistsAcrossRestarts(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	reset := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	first := NewTracker(Config{Store: store})
	require.NoError(t, first.Load(ctx))
	require.NoError(t, first.Update(ctx, types.TierGeneral, 12, 5000, reset))
	require.NoError(t, first.Close(ctx))
	assert.Positive(t, store.saves)

	second := NewTracker(Config{Store: store})
	require.NoError(t, second.Load(ctx))
	s := second.State(types.TierGeneral)
	assert.Equal(t, 12, s.Remaining)
	assert.True(t, s.ResetAt.Equal(reset))
}

func TestRefill_AfterResetPasses(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tr := NewTracker(Config{Policy: FailFast, Now: clock})
	ctx := context.Background()
	require.NoError(t, tr.Exhaust(ctx, types.TierSearch, now.Add(time.Minute)))

	_, err := tr.Acquire(ctx, types.TierSearch)
	require.ErrorIs(t, err, types.ErrRateLimitExceeded)

	now = now.Add(2 * time.Minute)
	release, err := tr.Acquire(ctx, types.TierSearch)
	require.NoError(t, err)
	release()
	assert.Equal(t, 30, tr.State(types.TierSearch).Remaining)
}

func TestUpdate_DeclaredEmptyTierIsNotRefilledEarly(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name    string
		resetAt time.Time
	}{
		{name: "no reset declared", resetAt: time.Time{}},
		{name: "reset already past", resetAt: now.Add(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(Config{Policy: FailFast, Now: clock})
			require.NoError(t, tr.Update(ctx, types.TierSearch, 0, 30, tt.resetAt))

			_, err := tr.Acquire(ctx, types.TierSearch)
			require.ErrorIs(t, err, types.ErrRateLimitExceeded)

			s := tr.State(types.TierSearch)
			assert.Equal(t, 0, s.Remaining)
			assert.True(t, s.ResetAt.Equal(now.Add(DefaultSearchWindow)))
		})
	}
}
