// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package quota tracks the provider's per-tier request quotas. A Tracker is
// created once per process, loaded from a Store at startup, updated from
// response metadata after every remote call, and saved again on Close.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Policy decides what Acquire does when a tier is exhausted.
type Policy int

const (
	Block    Policy = iota // wait until the tier resets
	FailFast               // return a RateLimitExceeded error immediately
)

// Default quotas of the two provider tiers.
const (
	DefaultGeneralLimit  = 5000
	DefaultGeneralWindow = time.Hour
	DefaultSearchLimit   = 30
	DefaultSearchWindow  = time.Minute
)

// Store persists quota state across restarts.
type Store interface {
	LoadQuota(ctx context.Context) ([]types.QuotaState, error)
	SaveQuota(ctx context.Context, s types.QuotaState) error
}

// Config configures a Tracker. The zero value is usable: no persistence,
// blocking policy, wall clock.
type Config struct {
	Store  Store
	Policy Policy
	Logger *slog.Logger
	Now    func() time.Time
}

type tierState struct {
	state    types.QuotaState
	window   time.Duration
	inFlight int
	changed  chan struct{} // closed and replaced on every change
}

// Tracker is the process-wide quota state. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	tiers  map[types.QuotaTier]*tierState
	store  Store
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker returns a tracker with both tiers at their default limits.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		tiers:  make(map[types.QuotaTier]*tierState, 2),
		store:  cfg.Store,
		policy: cfg.Policy,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	t.tiers[types.TierGeneral] = newTierState(types.TierGeneral, DefaultGeneralLimit, DefaultGeneralWindow)
	t.tiers[types.TierSearch] = newTierState(types.TierSearch, DefaultSearchLimit, DefaultSearchWindow)
	return t
}

func newTierState(tier types.QuotaTier, limit int, window time.Duration) *tierState {
	return &tierState{
		state:   types.QuotaState{Tier: tier, Remaining: limit, Limit: limit},
		window:  window,
		changed: make(chan struct{}),
	}
}

// Policy returns the exhaustion policy.
func (t *Tracker) Policy() Policy { return t.policy }

// Load replaces the in-memory state with what the store holds. Unknown tiers
// are ignored. A nil store is a no-op.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	states, err := t.store.LoadQuota(ctx)
	if err != nil {
		return fmt.Errorf("loading quota state: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range states {
		ts, ok := t.tiers[s.Tier]
		if !ok {
			continue
		}
		ts.state = s
		ts.broadcast()
	}
	return nil
}

// State returns a snapshot of one tier.
func (t *Tracker) State(tier types.QuotaTier) types.QuotaState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tier(tier).state
}

// States returns a snapshot of every tier, ordered by tier name.
func (t *Tracker) States() []types.QuotaState {
	t.mu.Lock()
	out := make([]types.QuotaState, 0, len(t.tiers))
	for _, ts := range t.tiers {
		out = append(out, ts.state)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// Acquire admits one call on the tier. A call is admitted only while the
// number of admitted, unreleased calls is below the remaining quota. When the
// tier is exhausted, Acquire waits for the reset under the Block policy or
// returns a RateLimitExceeded error under FailFast. The returned release
// function must be called once the call's response has been accounted for.
func (t *Tracker) Acquire(ctx context.Context, tier types.QuotaTier) (release func(), err error) {
	for {
		t.mu.Lock()
		ts := t.tier(tier)
		now := t.now()
		t.refill(ts, now)

		if ts.state.Remaining > 0 && ts.inFlight < ts.state.Remaining {
			ts.inFlight++
			t.mu.Unlock()
			return t.releaser(ts), nil
		}

		var timer *time.Timer
		var wait <-chan time.Time
		if ts.state.Exhausted(now) {
			retryAfter := ts.state.ResetAt.Sub(now)
			if t.policy == FailFast {
				t.mu.Unlock()
				return nil, types.RateLimited(retryAfter, "%s quota exhausted", tier)
			}
			t.logger.Info("quota exhausted, waiting for reset",
				"tier", tier, "reset_at", ts.state.ResetAt, "wait", retryAfter)
			timer = time.NewTimer(retryAfter)
			wait = timer.C
		}
		changed := ts.changed
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-changed:
		case <-wait:
		}
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return nil, err
		}
	}
}

// Update records the provider-declared state of a tier. Declared values are
// authoritative and replace whatever the tracker believed. A declared empty
// tier without a future reset stays empty for one full window.
func (t *Tracker) Update(ctx context.Context, tier types.QuotaTier, remaining, limit int, resetAt time.Time) error {
	t.mu.Lock()
	ts := t.tier(tier)
	now := t.now()
	ts.state.Remaining = remaining
	if limit > 0 {
		ts.state.Limit = limit
	}
	if !resetAt.IsZero() {
		ts.state.ResetAt = resetAt
	}
	if remaining <= 0 && !ts.state.ResetAt.After(now) {
		ts.state.ResetAt = now.Add(ts.window)
	}
	ts.broadcast()
	s := ts.state
	t.mu.Unlock()
	return t.save(ctx, s)
}

// Consume decrements the tier locally. It is used only for responses that
// carry no quota metadata.
func (t *Tracker) Consume(ctx context.Context, tier types.QuotaTier) error {
	t.mu.Lock()
	ts := t.tier(tier)
	if ts.state.Remaining > 0 {
		ts.state.Remaining--
	}
	if ts.state.ResetAt.IsZero() {
		ts.state.ResetAt = t.now().Add(ts.window)
	}
	ts.broadcast()
	s := ts.state
	t.mu.Unlock()
	return t.save(ctx, s)
}

// Exhaust marks the tier empty until resetAt, after a rate-limit response.
// A zero resetAt means one full window from now.
func (t *Tracker) Exhaust(ctx context.Context, tier types.QuotaTier, resetAt time.Time) error {
	t.mu.Lock()
	ts := t.tier(tier)
	if resetAt.IsZero() {
		resetAt = t.now().Add(ts.window)
	}
	ts.state.Remaining = 0
	ts.state.ResetAt = resetAt
	ts.broadcast()
	s := ts.state
	t.mu.Unlock()
	return t.save(ctx, s)
}

// Close writes the final state of every tier.
func (t *Tracker) Close(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	for _, s := range t.States() {
		if err := t.store.SaveQuota(ctx, s); err != nil {
			return fmt.Errorf("saving quota state: %w", err)
		}
	}
	return nil
}

// tier returns the state of a tier, creating an unknown tier with the general
// defaults. Caller must hold t.mu.
func (t *Tracker) tier(tier types.QuotaTier) *tierState {
	ts, ok := t.tiers[tier]
	if !ok {
		ts = newTierState(tier, DefaultGeneralLimit, DefaultGeneralWindow)
		t.tiers[tier] = ts
	}
	return ts
}

// refill restores a tier whose reset time has passed. The provider's next
// response corrects the optimistic values. Caller must hold t.mu.
func (t *Tracker) refill(ts *tierState, now time.Time) {
	if ts.state.Remaining > 0 || now.Before(ts.state.ResetAt) {
		return
	}
	ts.state.Remaining = ts.state.Limit
	ts.state.ResetAt = now.Add(ts.window)
	ts.broadcast()
}

func (t *Tracker) releaser(ts *tierState) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			ts.inFlight--
			ts.broadcast()
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) save(ctx context.Context, s types.QuotaState) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.SaveQuota(ctx, s); err != nil {
		return fmt.Errorf("saving quota state: %w", err)
	}
	return nil
}

// broadcast wakes every waiter. Caller must hold the tracker mutex.
func (ts *tierState) broadcast() {
	close(ts.changed)
	ts.changed = make(chan struct{})
}
