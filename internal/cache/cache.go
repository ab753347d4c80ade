// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cache is the namespaced, TTL-bounded Cache Store. Each namespace has
// an in-memory LRU tier in front of an optional durable Backend. Expiry is
// checked on every read. Do de-duplicates concurrent computations of the same
// key so that only one caller does the work.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/petar-djukic/go-repomap/internal/logging"
)

// Namespace partitions the store. Each namespace has its own TTL.
type Namespace string

const (
	Fetch Namespace = "fetch" // remote fetch results (trees, file contents)
	Maps  Namespace = "maps"  // computed repository maps
)

// Default namespace TTLs.
const (
	DefaultFetchTTL = time.Hour
	DefaultMapsTTL  = 24 * time.Hour

	defaultMemoryEntries = 1024
)

// ErrUnknownNamespace is returned for a namespace the store was not
// configured with.
var ErrUnknownNamespace = errors.New("unknown cache namespace")

// Backend is the durable tier. Implementations report expired rows as absent.
type Backend interface {
	GetEntry(ctx context.Context, namespace, key string) ([]byte, time.Time, bool, error)
	PutEntry(ctx context.Context, namespace, key string, value []byte, expiresAt time.Time) error
	DeleteEntry(ctx context.Context, namespace, key string) error
}

// Entry is one cached value.
type Entry struct {
	Namespace Namespace
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Config configures a Store.
type Config struct {
	TTLs          map[Namespace]time.Duration // nil uses the defaults for Fetch and Maps
	MemoryEntries int                         // per namespace (default 1024)
	Backend       Backend                     // optional
	Logger        *slog.Logger
	Now           func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mem     map[Namespace]*expirable.LRU[string, Entry]
	ttl     map[Namespace]time.Duration
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	flights map[string]*flight
	gen     uint64
}

// flight is one shared computation. Its context is detached from every
// caller and cancelled once the last waiter has left.
type flight struct {
	key     string // singleflight key, unique per flight
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New builds a store for the configured namespaces.
func New(cfg Config) *Store {
	ttls := cfg.TTLs
	if len(ttls) == 0 {
		ttls = map[Namespace]time.Duration{Fetch: DefaultFetchTTL, Maps: DefaultMapsTTL}
	}
	size := cfg.MemoryEntries
	if size <= 0 {
		size = defaultMemoryEntries
	}

	s := &Store{
		mem:     make(map[Namespace]*expirable.LRU[string, Entry], len(ttls)),
		ttl:     make(map[Namespace]time.Duration, len(ttls)),
		backend: cfg.Backend,
		logger:  cfg.Logger,
		now:     cfg.Now,
		flights: make(map[string]*flight),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	for ns, ttl := range ttls {
		s.ttl[ns] = ttl
		s.mem[ns] = expirable.NewLRU[string, Entry](size, nil, ttl)
	}
	return s
}

// TTL returns the default TTL of a namespace.
func (s *Store) TTL(ns Namespace) time.Duration { return s.ttl[ns] }

// Get returns the live value stored under key.
func (s *Store) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	lru, ok := s.mem[ns]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}

	if e, ok := lru.Get(key); ok {
		if s.now().Before(e.ExpiresAt) {
			return e.Value, true, nil
		}
		lru.Remove(key)
	}

	if s.backend == nil {
		return nil, false, nil
	}
	value, expiresAt, ok, err := s.backend.GetEntry(ctx, string(ns), key)
	if err != nil || !ok {
		return nil, false, err
	}
	lru.Add(key, Entry{Namespace: ns, Key: key, Value: value, ExpiresAt: expiresAt})
	return value, true, nil
}

// Set stores value under key for ttl; a ttl of zero uses the namespace TTL.
func (s *Store) Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	lru, ok := s.mem[ns]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	if ttl <= 0 {
		ttl = s.ttl[ns]
	}
	e := Entry{Namespace: ns, Key: key, Value: value, ExpiresAt: s.now().Add(ttl)}
	lru.Add(key, e)

	if s.backend == nil {
		return nil
	}
	return s.backend.PutEntry(ctx, string(ns), key, value, e.ExpiresAt)
}

// Invalidate removes key from both tiers.
func (s *Store) Invalidate(ctx context.Context, ns Namespace, key string) error {
	lru, ok := s.mem[ns]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	lru.Remove(key)
	if s.backend == nil {
		return nil
	}
	return s.backend.DeleteEntry(ctx, string(ns), key)
}

// Do returns the cached value for key, computing and storing it on a miss.
// Concurrent callers asking for the same key share one computation. A failed
// computation is returned to every waiting caller and nothing is stored.
// Each caller stops waiting when its own context ends; the computation is
// cancelled only when no caller is left waiting for it.
func (s *Store) Do(ctx context.Context, ns Namespace, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	value, ok, err := s.Get(ctx, ns, key)
	if errors.Is(err, ErrUnknownNamespace) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("cache read failed, recomputing", "namespace", ns, "error", err)
	}
	if ok {
		s.logger.Debug("cache hit", "namespace", ns, "key", key)
		return value, nil
	}

	f := s.join(ctx, string(ns)+"/"+key)
	defer s.leave(string(ns)+"/"+key, f)

	ch := s.group.DoChan(f.key, func() (any, error) {
		// Another flight may have stored the value since the first check.
		if value, ok, _ := s.Get(f.ctx, ns, key); ok {
			return value, nil
		}
		value, err := compute(f.ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Set(context.WithoutCancel(f.ctx), ns, key, value, 0); err != nil {
			s.logger.Warn("cache write failed", "namespace", ns, "error", err)
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("cache computation shared", "namespace", ns, "key", key)
		}
		return res.Val.([]byte), nil
	}
}

// join registers the caller as a waiter of the flight for id, starting a new
// flight when none is running. The flight keeps the caller's values but not
// its cancellation.
func (s *Store) join(ctx context.Context, id string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[id]
	if !ok {
		s.gen++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: id + "#" + strconv.FormatUint(s.gen, 10), ctx: fctx, cancel: cancel}
		s.flights[id] = f
	}
	f.waiters++
	return f
}

// leave drops one waiter and cancels the flight when it was the last.
func (s *Store) leave(id string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[id] == f {
		delete(s.flights, id)
	}
}
