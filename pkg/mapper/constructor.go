// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package mapper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/petar-djukic/go-repomap/internal/cache"
	"github.com/petar-djukic/go-repomap/internal/fetch"
	"github.com/petar-djukic/go-repomap/internal/git"
	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/internal/quota"
	"github.com/petar-djukic/go-repomap/internal/repomap"
	"github.com/petar-djukic/go-repomap/internal/storage"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

const (
	defaultFetchTTL = cache.DefaultFetchTTL
	defaultMapsTTL  = cache.DefaultMapsTTL
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// New validates the config, opens storage, loads the persisted quota state
// and returns a ready Mapper. Callers must Close it.
func New(cfg Config) (Mapper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	applyDefaults(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := storage.Open(storage.Config{Path: cfg.DBPath, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	if n, err := db.PurgeExpired(ctx); err != nil {
		cfg.Logger.Warn("purging expired cache entries", "error", err)
	} else if n > 0 {
		cfg.Logger.Debug("purged expired cache entries", "count", n)
	}

	policy := quota.Block
	if cfg.FailFast {
		policy = quota.FailFast
	}
	tracker := quota.NewTracker(quota.Config{Store: db, Policy: policy, Logger: cfg.Logger})
	if err := tracker.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	client, err := fetch.NewClient(fetch.Config{
		BaseURL:     cfg.BaseURL,
		Token:       cfg.Token,
		Quota:       tracker,
		MaxInFlight: cfg.MaxInFlight,
		Logger:      cfg.Logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	store := cache.New(cache.Config{
		TTLs:    map[cache.Namespace]time.Duration{cache.Fetch: cfg.FetchTTL, cache.Maps: cfg.MapsTTL},
		Backend: db,
		Logger:  cfg.Logger,
	})

	var resolver repomap.HeadResolver
	if cfg.UseGit {
		resolver = git.NewResolver(git.Config{
			RemoteBase: cfg.RemoteBase,
			Token:      cfg.Token,
			MirrorDir:  cfg.MirrorDir,
			Logger:     cfg.Logger,
		})
	}

	m, err := repomap.NewMapper(repomap.Config{
		Source:         client,
		Cache:          store,
		Resolver:       resolver,
		Filter:         repomap.NewPathFilter(cfg.SkipPatterns...),
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.Timeout,
		MaxFileBytes:   cfg.MaxFileBytes,
		Logger:         cfg.Logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &mapperAdapter{mapper: m, client: client, tracker: tracker, db: db}, nil
}

// mapperAdapter adapts the internal pipeline to the public Mapper interface.
type mapperAdapter struct {
	mapper  *repomap.Mapper
	client  *fetch.Client
	tracker *quota.Tracker
	db      *storage.DB
}

func (a *mapperAdapter) Map(ctx context.Context, req types.Request) (*types.MapOutput, error) {
	return a.mapper.Map(ctx, req)
}

func (a *mapperAdapter) MapJSON(ctx context.Context, req types.Request) ([]byte, error) {
	return a.mapper.MapJSON(ctx, req)
}

func (a *mapperAdapter) QuotaStates() []types.QuotaState {
	return a.tracker.States()
}

func (a *mapperAdapter) SearchCode(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	return a.client.SearchCode(ctx, query, limit)
}

func (a *mapperAdapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(a.tracker.Close(ctx), a.db.Close())
}

// validateConfig rejects values that have no sensible default.
func validateConfig(cfg Config) error {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("BaseURL %q must be an absolute URL", cfg.BaseURL)
		}
	}
	switch {
	case cfg.FetchTTL < 0:
		return fmt.Errorf("FetchTTL must not be negative")
	case cfg.MapsTTL < 0:
		return fmt.Errorf("MapsTTL must not be negative")
	case cfg.MaxConcurrency < 0:
		return fmt.Errorf("MaxConcurrency must not be negative")
	case cfg.MaxInFlight < 0:
		return fmt.Errorf("MaxInFlight must not be negative")
	case cfg.Timeout < 0:
		return fmt.Errorf("Timeout must not be negative")
	case cfg.MaxFileBytes < 0:
		return fmt.Errorf("MaxFileBytes must not be negative")
	}
	return nil
}

// applyDefaults fills in zero-value fields with their defaults. Defaults
// owned by the internal packages are left to them.
func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = storage.MemoryPath
	}
	if cfg.FetchTTL == 0 {
		cfg.FetchTTL = defaultFetchTTL
	}
	if cfg.MapsTTL == 0 {
		cfg.MapsTTL = defaultMapsTTL
	}
	if cfg.MirrorDir != "" {
		cfg.UseGit = true
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
}
