// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package mapper is the public entry point of go-repomap. New wires the
// storage, cache, quota tracker, GitHub client and map pipeline together and
// returns a Mapper that serves ranked repository maps.
package mapper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// ErrInvalidConfig is returned by New for a config that fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config configures a Mapper. Every field is optional.
type Config struct {
	Token   string // GitHub token, sent as a bearer token
	BaseURL string // GitHub API root (default https://api.github.com)

	DBPath   string        // SQLite file for the durable cache and quota state (default in-memory)
	FetchTTL time.Duration // lifetime of cached trees and file contents (default 1h)
	MapsTTL  time.Duration // lifetime of cached maps (default 24h)

	FailFast       bool          // fail with RateLimitExceeded instead of waiting for a quota reset
	MaxConcurrency int           // files fetched and extracted at once (default 8)
	MaxInFlight    int64         // concurrent HTTP requests (default 8)
	Timeout        time.Duration // deadline of one map request (default 2m)
	MaxFileBytes   int64         // larger files are skipped (default 512 KiB)

	UseGit     bool   // pin snapshots over the git protocol instead of the REST API
	MirrorDir  string // local clones under <MirrorDir>/<owner>/<repo>, implies UseGit
	RemoteBase string // git remote root (default https://github.com)

	SkipPatterns []string // extra gitignore-style patterns of paths to leave out

	Logger *slog.Logger
}

// Mapper serves repository maps.
type Mapper interface {
	// Map returns the ranked map of a repository. Identical requests within
	// the maps TTL return the cached map without contacting GitHub.
	Map(ctx context.Context, req types.Request) (*types.MapOutput, error)

	// MapJSON is Map in its cached serialized form.
	MapJSON(ctx context.Context, req types.Request) ([]byte, error)

	// QuotaStates reports the last known quota of every tier.
	QuotaStates() []types.QuotaState

	// SearchCode runs a GitHub code search on the search tier.
	SearchCode(ctx context.Context, query string, limit int) ([]types.SearchResult, error)

	// Close persists the quota state and releases the database.
	Close() error
}
