// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package repomap builds ranked repository maps. A Mapper fetches one
// snapshot of a repository, extracts every source file concurrently, and only
// once all files are done builds the symbol graph, ranks it and renders the
// top symbols. Finished maps are cached per request.
package repomap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petar-djukic/go-repomap/internal/cache"
	"github.com/petar-djukic/go-repomap/internal/extract"
	"github.com/petar-djukic/go-repomap/internal/fetch"
	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

const (
	defaultMaxConcurrency = 8
	defaultTimeout        = 2 * time.Minute
	defaultMaxFileBytes   = 512 << 10
)

// ErrInvalidRequest is returned for requests without an owner or repository.
var ErrInvalidRequest = errors.New("invalid map request")

// Source reads repository snapshots. *fetch.Client implements it.
type Source interface {
	GetRepository(ctx context.Context, owner, repo string) (*fetch.Repository, error)
	GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error)
	GetTree(ctx context.Context, owner, repo, ref string) (*fetch.Tree, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// HeadResolver pins a repository to its current head commit without
// spending API quota. *git.Resolver implements it.
type HeadResolver interface {
	ResolveHead(ctx context.Context, owner, repo string) (string, error)
}

// Config configures a Mapper. Source and Cache are required.
type Config struct {
	Source         Source
	Cache          *cache.Store
	Registry       *extract.Registry // default extract.DefaultRegistry()
	Resolver       HeadResolver      // optional
	Filter         *PathFilter       // default NewPathFilter()
	Rank           RankConfig
	Render         RenderConfig
	MaxConcurrency int           // files fetched and extracted at once (default 8)
	Timeout        time.Duration // deadline of one map request (default 2m)
	MaxFileBytes   int64         // larger files are not fetched (default 512 KiB)
	Logger         *slog.Logger
}

// Mapper produces repository maps. It is safe for concurrent use.
type Mapper struct {
	source         Source
	cache          *cache.Store
	registry       *extract.Registry
	resolver       HeadResolver
	filter         *PathFilter
	rank           RankConfig
	render         RenderConfig
	maxConcurrency int
	timeout        time.Duration
	maxFileBytes   int64
	logger         *slog.Logger
}

// NewMapper validates cfg and returns a mapper.
func NewMapper(cfg Config) (*Mapper, error) {
	if cfg.Source == nil {
		return nil, errors.New("repomap: source is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("repomap: cache is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = extract.DefaultRegistry()
	}
	if cfg.Filter == nil {
		cfg.Filter = NewPathFilter()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Mapper{
		source:         cfg.Source,
		cache:          cfg.Cache,
		registry:       cfg.Registry,
		resolver:       cfg.Resolver,
		filter:         cfg.Filter,
		rank:           cfg.Rank,
		render:         cfg.Render,
		maxConcurrency: cfg.MaxConcurrency,
		timeout:        cfg.Timeout,
		maxFileBytes:   cfg.MaxFileBytes,
		logger:         cfg.Logger,
	}, nil
}

// Map returns the map of the requested repository.
func (m *Mapper) Map(ctx context.Context, req types.Request) (*types.MapOutput, error) {
	raw, err := m.MapJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	var out types.MapOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding cached map: %w", err)
	}
	return &out, nil
}

// MapJSON returns the JSON encoding of the map, as cached. Identical
// requests within the cache TTL return identical bytes; concurrent identical
// requests share one computation.
func (m *Mapper) MapJSON(ctx context.Context, req types.Request) ([]byte, error) {
	req = req.WithDefaults()
	if req.Owner == "" || req.Repo == "" {
		return nil, fmt.Errorf("%w: owner and repo are required", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	key := cache.Key(cache.Maps, req.Owner, req.Repo, req.MaxFiles, req.MaxSymbols)
	raw, err := m.cache.Do(ctx, cache.Maps, key, func(ctx context.Context) ([]byte, error) {
		out, err := m.compute(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.KindTimeout, err, "mapping %s did not finish within %s", req.FullName(), m.timeout)
		}
		return nil, err
	}
	return raw, nil
}

// compute builds a map from scratch. Nothing it produces is kept unless it
// returns without error.
func (m *Mapper) compute(ctx context.Context, req types.Request) (*types.MapOutput, error) {
	start := time.Now()
	logger := m.logger.With("request_id", uuid.NewString(), "repo", req.FullName())

	ref, err := m.resolveRef(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	tree, err := m.tree(ctx, req, ref)
	if err != nil {
		return nil, err
	}
	if tree.Truncated {
		logger.Warn("tree listing truncated by the provider, map covers a subset", "ref", ref)
	}
	paths := m.selectPaths(tree, req.MaxFiles, logger)
	logger.Info("mapping repository", "ref", ref, "files", len(paths))

	results := make([]*types.FileResult, len(paths))
	var skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			res, err := m.extractFile(gctx, req, ref, p)
			if err != nil {
				if !fileLevel(err) {
					return err
				}
				logger.Warn("skipping file", "path", p, "error", err)
				skipped.Add(1)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A partial graph is never ranked.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var files []*types.FileResult
	for _, r := range results {
		if r != nil {
			files = append(files, r)
		}
	}
	graph := BuildGraph(files)
	ranked := Rank(graph, m.rank)
	out := Render(ranked.Symbols, req.MaxSymbols, m.render)
	out.Repository = req.FullName()
	out.Ref = ref
	out.FilesAnalyzed = len(files)
	out.FilesSkipped = int(skipped.Load())

	logger.Info("map computed",
		"nodes", graph.Len(),
		"edges", len(graph.Edges),
		"iterations", ranked.Iterations,
		"converged", ranked.Converged,
		"symbols", out.TotalSymbols,
		"skipped", out.FilesSkipped,
		"duration", time.Since(start))
	return out, nil
}

// resolveRef pins the snapshot to a commit. The git resolver is tried first;
// then the default branch head through the API; HEAD is the last resort.
func (m *Mapper) resolveRef(ctx context.Context, req types.Request, logger *slog.Logger) (string, error) {
	if m.resolver != nil {
		sha, err := m.resolver.ResolveHead(ctx, req.Owner, req.Repo)
		if err == nil {
			return sha, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("git head resolution failed, using the API", "error", err)
	}

	repo, err := m.source.GetRepository(ctx, req.Owner, req.Repo)
	if err != nil {
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "HEAD", nil
	}
	sha, err := m.source.GetBranchHead(ctx, req.Owner, req.Repo, repo.DefaultBranch)
	if errors.Is(err, types.ErrNotFound) {
		return repo.DefaultBranch, nil
	}
	return sha, err
}

// tree returns the snapshot listing through the fetch cache.
func (m *Mapper) tree(ctx context.Context, req types.Request, ref string) (*fetch.Tree, error) {
	key := cache.Key(cache.Fetch, "tree", req.Owner, req.Repo, ref)
	raw, err := m.cache.Do(ctx, cache.Fetch, key, func(ctx context.Context) ([]byte, error) {
		t, err := m.source.GetTree(ctx, req.Owner, req.Repo, ref)
		if err != nil {
			return nil, err
		}
		return json.Marshal(t)
	})
	if err != nil {
		return nil, err
	}
	var t fetch.Tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decoding cached tree: %w", err)
	}
	return &t, nil
}

// selectPaths keeps extractable files outside the skip patterns, sorted,
// capped at maxFiles.
func (m *Mapper) selectPaths(tree *fetch.Tree, maxFiles int, logger *slog.Logger) []string {
	var paths []string
	for _, e := range tree.Blobs() {
		if m.filter.Skip(e.Path) || !m.registry.Known(e.Path) {
			continue
		}
		if e.Size > m.maxFileBytes {
			logger.Debug("skipping large file", "path", e.Path, "size", e.Size)
			continue
		}
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	if len(paths) > maxFiles {
		logger.Warn("file cap reached, ignoring the rest", "files", len(paths), "max_files", maxFiles)
		paths = paths[:maxFiles]
	}
	return paths
}

// extractFile fetches one file through the fetch cache and extracts it.
func (m *Mapper) extractFile(ctx context.Context, req types.Request, ref, p string) (*types.FileResult, error) {
	key := cache.Key(cache.Fetch, "blob", req.Owner, req.Repo, ref, p)
	src, err := m.cache.Do(ctx, cache.Fetch, key, func(ctx context.Context) ([]byte, error) {
		return m.source.GetFileContent(ctx, req.Owner, req.Repo, p, ref)
	})
	if err != nil {
		return nil, err
	}
	return m.registry.Extract(ctx, p, src)
}

// fileLevel reports whether err only disqualifies the file it came from.
func fileLevel(err error) bool {
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrParse) ||
		errors.Is(err, types.ErrUnsupportedLanguage) ||
		errors.Is(err, fetch.ErrTransient)
}
