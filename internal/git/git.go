// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package git pins a repository snapshot to a commit. It reads the remote's
// advertised references over the git smart protocol, which costs no REST API
// quota, or the HEAD of a local mirror when one is configured.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

// DefaultRemoteBase is where remotes are resolved unless configured otherwise.
const DefaultRemoteBase = "https://github.com"

// ErrNoHead is returned when the advertised references name no usable head.
var ErrNoHead = errors.New("no head reference")

// Config configures a Resolver.
type Config struct {
	RemoteBase string // default https://github.com
	Token      string // used as basic-auth password for private repositories
	MirrorDir  string // optional: <MirrorDir>/<owner>/<repo> holds local clones
	Logger     *slog.Logger
}

// Resolver resolves the commit a repository's default branch points at.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// NewResolver returns a resolver with defaults applied.
func NewResolver(cfg Config) *Resolver {
	if cfg.RemoteBase == "" {
		cfg.RemoteBase = DefaultRemoteBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// ResolveHead returns the commit SHA of the repository's HEAD.
func (r *Resolver) ResolveHead(ctx context.Context, owner, repo string) (string, error) {
	if r.cfg.MirrorDir != "" {
		sha, err := r.mirrorHead(owner, repo)
		if err == nil {
			return sha, nil
		}
		r.logger.Debug("mirror lookup failed, asking remote", "repo", owner+"/"+repo, "error", err)
	}

	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{r.remoteURL(owner, repo)},
	})
	opts := &gogit.ListOptions{}
	if r.cfg.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: r.cfg.Token}
	}
	refs, err := remote.ListContext(ctx, opts)
	if err != nil {
		return "", classify(owner, repo, err)
	}
	return headFromRefs(refs)
}

func (r *Resolver) remoteURL(owner, repo string) string {
	return strings.TrimRight(r.cfg.RemoteBase, "/") + "/" + owner + "/" + repo + ".git"
}

// mirrorHead reads HEAD of a local clone.
func (r *Resolver) mirrorHead(owner, repo string) (string, error) {
	repository, err := gogit.PlainOpen(filepath.Join(r.cfg.MirrorDir, owner, repo))
	if err != nil {
		return "", fmt.Errorf("opening mirror: %w", err)
	}
	head, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHead, err)
	}
	return head.Hash().String(), nil
}

// headFromRefs picks the commit HEAD points at. When HEAD is not advertised,
// main and then master are tried.
func headFromRefs(refs []*plumbing.Reference) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	candidates := []plumbing.ReferenceName{plumbing.HEAD, plumbing.NewBranchReferenceName("main"), plumbing.NewBranchReferenceName("master")}
	for _, name := range candidates {
		ref, ok := byName[name]
		// Follow symbolic references a bounded number of times.
		for i := 0; ok && ref.Type() == plumbing.SymbolicReference && i < 5; i++ {
			ref, ok = byName[ref.Target()]
		}
		if ok && ref.Type() == plumbing.HashReference && !ref.Hash().IsZero() {
			return ref.Hash().String(), nil
		}
	}
	return "", ErrNoHead
}

func classify(owner, repo string, err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return types.NewError(types.KindNotFound, err, "repository %s/%s", owner, repo)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return types.NewError(types.KindAuthentication, err, "listing references of %s/%s", owner, repo)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return fmt.Errorf("%w: %s/%s is empty", ErrNoHead, owner, repo)
	default:
		return fmt.Errorf("listing references of %s/%s: %w", owner, repo, err)
	}
}
