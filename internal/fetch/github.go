// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Repository is the subset of repository metadata the mapper needs.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// TreeEntry is one entry of a recursive git tree.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // "blob", "tree" or "commit"
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Tree is a recursive listing of a snapshot.
type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// Blobs returns the file entries, skipping directories and submodules.
func (t *Tree) Blobs() []TreeEntry {
	var blobs []TreeEntry
	for _, e := range t.Entries {
		if e.Type == "blob" {
			blobs = append(blobs, e)
		}
	}
	return blobs
}

// SearchResult is one code search hit.
type SearchResult = types.SearchResult

type contentResponse struct {
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

// GetRepository returns repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.getJSON(ctx, types.TierGeneral, repoPath(owner, repo), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetBranchHead returns the commit SHA a branch points at.
func (c *Client) GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	var b struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.getJSON(ctx, types.TierGeneral, repoPath(owner, repo)+"/branches/"+branch, nil, &b); err != nil {
		return "", err
	}
	if b.Commit.SHA == "" {
		return "", types.NewError(types.KindNotFound, nil, "branch %s of %s/%s has no head commit", branch, owner, repo)
	}
	return b.Commit.SHA, nil
}

// GetTree returns the recursive tree of ref. When ref is HEAD and the
// provider does not resolve it, the repository's default branch is tried.
func (c *Client) GetTree(ctx context.Context, owner, repo, ref string) (*Tree, error) {
	if ref == "" {
		ref = "HEAD"
	}
	var t Tree
	err := c.getJSON(ctx, types.TierGeneral, repoPath(owner, repo)+"/git/trees/"+ref,
		url.Values{"recursive": {"1"}}, &t)
	if errors.Is(err, types.ErrNotFound) && ref == "HEAD" {
		r, rerr := c.GetRepository(ctx, owner, repo)
		if rerr != nil {
			return nil, rerr
		}
		if r.DefaultBranch == "" || r.DefaultBranch == "HEAD" {
			return nil, err
		}
		c.logger.Info("HEAD tree not found, trying default branch", "repo", owner+"/"+repo, "branch", r.DefaultBranch)
		return c.GetTree(ctx, owner, repo, r.DefaultBranch)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetFileContent returns the raw bytes of a file at ref. Base64 content is
// decoded; otherwise the file's download URL is fetched.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	var q url.Values
	if ref != "" {
		q = url.Values{"ref": {ref}}
	}
	var cr contentResponse
	if err := c.getJSON(ctx, types.TierGeneral, repoPath(owner, repo)+"/contents/"+path, q, &cr); err != nil {
		return nil, err
	}
	if cr.Type != "" && cr.Type != "file" {
		return nil, types.NewError(types.KindNotFound, nil, "%s is a %s, not a file", path, cr.Type)
	}

	if cr.Encoding == "base64" && cr.Content != "" {
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
		if err != nil {
			return nil, types.NewError(types.KindParse, err, "decoding %s", path)
		}
		return data, nil
	}
	if cr.DownloadURL != "" {
		return c.fetchRaw(ctx, cr.DownloadURL)
	}
	return nil, types.NewError(types.KindNotFound, nil, "no content available for %s", path)
}

// SearchCode runs a code search on the search tier and returns at most limit
// results.
func (c *Client) SearchCode(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	perPage := min(limit, 100)
	var res struct {
		Items []SearchResult `json:"items"`
	}
	q := url.Values{"q": {query}, "per_page": {strconv.Itoa(perPage)}}
	if err := c.getJSON(ctx, types.TierSearch, "/search/code", q, &res); err != nil {
		return nil, err
	}
	if len(res.Items) > limit {
		res.Items = res.Items[:limit]
	}
	return res.Items, nil
}

func (c *Client) getJSON(ctx context.Context, tier types.QuotaTier, path string, q url.Values, v any) error {
	body, err := c.Fetch(ctx, tier, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func repoPath(owner, repo string) string {
	return "/repos/" + owner + "/" + repo
}
