// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petar-djukic/go-repomap/internal/cache"
	"github.com/petar-djukic/go-repomap/internal/fetch"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

const headSHA = "3f7a9c1e2b4d6f8a0c2e4f6a8b0d2f4a6c8e0a2b"

// fakeGitHub serves one repository, octo/hello, over the REST paths the
// mapper uses and counts every request.
type fakeGitHub struct {
	files        map[string]string
	contentDelay time.Duration
	requests     atomic.Int64
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"full_name": "octo/hello", "default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/octo/hello/branches/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"commit": map[string]string{"sha": headSHA}})
	})
	mux.HandleFunc("GET /repos/octo/hello/git/trees/{ref}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("ref") != headSHA {
			http.NotFound(w, r)
			return
		}
		paths := make([]string, 0, len(f.files))
		for p := range f.files {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		var entries []fetch.TreeEntry
		for _, p := range paths {
			entries = append(entries, fetch.TreeEntry{Path: p, Type: "blob", Mode: "100644", Size: int64(len(f.files[p]))})
		}
		writeJSON(w, fetch.Tree{SHA: headSHA, Entries: entries})
	})
	mux.HandleFunc("GET /repos/octo/hello/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if f.contentDelay > 0 {
			select {
			case <-time.After(f.contentDelay):
			case <-r.Context().Done():
				return
			}
		}
		src, ok := f.files[r.PathValue("path")]
		if !ok || r.URL.Query().Get("ref") != headSHA {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(src)),
		})
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// abcRepo: a/a.go defines f, b/b.go calls f from g, c/c.go defines the
// exported H and the unexported k, neither referenced.
func abcRepo() map[string]string {
	return map[string]string{
		"a/a.go": "package a\n\nfunc f() {}\n",
		"b/b.go": "package b\n\nfunc g() {\n\tf()\n}\n",
		"c/c.go": "package c\n\n// H is exported.\nfunc H() {}\n\nfunc k() {}\n",
	}
}

func newTestMapper(t *testing.T, gh *fakeGitHub, mutate func(*Config)) (*Mapper, *cache.Store) {
	t.Helper()
	srv := httptest.NewServer(gh.handler())
	t.Cleanup(srv.Close)

	client, err := fetch.NewClient(fetch.Config{BaseURL: srv.URL, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	require.NoError(t, err)
	store := cache.New(cache.Config{})

	cfg := Config{Source: client, Cache: store}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewMapper(cfg)
	require.NoError(t, err)
	return m, store
}

func symbolNames(out *types.MapOutput) []string {
	var names []string
	for _, f := range out.Files {
		for _, s := range f.Symbols {
			names = append(names, s.Name)
		}
	}
	return names
}

func TestMapper_EndToEnd(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo()}
	m, _ := newTestMapper(t, gh, nil)

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "octo/hello", out.Repository)
	assert.Equal(t, headSHA, out.Ref)
	assert.Equal(t, 3, out.FilesAnalyzed)
	assert.Equal(t, 4, out.TotalSymbols)
	assert.False(t, out.Degraded)

	// f has an incoming edge; H carries the export boost; g and k tie on
	// score and fall back to path order.
	assert.Equal(t, []string{"f", "H", "g", "k"}, symbolNames(out))

	require.Len(t, out.Files, 3)
	assert.Equal(t, "a/a.go", out.Files[0].Path)
	assert.Equal(t, "c/c.go", out.Files[1].Path)
	assert.Equal(t, "b/b.go", out.Files[2].Path)
	assert.Len(t, out.Files[1].Symbols, 2)
	assert.Greater(t, out.Files[0].TopScore, out.Files[1].TopScore)
	assert.Greater(t, out.Files[1].TopScore, out.Files[2].TopScore)
	assert.Equal(t, "H is exported.", out.Files[1].Symbols[0].Doc)
}

func TestMapper_CachedRequestDoesNotFetch(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo()}
	m, _ := newTestMapper(t, gh, nil)
	req := types.Request{Owner: "octo", Repo: "hello"}

	first, err := m.MapJSON(context.Background(), req)
	require.NoError(t, err)
	fetches := gh.requests.Load()
	assert.Equal(t, int64(6), fetches, "repository, branch, tree and three files")

	second, err := m.MapJSON(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached output must be byte-identical")
	assert.Equal(t, fetches, gh.requests.Load(), "second request must not fetch")

	// Different bounds are a different map.
	_, err = m.MapJSON(context.Background(), types.Request{Owner: "octo", Repo: "hello", MaxSymbols: 2})
	require.NoError(t, err)
	assert.Equal(t, fetches+2, gh.requests.Load(), "only the unpinned lookups repeat; tree and files come from the fetch cache")
}

func TestMapper_ConcurrentRequestsShareWork(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo(), contentDelay: 50 * time.Millisecond}
	m, _ := newTestMapper(t, gh, nil)
	req := types.Request{Owner: "octo", Repo: "hello"}

	var wg sync.WaitGroup
	outputs := make([][]byte, 6)
	errs := make([]error, 6)
	for i := range outputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i], errs[i] = m.MapJSON(context.Background(), req)
		}()
	}
	wg.Wait()

	for i := range outputs {
		require.NoError(t, errs[i])
		assert.Equal(t, outputs[0], outputs[i])
	}
	assert.Equal(t, int64(6), gh.requests.Load())
}

func TestMapper_DeterministicAcrossExtractionOrder(t *testing.T) {
	files := abcRepo()
	files["d/d.go"] = "package d\n\nfunc Use() {\n\tg()\n\tf()\n\tH()\n}\n"

	var previous []byte
	for _, concurrency := range []int{1, 4} {
		gh := &fakeGitHub{files: files}
		m, _ := newTestMapper(t, gh, func(c *Config) { c.MaxConcurrency = concurrency })
		raw, err := m.MapJSON(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
		require.NoError(t, err)
		if previous != nil {
			assert.Equal(t, string(previous), string(raw))
		}
		previous = raw
	}
}

func TestMapper_FallbackLanguageIsDegraded(t *testing.T) {
	files := abcRepo()
	files["lib/pay.rb"] = "class PaymentService\n  def charge(card)\n    f(card)\n  end\nend\n"
	gh := &fakeGitHub{files: files}
	m, _ := newTestMapper(t, gh, nil)

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.FilesAnalyzed)
	assert.True(t, out.Degraded)

	var found bool
	for _, f := range out.Files {
		for _, s := range f.Symbols {
			if f.Path == "lib/pay.rb" {
				found = true
				assert.True(t, s.Degraded, s.Name)
			} else {
				assert.False(t, s.Degraded, s.Name)
			}
		}
	}
	assert.True(t, found)
}

func TestMapper_ParseErrorSkipsFile(t *testing.T) {
	files := abcRepo()
	files["bad/bad.go"] = "package bad\nfunc {"
	gh := &fakeGitHub{files: files}
	m, _ := newTestMapper(t, gh, nil)

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.FilesAnalyzed)
	assert.Equal(t, 1, out.FilesSkipped)
	assert.Equal(t, []string{"f", "H", "g", "k"}, symbolNames(out))
}

func TestMapper_SkipsFilteredAndUnknownPaths(t *testing.T) {
	files := abcRepo()
	files["node_modules/x/index.js"] = "function x() {}\n"
	files["README.md"] = "# hello\n"
	files["tests/test_a.py"] = "def test_a():\n    pass\n"
	gh := &fakeGitHub{files: files}
	m, _ := newTestMapper(t, gh, nil)

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.FilesAnalyzed)
	assert.Equal(t, int64(6), gh.requests.Load(), "skipped paths are never fetched")
}

func TestMapper_MaxFilesCapsSnapshot(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo()}
	m, _ := newTestMapper(t, gh, nil)

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello", MaxFiles: 2, MaxSymbols: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out.FilesAnalyzed)
	assert.Equal(t, 1, out.DisplayedSymbols)
	assert.Equal(t, []string{"f"}, symbolNames(out))
}

func TestMapper_TimeoutLeavesNoCacheEntry(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo(), contentDelay: time.Second}
	m, store := newTestMapper(t, gh, func(c *Config) { c.Timeout = 100 * time.Millisecond })
	req := types.Request{Owner: "octo", Repo: "hello"}

	_, err := m.Map(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTimeout)

	req = req.WithDefaults()
	key := cache.Key(cache.Maps, req.Owner, req.Repo, req.MaxFiles, req.MaxSymbols)
	_, ok, err := store.Get(context.Background(), cache.Maps, key)
	require.NoError(t, err)
	assert.False(t, ok, "a timed-out request must not cache a map")
}

func TestMapper_Errors(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo()}
	m, _ := newTestMapper(t, gh, nil)

	_, err := m.Map(context.Background(), types.Request{Owner: "octo"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.Map(context.Background(), types.Request{Owner: "octo", Repo: "missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

type staticResolver struct {
	sha   string
	err   error
	calls atomic.Int64
}

func (r *staticResolver) ResolveHead(context.Context, string, string) (string, error) {
	r.calls.Add(1)
	return r.sha, r.err
}

func TestMapper_ResolverPinsSnapshot(t *testing.T) {
	gh := &fakeGitHub{files: abcRepo()}
	res := &staticResolver{sha: headSHA}
	m, _ := newTestMapper(t, gh, func(c *Config) { c.Resolver = res })

	out, err := m.Map(context.Background(), types.Request{Owner: "octo", Repo: "hello"})
	require.NoError(t, err)
	assert.Equal(t, headSHA, out.Ref)
	assert.Equal(t, int64(1), res.calls.Load())
	assert.Equal(t, int64(4), gh.requests.Load(), "tree and files only")
}

func TestNewMapper_RequiresSourceAndCache(t *testing.T) {
	_, err := NewMapper(Config{Cache: cache.New(cache.Config{})})
	assert.Error(t, err)

	client, err := fetch.NewClient(fetch.Config{})
	require.NoError(t, err)
	_, err = NewMapper(Config{Source: client})
	assert.Error(t, err)
}
