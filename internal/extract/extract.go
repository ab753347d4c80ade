// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package extract turns one source file into symbols and references. Each
// supported language has its own Extractor; a Registry dispatches by file
// extension and falls back to a line-pattern heuristic for everything else.
package extract

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// Extractor parses one file. Implementations must be safe for concurrent use.
type Extractor interface {
	Language() string
	Extract(ctx context.Context, path string, src []byte) (*types.FileResult, error)
}

// fallbackLanguages are the extensions handed to the heuristic extractor,
// with the language name recorded on the result.
var fallbackLanguages = map[string]string{
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".lua":   "lua",
	".pl":    "perl",
	".ex":    "elixir",
	".exs":   "elixir",
	".dart":  "dart",
	".sh":    "shell",
	".zig":   "zig",
}

// Registry maps file extensions to extractors.
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry returns an empty registry that hands unknown source files to
// fallback.
func NewRegistry(fallback Extractor) *Registry {
	return &Registry{byExt: make(map[string]Extractor), fallback: fallback}
}

// DefaultRegistry registers the Go, Python, JavaScript and TypeScript
// extractors and the heuristic fallback.
func DefaultRegistry() *Registry {
	r := NewRegistry(Heuristic{})
	r.Register(Go{}, ".go")
	r.Register(Python(), ".py", ".pyi")
	r.Register(JavaScript(), ".js", ".jsx", ".mjs", ".cjs")
	r.Register(TypeScript(), ".ts", ".mts", ".cts")
	r.Register(TSX(), ".tsx")
	return r
}

// Register binds extensions (with leading dot) to an extractor.
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Extensions lists the extensions with a dedicated extractor.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Lookup returns the dedicated extractor for p, or an UnsupportedLanguage
// error.
func (r *Registry) Lookup(p string) (Extractor, error) {
	ext := strings.ToLower(path.Ext(p))
	if e, ok := r.byExt[ext]; ok {
		return e, nil
	}
	return nil, types.NewError(types.KindUnsupportedLanguage, nil, "no extractor for %q", p)
}

// Known reports whether p is a source file worth extracting: it has a
// dedicated extractor or a fallback-eligible extension.
func (r *Registry) Known(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if _, ok := r.byExt[ext]; ok {
		return true
	}
	_, ok := fallbackLanguages[ext]
	return ok && r.fallback != nil
}

// Extract runs the dedicated extractor for p, or the fallback when the
// language is unsupported. Errors from a dedicated extractor are returned
// unchanged; the fallback never fails.
func (r *Registry) Extract(ctx context.Context, p string, src []byte) (*types.FileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.Lookup(p)
	if err != nil {
		if r.fallback == nil {
			return nil, err
		}
		e = r.fallback
	}
	return e.Extract(ctx, p, src)
}

// entryPointNames are treated as program entry points in every language.
var entryPointNames = map[string]bool{
	"main":     true,
	"__main__": true,
	"init":     true,
	"__init__": true,
	"setup":    true,
	"start":    true,
	"run":      true,
	"execute":  true,
	"index":    true,
	"default":  true,
	"app":      true,
}

func isEntryPointName(name string) bool {
	return entryPointNames[strings.ToLower(name)]
}

// checkSource rejects binary and non-UTF-8 content.
func checkSource(p string, src []byte) error {
	if !validSource(src) {
		return types.NewError(types.KindParse, nil, "%s is binary or not valid UTF-8", p)
	}
	return nil
}

func validSource(src []byte) bool {
	return utf8.Valid(src) && bytes.IndexByte(src, 0) < 0
}

// firstSentence returns the first sentence of the first paragraph of doc,
// with whitespace collapsed.
func firstSentence(doc string) string {
	doc = strings.TrimSpace(doc)
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		doc = doc[:i]
	}
	doc = collapseSpace(doc)
	if i := strings.Index(doc, ". "); i >= 0 {
		doc = doc[:i+1]
	}
	return doc
}

// collapseSpace replaces runs of whitespace with one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// lastSegment returns the part of a dotted or scoped name after the final
// separator.
func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, ".:"); i >= 0 {
		return name[i+1:]
	}
	return name
}
