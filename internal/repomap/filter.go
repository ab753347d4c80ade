// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultSkipPatterns are gitignore-style patterns for paths that never
// carry interesting symbols: dependencies, build output, tests and bundles.
var DefaultSkipPatterns = []string{
	"node_modules/",
	"vendor/",
	".git/",
	"__pycache__/",
	"dist/",
	"build/",
	"*.egg-info/",
	"venv/",
	"env/",
	"test/",
	"tests/",
	"spec/",
	"*.test.*",
	"*.spec.*",
	"*.min.*",
	"*.bundle.*",
	"*.map",
}

// PathFilter decides which repository paths are skipped.
type PathFilter struct {
	ig *ignore.GitIgnore
}

// NewPathFilter compiles the default patterns followed by extra. Later
// patterns may re-include paths with a leading '!'.
func NewPathFilter(extra ...string) *PathFilter {
	lines := make([]string, 0, len(DefaultSkipPatterns)+len(extra))
	lines = append(lines, DefaultSkipPatterns...)
	lines = append(lines, extra...)
	return &PathFilter{ig: ignore.CompileIgnoreLines(lines...)}
}

// Skip reports whether p (slash-separated, relative to the repository root)
// matches a skip pattern.
func (f *PathFilter) Skip(p string) bool {
	return f.ig.MatchesPath(p)
}
