// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

func ranked(path, name string, line int, score float64) types.RankedSymbol {
	return types.RankedSymbol{
		Symbol: types.Symbol{
			ID:        types.SymbolID(path, name),
			Name:      name,
			Kind:      types.Function,
			FilePath:  path,
			StartLine: line,
			EndLine:   line + 2,
			Signature: "func " + name + "()",
		},
		Score: score,
	}
}

func TestRender_GroupsByFileInTopScoreOrder(t *testing.T) {
	in := []types.RankedSymbol{
		ranked("a.go", "FuncA", 1, 0.9),
		ranked("c.go", "FuncC", 1, 0.7),
		ranked("a.go", "FuncB", 5, 0.5),
		ranked("b.go", "FuncD", 1, 0.3),
	}

	out := Render(in, 10, RenderConfig{})

	require.Len(t, out.Files, 3)
	assert.Equal(t, "a.go", out.Files[0].Path)
	assert.Equal(t, 0.9, out.Files[0].TopScore)
	assert.Equal(t, "c.go", out.Files[1].Path)
	assert.Equal(t, "b.go", out.Files[2].Path)

	require.Len(t, out.Files[0].Symbols, 2)
	assert.Equal(t, "FuncA", out.Files[0].Symbols[0].Name)
	assert.Equal(t, "FuncB", out.Files[0].Symbols[1].Name)
	assert.Equal(t, 4, out.TotalSymbols)
	assert.Equal(t, 4, out.DisplayedSymbols)
}

func TestRender_KeepsTopMaxSymbols(t *testing.T) {
	in := []types.RankedSymbol{
		ranked("a.go", "ImportantFunc", 1, 0.9),
		ranked("b.go", "LessImportant", 1, 0.5),
		ranked("c.go", "LeastImportant", 1, 0.1),
	}

	out := Render(in, 2, RenderConfig{})

	assert.Equal(t, 2, out.DisplayedSymbols)
	assert.Equal(t, 3, out.TotalSymbols)
	require.Len(t, out.Files, 2)
	assert.NotContains(t, []string{out.Files[0].Path, out.Files[1].Path}, "c.go")
}

func TestRender_SkipsSyntheticNodes(t *testing.T) {
	sink := ranked("", "external", 0, 0.99)
	sink.Synthetic = true

	out := Render([]types.RankedSymbol{sink, ranked("a.go", "F", 1, 0.5)}, 10, RenderConfig{})

	assert.Equal(t, 1, out.TotalSymbols)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "a.go", out.Files[0].Path)
}

func TestRender_TruncatesSignatureAndDoc(t *testing.T) {
	rs := ranked("a.go", "VeryLong", 1, 0.9)
	rs.Signature = "func VeryLongFunctionNameThatExceedsTheMaximumLineLength(a, b, c, d, e, f, g int) (string, error)"
	rs.Doc = strings.Repeat("word ", 10)

	out := Render([]types.RankedSymbol{rs}, 10, RenderConfig{MaxSignatureLen: 40, MaxDocLen: 12})

	rec := out.Files[0].Symbols[0]
	assert.Equal(t, 40, len([]rune(rec.Signature)))
	assert.True(t, strings.HasSuffix(rec.Signature, "..."))
	assert.Equal(t, "word word...", rec.Doc)
}

func TestRender_DegradedIsFlagged(t *testing.T) {
	rs := ranked("lib/pay.rb", "charge", 4, 0.5)
	rs.Degraded = true

	out := Render([]types.RankedSymbol{ranked("a.go", "F", 1, 0.6), rs}, 10, RenderConfig{})

	assert.True(t, out.Degraded)
	assert.False(t, out.Files[0].Symbols[0].Degraded)
	assert.True(t, out.Files[1].Symbols[0].Degraded)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld and more", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestRenderText(t *testing.T) {
	out := Render([]types.RankedSymbol{
		ranked("a.go", "FuncA", 1, 0.9),
		ranked("b.go", "FuncB", 3, 0.4),
	}, 10, RenderConfig{})
	out.Repository = "octo/hello"
	out.Ref = "0123456789abcdef0123"
	out.FilesAnalyzed = 2
	out.FilesSkipped = 1
	out.Files[1].Symbols[0].Doc = "Does B."

	text := RenderText(out)

	assert.True(t, strings.HasPrefix(text, "Repository map octo/hello@0123456789ab (2 files, 2/2 symbols, 1 files skipped)\n"))
	assert.Contains(t, text, "\na.go\n  [0.9000] func FuncA() (L1-3)\n")
	assert.Contains(t, text, "  [0.4000] func FuncB() (L3-5)\n      Does B.\n")
	assert.Less(t, strings.Index(text, "a.go"), strings.Index(text, "b.go"))
}
