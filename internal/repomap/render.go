// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

const (
	defaultMaxSignatureLen = 120
	defaultMaxDocLen       = 160
	ellipsis               = "..."
)

// RenderConfig configures map rendering.
type RenderConfig struct {
	MaxSignatureLen int // Runes kept of a signature (default 120)
	MaxDocLen       int // Runes kept of a doc summary (default 160)
}

// Render takes the top maxSymbols of the ranked symbols and groups them by
// file. Files appear in the order of their highest-ranked symbol; symbols
// within a file keep rank order. Synthetic nodes are never rendered. The
// caller fills the repository metadata of the result.
func Render(ranked []types.RankedSymbol, maxSymbols int, cfg RenderConfig) *types.MapOutput {
	if cfg.MaxSignatureLen <= 0 {
		cfg.MaxSignatureLen = defaultMaxSignatureLen
	}
	if cfg.MaxDocLen <= 0 {
		cfg.MaxDocLen = defaultMaxDocLen
	}

	out := &types.MapOutput{Files: []types.FileGroup{}}
	groupOf := make(map[string]int)

	for _, rs := range ranked {
		if rs.Synthetic {
			continue
		}
		out.TotalSymbols++
		if maxSymbols > 0 && out.DisplayedSymbols >= maxSymbols {
			continue
		}

		gi, ok := groupOf[rs.FilePath]
		if !ok {
			gi = len(out.Files)
			groupOf[rs.FilePath] = gi
			out.Files = append(out.Files, types.FileGroup{Path: rs.FilePath, TopScore: roundScore(rs.Score)})
		}
		out.Files[gi].Symbols = append(out.Files[gi].Symbols, types.SymbolRecord{
			Name:      rs.Name,
			Kind:      rs.Kind,
			StartLine: rs.StartLine,
			EndLine:   rs.EndLine,
			Score:     roundScore(rs.Score),
			Signature: truncate(rs.Signature, cfg.MaxSignatureLen),
			Doc:       truncate(rs.Doc, cfg.MaxDocLen),
			Degraded:  rs.Degraded,
		})
		out.DisplayedSymbols++
		out.Degraded = out.Degraded || rs.Degraded
	}
	return out
}

// RenderText produces the compact text form of a map: a header line, then
// one block per file with a "[score] signature" line per symbol.
func RenderText(m *types.MapOutput) string {
	var buf strings.Builder

	name := m.Repository
	if m.Ref != "" {
		ref := m.Ref
		if len(ref) > 12 {
			ref = ref[:12]
		}
		name += "@" + ref
	}
	fmt.Fprintf(&buf, "Repository map %s (%d files, %d/%d symbols", name, m.FilesAnalyzed, m.DisplayedSymbols, m.TotalSymbols)
	if m.FilesSkipped > 0 {
		fmt.Fprintf(&buf, ", %d files skipped", m.FilesSkipped)
	}
	buf.WriteString(")\n")
	if m.Degraded {
		buf.WriteString("Symbols marked ~ were found by pattern matching and are approximate.\n")
	}

	for _, f := range m.Files {
		buf.WriteString("\n" + f.Path + "\n")
		for _, s := range f.Symbols {
			line := s.Signature
			if line == "" {
				line = s.Kind.String() + " " + s.Name
			}
			mark := ""
			if s.Degraded {
				mark = "~"
			}
			fmt.Fprintf(&buf, "  [%.4f]%s %s (L%d-%d)\n", s.Score, mark, line, s.StartLine, s.EndLine)
			if s.Doc != "" {
				buf.WriteString("      " + s.Doc + "\n")
			}
		}
	}
	return buf.String()
}

// truncate shortens s to at most n runes, ending in an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= len(ellipsis) {
		return string(r[:n])
	}
	return string(r[:n-len(ellipsis)]) + ellipsis
}

// roundScore keeps six decimal places so rendered scores stay compact.
func roundScore(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
