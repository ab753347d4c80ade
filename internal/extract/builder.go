// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package extract

import (
	"bytes"
	"path"
	"strconv"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// moduleLocal is the local identifier of a file's synthetic module node.
const moduleLocal = "<module>"

// fileBuilder accumulates the symbols and references of one file and keeps
// symbol IDs unique.
type fileBuilder struct {
	res      *types.FileResult
	used     map[string]bool
	lines    int
	moduleID string
}

func newFileBuilder(p, language string, src []byte) *fileBuilder {
	return &fileBuilder{
		res:   &types.FileResult{Path: p, Language: language},
		used:  make(map[string]bool),
		lines: bytes.Count(src, []byte{'\n'}) + 1,
	}
}

// add records sym under the local identifier and returns its ID. A repeated
// local identifier gets the start line appended.
func (b *fileBuilder) add(sym types.Symbol, local string) string {
	id := types.SymbolID(b.res.Path, local)
	if b.used[id] {
		id = id + "@" + strconv.Itoa(sym.StartLine)
		for n := 2; b.used[id]; n++ {
			id = types.SymbolID(b.res.Path, local) + "@" + strconv.Itoa(sym.StartLine) + "." + strconv.Itoa(n)
		}
	}
	b.used[id] = true
	sym.ID = id
	sym.FilePath = b.res.Path
	if sym.EndLine < sym.StartLine {
		sym.EndLine = sym.StartLine
	}
	b.res.Symbols = append(b.res.Symbols, sym)
	return id
}

// module returns the ID of the file's module node, creating it on first use.
// References that occur outside any symbol originate from it.
func (b *fileBuilder) module() string {
	if b.moduleID == "" {
		b.moduleID = b.add(types.Symbol{
			Name:      path.Base(b.res.Path),
			Kind:      types.Other,
			StartLine: 1,
			EndLine:   b.lines,
			Synthetic: true,
		}, moduleLocal)
	}
	return b.moduleID
}

// ref records a by-name reference. An empty from means the module node.
func (b *fileBuilder) ref(from, name string, kind types.EdgeKind, line int) {
	if name == "" {
		return
	}
	if from == "" {
		from = b.module()
	}
	b.res.References = append(b.res.References, types.Reference{From: from, Name: name, Kind: kind, Line: line})
}

// link records a reference to a symbol of this file.
func (b *fileBuilder) link(from, to string, kind types.EdgeKind, line int) {
	if from == "" || to == "" || from == to {
		return
	}
	b.res.References = append(b.res.References, types.Reference{From: from, To: to, Kind: kind, Line: line})
}

// markExported flags symbols named in an export list.
func (b *fileBuilder) markExported(names map[string]bool) {
	if len(names) == 0 {
		return
	}
	for i := range b.res.Symbols {
		s := &b.res.Symbols[i]
		if !s.Synthetic && s.Kind != types.Method && names[s.Name] {
			s.Exported = true
		}
	}
}

// finish resolves call and inherit references against the file's own
// symbols. Imports always name another file and stay unresolved.
func (b *fileBuilder) finish() *types.FileResult {
	local := make(map[string]string)
	for _, s := range b.res.Symbols {
		if s.Synthetic {
			continue
		}
		// Symbols are appended in source order, so the first definition wins.
		if _, ok := local[s.Name]; !ok {
			local[s.Name] = s.ID
		}
	}
	refs := b.res.References[:0]
	for _, r := range b.res.References {
		if r.To == "" && r.Kind != types.Import {
			if id, ok := local[r.Name]; ok {
				if id == r.From {
					continue
				}
				r.To = id
			}
		}
		refs = append(refs, r)
	}
	b.res.References = refs
	return b.res
}
