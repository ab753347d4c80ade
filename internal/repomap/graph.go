// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

// ExternalID is the ID of the shared sink node that absorbs references to
// names defined outside the snapshot.
const ExternalID = "<external>"

// Graph is the symbol dependency graph of one snapshot. Nodes are sorted by
// ID and edges by (From, To, Kind), so two graphs built from the same files
// are identical regardless of the order the files were extracted in.
type Graph struct {
	Nodes []types.Symbol
	Edges []types.Edge
	index map[string]int
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (types.Symbol, bool) {
	i, ok := g.index[id]
	if !ok {
		return types.Symbol{}, false
	}
	return g.Nodes[i], true
}

// Len returns the number of nodes, synthetic ones included.
func (g *Graph) Len() int { return len(g.Nodes) }

// HasExternal reports whether any reference was routed to the sink.
func (g *Graph) HasExternal() bool {
	_, ok := g.index[ExternalID]
	return ok
}

// BuildGraph merges per-file extraction results into one graph and resolves
// every by-name reference against the whole snapshot.
//
// A reference whose To names an existing node keeps it. Otherwise the name is
// looked up among all symbols: a single candidate wins; among several, a
// candidate in the referencing file wins, then one in the same directory,
// then the lexicographically first ID. Names with no candidate resolve to the
// external sink, which is created only when needed. Self edges are dropped
// and duplicate edges collapsed.
func BuildGraph(results []*types.FileResult) *Graph {
	files := make([]*types.FileResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			files = append(files, r)
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	g := &Graph{index: make(map[string]int)}
	byName := make(map[string][]string)
	// renames maps each file's extractor IDs to their graph IDs.
	renames := make([]map[string]string, len(files))

	for fi, f := range files {
		renames[fi] = make(map[string]string, len(f.Symbols))
		for _, s := range f.Symbols {
			orig := s.ID
			s.ID = g.uniqueID(s.ID)
			renames[fi][orig] = s.ID
			g.index[s.ID] = len(g.Nodes)
			g.Nodes = append(g.Nodes, s)
			if s.Synthetic {
				continue
			}
			byName[s.Name] = append(byName[s.Name], s.ID)
			if local := localName(orig, s.FilePath); local != s.Name {
				byName[local] = append(byName[local], s.ID)
			}
		}
	}
	for _, ids := range byName {
		sort.Strings(ids)
	}

	seen := make(map[types.Edge]bool)
	var edges []types.Edge
	for fi, f := range files {
		for _, r := range f.References {
			from, ok := renames[fi][r.From]
			if !ok {
				continue
			}
			to := ""
			if id, ok := renames[fi][r.To]; ok {
				to = id
			} else {
				to = g.resolve(byName[r.Name], from, f.Path)
			}
			if to == "" {
				to = g.external()
			}
			e := types.Edge{From: from, To: to, Kind: r.Kind}
			if from == to || seen[e] {
				continue
			}
			seen[e] = true
			edges = append(edges, e)
		}
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
	g.Edges = edges
	return g
}

// uniqueID returns id, or id with a "~n" suffix when id is taken.
func (g *Graph) uniqueID(id string) string {
	if _, taken := g.index[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		cand := id + "~" + strconv.Itoa(n)
		if _, taken := g.index[cand]; !taken {
			return cand
		}
	}
}

// external returns the sink ID, adding the sink on first use.
func (g *Graph) external() string {
	if _, ok := g.index[ExternalID]; !ok {
		g.index[ExternalID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, types.Symbol{
			ID:        ExternalID,
			Name:      "external",
			Kind:      types.Other,
			Synthetic: true,
		})
	}
	return ExternalID
}

// resolve picks one of the sorted candidate IDs for a reference made from
// the node from in file. It returns "" when there is no candidate.
func (g *Graph) resolve(candidates []string, from, file string) string {
	var others []string
	for _, id := range candidates {
		if id != from {
			others = append(others, id)
		}
	}
	switch len(others) {
	case 0:
		if len(candidates) > 0 {
			return from // a recursive call; dropped as a self edge
		}
		return ""
	case 1:
		return others[0]
	}

	dir := path.Dir(file)
	sameDir := ""
	for _, id := range others {
		n := g.Nodes[g.index[id]]
		if n.FilePath == file {
			return id
		}
		if sameDir == "" && path.Dir(n.FilePath) == dir {
			sameDir = id
		}
	}
	if sameDir != "" {
		return sameDir
	}
	return others[0]
}

// localName strips the file prefix and any duplicate-line suffix from an
// extractor ID, e.g. "a.py#Child.method@12" becomes "Child.method".
func localName(id, file string) string {
	local := strings.TrimPrefix(id, types.SymbolID(file, ""))
	if i := strings.LastIndexByte(local, '@'); i > 0 {
		local = local[:i]
	}
	return local
}
