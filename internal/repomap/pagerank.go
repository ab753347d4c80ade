// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"math"
	"sort"

	"github.com/petar-djukic/go-repomap/pkg/types"
)

const (
	defaultDamping         = 0.85
	defaultMaxIter         = 100
	defaultTolerance       = 1e-9
	defaultExportedBoost   = 1.5
	defaultEntryPointBoost = 2.0
	defaultClassBoost      = 1.2
)

// RankConfig configures PageRank computation. Zero fields take the defaults.
type RankConfig struct {
	Damping         float64 // Damping factor (default 0.85)
	MaxIterations   int     // Iteration cap (default 100)
	Tolerance       float64 // L1 convergence threshold (default 1e-9)
	ExportedBoost   float64 // Multiplier for exported symbols (default 1.5)
	EntryPointBoost float64 // Multiplier for entry points (default 2.0)
	ClassBoost      float64 // Multiplier for class and type definitions (default 1.2)
}

// DefaultRankConfig returns the default ranking parameters.
func DefaultRankConfig() RankConfig {
	return RankConfig{
		Damping:         defaultDamping,
		MaxIterations:   defaultMaxIter,
		Tolerance:       defaultTolerance,
		ExportedBoost:   defaultExportedBoost,
		EntryPointBoost: defaultEntryPointBoost,
		ClassBoost:      defaultClassBoost,
	}
}

func (c RankConfig) withDefaults() RankConfig {
	d := DefaultRankConfig()
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = d.Damping
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.ExportedBoost == 0 {
		c.ExportedBoost = d.ExportedBoost
	}
	if c.EntryPointBoost == 0 {
		c.EntryPointBoost = d.EntryPointBoost
	}
	if c.ClassBoost == 0 {
		c.ClassBoost = d.ClassBoost
	}
	// Boosts never demote.
	c.ExportedBoost = math.Max(c.ExportedBoost, 1)
	c.EntryPointBoost = math.Max(c.EntryPointBoost, 1)
	c.ClassBoost = math.Max(c.ClassBoost, 1)
	return c
}

// RankResult is the outcome of one ranking run.
type RankResult struct {
	// Symbols holds every non-synthetic node, highest boosted score first.
	Symbols []types.RankedSymbol
	// Scores holds the converged pre-boost score of every node, synthetic
	// nodes included.
	Scores     map[string]float64
	Iterations int
	Converged  bool
}

// Rank runs PageRank over the graph. Score flows from a referencing symbol
// to the symbols it references. Every iteration is computed from the
// previous iteration's scores only; nodes without outgoing edges, the
// external sink among them, spread their score evenly over all nodes.
// Iteration stops when the L1 change drops below the tolerance or the cap is
// reached. Boosts are applied after convergence, and ties are broken by file
// path, start line, name and ID.
func Rank(g *Graph, cfg RankConfig) *RankResult {
	cfg = cfg.withDefaults()
	res := &RankResult{Scores: make(map[string]float64)}

	n := len(g.Nodes)
	if n == 0 {
		res.Converged = true
		return res
	}

	idx := make(map[string]int, n)
	for i, node := range g.Nodes {
		idx[node.ID] = i
	}
	out := make([][]int, n)
	for _, e := range g.Edges {
		from, okF := idx[e.From]
		to, okT := idx[e.To]
		if !okF || !okT {
			continue
		}
		out[from] = append(out[from], to)
	}

	d := cfg.Damping
	fn := float64(n)
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / fn
	}
	next := make([]float64, n)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		dangling := 0.0
		for i := 0; i < n; i++ {
			if len(out[i]) == 0 {
				dangling += rank[i]
			}
		}
		base := (1-d)/fn + d*dangling/fn
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if len(out[i]) == 0 {
				continue
			}
			share := d * rank[i] / float64(len(out[i]))
			for _, j := range out[i] {
				next[j] += share
			}
		}

		diff := 0.0
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		res.Iterations = iter
		if diff < cfg.Tolerance {
			res.Converged = true
			break
		}
	}

	for i, node := range g.Nodes {
		res.Scores[node.ID] = rank[i]
		if node.Synthetic {
			continue
		}
		res.Symbols = append(res.Symbols, types.RankedSymbol{
			Symbol:    node,
			BaseScore: rank[i],
			Score:     rank[i] * boost(node, cfg),
		})
	}
	SortRanked(res.Symbols)
	return res
}

// boost returns the combined multiplier of a symbol's attributes.
func boost(s types.Symbol, cfg RankConfig) float64 {
	b := 1.0
	if s.Exported {
		b *= cfg.ExportedBoost
	}
	if s.EntryPoint {
		b *= cfg.EntryPointBoost
	}
	if s.Kind == types.Class {
		b *= cfg.ClassBoost
	}
	return b
}

// SortRanked orders symbols by descending score, then ascending file path,
// start line, name and ID.
func SortRanked(ranked []types.RankedSymbol) {
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
