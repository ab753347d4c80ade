// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package types defines shared types used across go-repomap packages: the
// symbol and edge data model, map requests and outputs, quota state and the
// error taxonomy.
package types

import "fmt"

// SymbolKind identifies the category of a code symbol.
type SymbolKind int

const (
	Function SymbolKind = iota // Free function
	Method                     // Function bound to a class or receiver type
	Class                      // Class, struct, interface or other type definition
	Other                      // Anything else (module nodes, the external sink)
)

var symbolKindNames = [...]string{
	Function: "function",
	Method:   "method",
	Class:    "class",
	Other:    "other",
}

// String returns the lowercase name of the symbol kind.
func (k SymbolKind) String() string {
	if k < 0 || int(k) >= len(symbolKindNames) {
		return "unknown"
	}
	return symbolKindNames[k]
}

// MarshalText encodes the kind by name so cached and rendered output stays
// readable.
func (k SymbolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *SymbolKind) UnmarshalText(b []byte) error {
	for i, name := range symbolKindNames {
		if name == string(b) {
			*k = SymbolKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown symbol kind %q", b)
}

// Symbol is a named code entity extracted from one file of a snapshot.
// IDs are unique within a snapshot: the file path followed by '#' and the
// local identifier (e.g. "pkg/a.go#Server.Run").
type Symbol struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Kind       SymbolKind `json:"kind"`
	FilePath   string     `json:"file_path"`
	StartLine  int        `json:"start_line"` // 1-based
	EndLine    int        `json:"end_line"`   // 1-based, inclusive
	Exported   bool       `json:"exported"`
	EntryPoint bool       `json:"entry_point"`
	Signature  string     `json:"signature,omitempty"`
	Doc        string     `json:"doc,omitempty"`
	Degraded   bool       `json:"degraded,omitempty"`  // produced by the heuristic extractor
	Synthetic  bool       `json:"synthetic,omitempty"` // graph-only node, never rendered
}

// SymbolID builds the snapshot-unique ID of a local identifier in a file.
func SymbolID(path, local string) string {
	return path + "#" + local
}

// EdgeKind identifies the relationship an edge represents.
type EdgeKind int

const (
	Call EdgeKind = iota
	Import
	Inherit
)

// String returns the lowercase name of the edge kind.
func (k EdgeKind) String() string {
	switch k {
	case Call:
		return "call"
	case Import:
		return "import"
	case Inherit:
		return "inherit"
	default:
		return "unknown"
	}
}

// Edge is a directed dependency between two graph nodes.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Reference is a dependency recorded by an extractor. To holds a symbol ID
// when the target was resolved inside the same file; otherwise Name holds the
// unqualified target name for the graph builder to resolve across files.
type Reference struct {
	From string
	To   string
	Name string
	Kind EdgeKind
	Line int
}

// FileResult is the extraction output for a single file.
type FileResult struct {
	Path       string
	Language   string
	Symbols    []Symbol
	References []Reference
	Degraded   bool // extracted by the heuristic fallback
}

// RankedSymbol is a symbol with its importance score.
type RankedSymbol struct {
	Symbol
	Score     float64 // after boosts
	BaseScore float64 // converged propagation score
}
