// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package types

// Default request bounds.
const (
	DefaultMaxFiles   = 100
	DefaultMaxSymbols = 50
)

// Request asks for the map of one repository.
type Request struct {
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	MaxFiles   int    `json:"max_files,omitempty"`   // default 100
	MaxSymbols int    `json:"max_symbols,omitempty"` // default 50
}

// WithDefaults returns a copy of r with zero bounds replaced by defaults.
func (r Request) WithDefaults() Request {
	if r.MaxFiles <= 0 {
		r.MaxFiles = DefaultMaxFiles
	}
	if r.MaxSymbols <= 0 {
		r.MaxSymbols = DefaultMaxSymbols
	}
	return r
}

// FullName returns "owner/repo".
func (r Request) FullName() string {
	return r.Owner + "/" + r.Repo
}

// SymbolRecord is one rendered symbol of a map.
type SymbolRecord struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Score     float64    `json:"score"`
	Signature string     `json:"signature,omitempty"`
	Doc       string     `json:"doc,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// FileGroup holds the rendered symbols of one file, in rank order.
type FileGroup struct {
	Path     string         `json:"path"`
	TopScore float64        `json:"top_score"`
	Symbols  []SymbolRecord `json:"symbols"`
}

// MapOutput is the rendered repository map.
type MapOutput struct {
	Repository       string      `json:"repository"`
	Ref              string      `json:"ref,omitempty"`
	FilesAnalyzed    int         `json:"files_analyzed"`
	FilesSkipped     int         `json:"files_skipped,omitempty"`
	TotalSymbols     int         `json:"total_symbols"`
	DisplayedSymbols int         `json:"displayed_symbols"`
	Degraded         bool        `json:"degraded,omitempty"` // at least one displayed symbol is degraded
	Files            []FileGroup `json:"files"`
}
