// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package types

// SearchResult is one code search hit.
type SearchResult struct {
	Name       string           `json:"name"`
	Path       string           `json:"path"`
	SHA        string           `json:"sha"`
	HTMLURL    string           `json:"html_url"`
	Repository SearchRepository `json:"repository"`
}

// SearchRepository names the repository a hit belongs to.
type SearchRepository struct {
	FullName string `json:"full_name"`
}
