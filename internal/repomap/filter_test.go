// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package repomap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFilter_Defaults(t *testing.T) {
	f := NewPathFilter()

	tests := []struct {
		path string
		skip bool
	}{
		{"cmd/main.go", false},
		{"src/app.ts", false},
		{"node_modules/react/index.js", true},
		{"web/node_modules/x/y.js", true},
		{"vendor/github.com/x/y.go", true},
		{"pkg/__pycache__/mod.py", true},
		{"dist/bundle.js", true},
		{"tests/test_api.py", true},
		{"src/app.test.ts", true},
		{"src/app.spec.js", true},
		{"static/jquery.min.js", true},
		{"static/app.js.map", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.skip, f.Skip(tt.path))
		})
	}
}

func TestPathFilter_ExtraPatterns(t *testing.T) {
	f := NewPathFilter("generated/", "*.pb.go")
	assert.True(t, f.Skip("api/generated/types.go"))
	assert.True(t, f.Skip("api/service.pb.go"))
	assert.False(t, f.Skip("api/service.go"))
}
