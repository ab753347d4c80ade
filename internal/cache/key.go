// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Key derives a deterministic cache key from the namespace and the request
// parameters that determine the cached value.
func Key(ns Namespace, parts ...any) string {
	h := xxh3.New()
	h.WriteString(string(ns))
	for _, p := range parts {
		h.WriteString("\x00")
		h.WriteString(fmt.Sprint(p))
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}
