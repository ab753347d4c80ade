// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package types

import "time"

// QuotaTier names an independent provider quota.
type QuotaTier string

const (
	TierGeneral QuotaTier = "general" // 5000 requests per hour
	TierSearch  QuotaTier = "search"  // 30 requests per minute
)

// QuotaState is the last known state of one tier.
type QuotaState struct {
	Tier      QuotaTier `json:"tier"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Exhausted reports whether no calls remain before ResetAt.
func (s QuotaState) Exhausted(now time.Time) bool {
	return s.Remaining <= 0 && now.Before(s.ResetAt)
}
