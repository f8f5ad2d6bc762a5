package model

import "time"

// PermanentBlock is the duration value of blocks that never expire.
const PermanentBlock = "permanent"

// BlockedIP is an entry of the block list. AlertCount is computed at read time.
type BlockedIP struct {
	IP         string     `json:"ip"`
	BlockedAt  time.Time  `json:"blocked_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Reason     string     `json:"reason"`
	Duration   string     `json:"duration"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AlertCount int        `json:"alert_count"`
}

// Expired reports whether a timed block has lapsed at now.
func (b *BlockedIP) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}
