// Package models - usage_event.go defines the UsageEvent model, an append-only
// audit record of every resolvable access attempt, authorized or not.
package models

import (
	"encoding/json"
	"time"
)

// Violation kinds recorded on denied usage events
const (
	ViolationBlacklisted        = "blacklisted"
	ViolationNotWhitelistedIP   = "not_whitelisted_ip"
	ViolationNotWhitelistedHost = "not_whitelisted_domain"
)

// UsageEvent represents one recorded access attempt against a signed link.
// Rows are never mutated after creation.
type UsageEvent struct {
	ID            int64           `json:"id"`
	LinkID        int64           `json:"link_id"`
	Action        string          `json:"action"`
	SourceIP      string          `json:"source_ip"`
	Domain        string          `json:"domain"`
	UserAgent     string          `json:"user_agent"`
	Authorized    bool            `json:"authorized"`
	ViolationKind *string         `json:"violation_kind,omitempty"`
	Geo           json.RawMessage `json:"geo,omitempty"` // opaque enrichment payload
	CreatedAt     time.Time       `json:"created_at"`
}
