// Package models - signed_link.go defines the SignedLink model, one row per
// issued signed URL. The link_hash column is the unique public identifier
// embedded in the URL path; the signature attests to path and expiry.
package models

import "time"

// SignedLink represents an issued time-limited signed URL
type SignedLink struct {
	ID            int64     `json:"id"`
	MediaID       int64     `json:"media_id"`
	FormatID      int64     `json:"format_id"`
	LinkHash      string    `json:"link_hash"` // 64 hex chars, unique
	Signature     string    `json:"signature"` // base64url, no padding
	KeyID         string    `json:"key_id"`    // Key-Pair-Id the signature was made with
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedBy     *string   `json:"created_by,omitempty"`
	IsActive      bool      `json:"is_active"`
	DownloadCount int64     `json:"download_count"`
	CopyCount     int64     `json:"copy_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expired reports whether the link's own expiry (the source of truth,
// independent of the Expires claim in the URL) has passed at instant now.
// The boundary instant counts as expired.
func (l *SignedLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
