// Package models - media.go defines the MediaObject model describing a stored
// source file that signed links grant access to. The gateway treats media rows
// as read-only reference data: upload and ownership management happen elsewhere.
package models

import "time"

// MediaObject represents a source media file in the object store
type MediaObject struct {
	ID          int64     `json:"id"`
	OwnerID     *int64    `json:"owner_id,omitempty"`
	Title       string    `json:"title"`
	StoragePath string    `json:"storage_path"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
