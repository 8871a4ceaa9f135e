// Package models - signing_key.go defines the SigningKey model holding the
// process-wide RSA key pair as PEM. Exactly one row is active at a time;
// rotation is a manual administrative operation.
package models

import "time"

// SigningKey represents a persisted RSA key pair
type SigningKey struct {
	ID            int64     `json:"id"`
	KeyID         string    `json:"key_id"` // public Key-Pair-Id embedded in URLs
	PrivateKeyPEM string    `json:"-"`      // never serialized
	PublicKeyPEM  string    `json:"public_key_pem"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
