// Package signedurl defines the wire format shared by link issuance and
// verification: the canonical signing string, the resource path layout, and
// the query parameters carried by every signed URL. Keeping the contract in a
// dedicated package guarantees the signer and the verifier can never drift —
// both sides reproduce the exact same bytes.
//
// URL shape:
//
//	{base}/media/{mediaId}/{formatId}/{linkHash}?Expires={epoch}&Signature={sig}&Key-Pair-Id={keyId}
//
// Canonical signing string (literal newlines, no trailing newline):
//
//	GET\n/media/{mediaId}/{formatId}/{linkHash}\n{Expires}
package signedurl

import (
	"fmt"
	"net/url"
	"strconv"
)

// Query parameter names. These are part of the public contract and must not
// be renamed.
const (
	ParamExpires   = "Expires"
	ParamSignature = "Signature"
	ParamKeyPairID = "Key-Pair-Id"
)

// LinkHashLen is the length of a link hash: 256 bits as lowercase hex.
const LinkHashLen = 64

// ResourcePath returns the canonical resource path for a media/format/hash tuple.
func ResourcePath(mediaID, formatID uint64, linkHash string) string {
	return fmt.Sprintf("/media/%d/%d/%s", mediaID, formatID, linkHash)
}

// Canonical returns the string that is signed and verified for a request.
func Canonical(method, path string, expires int64) string {
	return fmt.Sprintf("%s\n%s\n%d", method, path, expires)
}

// Build assembles a complete signed URL from its parts.
func Build(base string, mediaID, formatID uint64, linkHash string, expires int64, signature, keyID string) string {
	q := url.Values{}
	q.Set(ParamExpires, strconv.FormatInt(expires, 10))
	q.Set(ParamSignature, signature)
	q.Set(ParamKeyPairID, keyID)
	return base + ResourcePath(mediaID, formatID, linkHash) + "?" + q.Encode()
}

// ValidLinkHash reports whether s is a well-formed link hash: exactly 64
// lowercase hex characters.
func ValidLinkHash(s string) bool {
	if len(s) != LinkHashLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
