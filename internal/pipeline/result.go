// result.go defines the pipeline's outcome taxonomy and its mapping onto
// HTTP statuses.
package pipeline

import "net/http"

// Kind classifies the terminal state of a verification attempt.
type Kind int

const (
	KindOK Kind = iota
	KindBadRequest
	KindExpired          // URL Expires claim in the past
	KindKeyMismatch      // Key-Pair-Id does not match the active key
	KindInvalidSignature // signature does not verify
	KindLinkNotFound     // no active link for the hash
	KindLinkExpired      // link row expiry passed, independent of the URL claim
	KindForbidden        // policy denial
	KindRenderFailure    // source unreadable or encode failure
	KindInternal         // infrastructure failure
)

var kindNames = map[Kind]string{
	KindOK:               "ok",
	KindBadRequest:       "bad_request",
	KindExpired:          "expired",
	KindKeyMismatch:      "key_mismatch",
	KindInvalidSignature: "invalid_signature",
	KindLinkNotFound:     "link_not_found",
	KindLinkExpired:      "link_expired",
	KindForbidden:        "forbidden",
	KindRenderFailure:    "render_failure",
	KindInternal:         "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus maps a kind to the response status served to the client. A link
// whose own row has expired is 410 (the resource is permanently gone and a new
// link must be issued), while a stale URL claim is an ordinary 403.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindOK:
		return http.StatusOK
	case KindBadRequest:
		return http.StatusBadRequest
	case KindExpired, KindKeyMismatch, KindInvalidSignature, KindForbidden:
		return http.StatusForbidden
	case KindLinkNotFound:
		return http.StatusNotFound
	case KindLinkExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// SecurityEvent reports whether this outcome should be logged as a security
// event (tampering or a stale key) rather than an ordinary client error.
func (k Kind) SecurityEvent() bool {
	return k == KindKeyMismatch || k == KindInvalidSignature
}
