// Package media serves the public signed-URL route. All request semantics
// live in the verification pipeline; this handler only adapts HTTP to and
// from it: extract the raw pieces, run the pipeline, translate the terminal
// state into a status, headers, and either a file or a JSON error.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/pipeline"
	"github.com/media-gateway/media-gateway/internal/policy"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// Processor runs the verification state machine for one request.
type Processor interface {
	Process(ctx context.Context, raw pipeline.RawRequest) pipeline.Result
}

// Handler serves GET /media/:mediaId/:formatId/:linkHash.
type Handler struct {
	pipe Processor
}

// NewHandler creates the media handler.
func NewHandler(pipe Processor) *Handler {
	return &Handler{pipe: pipe}
}

// clientMessages are deliberately terse: a failed verification reveals
// nothing about which check failed beyond what the status code already says.
var clientMessages = map[pipeline.Kind]string{
	pipeline.KindBadRequest:       "Malformed request",
	pipeline.KindExpired:          "Access denied",
	pipeline.KindKeyMismatch:      "Access denied",
	pipeline.KindInvalidSignature: "Access denied",
	pipeline.KindLinkNotFound:     "Not found",
	pipeline.KindLinkExpired:      "Link expired",
	pipeline.KindForbidden:        "Access denied",
	pipeline.KindRenderFailure:    "Media unavailable",
	pipeline.KindInternal:         "Internal error",
}

// Serve handles a media request end to end.
func (h *Handler) Serve(c *gin.Context) {
	raw := pipeline.RawRequest{
		MediaID:   c.Param("mediaId"),
		FormatID:  c.Param("formatId"),
		LinkHash:  c.Param("linkHash"),
		Expires:   c.Query("Expires"),
		Signature: c.Query("Signature"),
		KeyID:     c.Query("Key-Pair-Id"),
		SourceIP:  c.ClientIP(),
		Referrer:  c.GetHeader("Referer"),
		UserAgent: c.Request.UserAgent(),
		Action:    c.Query("action"),
	}

	result := h.pipe.Process(c.Request.Context(), raw)

	telemetry.VerificationsTotal.WithLabelValues(result.Kind.String(), string(result.Action)).Inc()
	if result.Kind == pipeline.KindForbidden {
		telemetry.PolicyDenialsTotal.WithLabelValues(string(result.Violation)).Inc()
	}

	if result.Kind.SecurityEvent() {
		slog.Warn("signed URL verification failed",
			"outcome", result.Kind.String(),
			"link_hash", raw.LinkHash,
			"source_ip", raw.SourceIP,
			"key_id", raw.KeyID,
			"request_id", c.GetString("request_id"))
	}
	if result.Err != nil {
		slog.Error("media request failed",
			"outcome", result.Kind.String(),
			"link_hash", raw.LinkHash,
			"error", result.Err)
	}

	if result.Kind != pipeline.KindOK {
		c.JSON(result.Kind.HTTPStatus(), gin.H{"error": clientMessages[result.Kind]})
		return
	}

	artifact := result.Artifact

	// Cacheable by the requesting client only, and never past the link's own
	// expiry. Shared caches must not hold the response: authorization is
	// per-requester.
	maxAge := int(time.Until(result.Link.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
	c.Header("Content-Disposition", disposition(result.Action, artifact.Path))

	c.Header("Content-Type", artifact.ContentType)
	c.File(artifact.Path)
}

// disposition picks inline rendering for views and a download prompt for
// everything else.
func disposition(action policy.Action, path string) string {
	name := filepath.Base(path)
	if action == policy.ActionView {
		return fmt.Sprintf("inline; filename=%q", name)
	}
	return fmt.Sprintf("attachment; filename=%q", name)
}

// NotFoundHandler answers unmatched routes with the same shape as pipeline
// misses so probing for valid paths learns nothing from response bodies.
func NotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}
