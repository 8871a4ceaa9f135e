// Package admin implements the authenticated /api/v1 surface: link issuance
// and revocation, usage inspection, policy rule management, and API-key-to-JWT
// token exchange.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/db/repositories"
	"github.com/media-gateway/media-gateway/internal/middleware"
	"github.com/media-gateway/media-gateway/internal/signing"
	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// LinkIssuer mints new signed links.
type LinkIssuer interface {
	Issue(ctx context.Context, mediaID, formatID int64, expiresAt *time.Time, createdBy *string) (*models.SignedLink, string, error)
}

// LinkStore is the slice of the link repository the handlers need.
type LinkStore interface {
	GetLinkByID(ctx context.Context, id int64) (*models.SignedLink, error)
	DeactivateLink(ctx context.Context, id int64) error
}

// UsageStore lists usage events for a link.
type UsageStore interface {
	ListByLink(ctx context.Context, linkID int64, limit, offset int) ([]*models.UsageEvent, error)
}

// LinksHandler serves the /api/v1/links routes.
type LinksHandler struct {
	issuer LinkIssuer
	links  LinkStore
	usage  UsageStore
	sink   audit.Shipper
}

// NewLinksHandler creates the handler. sink may be nil when auditing is disabled.
func NewLinksHandler(issuer LinkIssuer, links LinkStore, usage UsageStore, sink audit.Shipper) *LinksHandler {
	return &LinksHandler{issuer: issuer, links: links, usage: usage, sink: sink}
}

// issueLinkRequest is the POST /api/v1/links body.
type issueLinkRequest struct {
	MediaID  int64 `json:"media_id" binding:"required"`
	FormatID int64 `json:"format_id" binding:"required"`
	// ExpiresAt is optional; absent means the configured default lifetime.
	ExpiresAt *time.Time `json:"expires_at"`
}

// Issue handles POST /api/v1/links.
func (h *LinksHandler) Issue(c *gin.Context) {
	var req issueLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
		return
	}

	var createdBy *string
	if name := c.GetString(middleware.ClientNameKey); name != "" {
		createdBy = &name
	}

	link, url, err := h.issuer.Issue(c.Request.Context(), req.MediaID, req.FormatID, req.ExpiresAt, createdBy)
	switch {
	case errors.Is(err, signing.ErrMediaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Media object not found"})
		return
	case errors.Is(err, signing.ErrFormatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Format not found"})
		return
	case err != nil:
		slog.Error("link issuance failed", "media_id", req.MediaID, "format_id", req.FormatID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue link"})
		return
	}

	telemetry.LinksIssuedTotal.Inc()
	h.audit(c, audit.ActionLinkIssued, link)

	c.JSON(http.StatusCreated, gin.H{
		"link": link,
		"url":  url,
	})
}

// Get handles GET /api/v1/links/:id.
func (h *LinksHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	link, err := h.links.GetLinkByID(c.Request.Context(), id)
	if err != nil {
		slog.Error("link lookup failed", "link_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load link"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"link": link})
}

// Revoke handles DELETE /api/v1/links/:id. Revocation is a soft delete: the
// row stays for usage history, the link stops verifying immediately.
func (h *LinksHandler) Revoke(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	link, err := h.links.GetLinkByID(c.Request.Context(), id)
	if err != nil {
		slog.Error("link lookup failed", "link_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load link"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	if err := h.links.DeactivateLink(c.Request.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		slog.Error("link revocation failed", "link_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke link"})
		return
	}

	h.audit(c, audit.ActionLinkRevoked, link)
	c.Status(http.StatusNoContent)
}

// Usage handles GET /api/v1/links/:id/usage.
func (h *LinksHandler) Usage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	events, err := h.usage.ListByLink(c.Request.Context(), id, limit, offset)
	if err != nil {
		slog.Error("usage listing failed", "link_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *LinksHandler) audit(c *gin.Context, action string, link *models.SignedLink) {
	if h.sink == nil {
		return
	}
	event := &audit.Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    c.GetString(middleware.ClientNameKey),
		LinkID:    link.ID,
		MediaID:   link.MediaID,
		IPAddress: c.ClientIP(),
	}
	if err := h.sink.Ship(c.Request.Context(), event); err != nil {
		slog.Warn("failed to ship audit event", "action", action, "error", err)
	}
}

// pathID parses the :id segment, answering 400 itself on garbage.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// pagination reads limit/offset query parameters with bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
