package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/auth"
	"github.com/media-gateway/media-gateway/internal/config"
)

// TokenHandler exchanges a configured API key for a short-lived session JWT,
// so clients pay the bcrypt comparison once per session instead of on every
// call.
type TokenHandler struct {
	cfg  *config.Config
	sink audit.Shipper
}

// NewTokenHandler creates the handler. sink may be nil.
func NewTokenHandler(cfg *config.Config, sink audit.Shipper) *TokenHandler {
	return &TokenHandler{cfg: cfg, sink: sink}
}

// Exchange handles POST /api/v1/auth/token. The API key arrives as the bearer
// token; the response carries the session JWT and its lifetime.
func (h *TokenHandler) Exchange(c *gin.Context) {
	key, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	name, ok := auth.MatchAPIKey(key, h.cfg.Auth.APIKeys)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	lifetime := h.cfg.Auth.TokenLifetime
	token, err := auth.GenerateJWT(name, lifetime)
	if err != nil {
		slog.Error("token generation failed", "client", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	if h.sink != nil {
		event := &audit.Event{
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionAdminLogin,
			UserID:    name,
			IPAddress: c.ClientIP(),
		}
		if err := h.sink.Ship(c.Request.Context(), event); err != nil {
			slog.Warn("failed to ship audit event", "action", audit.ActionAdminLogin, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(lifetime.Seconds()),
		"client":     name,
	})
}
