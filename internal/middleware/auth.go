package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/media-gateway/media-gateway/internal/auth"
	"github.com/media-gateway/media-gateway/internal/config"
)

const (
	// ClientNameKey is the gin.Context key holding the authenticated client name.
	ClientNameKey = "client_name"

	// AuthMethodKey is the gin.Context key holding how the client authenticated.
	AuthMethodKey = "auth_method"
)

// AuthMiddleware validates admin API authentication. A bearer token is
// accepted either as a session JWT (issued by POST /api/v1/auth/token) or as
// a raw API key matched against the configured bcrypt hashes.
//
// JWT validation is attempted first because it is entirely stateless: one HMAC
// check against the secret. API key validation runs bcrypt against every
// configured entry, which is deliberately slow; clients doing more than a
// handful of calls should exchange their key for a session token.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			c.Set(ClientNameKey, claims.ClientName)
			c.Set(AuthMethodKey, "jwt")
			c.Next()
			return
		}

		if name, ok := auth.MatchAPIKey(token, cfg.Auth.APIKeys); ok {
			c.Set(ClientNameKey, name)
			c.Set(AuthMethodKey, "api_key")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid token or API key",
		})
	}
}
