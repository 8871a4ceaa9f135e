// security.go provides Gin middleware that injects protective HTTP response
// headers. The gateway serves two very different surfaces: a JSON admin API
// and binary media responses embedded by third-party pages, so the header set
// is parameterized per route group.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds
	HSTSMaxAge int
	// FrameOptionsValue is the value for X-Frame-Options; empty disables the header
	FrameOptionsValue string
	// ContentSecurityPolicy is the CSP header value; empty disables the header
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string
	// CrossOriginResourcePolicy controls who may embed responses; media must be
	// embeddable cross-origin, the admin API must not
	CrossOriginResourcePolicy string
}

// APISecurityHeadersConfig returns security headers for the JSON admin API.
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000, // 1 year
		FrameOptionsValue:         "DENY",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// MediaSecurityHeadersConfig returns headers for served media artifacts.
// Frame-Options and CSP are omitted: images are meant to be embedded by the
// whitelisted third-party sites. The Referrer-Policy keeps full referrer URLs
// flowing so the policy engine sees the embedding domain.
func MediaSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000,
		ReferrerPolicy:            "no-referrer-when-downgrade",
		CrossOriginResourcePolicy: "cross-origin",
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.EnableHSTS {
			c.Header("Strict-Transport-Security", "max-age="+strconv.Itoa(config.HSTSMaxAge)+"; includeSubDomains")
		}
		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.CrossOriginResourcePolicy != "" {
			c.Header("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
		}

		c.Next()
	}
}
