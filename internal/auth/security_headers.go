package auth

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware sets headers for a JSON API that also serves
// uploaded images and audio.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy",
			"default-src 'none'; "+
				"img-src 'self' data:; "+
				"media-src 'self'; "+
				"frame-ancestors 'none'")
		c.Header("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()")
		c.Next()
	}
}

// StrictTransportSecurityMiddleware adds HSTS to requests that arrived over
// HTTPS, directly or through a proxy.
func StrictTransportSecurityMiddleware(maxAge time.Duration) gin.HandlerFunc {
	value := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains"
	return func(c *gin.Context) {
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", value)
		}
		c.Next()
	}
}
