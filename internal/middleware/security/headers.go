package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets the standard security headers. frame-ancestors is
// left open to the allowed origins because the chat widget embeds in
// customer sites.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	frameAncestors := "'self'"
	if len(cfg.AllowedOrigins) > 0 {
		frameAncestors += " " + strings.Join(cfg.AllowedOrigins, " ")
	}

	csp := "default-src 'self'; " +
		"img-src 'self' data:; " +
		"style-src 'self' 'unsafe-inline'; " +
		"frame-ancestors " + frameAncestors + "; " +
		"base-uri 'self'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", csp)

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}
