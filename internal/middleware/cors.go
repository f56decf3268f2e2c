package middleware

import (
	"strings"

	"tokenshare-backend/internal/pkg/response"
	"tokenshare-backend/internal/pkg/tracectx"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	// AllowedSuffix admits any origin ending with it (e.g. ".example.com").
	AllowedSuffix string
	// DevPassword admits any origin sending it in the dev-password header.
	DevPassword string
	// AllowLocalhost admits http://localhost:* and http://127.0.0.1:*.
	AllowLocalhost bool
}

const corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// CORS allows credentialed requests from configured origins. Requests without
// an Origin header pass through; preflights from allowed origins answer 204.
func CORS(cfg CORSConfig) fiber.Handler {
	suffix := strings.ToLower(cfg.AllowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		c.Vary(fiber.HeaderOrigin)

		if !originAllowed(cfg, suffix, origin, c.Get("dev-password")) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
			c.Set(fiber.HeaderAccessControlMaxAge, "600")
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func originAllowed(cfg CORSConfig, suffix, origin, devPassword string) bool {
	switch {
	case cfg.AllowLocalhost && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")):
		return true
	case suffix != "" && strings.HasSuffix(strings.ToLower(origin), suffix):
		return true
	case cfg.DevPassword != "" && devPassword == cfg.DevPassword:
		return true
	}
	return false
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, dev-password, "+tracectx.Header)
	c.Set(fiber.HeaderAccessControlExposeHeaders, tracectx.Header)
}
