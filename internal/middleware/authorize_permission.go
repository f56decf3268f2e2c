package middleware

import (
	"tokenshare-backend/internal/pkg/constants"
	"tokenshare-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthorizePermission admits session users whose role holds permission in
// constants.PermissionRoles. No session -> 401, role missing or permission
// unconfigured -> 500, role not allowed -> 403.
func AuthorizePermission(permission string) fiber.Handler {
	_, configured := constants.PermissionRoles[permission]
	if !configured {
		log.Error().Str("permission", permission).Msg("route guarded by an unconfigured permission")
	}
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := GetRole(c)
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		if !configured {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			log.Warn().Str("permission", permission).Str("role", role).Str("path", c.Path()).
				Str("trace_id", GetTraceID(c)).Msg("permission denied")
			return response.Forbidden(c, "User is Forbidden from performing this action")
		}
		return c.Next()
	}
}
