package middleware

import (
	"errors"

	"tokenshare-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Fiber errors keep their code,
// anything else is logged and answered as a 500 in the standard format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("method", c.Method()).Str("path", c.Path()).
		Msg("unhandled error")
	return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
