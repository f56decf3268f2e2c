package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RouteLogger logs each request on entry (debug) and exit. The exit line is
// warn for 4xx and error for 5xx, and carries the session user when known.
func RouteLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := GetTraceID(c)
		if traceID == "" {
			traceID = "no-trace-id"
		}
		logger := log.With().Str("trace_id", traceID).Str("method", c.Method()).Str("path", c.Path()).Logger()
		start := time.Now()
		logger.Debug().Msg("Entering request")

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		ev := exitEvent(&logger, status, err)
		if uid := GetUserID(c); uid != uuid.Nil {
			ev = ev.Str("user_id", uid.String())
		}
		ev.Int("status", status).Int64("ms", time.Since(start).Milliseconds()).Msg("Exiting request")
		return err
	}
}

func exitEvent(logger *zerolog.Logger, status int, err error) *zerolog.Event {
	switch {
	case err != nil && status < 400, status >= 500:
		return logger.Error().Err(err)
	case status >= 400:
		return logger.Warn()
	}
	return logger.Info()
}
