package middleware

import (
	"tokenshare-backend/internal/pkg/tracectx"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const traceIDLocal = "trace_id"

// Tracing issues the request's trace id. A well-formed incoming X-Trace-Id is
// kept; the id is echoed on the response and stored in the user context so
// outbound ledger calls forward it.
func Tracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(tracectx.Header)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}
		c.Locals(traceIDLocal, traceID)
		c.Set(tracectx.Header, traceID)
		c.SetUserContext(tracectx.WithID(c.UserContext(), traceID))
		return c.Next()
	}
}

// GetTraceID returns the trace ID from context.
func GetTraceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(traceIDLocal).(string); ok {
		return id
	}
	return ""
}
