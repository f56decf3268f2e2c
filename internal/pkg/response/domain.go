package response

import (
	"errors"

	"tokenshare-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// statusOf maps domain errors to HTTP status codes. Order matters: the first match wins.
var statusOf = []struct {
	err  error
	code int
}{
	{domain.ErrConsistencyViolation, fiber.StatusInternalServerError},
	{domain.ErrInvalidAmount, fiber.StatusBadRequest},
	{domain.ErrInvalidProfit, fiber.StatusBadRequest},
	{domain.ErrInvalidInput, fiber.StatusBadRequest},
	{domain.ErrForbidden, fiber.StatusForbidden},
	{domain.ErrProjectNotFound, fiber.StatusNotFound},
	{domain.ErrDistributionNotFound, fiber.StatusNotFound},
	{domain.ErrAlreadyDistributed, fiber.StatusConflict},
	{domain.ErrDistributionInProgress, fiber.StatusConflict},
	{domain.ErrPendingMismatch, fiber.StatusConflict},
	{domain.ErrInsufficientSupply, fiber.StatusConflict},
	{domain.ErrProjectNotActive, fiber.StatusConflict},
	{domain.ErrNotReady, fiber.StatusUnprocessableEntity},
	{domain.ErrNoHolders, fiber.StatusUnprocessableEntity},
	{domain.ErrLedgerUnavailable, fiber.StatusServiceUnavailable},
	{domain.ErrLedgerRejected, fiber.StatusBadGateway},
}

// DomainError answers err in the standard error format. Details carry the
// error kind and whether re-invoking the operation may succeed; unknown
// errors are logged and hidden behind a generic 500.
func DomainError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		log.Error().Err(err).Str("path", c.Path()).Msg("internal error")
		return Error(c, "Internal Server Error", fiber.StatusInternalServerError, fiber.Map{"kind": kind, "retryable": false})
	}

	code := fiber.StatusInternalServerError
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			code = s.code
			break
		}
	}
	details := fiber.Map{"kind": kind, "retryable": domain.Retryable(err)}
	var nr *domain.NotReadyError
	if errors.As(err, &nr) {
		details["reason"] = nr.Reason
	}
	return Error(c, err.Error(), code, details)
}
