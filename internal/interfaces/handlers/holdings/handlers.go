package holdings

import (
	holdsvc "tokenshare-backend/internal/application/holdings"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles holdings handlers.
type Handlers struct {
	Service *holdsvc.Service
}

// ViewHoldings GET /api/v1/holdings/view-holdings
func (h *Handlers) ViewHoldings(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	data, err := h.Service.ViewHoldings(c.UserContext(), userID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Holdings fetched successfully", data, nil)
}

// ViewCredits GET /api/v1/holdings/view-credits
func (h *Handlers) ViewCredits(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	data, err := h.Service.ViewProfitCredits(c.UserContext(), userID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Profit credits fetched successfully", data, nil)
}
