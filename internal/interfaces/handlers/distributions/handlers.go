package distributions

import (
	distsvc "tokenshare-backend/internal/application/distribution"
	"tokenshare-backend/internal/application/readiness"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/response"
	"tokenshare-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Gate         *readiness.Service
	Distribution *distsvc.Service
}

type distributeRequest struct {
	Profit decimal.Decimal `json:"profit"`
}

// GET /api/v1/distributions/:project_id/readiness
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	projectID, err := validation.ParseUUID(c.Params("project_id"), "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	res, err := h.Gate.CheckReadiness(c.UserContext(), projectID)
	if err != nil {
		return response.DomainError(c, err)
	}
	if res.Reason == domain.ReasonNotFound {
		return response.DomainError(c, domain.ErrProjectNotFound)
	}
	return response.Success(c, res.Message, res, nil)
}

// POST /api/v1/distributions/:project_id/distribute
func (h *Handlers) Distribute(c *fiber.Ctx) error {
	projectID, err := validation.ParseUUID(c.Params("project_id"), "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var req distributeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.DomainError(c, domain.ErrInvalidProfit)
	}
	b, err := h.Distribution.Distribute(c.UserContext(), projectID, middleware.GetUserID(c), req.Profit)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.SuccessCreated(c, "Profit distributed successfully", b, nil)
}

// GET /api/v1/distributions/:project_id
func (h *Handlers) Get(c *fiber.Ctx) error {
	projectID, err := validation.ParseUUID(c.Params("project_id"), "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	v, err := h.Distribution.GetDistribution(c.UserContext(), projectID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Distribution fetched successfully", v, nil)
}
