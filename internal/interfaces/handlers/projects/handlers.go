package projects

import (
	"encoding/json"
	"fmt"

	projsvc "tokenshare-backend/internal/application/projects"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/response"
	"tokenshare-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *projsvc.Service
}

type createRequest struct {
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	TotalTokens    json.Number     `json:"total_tokens"`
	TokenPrice     decimal.Decimal `json:"token_price"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
}

// POST /api/v1/projects/create-project
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	total, err := req.TotalTokens.Int64()
	if err != nil {
		return response.DomainError(c, fmt.Errorf("%w: total_tokens must be a positive integer", domain.ErrInvalidInput))
	}

	p, err := h.Service.Create(c.UserContext(), middleware.GetUserID(c), projsvc.CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		TotalTokens:    total,
		TokenPrice:     req.TokenPrice,
		InitialCapital: req.InitialCapital,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.SuccessCreated(c, "Project created successfully", p, nil)
}

// GET /api/v1/projects/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := validation.ParseUUID(c.Params("id"), "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	data, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Project fetched successfully", data, nil)
}

// POST /api/v1/projects/:id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	id, err := validation.ParseUUID(c.Params("id"), "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	p, err := h.Service.Cancel(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Project cancelled successfully", p, nil)
}
