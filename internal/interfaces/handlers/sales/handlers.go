package sales

import (
	"encoding/json"

	salesvc "tokenshare-backend/internal/application/sale"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/response"
	"tokenshare-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *salesvc.Service
	// ReconcileBatch caps one manual reconciliation pass.
	ReconcileBatch int
}

type purchaseRequest struct {
	ProjectID string      `json:"project_id"`
	Amount    json.Number `json:"amount"`
}

// POST /api/v1/sales/purchase
func (h *Handlers) Purchase(c *fiber.Ctx) error {
	buyerID := middleware.GetUserID(c)
	if buyerID == uuid.Nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	projectID, err := validation.ParseUUID(req.ProjectID, "project_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	amount, err := validation.ParseTokenAmount(req.Amount)
	if err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.Service.Purchase(c.UserContext(), projectID, buyerID, amount)
	if err != nil {
		return response.DomainError(c, err)
	}
	msg := "Tokens purchased successfully"
	if !res.LedgerConfirmed {
		msg = "Tokens purchased; ledger confirmation pending"
	}
	return response.SuccessCreated(c, msg, res, nil)
}

// POST /api/v1/sales/reconcile-ledger?limit=
func (h *Handlers) ReconcileLedger(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.ReconcileBatch)
	res, err := h.Service.ReconcileLedger(c.UserContext(), limit)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Ledger reconciliation completed", res, nil)
}
