package transactions

import (
	txsvc "tokenshare-backend/internal/application/transactions"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/response"
	"tokenshare-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *txsvc.Service
}

// GetTransactions GET /api/v1/transactions/get-transactions?type=&project_id=&limit=
func (h *Handlers) GetTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return response.Unauthorized(c, "Unauthorized")
	}

	q := txsvc.Query{UserID: userID, Type: c.Query("type"), Limit: c.QueryInt("limit")}
	if raw := c.Query("project_id"); raw != "" {
		id, err := validation.ParseUUID(raw, "project_id")
		if err != nil {
			return response.DomainError(c, err)
		}
		q.ProjectID = id
	}

	list, err := h.Service.ViewTransactions(c.UserContext(), q)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Transactions fetched successfully", list, fiber.Map{"count": len(list)})
}
