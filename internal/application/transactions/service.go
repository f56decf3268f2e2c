package transactions

import (
	"context"
	"fmt"

	"tokenshare-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

type Service struct {
	DB *gorm.DB
}

// Query narrows a history listing. Zero values mean no filter.
type Query struct {
	UserID    uuid.UUID
	Type      string
	ProjectID uuid.UUID
	Limit     int
}

type FormattedTx struct {
	TxID           uuid.UUID       `json:"tx_id"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	TokenAmount    int64           `json:"token_amount"`
	TotalValue     decimal.Decimal `json:"total_value"`
	CreatedAt      interface{}     `json:"created_at"`
	Role           string          `json:"role"`
	ProjectID      uuid.UUID       `json:"project_id"`
	ProjectName    *string         `json:"project_name"`
	HoldingID      *uuid.UUID      `json:"holding_id,omitempty"`
	DistributionID *uuid.UUID      `json:"distribution_id,omitempty"`
}

func (q *Query) normalize() error {
	switch q.Type {
	case "", domain.TransactionTypePurchase, domain.TransactionTypeDividend:
	default:
		return fmt.Errorf("%w: type must be %q or %q", domain.ErrInvalidInput, domain.TransactionTypePurchase, domain.TransactionTypeDividend)
	}
	switch {
	case q.Limit < 0:
		return fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return nil
}

// ViewTransactions lists purchases and dividends where the user is the buyer,
// the recipient or the project admin, newest first.
func (s *Service) ViewTransactions(ctx context.Context, q Query) ([]FormattedTx, error) {
	if q.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id missing", domain.ErrInvalidInput)
	}
	if err := q.normalize(); err != nil {
		return nil, err
	}

	tx := s.DB.WithContext(ctx).Where("(user_id = ? OR admin_id = ?)", q.UserID, q.UserID)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.ProjectID != uuid.Nil {
		tx = tx.Where("project_id = ?", q.ProjectID)
	}
	var txs []domain.Transaction
	if err := tx.Order(`"createdAt" DESC`).Limit(q.Limit).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(txs) == 0 {
		return []FormattedTx{}, nil
	}

	names, err := s.projectNames(ctx, txs)
	if err != nil {
		return nil, err
	}
	out := make([]FormattedTx, len(txs))
	for i, t := range txs {
		ft := FormattedTx{
			TxID:           t.TxID,
			Type:           t.Type,
			Status:         t.Status,
			TokenAmount:    t.TokenAmount,
			TotalValue:     t.TotalValue,
			CreatedAt:      t.CreatedAt,
			ProjectID:      t.ProjectID,
			HoldingID:      t.HoldingID,
			DistributionID: t.DistributionID,
			Role:           "admin",
		}
		if t.UserID == q.UserID {
			ft.Role = "holder"
		}
		if name, ok := names[t.ProjectID]; ok {
			ft.ProjectName = &name
		}
		out[i] = ft
	}
	return out, nil
}

func (s *Service) projectNames(ctx context.Context, txs []domain.Transaction) (map[uuid.UUID]string, error) {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(txs))
	for _, t := range txs {
		if !seen[t.ProjectID] {
			seen[t.ProjectID] = true
			ids = append(ids, t.ProjectID)
		}
	}
	var projs []domain.Project
	if err := s.DB.WithContext(ctx).Select("project_id, name").Where("project_id IN ?", ids).Find(&projs).Error; err != nil {
		return nil, fmt.Errorf("load project names: %w", err)
	}
	names := make(map[uuid.UUID]string, len(projs))
	for _, p := range projs {
		names[p.ProjectID] = p.Name
	}
	return names, nil
}
