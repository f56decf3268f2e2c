package holdings

import (
	"context"
	"errors"
	"time"

	"tokenshare-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service encapsulates holdings operations.
type Service struct {
	DB *gorm.DB
}

type HoldingView struct {
	HoldingID       uuid.UUID `json:"holding_id"`
	ProjectID       uuid.UUID `json:"project_id"`
	ProjectName     *string   `json:"project_name"`
	ProjectStatus   *string   `json:"project_status"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status"`
	LedgerHandle    *string   `json:"ledger_handle"`
	LedgerConfirmed bool      `json:"ledger_confirmed"`
	LedgerRejected  bool      `json:"ledger_rejected"`
	CreatedAt       time.Time `json:"created_at"`
}

type CreditView struct {
	CreditID       uuid.UUID       `json:"credit_id"`
	DistributionID uuid.UUID       `json:"distribution_id"`
	ProjectID      uuid.UUID       `json:"project_id"`
	ProjectName    *string         `json:"project_name"`
	TokenAmount    int64           `json:"token_amount"`
	ProfitAmount   decimal.Decimal `json:"profit_amount"`
	LedgerHandle   *string         `json:"ledger_handle"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ViewHoldings returns the user's holdings, newest first.
func (s *Service) ViewHoldings(ctx context.Context, userID uuid.UUID) ([]HoldingView, error) {
	if userID == uuid.Nil {
		return nil, errors.New("user_id is required")
	}

	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"createdAt" DESC`).
		Find(&holdings).Error; err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return []HoldingView{}, nil
	}

	ids := make([]uuid.UUID, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.ProjectID)
	}
	projects, err := s.projectsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]HoldingView, len(holdings))
	for i, h := range holdings {
		v := HoldingView{
			HoldingID:       h.HoldingID,
			ProjectID:       h.ProjectID,
			Amount:          h.Amount,
			Status:          h.Status,
			LedgerHandle:    h.LedgerHandle,
			LedgerConfirmed: h.LedgerConfirmed(),
			LedgerRejected:  h.LedgerRejected,
			CreatedAt:       h.CreatedAt,
		}
		if p, ok := projects[h.ProjectID]; ok {
			v.ProjectName = &p.Name
			v.ProjectStatus = &p.Status
		}
		out[i] = v
	}
	return out, nil
}

// ViewProfitCredits returns the user's profit credits with the ledger handle of their distribution.
func (s *Service) ViewProfitCredits(ctx context.Context, userID uuid.UUID) ([]CreditView, error) {
	if userID == uuid.Nil {
		return nil, errors.New("user_id is required")
	}

	var credits []domain.UserProfitCredit
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"createdAt" DESC`).
		Find(&credits).Error; err != nil {
		return nil, err
	}
	if len(credits) == 0 {
		return []CreditView{}, nil
	}

	distIDs := make([]uuid.UUID, 0, len(credits))
	projIDs := make([]uuid.UUID, 0, len(credits))
	for _, c := range credits {
		distIDs = append(distIDs, c.DistributionID)
		projIDs = append(projIDs, c.ProjectID)
	}
	var dists []domain.Distribution
	if err := s.DB.WithContext(ctx).Where("distribution_id IN ?", distIDs).
		Select("distribution_id, ledger_handle").Find(&dists).Error; err != nil {
		return nil, err
	}
	handles := make(map[uuid.UUID]*string, len(dists))
	for _, d := range dists {
		handles[d.DistributionID] = d.LedgerHandle
	}
	projects, err := s.projectsByID(ctx, projIDs)
	if err != nil {
		return nil, err
	}

	out := make([]CreditView, len(credits))
	for i, c := range credits {
		v := CreditView{
			CreditID:       c.CreditID,
			DistributionID: c.DistributionID,
			ProjectID:      c.ProjectID,
			TokenAmount:    c.TokenAmount,
			ProfitAmount:   c.ProfitAmount,
			LedgerHandle:   handles[c.DistributionID],
			CreatedAt:      c.CreatedAt,
		}
		if p, ok := projects[c.ProjectID]; ok {
			v.ProjectName = &p.Name
		}
		out[i] = v
	}
	return out, nil
}

func (s *Service) projectsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Project, error) {
	var projects []domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id IN ?", ids).
		Select("project_id, name, status").Find(&projects).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]domain.Project, len(projects))
	for _, p := range projects {
		out[p.ProjectID] = p
	}
	return out, nil
}
