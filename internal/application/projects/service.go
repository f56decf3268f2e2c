package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service encapsulates the admin-facing project operations.
type Service struct {
	DB  *gorm.DB
	Now func() time.Time
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Name           string
	Description    *string
	TotalTokens    int64
	TokenPrice     decimal.Decimal
	InitialCapital decimal.Decimal
}

// Create opens a project for sale with its whole supply available.
func (s *Service) Create(ctx context.Context, adminID uuid.UUID, in CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case adminID == uuid.Nil:
		return nil, domain.ErrForbidden
	case name == "":
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	case in.TotalTokens <= 0:
		return nil, fmt.Errorf("%w: total_tokens must be a positive integer", domain.ErrInvalidInput)
	case !in.TokenPrice.IsPositive() || !in.TokenPrice.Equal(in.TokenPrice.Round(2)):
		return nil, fmt.Errorf("%w: token_price must be positive with at most 2 decimal places", domain.ErrInvalidInput)
	case in.InitialCapital.IsNegative() || !in.InitialCapital.Equal(in.InitialCapital.Round(2)):
		return nil, fmt.Errorf("%w: initial_capital must be zero or positive with at most 2 decimal places", domain.ErrInvalidInput)
	}

	p := domain.Project{
		Name:            name,
		Description:     in.Description,
		TotalTokens:     in.TotalTokens,
		AvailableTokens: in.TotalTokens,
		TokenPrice:      in.TokenPrice,
		InitialCapital:  in.InitialCapital,
		Status:          domain.ProjectStatusActive,
		AdminID:         adminID,
	}
	if err := s.DB.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	log.Info().Str("project_id", p.ProjectID.String()).Str("admin_id", adminID.String()).
		Int64("total_tokens", p.TotalTokens).Msg("project created")
	return &p, nil
}

// Cancel moves an active project to cancelled. It is refused while a
// distribution attempt holds a live lease on the project.
func (s *Service) Cancel(ctx context.Context, projectID, adminID uuid.UUID) (*domain.Project, error) {
	var project domain.Project
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProjectNotFound
			}
			return err
		}
		if project.AdminID != adminID {
			return domain.ErrForbidden
		}
		if project.Status != domain.ProjectStatusActive {
			return fmt.Errorf("%w: project is %s", domain.ErrProjectNotActive, project.Status)
		}

		var d domain.Distribution
		err := tx.Where("project_id = ?", projectID).First(&d).Error
		if err == nil && d.Leased(s.now()) {
			return domain.ErrDistributionInProgress
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		res := tx.Model(&domain.Project{}).
			Where("project_id = ? AND status = ?", projectID, domain.ProjectStatusActive).
			Update("status", domain.ProjectStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return domain.ErrProjectNotActive
		}
		project.Status = domain.ProjectStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("project_id", projectID.String()).Msg("project cancelled")
	return &project, nil
}

// Get returns the project with its tokens sold.
func (s *Service) Get(ctx context.Context, projectID uuid.UUID) (map[string]interface{}, error) {
	var p domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	return map[string]interface{}{
		"project":     p,
		"tokens_sold": p.TokensSold(),
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
