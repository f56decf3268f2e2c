package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokenshare-backend/internal/application/ledger"
	"tokenshare-backend/internal/application/readiness"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultLedgerTimeout = 30 * time.Second
	DefaultMaxAttempts   = 5
)

// Service is the profit distribution engine.
//
// Distribute runs as a saga: a pending record is claimed under the project
// row lock, the dividend is submitted to the ledger outside any transaction,
// and completion is committed in one transaction fenced on the claim's
// attempt number. A claim holds a lease for LedgerTimeout plus LeaseGrace;
// competing calls fail while the lease is live and may reuse the pending
// record once it has expired or was released. A pending record is claimed at
// most MaxAttempts times; after that it stays pending for manual reconciliation.
type Service struct {
	DB            *gorm.DB
	Ledger        ledger.Client
	LedgerTimeout time.Duration
	LeaseGrace    time.Duration
	MaxAttempts   int
	Now           func() time.Time
}

// Breakdown is returned to the caller for display. The committed records are authoritative.
type Breakdown struct {
	DistributionID  uuid.UUID       `json:"distribution_id"`
	ProjectID       uuid.UUID       `json:"project_id"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	AdminShare      decimal.Decimal `json:"admin_share"`
	UserShare       decimal.Decimal `json:"user_share"`
	ProfitPerToken  decimal.Decimal `json:"profit_per_token"`
	TotalUserTokens int64           `json:"total_user_tokens"`
	HolderCount     int             `json:"holder_count"`
	Credits         []Credit        `json:"per_holder_credits"`
	LedgerHandle    string          `json:"ledger_handle"`
	ProjectStatus   string          `json:"project_status"`
}

type claimed struct {
	dist    domain.Distribution
	split   Split
	request ledger.Dividend
}

// Distribute splits newProfit between the admin and the holders of a sold-out
// project, records the dividend on the ledger and completes the project.
func (s *Service) Distribute(ctx context.Context, projectID, adminID uuid.UUID, newProfit decimal.Decimal) (*Breakdown, error) {
	if err := ValidateProfit(newProfit); err != nil {
		return nil, err
	}
	if s.Ledger == nil {
		return nil, fmt.Errorf("%w: no ledger client configured", domain.ErrLedgerUnavailable)
	}

	c, err := s.claim(ctx, projectID, adminID, newProfit)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("distribution_id", c.dist.DistributionID.String()).
		Str("project_id", projectID.String()).Int("attempt", c.dist.Attempt).Logger()
	logger.Info().Str("total_profit", newProfit.String()).Int("holders", len(c.split.Credits)).Msg("distribution claimed")

	callCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout())
	receipt, err := s.Ledger.SubmitDividend(callCtx, c.request)
	cancel()
	if err != nil {
		permanent := ledger.IsPermanent(err)
		s.release(ctx, &c.dist, err, permanent)
		logger.Warn().Err(err).Bool("permanent", permanent).Msg("dividend not recorded by ledger")
		if permanent {
			return nil, fmt.Errorf("%w: %v", domain.ErrLedgerRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	if err := s.complete(ctx, c, receipt.Handle); err != nil {
		if !errors.Is(err, domain.ErrAlreadyDistributed) {
			s.release(ctx, &c.dist, err, false)
		}
		logger.Error().Err(err).Str("ledger_handle", receipt.Handle).Msg("distribution completion failed")
		return nil, err
	}
	logger.Info().Str("ledger_handle", receipt.Handle).Msg("distribution completed")

	return &Breakdown{
		DistributionID:  c.dist.DistributionID,
		ProjectID:       projectID,
		TotalProfit:     c.split.TotalProfit,
		AdminShare:      c.split.AdminShare,
		UserShare:       c.split.UserShare,
		ProfitPerToken:  c.split.ProfitPerToken,
		TotalUserTokens: c.split.TotalUserTokens,
		HolderCount:     len(c.split.Credits),
		Credits:         c.split.Credits,
		LedgerHandle:    receipt.Handle,
		ProjectStatus:   domain.ProjectStatusCompleted,
	}, nil
}

// claim re-validates readiness under the project lock and takes the lease on
// a new or reusable pending record.
func (s *Service) claim(ctx context.Context, projectID, adminID uuid.UUID, profit decimal.Decimal) (*claimed, error) {
	var out claimed
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		if err := database.ForUpdate(tx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProjectNotFound
			}
			return err
		}
		if project.AdminID != adminID {
			return domain.ErrForbidden
		}

		holders, err := loadHolders(ctx, tx, projectID)
		if err != nil {
			return err
		}
		gate := readiness.Evaluate(readiness.Snapshot{
			Found:           true,
			Status:          project.Status,
			TotalTokens:     project.TotalTokens,
			AvailableTokens: project.AvailableTokens,
			HolderCount:     len(holders),
		})
		if err := gate.Err(); err != nil {
			return err
		}

		split, err := ComputeSplit(profit, holders)
		if err != nil {
			return err
		}

		now := s.now()
		lease := now.Add(s.ledgerTimeout() + s.leaseGrace())

		var existing domain.Distribution
		err = tx.Where("project_id = ?", projectID).First(&existing).Error
		switch {
		case err == nil:
			reused, err := s.reuse(tx, &existing, split, now, lease)
			if err != nil {
				return err
			}
			if reused {
				out = claimed{dist: existing, split: split}
				return json.Unmarshal(existing.LedgerRequest, &out.request)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		d := domain.Distribution{
			DistributionID:  uuid.New(),
			ProjectID:       projectID,
			AdminID:         adminID,
			TotalProfit:     split.TotalProfit,
			AdminShare:      split.AdminShare,
			UserShare:       split.UserShare,
			ProfitPerToken:  split.ProfitPerToken,
			TotalUserTokens: split.TotalUserTokens,
			HolderCount:     len(split.Credits),
			Status:          domain.DistributionStatusPending,
			Attempt:         1,
			LeaseUntil:      &lease,
		}
		req := ledger.Dividend{
			IdempotencyKey: d.DistributionID.String(),
			ProjectID:      projectID.String(),
			TotalProfit:    split.TotalProfit,
			AdminShare:     split.AdminShare,
			UserShare:      split.UserShare,
			ProfitPerToken: split.ProfitPerToken,
		}
		body, err := json.Marshal(req)
		if err != nil {
			return err
		}
		d.LedgerRequest = datatypes.JSON(body)
		if err := tx.Create(&d).Error; err != nil {
			return err
		}
		out = claimed{dist: d, split: split, request: req}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// reuse decides what to do with the project's existing distribution record.
// It returns true when the record was re-leased for this call, false when it
// was superseded and a fresh record must be written.
func (s *Service) reuse(tx *gorm.DB, d *domain.Distribution, split Split, now, lease time.Time) (bool, error) {
	if d.Status == domain.DistributionStatusCompleted {
		log.Error().Bool("consistency_violation", true).Str("distribution_id", d.DistributionID.String()).
			Str("project_id", d.ProjectID.String()).Msg("completed distribution found for an active project")
		return false, fmt.Errorf("%w: %w", domain.ErrAlreadyDistributed, domain.ErrConsistencyViolation)
	}
	if d.Leased(now) {
		return false, fmt.Errorf("%w: %w", domain.ErrAlreadyDistributed, domain.ErrDistributionInProgress)
	}

	if !d.TotalProfit.Equal(split.TotalProfit) {
		if !d.LedgerRejected {
			return false, fmt.Errorf("%w: pending distribution %s was started with profit %s",
				domain.ErrPendingMismatch, d.DistributionID, d.TotalProfit.String())
		}
		// The ledger never accepted the rejected record, so it can be replaced.
		if err := tx.Delete(&domain.Distribution{}, "distribution_id = ? AND attempt = ?", d.DistributionID, d.Attempt).Error; err != nil {
			return false, err
		}
		log.Warn().Str("distribution_id", d.DistributionID.String()).Str("project_id", d.ProjectID.String()).
			Msg("superseding rejected pending distribution")
		return false, nil
	}
	if d.Attempt >= s.maxAttempts() {
		log.Error().Str("distribution_id", d.DistributionID.String()).Str("project_id", d.ProjectID.String()).
			Int("attempt", d.Attempt).Msg("distribution ledger attempts exhausted")
		return false, fmt.Errorf("%w: pending distribution %s gave up after %d attempts and needs manual reconciliation",
			domain.ErrLedgerRejected, d.DistributionID, d.Attempt)
	}

	res := tx.Model(&domain.Distribution{}).
		Where("distribution_id = ? AND attempt = ? AND status = ?", d.DistributionID, d.Attempt, domain.DistributionStatusPending).
		Updates(map[string]interface{}{
			"attempt":         d.Attempt + 1,
			"lease_until":     lease,
			"last_error":      nil,
			"ledger_rejected": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, fmt.Errorf("%w: %w", domain.ErrAlreadyDistributed, domain.ErrDistributionInProgress)
	}
	d.Attempt++
	d.LeaseUntil = &lease
	d.LastError = nil
	d.LedgerRejected = false
	return true, nil
}

// complete commits the distribution, the credits, the dividend transactions
// and the project status change in one transaction.
func (s *Service) complete(ctx context.Context, c *claimed, handle string) error {
	superseded := fmt.Errorf("%w: attempt %d of distribution %s was superseded",
		domain.ErrAlreadyDistributed, c.dist.Attempt, c.dist.DistributionID)

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		if err := database.ForUpdate(tx).Where("project_id = ?", c.dist.ProjectID).First(&project).Error; err != nil {
			return err
		}
		if project.Status != domain.ProjectStatusActive {
			return superseded
		}

		now := s.now()
		res := tx.Model(&domain.Distribution{}).
			Where("distribution_id = ? AND attempt = ? AND status = ?", c.dist.DistributionID, c.dist.Attempt, domain.DistributionStatusPending).
			Updates(map[string]interface{}{
				"status":        domain.DistributionStatusCompleted,
				"ledger_handle": handle,
				"completed_at":  now,
				"lease_until":   nil,
				"last_error":    nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return superseded
		}

		credits := make([]domain.UserProfitCredit, len(c.split.Credits))
		txs := make([]domain.Transaction, len(c.split.Credits))
		distID := c.dist.DistributionID
		for i, cr := range c.split.Credits {
			credits[i] = domain.UserProfitCredit{
				DistributionID: distID,
				UserID:         cr.UserID,
				ProjectID:      c.dist.ProjectID,
				TokenAmount:    cr.TokenAmount,
				ProfitAmount:   cr.ProfitAmount,
			}
			meta, _ := json.Marshal(map[string]interface{}{
				"profit_per_token": c.split.ProfitPerToken.String(),
				"ledger_handle":    handle,
			})
			txs[i] = domain.Transaction{
				Type:           domain.TransactionTypeDividend,
				Status:         domain.TransactionStatusCompleted,
				ProjectID:      c.dist.ProjectID,
				UserID:         cr.UserID,
				AdminID:        c.dist.AdminID,
				TokenAmount:    cr.TokenAmount,
				TotalValue:     cr.ProfitAmount,
				DistributionID: &distID,
				Metadata:       datatypes.JSON(meta),
			}
		}
		if err := tx.Create(&credits).Error; err != nil {
			return err
		}
		if err := tx.Create(&txs).Error; err != nil {
			return err
		}

		res = tx.Model(&domain.Project{}).
			Where("project_id = ? AND status = ?", c.dist.ProjectID, domain.ProjectStatusActive).
			Update("status", domain.ProjectStatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return superseded
		}
		return nil
	})
}

// release drops the lease of a failed attempt so the next call can retry
// without waiting for it to expire. It runs even if ctx was cancelled.
func (s *Service) release(ctx context.Context, d *domain.Distribution, cause error, permanent bool) {
	err := s.DB.WithContext(context.WithoutCancel(ctx)).Model(&domain.Distribution{}).
		Where("distribution_id = ? AND attempt = ? AND status = ?", d.DistributionID, d.Attempt, domain.DistributionStatusPending).
		Updates(map[string]interface{}{
			"lease_until":     nil,
			"last_error":      cause.Error(),
			"ledger_rejected": permanent,
		}).Error
	if err != nil {
		log.Error().Err(err).Str("distribution_id", d.DistributionID.String()).Msg("failed to release distribution lease")
	}
}

type holderRow struct {
	UserID uuid.UUID
	Tokens int64
}

// loadHolders sums active holdings per user.
func loadHolders(ctx context.Context, db *gorm.DB, projectID uuid.UUID) ([]HolderTokens, error) {
	var rows []holderRow
	err := db.WithContext(ctx).Model(&domain.Holding{}).
		Select("user_id, SUM(amount) AS tokens").
		Where("project_id = ? AND status = ?", projectID, domain.HoldingStatusActive).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]HolderTokens, 0, len(rows))
	for _, r := range rows {
		out = append(out, HolderTokens{UserID: r.UserID, Tokens: r.Tokens})
	}
	return out, nil
}

// View is a committed distribution with its credits.
type View struct {
	Distribution domain.Distribution       `json:"distribution"`
	Credits      []domain.UserProfitCredit `json:"credits"`
}

// GetDistribution returns the project's distribution record. A completed
// record without credits is reported as a consistency violation.
func (s *Service) GetDistribution(ctx context.Context, projectID uuid.UUID) (*View, error) {
	var d domain.Distribution
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDistributionNotFound
		}
		return nil, err
	}
	var credits []domain.UserProfitCredit
	if err := s.DB.WithContext(ctx).Where("distribution_id = ?", d.DistributionID).
		Order("user_id ASC").Find(&credits).Error; err != nil {
		return nil, err
	}
	if d.Status == domain.DistributionStatusCompleted && len(credits) == 0 {
		log.Error().Bool("consistency_violation", true).Str("distribution_id", d.DistributionID.String()).
			Str("project_id", projectID.String()).Msg("completed distribution has no profit credits")
		return nil, fmt.Errorf("%w: distribution %s is completed without credits", domain.ErrConsistencyViolation, d.DistributionID)
	}
	return &View{Distribution: d, Credits: credits}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ledgerTimeout() time.Duration {
	if s.LedgerTimeout > 0 {
		return s.LedgerTimeout
	}
	return defaultLedgerTimeout
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (s *Service) leaseGrace() time.Duration {
	if s.LeaseGrace > 0 {
		return s.LeaseGrace
	}
	return 5 * time.Second
}
