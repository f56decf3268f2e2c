package sale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokenshare-backend/internal/application/ledger"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the token sale ledger: it owns available_tokens and the holdings
// created against it.
type Service struct {
	DB            *gorm.DB
	Ledger        ledger.Client
	LedgerTimeout time.Duration
}

// PurchaseResult is returned to the buyer. LedgerHandle is nil when the
// ledger could not confirm the token creation; the sale still stands and the
// record is retried by ReconcileLedger.
type PurchaseResult struct {
	TokenID         uuid.UUID       `json:"token_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	ProjectID       uuid.UUID       `json:"project_id"`
	Amount          int64           `json:"amount"`
	TotalValue      decimal.Decimal `json:"total_value"`
	AvailableTokens int64           `json:"available_tokens"`
	LedgerHandle    *string         `json:"ledger_handle"`
	LedgerConfirmed bool            `json:"ledger_confirmed"`
	LedgerError     *string         `json:"ledger_error,omitempty"`
}

// Purchase sells amount tokens of projectID to buyerID.
func (s *Service) Purchase(ctx context.Context, projectID, buyerID uuid.UUID, amount int64) (*PurchaseResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var result PurchaseResult
	var holding domain.Holding

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		if err := database.ForUpdate(tx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProjectNotFound
			}
			return err
		}
		if project.Status != domain.ProjectStatusActive {
			return fmt.Errorf("%w: project is %s", domain.ErrProjectNotActive, project.Status)
		}
		if project.AvailableTokens < amount {
			return insufficient(amount, project.AvailableTokens, project.TotalTokens)
		}

		// Conditional decrement: the row lock already serializes buyers on
		// Postgres, the guard keeps the invariant on stores without row locks.
		res := tx.Model(&domain.Project{}).
			Where("project_id = ? AND status = ? AND available_tokens >= ?", projectID, domain.ProjectStatusActive, amount).
			Update("available_tokens", gorm.Expr("available_tokens - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			var current domain.Project
			if err := tx.Where("project_id = ?", projectID).First(&current).Error; err != nil {
				return err
			}
			return insufficient(amount, current.AvailableTokens, current.TotalTokens)
		}

		holding = domain.Holding{
			ProjectID: projectID,
			UserID:    buyerID,
			Amount:    amount,
			Status:    domain.HoldingStatusActive,
		}
		if err := tx.Create(&holding).Error; err != nil {
			return err
		}

		totalValue := project.TokenPrice.Mul(decimal.NewFromInt(amount))
		meta, _ := json.Marshal(map[string]interface{}{
			"token_price": project.TokenPrice.String(),
		})
		txRecord := domain.Transaction{
			Type:        domain.TransactionTypePurchase,
			Status:      domain.TransactionStatusCompleted,
			ProjectID:   projectID,
			UserID:      buyerID,
			AdminID:     project.AdminID,
			TokenAmount: amount,
			TotalValue:  totalValue,
			HoldingID:   &holding.HoldingID,
			Metadata:    datatypes.JSON(meta),
		}
		if err := tx.Create(&txRecord).Error; err != nil {
			return err
		}

		result = PurchaseResult{
			TokenID:         holding.HoldingID,
			TransactionID:   txRecord.TxID,
			ProjectID:       projectID,
			Amount:          amount,
			TotalValue:      totalValue,
			AvailableTokens: project.AvailableTokens - amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("project_id", projectID.String()).Str("holding_id", holding.HoldingID.String()).
		Int64("amount", amount).Int64("available_tokens", result.AvailableTokens).Msg("tokens purchased")

	// The sale is committed; ledger confirmation is best-effort from here on.
	handle, lerr := s.confirm(ctx, &holding)
	result.LedgerHandle = handle
	result.LedgerConfirmed = handle != nil
	if lerr != nil {
		msg := lerr.Error()
		result.LedgerError = &msg
	}
	return &result, nil
}

func insufficient(requested, available, total int64) error {
	return fmt.Errorf("%w: requested %d, %d/%d tokens remaining", domain.ErrInsufficientSupply, requested, available, total)
}

// confirm submits the token creation for h and records the outcome on the holding.
func (s *Service) confirm(ctx context.Context, h *domain.Holding) (*string, error) {
	if s.Ledger == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	receipt, err := s.Ledger.SubmitTokenCreation(callCtx, ledger.TokenCreation{
		IdempotencyKey: h.HoldingID.String(),
		TokenID:        h.HoldingID.String(),
		ProjectID:      h.ProjectID.String(),
		Amount:         h.Amount,
	})

	// Persist the outcome even if the caller went away.
	saveCtx := context.WithoutCancel(ctx)
	updates := map[string]interface{}{"ledger_attempts": gorm.Expr("ledger_attempts + 1")}
	if err != nil {
		msg := err.Error()
		updates["ledger_error"] = msg
		if ledger.IsPermanent(err) {
			updates["ledger_rejected"] = true
		}
		log.Warn().Err(err).Str("holding_id", h.HoldingID.String()).Bool("permanent", ledger.IsPermanent(err)).
			Msg("token creation not confirmed by ledger")
	} else {
		updates["ledger_handle"] = receipt.Handle
		updates["ledger_error"] = nil
	}
	if uerr := s.DB.WithContext(saveCtx).Model(&domain.Holding{}).
		Where("holding_id = ?", h.HoldingID).Updates(updates).Error; uerr != nil {
		log.Error().Err(uerr).Str("holding_id", h.HoldingID.String()).Msg("failed to record ledger outcome")
	}

	if err != nil {
		if ledger.IsPermanent(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrLedgerRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return &receipt.Handle, nil
}

func (s *Service) timeout() time.Duration {
	if s.LedgerTimeout > 0 {
		return s.LedgerTimeout
	}
	return 30 * time.Second
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Scanned   int `json:"scanned"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
}

// ReconcileLedger retries token-creation records for active holdings the
// ledger has not confirmed yet. Permanently rejected holdings are skipped.
func (s *Service) ReconcileLedger(ctx context.Context, limit int) (ReconcileResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var pending []domain.Holding
	if err := s.DB.WithContext(ctx).
		Where("ledger_handle IS NULL AND ledger_rejected = ? AND status = ?", false, domain.HoldingStatusActive).
		Order(`"createdAt" ASC`).
		Limit(limit).
		Find(&pending).Error; err != nil {
		return ReconcileResult{}, err
	}

	out := ReconcileResult{Scanned: len(pending)}
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		_, err := s.confirm(ctx, &pending[i])
		switch {
		case err == nil:
			out.Confirmed++
		case errors.Is(err, domain.ErrLedgerRejected):
			out.Rejected++
		default:
			out.Failed++
		}
	}
	if out.Scanned > 0 {
		log.Info().Int("scanned", out.Scanned).Int("confirmed", out.Confirmed).Int("failed", out.Failed).
			Int("rejected", out.Rejected).Msg("ledger reconciliation pass")
	}
	return out, nil
}
