package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client submits audit records to the external append-only ledger.
// Every submission carries an idempotency key: submitting the same key twice
// must return the original receipt instead of appending a second record.
type Client interface {
	SubmitTokenCreation(ctx context.Context, rec TokenCreation) (*Receipt, error)
	SubmitDividend(ctx context.Context, rec Dividend) (*Receipt, error)
	Ping(ctx context.Context) error
}

// TokenCreation records tokens issued to a buyer by one purchase.
type TokenCreation struct {
	IdempotencyKey string `json:"idempotency_key"`
	TokenID        string `json:"token_id"`
	ProjectID      string `json:"project_id"`
	Amount         int64  `json:"amount"`
}

// Dividend records one profit distribution.
type Dividend struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ProjectID      string          `json:"project_id"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	AdminShare     decimal.Decimal `json:"admin_share"`
	UserShare      decimal.Decimal `json:"user_share"`
	ProfitPerToken decimal.Decimal `json:"profit_per_token"`
}

// Receipt is the ledger's confirmation of an included record.
type Receipt struct {
	Handle      string    `json:"tx_hash"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

var (
	// ErrTransient marks failures where resubmitting later may succeed.
	ErrTransient = errors.New("ledger: transient failure")
	// ErrPermanent marks records the ledger will never accept as sent.
	ErrPermanent = errors.New("ledger: permanent failure")
)

// Error is returned by Client implementations.
type Error struct {
	Op         string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger %s: %s failure (status %d): %v", e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ledger %s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrPermanent:
		return e.Permanent
	case ErrTransient:
		return !e.Permanent
	}
	return false
}

// IsPermanent reports whether err must not be retried automatically.
// Errors that are not *Error (timeouts, cancellations, network) are transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
