package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	HoldingStatusActive      = "active"
	HoldingStatusSold        = "sold"
	HoldingStatusTransferred = "transferred"
)

// Holding is one purchase of tokens by a user. A user may own several
// holdings in the same project; active holdings sum to the tokens sold.
//
// LedgerHandle stays nil until the token-creation record is confirmed by the
// external ledger. LedgerRejected marks a permanent rejection that must not be
// retried automatically.
type Holding struct {
	HoldingID      uuid.UUID `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	ProjectID      uuid.UUID `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Amount         int64     `gorm:"column:amount;not null" json:"amount"`
	Status         string    `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	LedgerHandle   *string   `gorm:"column:ledger_handle" json:"ledger_handle"`
	LedgerAttempts int       `gorm:"column:ledger_attempts;not null;default:0" json:"ledger_attempts"`
	LedgerError    *string   `gorm:"column:ledger_error" json:"ledger_error,omitempty"`
	LedgerRejected bool      `gorm:"column:ledger_rejected;not null;default:false" json:"ledger_rejected"`
	CreatedAt      time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Holding) TableName() string {
	return "Holdings"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// LedgerConfirmed reports whether the external ledger confirmed this holding.
func (h *Holding) LedgerConfirmed() bool {
	return h.LedgerHandle != nil && *h.LedgerHandle != ""
}
