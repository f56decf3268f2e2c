package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TransactionTypePurchase = "purchase"
	TransactionTypeDividend = "dividend"

	TransactionStatusCompleted = "completed"
)

// Transaction is the history row other collaborators (history browsing,
// reporting) read. Purchases reference the holding, dividends the distribution.
type Transaction struct {
	TxID           uuid.UUID       `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	Type           string          `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Status         string          `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ProjectID      uuid.UUID       `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	AdminID        uuid.UUID       `gorm:"column:admin_id;type:uuid;not null;index" json:"admin_id"`
	TokenAmount    int64           `gorm:"column:token_amount;not null;default:0" json:"token_amount"`
	TotalValue     decimal.Decimal `gorm:"column:total_value;type:decimal(20,2);not null" json:"total_value"`
	HoldingID      *uuid.UUID      `gorm:"column:holding_id;type:uuid" json:"holding_id"`
	DistributionID *uuid.UUID      `gorm:"column:distribution_id;type:uuid" json:"distribution_id"`
	Metadata       datatypes.JSON  `gorm:"column:metadata" json:"metadata"`
	CreatedAt      time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "Transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}
