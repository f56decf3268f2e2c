package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DistributionStatusPending   = "pending"
	DistributionStatusCompleted = "completed"
)

// Distribution is the single profit-sharing event of a project. The unique
// index on project_id enforces the single-shot model.
//
// Attempt is the fencing token of the saga: each distribute call that claims
// the record bumps it, and only the holder of the current attempt may
// complete the record. LeaseUntil bounds how long a claim blocks others.
type Distribution struct {
	DistributionID  uuid.UUID       `gorm:"column:distribution_id;type:uuid;primaryKey" json:"distribution_id"`
	ProjectID       uuid.UUID       `gorm:"column:project_id;type:uuid;not null;uniqueIndex" json:"project_id"`
	AdminID         uuid.UUID       `gorm:"column:admin_id;type:uuid;not null" json:"admin_id"`
	TotalProfit     decimal.Decimal `gorm:"column:total_profit;type:decimal(20,2);not null" json:"total_profit"`
	AdminShare      decimal.Decimal `gorm:"column:admin_share;type:decimal(20,2);not null" json:"admin_share"`
	UserShare       decimal.Decimal `gorm:"column:user_share;type:decimal(20,2);not null" json:"user_share"`
	ProfitPerToken  decimal.Decimal `gorm:"column:profit_per_token;type:decimal(38,18);not null" json:"profit_per_token"`
	TotalUserTokens int64           `gorm:"column:total_user_tokens;not null" json:"total_user_tokens"`
	HolderCount     int             `gorm:"column:holder_count;not null" json:"holder_count"`
	LedgerHandle    *string         `gorm:"column:ledger_handle" json:"ledger_handle"`
	LedgerRequest   datatypes.JSON  `gorm:"column:ledger_request" json:"ledger_request"`
	Status          string          `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	Attempt         int             `gorm:"column:attempt;not null;default:0" json:"attempt"`
	LeaseUntil      *time.Time      `gorm:"column:lease_until" json:"lease_until,omitempty"`
	LastError       *string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LedgerRejected  bool            `gorm:"column:ledger_rejected;not null;default:false" json:"ledger_rejected"`
	CompletedAt     *time.Time      `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt       time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Distribution) TableName() string {
	return "Distributions"
}

func (d *Distribution) BeforeCreate(tx *gorm.DB) error {
	if d.DistributionID == uuid.Nil {
		d.DistributionID = uuid.New()
	}
	return nil
}

// Leased reports whether an in-flight attempt still holds the record at now.
func (d *Distribution) Leased(now time.Time) bool {
	return d.Status == DistributionStatusPending && d.LeaseUntil != nil && now.Before(*d.LeaseUntil)
}

// UserProfitCredit is one holder's share of a completed distribution.
type UserProfitCredit struct {
	CreditID       uuid.UUID       `gorm:"column:credit_id;type:uuid;primaryKey" json:"credit_id"`
	DistributionID uuid.UUID       `gorm:"column:distribution_id;type:uuid;not null;uniqueIndex:idx_credit_distribution_user" json:"distribution_id"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_credit_distribution_user;index" json:"user_id"`
	ProjectID      uuid.UUID       `gorm:"column:project_id;type:uuid;not null" json:"project_id"`
	TokenAmount    int64           `gorm:"column:token_amount;not null" json:"token_amount"`
	ProfitAmount   decimal.Decimal `gorm:"column:profit_amount;type:decimal(20,2);not null" json:"profit_amount"`
	CreatedAt      time.Time       `gorm:"column:createdAt" json:"createdAt"`
}

func (UserProfitCredit) TableName() string {
	return "UserProfitCredits"
}

func (c *UserProfitCredit) BeforeCreate(tx *gorm.DB) error {
	if c.CreditID == uuid.Nil {
		c.CreditID = uuid.New()
	}
	return nil
}
