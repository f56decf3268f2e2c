package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

// Project is a token-funded project owned by the admin who created it.
// TotalTokens is fixed at creation; AvailableTokens only ever decreases.
type Project struct {
	ProjectID       uuid.UUID       `gorm:"column:project_id;type:uuid;primaryKey" json:"project_id"`
	Name            string          `gorm:"column:name;not null" json:"name"`
	Description     *string         `gorm:"column:description" json:"description"`
	TotalTokens     int64           `gorm:"column:total_tokens;not null" json:"total_tokens"`
	AvailableTokens int64           `gorm:"column:available_tokens;not null" json:"available_tokens"`
	TokenPrice      decimal.Decimal `gorm:"column:token_price;type:decimal(20,2);not null" json:"token_price"`
	InitialCapital  decimal.Decimal `gorm:"column:initial_capital;type:decimal(20,2);not null;default:0" json:"initial_capital"`
	Status          string          `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	AdminID         uuid.UUID       `gorm:"column:admin_id;type:uuid;not null;index" json:"admin_id"`
	CreatedAt       time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Project) TableName() string {
	return "Projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ProjectID == uuid.Nil {
		p.ProjectID = uuid.New()
	}
	return nil
}

// TokensSold is total_tokens - available_tokens.
func (p *Project) TokensSold() int64 {
	return p.TotalTokens - p.AvailableTokens
}
