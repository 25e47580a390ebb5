package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Professional is read from the catalog; the liquidation engine only needs
// the commission rate and, for statement delivery, the email.
type Professional struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name                 string          `gorm:"not null"`
	Email                *string
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Active               bool            `gorm:"not null;default:true"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (Professional) TableName() string { return "professionals" }
