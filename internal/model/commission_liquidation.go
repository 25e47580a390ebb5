package model

import (
	"time"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LiquidationDraft     = "draft"
	LiquidationApproved  = "approved"
	LiquidationPaid      = "paid"
	LiquidationCancelled = "cancelled"
)

// liquidationTransitions lists every legal move of the liquidation state
// machine. paid → approved is the payment revert.
var liquidationTransitions = map[string][]string{
	LiquidationDraft:    {LiquidationApproved, LiquidationCancelled},
	LiquidationApproved: {LiquidationPaid, LiquidationCancelled},
	LiquidationPaid:     {LiquidationApproved},
}

// Transition identifies a state change.
type Transition struct{ From, To string }

// PrivilegedTransitions maps state changes to the capability the actor must
// hold to perform them.
var PrivilegedTransitions = map[Transition]string{
	{From: LiquidationPaid, To: LiquidationApproved}: CapManageCashRegister,
}

// CommissionLiquidation batches a professional's paid services over a period
// into one payout. Once paid it is only mutated by the revert path.
type CommissionLiquidation struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProfessionalID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	PeriodStart          time.Time       `gorm:"type:date;not null"`
	PeriodEnd            time.Time       `gorm:"type:date;not null"`
	TotalServices        int             `gorm:"not null"`
	GrossAmount          money.Money     `gorm:"type:decimal(14,2);not null"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CommissionAmount     money.Money     `gorm:"type:decimal(14,2);not null"`
	Status               string          `gorm:"type:varchar(20);not null;default:'draft';index"`
	Notes                *string

	GeneratedBy          uuid.UUID  `gorm:"type:uuid;not null"`
	ApprovedBy           *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt           *time.Time
	PaymentTransactionID *uuid.UUID `gorm:"type:uuid"`
	PaidAt               *time.Time
	CancelledAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Details []CommissionLiquidationDetail `gorm:"foreignKey:LiquidationID"`
}

func (CommissionLiquidation) TableName() string { return "commission_liquidations" }

// CommissionLiquidationDetail is one liquidated service.
type CommissionLiquidationDetail struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LiquidationID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ServiceRequestID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	PatientID            uuid.UUID       `gorm:"type:uuid;not null"`
	ServiceID            uuid.UUID       `gorm:"type:uuid;not null"`
	ServiceAmount        money.Money     `gorm:"type:decimal(14,2);not null"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CommissionAmount     money.Money     `gorm:"type:decimal(14,2);not null"`
	ServiceDate          time.Time       `gorm:"not null"`
	CreatedAt            time.Time
}

func (CommissionLiquidationDetail) TableName() string { return "commission_liquidation_details" }

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to string) bool {
	for _, next := range liquidationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo validates and applies a status change. It does not check
// capabilities; see PrivilegedTransitions.
func (l *CommissionLiquidation) TransitionTo(to string) error {
	if !CanTransition(l.Status, to) {
		return apperrors.Newf(apperrors.KindInvalidTransition,
			"liquidation cannot move from %s to %s", l.Status, to)
	}
	l.Status = to
	return nil
}

// DetailCommissionTotal sums the commission of every detail row.
func (l *CommissionLiquidation) DetailCommissionTotal() money.Money {
	var total money.Money
	for _, d := range l.Details {
		total = total.Add(d.CommissionAmount)
	}
	return total
}
