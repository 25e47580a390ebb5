package model

import (
	"time"

	"clinicpos/internal/money"

	"github.com/google/uuid"
)

// Direction of a ledger entry. Amounts are always positive; the sign comes
// from the direction.
const (
	DirectionIncome  = "income"
	DirectionExpense = "expense"
)

const (
	TransactionActive    = "active"
	TransactionCancelled = "cancelled"
)

// Ledger categories.
const (
	CategoryServicePayment            = "service_payment"
	CategoryDischargePayment          = "discharge_payment"
	CategoryEmergencyDischargePayment = "emergency_discharge_payment"
	CategoryGeneralIncome             = "general_income"
	CategoryGeneralExpense            = "general_expense"
	CategorySupplies                  = "supplies"
	CategoryServiceRefund             = "service_refund"
	CategoryCommissionPayment         = "commission_payment"
)

// ManualExpenseCategories are the categories a cashier may pick when
// registering an expense by hand. Refunds and commission payouts are only
// written by their own processors.
var ManualExpenseCategories = []string{CategoryGeneralExpense, CategorySupplies}

// Transaction is a ledger entry. It is never deleted: cancellation flips
// Status and records who/why/when, leaving Amount untouched.
type Transaction struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID     uuid.UUID   `gorm:"type:uuid;not null;index"`
	Direction     string      `gorm:"type:varchar(10);not null"`
	Category      string      `gorm:"type:varchar(40);not null;index"`
	Amount        money.Money `gorm:"type:decimal(14,2);not null"`
	PaymentMethod *string     `gorm:"type:varchar(20)"`
	Description   string      `gorm:"not null"`
	Status        string      `gorm:"type:varchar(20);not null;default:'active';index"`

	ServiceRequestID *uuid.UUID `gorm:"type:uuid;index"`
	ProfessionalID   *uuid.UUID `gorm:"type:uuid;index"`
	LiquidationID    *uuid.UUID `gorm:"type:uuid;index"`
	// OriginalTransactionID is set only on refund / reversal entries.
	OriginalTransactionID *uuid.UUID `gorm:"type:uuid;index"`

	CreatedBy          uuid.UUID  `gorm:"type:uuid;not null"`
	CancelledBy        *uuid.UUID `gorm:"type:uuid"`
	CancellationReason *string
	CancelledAt        *time.Time
	CreatedAt          time.Time
}

func (Transaction) TableName() string { return "cash_transactions" }

func (t *Transaction) IsActive() bool { return t.Status == TransactionActive }

// CountsAsExpense reports whether the entry lowers the computed session
// balance on the expense side. Refunds compensate income instead.
func (t *Transaction) CountsAsExpense() bool {
	return t.Direction == DirectionExpense && t.Category != CategoryServiceRefund
}

// MarkCancelled flips the entry to cancelled.
func (t *Transaction) MarkCancelled(actor uuid.UUID, reason string, now time.Time) {
	t.Status = TransactionCancelled
	t.CancelledBy = &actor
	t.CancellationReason = &reason
	t.CancelledAt = &now
}
