package model

import (
	"time"

	"clinicpos/internal/money"

	"github.com/google/uuid"
)

const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// CashSession is one cashier's open-to-close working period.
// Status: "open" | "closed". At most one open session exists per user
// (enforced by a partial unique index, see infra.applySchemaPatches).
type CashSession struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index"`
	InitialAmount money.Money `gorm:"type:decimal(14,2);not null"`
	// Running totals, kept in step with every ledger write on this session.
	TotalIncome  money.Money `gorm:"type:decimal(14,2);not null;default:0"`
	TotalExpense money.Money `gorm:"type:decimal(14,2);not null;default:0"`
	// CalculatedBalance is re-derived from the ledger on close.
	CalculatedBalance   money.Money  `gorm:"type:decimal(14,2);not null;default:0"`
	FinalPhysicalAmount *money.Money `gorm:"type:decimal(14,2)"`
	// Difference = FinalPhysicalAmount - CalculatedBalance, only when counted.
	Difference   *money.Money `gorm:"type:decimal(14,2)"`
	Status       string       `gorm:"type:varchar(20);not null;default:'open';index"`
	ClosingNotes *string
	OpenedAt     time.Time  `gorm:"not null"`
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CashSession) TableName() string { return "cash_sessions" }

func (s *CashSession) IsOpen() bool { return s.Status == SessionOpen }

// ApplyIncome adjusts the cached income total by delta (negative for refunds).
func (s *CashSession) ApplyIncome(delta money.Money) {
	s.TotalIncome = s.TotalIncome.Add(delta)
}

// ApplyExpense adjusts the cached expense total by delta.
func (s *CashSession) ApplyExpense(delta money.Money) {
	s.TotalExpense = s.TotalExpense.Add(delta)
}

// Close freezes the session. A nil physical count records no variance
// (forced closes on re-open never compute one).
func (s *CashSession) Close(balance money.Money, physical *money.Money, now time.Time) {
	s.CalculatedBalance = balance
	if physical != nil {
		p := *physical
		diff := p.Sub(balance)
		s.FinalPhysicalAmount = &p
		s.Difference = &diff
	}
	s.Status = SessionClosed
	s.ClosedAt = &now
}
