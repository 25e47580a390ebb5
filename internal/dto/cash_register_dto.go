package dto

import "clinicpos/internal/money"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	InitialAmount money.Money `json:"initial_amount"`
}

type CloseSessionRequest struct {
	SessionID           string       `json:"session_id"            validate:"omitempty,uuid"`
	FinalPhysicalAmount *money.Money `json:"final_physical_amount"`
	Notes               *string      `json:"notes"                 validate:"omitempty,max=1000"`
}

type IncomeRequest struct {
	Amount        money.Money `json:"amount"`
	Description   string      `json:"description"    validate:"required,min=3,max=500"`
	PaymentMethod *string     `json:"payment_method" validate:"omitempty,oneof=cash debit credit transfer"`
}

type ExpenseRequest struct {
	Category      string      `json:"category"       validate:"required,oneof=general_expense supplies"`
	Amount        money.Money `json:"amount"`
	Description   string      `json:"description"    validate:"required,min=3,max=500"`
	PaymentMethod *string     `json:"payment_method" validate:"omitempty,oneof=cash debit credit transfer"`
}

type CancelTransactionRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CashSessionResponse struct {
	ID                  string       `json:"id"`
	UserID              string       `json:"user_id"`
	Status              string       `json:"status"`
	InitialAmount       money.Money  `json:"initial_amount"`
	TotalIncome         money.Money  `json:"total_income"`
	TotalExpense        money.Money  `json:"total_expense"`
	CalculatedBalance   money.Money  `json:"calculated_balance"`
	FinalPhysicalAmount *money.Money `json:"final_physical_amount"`
	Difference          *money.Money `json:"difference"`
	ClosingNotes        *string      `json:"closing_notes"`
	OpenedAt            string       `json:"opened_at"`
	ClosedAt            *string      `json:"closed_at"`
}

type TransactionResponse struct {
	ID                    string      `json:"id"`
	SessionID             string      `json:"session_id"`
	Direction             string      `json:"direction"`
	Category              string      `json:"category"`
	Amount                money.Money `json:"amount"`
	PaymentMethod         *string     `json:"payment_method"`
	Description           string      `json:"description"`
	Status                string      `json:"status"`
	ServiceRequestID      *string     `json:"service_request_id,omitempty"`
	ProfessionalID        *string     `json:"professional_id,omitempty"`
	LiquidationID         *string     `json:"liquidation_id,omitempty"`
	OriginalTransactionID *string     `json:"original_transaction_id,omitempty"`
	CreatedBy             string      `json:"created_by"`
	CancellationReason    *string     `json:"cancellation_reason,omitempty"`
	CancelledAt           *string     `json:"cancelled_at,omitempty"`
	CreatedAt             string      `json:"created_at"`
}

type CategoryTotalResponse struct {
	Direction string      `json:"direction"`
	Category  string      `json:"category"`
	Count     int64       `json:"count"`
	Total     money.Money `json:"total"`
}

// CashSessionReport is the session summary shown to cashiers. Balance is
// always re-derived from the ledger.
type CashSessionReport struct {
	Session    CashSessionResponse     `json:"session"`
	Income     money.Money             `json:"income"`
	Expense    money.Money             `json:"expense"`
	Balance    money.Money             `json:"balance"`
	Categories []CategoryTotalResponse `json:"categories"`
}

type Page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}
