package dto

import (
	"clinicpos/internal/money"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type GenerateLiquidationRequest struct {
	ProfessionalID    string   `json:"professional_id"     validate:"required,uuid"`
	PeriodStart       string   `json:"period_start"        validate:"required,datetime=2006-01-02"`
	PeriodEnd         string   `json:"period_end"          validate:"required,datetime=2006-01-02"`
	ServiceRequestIDs []string `json:"service_request_ids" validate:"required,min=1,dive,uuid"`
	Notes             *string  `json:"notes"               validate:"omitempty,max=1000"`
}

type PayLiquidationRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
}

type RevertPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LiquidationDetailResponse struct {
	ServiceRequestID     string          `json:"service_request_id"`
	PatientID            string          `json:"patient_id"`
	ServiceID            string          `json:"service_id"`
	ServiceAmount        money.Money     `json:"service_amount"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	CommissionAmount     money.Money     `json:"commission_amount"`
	ServiceDate          string          `json:"service_date"`
}

type LiquidationResponse struct {
	ID                   string                      `json:"id"`
	ProfessionalID       string                      `json:"professional_id"`
	PeriodStart          string                      `json:"period_start"`
	PeriodEnd            string                      `json:"period_end"`
	TotalServices        int                         `json:"total_services"`
	GrossAmount          money.Money                 `json:"gross_amount"`
	CommissionPercentage decimal.Decimal             `json:"commission_percentage"`
	CommissionAmount     money.Money                 `json:"commission_amount"`
	Status               string                      `json:"status"`
	Notes                *string                     `json:"notes"`
	GeneratedBy          string                      `json:"generated_by"`
	ApprovedBy           *string                     `json:"approved_by"`
	PaymentTransactionID *string                     `json:"payment_transaction_id"`
	PaidAt               *string                     `json:"paid_at"`
	CreatedAt            string                      `json:"created_at"`
	Details              []LiquidationDetailResponse `json:"details,omitempty"`
}

// CommissionReportRow aggregates one professional's liquidations in a window.
type CommissionReportRow struct {
	ProfessionalID   string      `json:"professional_id"`
	Liquidations     int         `json:"liquidations"`
	TotalServices    int         `json:"total_services"`
	GrossAmount      money.Money `json:"gross_amount"`
	CommissionAmount money.Money `json:"commission_amount"`
	PaidAmount       money.Money `json:"paid_amount"`
	PendingAmount    money.Money `json:"pending_amount"`
}

type CommissionReport struct {
	PeriodStart string                `json:"period_start"`
	PeriodEnd   string                `json:"period_end"`
	Rows        []CommissionReportRow `json:"rows"`
	Totals      CommissionReportRow   `json:"totals"`
}
