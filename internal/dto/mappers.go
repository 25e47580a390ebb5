package dto

import (
	"time"

	"clinicpos/internal/model"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func timeStr(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func optTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeStr(*t)
	return &s
}

func optID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func CashSession(s *model.CashSession) CashSessionResponse {
	return CashSessionResponse{
		ID:                  s.ID.String(),
		UserID:              s.UserID.String(),
		Status:              s.Status,
		InitialAmount:       s.InitialAmount,
		TotalIncome:         s.TotalIncome,
		TotalExpense:        s.TotalExpense,
		CalculatedBalance:   s.CalculatedBalance,
		FinalPhysicalAmount: s.FinalPhysicalAmount,
		Difference:          s.Difference,
		ClosingNotes:        s.ClosingNotes,
		OpenedAt:            timeStr(s.OpenedAt),
		ClosedAt:            optTime(s.ClosedAt),
	}
}

func CashSessions(rows []model.CashSession) []CashSessionResponse {
	out := make([]CashSessionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, CashSession(&rows[i]))
	}
	return out
}

func Transaction(t *model.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                    t.ID.String(),
		SessionID:             t.SessionID.String(),
		Direction:             t.Direction,
		Category:              t.Category,
		Amount:                t.Amount,
		PaymentMethod:         t.PaymentMethod,
		Description:           t.Description,
		Status:                t.Status,
		ServiceRequestID:      optID(t.ServiceRequestID),
		ProfessionalID:        optID(t.ProfessionalID),
		LiquidationID:         optID(t.LiquidationID),
		OriginalTransactionID: optID(t.OriginalTransactionID),
		CreatedBy:             t.CreatedBy.String(),
		CancellationReason:    t.CancellationReason,
		CancelledAt:           optTime(t.CancelledAt),
		CreatedAt:             timeStr(t.CreatedAt),
	}
}

func Transactions(rows []model.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, Transaction(&rows[i]))
	}
	return out
}

func ServiceRequest(r *model.ServiceRequest) ServiceRequestResponse {
	return ServiceRequestResponse{
		ID:                   r.ID.String(),
		PatientID:            r.PatientID.String(),
		ServiceID:            r.ServiceID.String(),
		ProfessionalID:       optID(r.ProfessionalID),
		ReceptionType:        r.ReceptionType,
		ServiceDate:          r.ServiceDate.Format(dateLayout),
		TotalAmount:          r.TotalAmount,
		PaidAmount:           r.PaidAmount,
		Remaining:            r.Remaining(),
		PaymentStatus:        r.PaymentStatus,
		PaymentTransactionID: optID(r.PaymentTransactionID),
	}
}

func ServiceRequests(rows []model.ServiceRequest) []ServiceRequestResponse {
	out := make([]ServiceRequestResponse, 0, len(rows))
	for i := range rows {
		out = append(out, ServiceRequest(&rows[i]))
	}
	return out
}

func Liquidation(l *model.CommissionLiquidation) LiquidationResponse {
	resp := LiquidationResponse{
		ID:                   l.ID.String(),
		ProfessionalID:       l.ProfessionalID.String(),
		PeriodStart:          l.PeriodStart.Format(dateLayout),
		PeriodEnd:            l.PeriodEnd.Format(dateLayout),
		TotalServices:        l.TotalServices,
		GrossAmount:          l.GrossAmount,
		CommissionPercentage: l.CommissionPercentage,
		CommissionAmount:     l.CommissionAmount,
		Status:               l.Status,
		Notes:                l.Notes,
		GeneratedBy:          l.GeneratedBy.String(),
		ApprovedBy:           optID(l.ApprovedBy),
		PaymentTransactionID: optID(l.PaymentTransactionID),
		PaidAt:               optTime(l.PaidAt),
		CreatedAt:            timeStr(l.CreatedAt),
	}
	for _, d := range l.Details {
		resp.Details = append(resp.Details, LiquidationDetailResponse{
			ServiceRequestID:     d.ServiceRequestID.String(),
			PatientID:            d.PatientID.String(),
			ServiceID:            d.ServiceID.String(),
			ServiceAmount:        d.ServiceAmount,
			CommissionPercentage: d.CommissionPercentage,
			CommissionAmount:     d.CommissionAmount,
			ServiceDate:          d.ServiceDate.Format(dateLayout),
		})
	}
	return resp
}

func Liquidations(rows []model.CommissionLiquidation) []LiquidationResponse {
	out := make([]LiquidationResponse, 0, len(rows))
	for i := range rows {
		out = append(out, Liquidation(&rows[i]))
	}
	return out
}
