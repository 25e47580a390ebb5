package model

import (
	"time"

	"clinicpos/internal/money"

	"github.com/google/uuid"
)

// Payment status of a service request.
const (
	PaymentPending   = "pending"
	PaymentPartial   = "partial"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

// Reception types decide which ledger category a payment lands in.
const (
	ReceptionScheduled          = "scheduled"
	ReceptionWalkIn             = "walk_in"
	ReceptionInpatientDischarge = "inpatient_discharge"
	ReceptionEmergency          = "emergency"
)

// ServiceRequest is owned by the reception module; the cash register only
// touches its payment fields. PaidAmount never exceeds TotalAmount.
type ServiceRequest struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PatientID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	ServiceID      uuid.UUID  `gorm:"type:uuid;not null"`
	ProfessionalID *uuid.UUID `gorm:"type:uuid;index"`
	ReceptionType  string     `gorm:"type:varchar(30);not null;default:'scheduled'"`
	ServiceDate    time.Time  `gorm:"not null;index"`

	TotalAmount          money.Money `gorm:"type:decimal(14,2);not null"`
	PaidAmount           money.Money `gorm:"type:decimal(14,2);not null;default:0"`
	PaymentStatus        string      `gorm:"type:varchar(20);not null;default:'pending';index"`
	PaymentDate          *time.Time
	PaymentTransactionID *uuid.UUID `gorm:"type:uuid"`

	CancelledBy        *uuid.UUID `gorm:"type:uuid"`
	CancellationReason *string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ServiceRequest) TableName() string { return "service_requests" }

// Remaining is the amount still owed.
func (r *ServiceRequest) Remaining() money.Money {
	return r.TotalAmount.Sub(r.PaidAmount)
}

// AcceptsPayments reports whether a payment may still be registered.
func (r *ServiceRequest) AcceptsPayments() bool {
	return r.PaymentStatus == PaymentPending || r.PaymentStatus == PaymentPartial
}

// ApplyPayment adds amount to PaidAmount and recomputes the status. Callers
// must have checked amount against Remaining; the status only moves forward
// (pending → partial → paid).
func (r *ServiceRequest) ApplyPayment(amount money.Money, transactionID uuid.UUID, now time.Time) {
	r.PaidAmount = r.PaidAmount.Add(amount)
	r.UpdatedAt = now
	if r.PaidAmount.GreaterOrEqual(r.TotalAmount) {
		r.PaymentStatus = PaymentPaid
		r.PaymentDate = &now
		r.PaymentTransactionID = &transactionID
		return
	}
	r.PaymentStatus = PaymentPartial
}

// Cancel moves the request to cancelled; used only by refunds.
func (r *ServiceRequest) Cancel(actor uuid.UUID, reason string, now time.Time) {
	r.PaymentStatus = PaymentCancelled
	r.CancelledBy = &actor
	r.CancellationReason = &reason
	r.CancelledAt = &now
	r.UpdatedAt = now
}

// PaymentCategory maps the reception type to the ledger category used for
// its payments.
func (r *ServiceRequest) PaymentCategory() string {
	switch r.ReceptionType {
	case ReceptionScheduled, ReceptionWalkIn:
		return CategoryServicePayment
	case ReceptionInpatientDischarge:
		return CategoryDischargePayment
	case ReceptionEmergency:
		return CategoryEmergencyDischargePayment
	default:
		return CategoryServicePayment
	}
}
