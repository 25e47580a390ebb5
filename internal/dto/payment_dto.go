package dto

import "clinicpos/internal/money"

type ServicePaymentRequest struct {
	ServiceRequestID string      `json:"service_request_id" validate:"required,uuid"`
	PaymentMethod    string      `json:"payment_method"     validate:"required,oneof=cash debit credit transfer"`
	Amount           money.Money `json:"amount"`
	Notes            *string     `json:"notes"              validate:"omitempty,max=500"`
}

type RefundRequest struct {
	ServiceRequestID string      `json:"service_request_id" validate:"required,uuid"`
	TransactionID    string      `json:"transaction_id"     validate:"omitempty,uuid"`
	Amount           money.Money `json:"amount"`
	Reason           string      `json:"reason"             validate:"required,min=3,max=500"`
}

type ServiceRequestResponse struct {
	ID                   string      `json:"id"`
	PatientID            string      `json:"patient_id"`
	ServiceID            string      `json:"service_id"`
	ProfessionalID       *string     `json:"professional_id"`
	ReceptionType        string      `json:"reception_type"`
	ServiceDate          string      `json:"service_date"`
	TotalAmount          money.Money `json:"total_amount"`
	PaidAmount           money.Money `json:"paid_amount"`
	Remaining            money.Money `json:"remaining"`
	PaymentStatus        string      `json:"payment_status"`
	PaymentTransactionID *string     `json:"payment_transaction_id"`
}

type PaymentResponse struct {
	Transaction    TransactionResponse    `json:"transaction"`
	ServiceRequest ServiceRequestResponse `json:"service_request"`
	Session        CashSessionResponse    `json:"session"`
	Replayed       bool                   `json:"replayed"`
}

type RefundResponse struct {
	Refund         TransactionResponse    `json:"refund"`
	Original       TransactionResponse    `json:"original"`
	ServiceRequest ServiceRequestResponse `json:"service_request"`
	Session        CashSessionResponse    `json:"session"`
}
