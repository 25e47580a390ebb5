package handler

import (
	"net/http"

	"clinicpos/internal/apierror"
	"clinicpos/internal/dto"
	"clinicpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets a client retry a payment without charging twice.
const IdempotencyKeyHeader = "Idempotency-Key"

type PaymentsHandler struct {
	payments service.PaymentService
	refunds  service.RefundService
}

func NewPaymentsHandler(payments service.PaymentService, refunds service.RefundService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments, refunds: refunds}
}

// Pay godoc
// @Summary Registers a (partial) payment of a service request
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client retry key"
// @Param body body dto.ServicePaymentRequest true "Payment"
// @Success 201 {object} dto.PaymentResponse
// @Success 200 {object} dto.PaymentResponse "replayed"
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/pending-services/pay [post]
func (h *PaymentsHandler) Pay(c *gin.Context) {
	var req dto.ServicePaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if len(key) > 100 {
		c.JSON(http.StatusBadRequest, apierror.New("Idempotency-Key must be at most 100 characters"))
		return
	}

	res, err := h.payments.ProcessServicePayment(c.Request.Context(), actor, service.PaymentInput{
		ServiceRequestID: uuid.MustParse(req.ServiceRequestID),
		Amount:           req.Amount,
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
		IdempotencyKey:   key,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, dto.PaymentResponse{
		Transaction:    dto.Transaction(res.Transaction),
		ServiceRequest: dto.ServiceRequest(res.ServiceRequest),
		Session:        dto.CashSession(res.Session),
		Replayed:       res.Replayed,
	})
}

// Refund godoc
// @Summary Refunds a fully paid service request
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RefundRequest true "Refund"
// @Success 201 {object} dto.RefundResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/pending-services/refund [post]
func (h *PaymentsHandler) Refund(c *gin.Context) {
	var req dto.RefundRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	txID, ok := optionalUUID(c, req.TransactionID, "transaction_id")
	if !ok {
		return
	}

	res, err := h.refunds.Refund(c.Request.Context(), actor, service.RefundInput{
		ServiceRequestID: uuid.MustParse(req.ServiceRequestID),
		TransactionID:    txID,
		Amount:           req.Amount,
		Reason:           req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.RefundResponse{
		Refund:         dto.Transaction(res.Refund),
		Original:       dto.Transaction(res.Original),
		ServiceRequest: dto.ServiceRequest(res.ServiceRequest),
		Session:        dto.CashSession(res.Session),
	})
}

// PendingServices godoc
// @Summary Service requests that still have an amount to collect
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.Page[dto.ServiceRequestResponse]
// @Router /v1/cash-register/pending-services [get]
func (h *PaymentsHandler) PendingServices(c *gin.Context) {
	page, limit := pagination(c)
	rows, total, err := h.payments.PendingServices(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Page[dto.ServiceRequestResponse]{
		Data: dto.ServiceRequests(rows), Total: total, Page: page, Limit: limit,
	})
}
