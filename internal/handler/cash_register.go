package handler

import (
	"net/http"

	"clinicpos/internal/apierror"
	"clinicpos/internal/apperrors"
	"clinicpos/internal/dto"
	"clinicpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CashRegisterHandler struct{ svc service.CashRegisterService }

func NewCashRegisterHandler(svc service.CashRegisterService) *CashRegisterHandler {
	return &CashRegisterHandler{svc: svc}
}

// Open godoc
// @Summary Opens a cash session for the caller, force-closing any previous one
// @Tags cash-register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening amount"
// @Success 200 {object} dto.CashSessionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/open [post]
func (h *CashRegisterHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	s, err := h.svc.Open(c.Request.Context(), actor, req.InitialAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CashSession(s))
}

// Close godoc
// @Summary Closes a cash session (the caller's active one when session_id is empty)
// @Tags cash-register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CloseSessionRequest true "Closing count"
// @Success 200 {object} dto.CashSessionResponse
// @Failure 403 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/close [post]
func (h *CashRegisterHandler) Close(c *gin.Context) {
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var sessionID uuid.UUID
	if req.SessionID != "" {
		sessionID = uuid.MustParse(req.SessionID)
	} else {
		active, err := h.svc.GetActive(ctx, actor.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		if active == nil {
			respondError(c, apperrors.ErrNoActiveSession)
			return
		}
		sessionID = active.ID
	}

	s, err := h.svc.Close(ctx, actor, sessionID, req.FinalPhysicalAmount, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CashSession(s))
}

// GetActive godoc
// @Summary Returns the caller's open cash session
// @Tags cash-register
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CashSessionResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash-register/active [get]
func (h *CashRegisterHandler) GetActive(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	s, err := h.svc.GetActive(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, apierror.WithCode(string(apperrors.KindNoActiveSession), "no active cash session"))
		return
	}
	c.JSON(http.StatusOK, dto.CashSession(s))
}

// RegisterIncome godoc
// @Summary Records a manual income in the caller's open session
// @Tags cash-register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.IncomeRequest true "Income"
// @Success 201 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/income [post]
func (h *CashRegisterHandler) RegisterIncome(c *gin.Context) {
	var req dto.IncomeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	t, err := h.svc.RegisterIncome(c.Request.Context(), actor, req.Amount, req.Description, req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Transaction(t))
}

// RegisterExpense godoc
// @Summary Records a manual expense in the caller's open session
// @Tags cash-register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.ExpenseRequest true "Expense"
// @Success 201 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/expense [post]
func (h *CashRegisterHandler) RegisterExpense(c *gin.Context) {
	var req dto.ExpenseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	t, err := h.svc.RegisterExpense(c.Request.Context(), actor, req.Category, req.Amount, req.Description, req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Transaction(t))
}

// CancelTransaction godoc
// @Summary Cancels a manual ledger entry of an open session
// @Tags cash-register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param body body dto.CancelTransactionRequest true "Reason"
// @Success 200 {object} dto.TransactionResponse
// @Failure 403 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/cash-register/transactions/{id}/cancel [post]
func (h *CashRegisterHandler) CancelTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	t, err := h.svc.CancelTransaction(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Transaction(t))
}

// ListTransactions godoc
// @Summary Lists the ledger entries of a session
// @Tags cash-register
// @Produce json
// @Security BearerAuth
// @Param session_id query string true "Session ID"
// @Success 200 {array} dto.TransactionResponse
// @Router /v1/cash-register/transactions [get]
func (h *CashRegisterHandler) ListTransactions(c *gin.Context) {
	id, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid session_id"))
		return
	}
	rows, err := h.svc.ListTransactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Transactions(rows))
}

// Report godoc
// @Summary Session summary with ledger-derived balance and category breakdown
// @Tags cash-register
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} dto.CashSessionReport
// @Failure 404 {object} apierror.APIError
// @Router /v1/cash-register/{id}/report [get]
func (h *CashRegisterHandler) Report(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rep, err := h.svc.Report(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// History godoc
// @Summary Paginated list of cash sessions, newest first
// @Tags cash-register
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.Page[dto.CashSessionResponse]
// @Router /v1/cash-register/history [get]
func (h *CashRegisterHandler) History(c *gin.Context) {
	page, limit := pagination(c)
	rows, total, err := h.svc.History(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Page[dto.CashSessionResponse]{
		Data: dto.CashSessions(rows), Total: total, Page: page, Limit: limit,
	})
}
