package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"clinicpos/internal/apierror"
	"clinicpos/internal/dto"
	"clinicpos/internal/model"
	"clinicpos/internal/repository"
	"clinicpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CommissionsHandler struct{ svc service.LiquidationService }

func NewCommissionsHandler(svc service.LiquidationService) *CommissionsHandler {
	return &CommissionsHandler{svc: svc}
}

// Generate godoc
// @Summary Creates a draft liquidation over paid services of one professional
// @Tags commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.GenerateLiquidationRequest true "Liquidation"
// @Success 201 {object} dto.LiquidationResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/commissions [post]
func (h *CommissionsHandler) Generate(c *gin.Context) {
	var req dto.GenerateLiquidationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	// Formats are already checked by the datetime tags.
	start, _ := time.Parse("2006-01-02", req.PeriodStart)
	end, _ := time.Parse("2006-01-02", req.PeriodEnd)
	ids := make([]uuid.UUID, 0, len(req.ServiceRequestIDs))
	for _, raw := range req.ServiceRequestIDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	liq, err := h.svc.Generate(c.Request.Context(), actor, service.GenerateInput{
		ProfessionalID:    uuid.MustParse(req.ProfessionalID),
		PeriodStart:       start,
		PeriodEnd:         end,
		ServiceRequestIDs: ids,
		Notes:             req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Liquidation(liq))
}

type transitionFunc func(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error)

func (h *CommissionsHandler) transition(c *gin.Context, fn transitionFunc) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	liq, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Liquidation(liq))
}

// Approve godoc
// @Summary Approves a draft liquidation
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Success 200 {object} dto.LiquidationResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/commissions/{id}/approve [post]
func (h *CommissionsHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// Cancel godoc
// @Summary Cancels a draft or approved liquidation
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Success 200 {object} dto.LiquidationResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/commissions/{id}/cancel [post]
func (h *CommissionsHandler) Cancel(c *gin.Context) {
	h.transition(c, h.svc.Cancel)
}

// Pay godoc
// @Summary Pays an approved liquidation from an open cash session
// @Tags commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Param body body dto.PayLiquidationRequest false "Session to pay from"
// @Success 200 {object} dto.LiquidationResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/commissions/{id}/pay [post]
func (h *CommissionsHandler) Pay(c *gin.Context) {
	var req dto.PayLiquidationRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}
	sessionID, ok := optionalUUID(c, req.SessionID, "session_id")
	if !ok {
		return
	}
	h.transition(c, func(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error) {
		return h.svc.Pay(ctx, actor, id, sessionID)
	})
}

// RevertPayment godoc
// @Summary Reverts a paid liquidation to approved (requires cash_register.manage)
// @Tags commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Param body body dto.RevertPaymentRequest true "Reason"
// @Success 200 {object} dto.LiquidationResponse
// @Failure 403 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/commissions/{id}/revert-payment [post]
func (h *CommissionsHandler) RevertPayment(c *gin.Context) {
	var req dto.RevertPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error) {
		return h.svc.RevertPayment(ctx, actor, id, req.Reason)
	})
}

// Get godoc
// @Summary Liquidation with its detail rows
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Success 200 {object} dto.LiquidationResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/commissions/{id} [get]
func (h *CommissionsHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	liq, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Liquidation(liq))
}

// List godoc
// @Summary Lists liquidations
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param professional_id query string false "Professional"
// @Param status query string false "draft | approved | paid | cancelled"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.Page[dto.LiquidationResponse]
// @Router /v1/commissions [get]
func (h *CommissionsHandler) List(c *gin.Context) {
	profID, ok := optionalUUID(c, c.Query("professional_id"), "professional_id")
	if !ok {
		return
	}
	status := c.Query("status")
	switch status {
	case "", model.LiquidationDraft, model.LiquidationApproved, model.LiquidationPaid, model.LiquidationCancelled:
	default:
		c.JSON(http.StatusBadRequest, apierror.New("invalid status"))
		return
	}
	page, limit := pagination(c)
	rows, total, err := h.svc.List(c.Request.Context(), repository.LiquidationFilter{
		ProfessionalID: profID, Status: status, Page: page, Limit: limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Page[dto.LiquidationResponse]{
		Data: dto.Liquidations(rows), Total: total, Page: page, Limit: limit,
	})
}

// Preview godoc
// @Summary Paid services of a professional not yet covered by a liquidation
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param professional_id query string true "Professional"
// @Param start query string true "YYYY-MM-DD"
// @Param end query string true "YYYY-MM-DD"
// @Success 200 {array} dto.ServiceRequestResponse
// @Router /v1/commissions/preview [get]
func (h *CommissionsHandler) Preview(c *gin.Context) {
	profID, err := uuid.Parse(c.Query("professional_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid professional_id"))
		return
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return
	}
	rows, err := h.svc.PreviewServices(c.Request.Context(), profID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ServiceRequests(rows))
}

func (h *CommissionsHandler) reportParams(c *gin.Context) (*uuid.UUID, time.Time, time.Time, bool) {
	profID, ok := optionalUUID(c, c.Query("professional_id"), "professional_id")
	if !ok {
		return nil, time.Time{}, time.Time{}, false
	}
	start, ok := queryDate(c, "start")
	if !ok {
		return nil, time.Time{}, time.Time{}, false
	}
	end, ok := queryDate(c, "end")
	if !ok {
		return nil, time.Time{}, time.Time{}, false
	}
	return profID, start, end, true
}

// Report godoc
// @Summary Commission totals per professional for a period
// @Tags commissions
// @Produce json
// @Security BearerAuth
// @Param professional_id query string false "Professional"
// @Param start query string true "YYYY-MM-DD"
// @Param end query string true "YYYY-MM-DD"
// @Success 200 {object} dto.CommissionReport
// @Router /v1/commissions/report [get]
func (h *CommissionsHandler) Report(c *gin.Context) {
	profID, start, end, ok := h.reportParams(c)
	if !ok {
		return
	}
	rep, err := h.svc.Report(c.Request.Context(), profID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ExportReport godoc
// @Summary Commission report as an XLSX workbook
// @Tags commissions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param professional_id query string false "Professional"
// @Param start query string true "YYYY-MM-DD"
// @Param end query string true "YYYY-MM-DD"
// @Success 200 {file} binary
// @Router /v1/commissions/report/export [get]
func (h *CommissionsHandler) ExportReport(c *gin.Context) {
	profID, start, end, ok := h.reportParams(c)
	if !ok {
		return
	}
	data, err := h.svc.ExportReport(c.Request.Context(), profID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	name := fmt.Sprintf("commissions_%s_%s.xlsx", start.Format("20060102"), end.Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Statement godoc
// @Summary Printable statement of a liquidation
// @Tags commissions
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Liquidation ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/commissions/{id}/statement [get]
func (h *CommissionsHandler) Statement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	data, err := h.svc.StatementPDF(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="liquidation_`+id.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
