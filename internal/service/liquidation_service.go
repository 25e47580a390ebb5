package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/dto"
	"clinicpos/internal/model"
	"clinicpos/internal/money"
	"clinicpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DefaultRevertReasonMinLength applies when LiquidationOptions leaves it unset.
const DefaultRevertReasonMinLength = 10

type GenerateInput struct {
	ProfessionalID    uuid.UUID
	PeriodStart       time.Time
	PeriodEnd         time.Time
	ServiceRequestIDs []uuid.UUID
	Notes             *string
}

// StatementRenderer produces the printable statement of a liquidation.
type StatementRenderer interface {
	RenderStatement(l *model.CommissionLiquidation, p *model.Professional) ([]byte, error)
}

// ReportExporter turns a commission report into a spreadsheet.
type ReportExporter interface {
	ExportCommissionReport(r *dto.CommissionReport) ([]byte, error)
}

type LiquidationOptions struct {
	RevertReasonMinLength int
	Notifier              StatementNotifier
	Renderer              StatementRenderer
	Exporter              ReportExporter
}

type LiquidationService interface {
	Generate(ctx context.Context, actor model.Actor, in GenerateInput) (*model.CommissionLiquidation, error)
	Approve(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error)
	// Pay uses sessionID when given, else the actor's open session.
	Pay(ctx context.Context, actor model.Actor, id uuid.UUID, sessionID *uuid.UUID) (*model.CommissionLiquidation, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error)
	RevertPayment(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.CommissionLiquidation, error)
	Get(ctx context.Context, id uuid.UUID) (*model.CommissionLiquidation, error)
	List(ctx context.Context, f repository.LiquidationFilter) ([]model.CommissionLiquidation, int64, error)
	PreviewServices(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]model.ServiceRequest, error)
	Report(ctx context.Context, professionalID *uuid.UUID, start, end time.Time) (*dto.CommissionReport, error)
	ExportReport(ctx context.Context, professionalID *uuid.UUID, start, end time.Time) ([]byte, error)
	StatementPDF(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type liquidationService struct {
	d      Deps
	ledger ledger
	opts   LiquidationOptions
}

func NewLiquidationService(d Deps, opts LiquidationOptions) LiquidationService {
	d = d.withDefaults()
	if opts.RevertReasonMinLength <= 0 {
		opts.RevertReasonMinLength = DefaultRevertReasonMinLength
	}
	return &liquidationService{d: d, ledger: ledger{d: d}, opts: opts}
}

// ── Generate ──────────────────────────────────────────────────────────────────
// The requested service rows are locked (in id order) before the dedup check
// so two generations racing over the same service cannot both succeed.

func (s *liquidationService) Generate(ctx context.Context, actor model.Actor, in GenerateInput) (*model.CommissionLiquidation, error) {
	ids := uniqueIDs(in.ServiceRequestIDs)
	if len(ids) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "at least one service request is required")
	}
	if in.PeriodEnd.Before(in.PeriodStart) {
		return nil, apperrors.New(apperrors.KindValidation, "period_end must not be before period_start")
	}

	professional, err := s.d.Professionals.FindByID(ctx, in.ProfessionalID)
	if err != nil {
		return nil, storageError("commissions.generate", notFound(err, "professional"),
			map[string]string{"professional_id": in.ProfessionalID.String()})
	}

	var liq *model.CommissionLiquidation
	err = s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		requests, err := s.d.Requests.FindByIDsForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(requests) != len(ids) {
			return apperrors.New(apperrors.KindNotFound, "one or more service requests do not exist")
		}
		windowEnd := in.PeriodEnd.AddDate(0, 0, 1)
		for _, r := range requests {
			if r.PaymentStatus != model.PaymentPaid {
				return apperrors.Newf(apperrors.KindValidation, "service request %s is not paid", r.ID)
			}
			if r.ProfessionalID == nil || *r.ProfessionalID != professional.ID {
				return apperrors.Newf(apperrors.KindValidation,
					"service request %s does not belong to the professional", r.ID)
			}
			if r.ServiceDate.Before(in.PeriodStart) || !r.ServiceDate.Before(windowEnd) {
				return apperrors.Newf(apperrors.KindValidation,
					"service request %s dated %s is outside the period", r.ID, r.ServiceDate.Format("2006-01-02"))
			}
		}

		taken, err := s.d.Liquidations.FindLiquidatedServiceIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return apperrors.Newf(apperrors.KindAlreadyLiquidated,
				"service request %s already belongs to another liquidation", taken[0])
		}

		liq = buildLiquidation(professional, requests, in, actor.UserID, s.d.Clock.Now())
		if !liq.CommissionAmount.IsPositive() {
			return apperrors.New(apperrors.KindInvalidAmount, "commission amount is zero, nothing to liquidate")
		}
		return s.d.Liquidations.CreateTx(ctx, tx, liq)
	})
	if err != nil {
		return nil, storageError("commissions.generate", err,
			map[string]string{"professional_id": in.ProfessionalID.String()})
	}

	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityLiquidation, entityID: liq.ID, event: "generated",
		description: fmt.Sprintf("liquidation of %d services generated", liq.TotalServices),
		newValues: map[string]interface{}{
			"status": liq.Status, "gross_amount": liq.GrossAmount,
			"commission_percentage": liq.CommissionPercentage, "commission_amount": liq.CommissionAmount,
		},
	})
	return liq, nil
}

// buildLiquidation computes totals and detail rows. Detail commissions are
// the parent commission split by service amount, so they always add up to it.
func buildLiquidation(p *model.Professional, requests []model.ServiceRequest, in GenerateInput, actor uuid.UUID, now time.Time) *model.CommissionLiquidation {
	amounts := make([]money.Money, len(requests))
	for i, r := range requests {
		amounts[i] = r.TotalAmount
	}
	gross := money.Sum(amounts...)
	commission := gross.Percent(p.CommissionPercentage)
	shares := money.Allocate(commission, amounts)

	liq := &model.CommissionLiquidation{
		ID:                   uuid.New(),
		ProfessionalID:       p.ID,
		PeriodStart:          in.PeriodStart,
		PeriodEnd:            in.PeriodEnd,
		TotalServices:        len(requests),
		GrossAmount:          gross,
		CommissionPercentage: p.CommissionPercentage,
		CommissionAmount:     commission,
		Status:               model.LiquidationDraft,
		Notes:                in.Notes,
		GeneratedBy:          actor,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i, r := range requests {
		liq.Details = append(liq.Details, model.CommissionLiquidationDetail{
			ID:                   uuid.New(),
			LiquidationID:        liq.ID,
			ServiceRequestID:     r.ID,
			PatientID:            r.PatientID,
			ServiceID:            r.ServiceID,
			ServiceAmount:        r.TotalAmount,
			CommissionPercentage: p.CommissionPercentage,
			CommissionAmount:     shares[i],
			ServiceDate:          r.ServiceDate,
			CreatedAt:            now,
		})
	}
	return liq
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ── State transitions ─────────────────────────────────────────────────────────

// transition locks the liquidation, checks the actor may move it to the
// target status and runs fn inside one unit of work.
func (s *liquidationService) transition(ctx context.Context, actor model.Actor, op string, id uuid.UUID, to string,
	fn func(tx *gorm.DB, l *model.CommissionLiquidation) error) (*model.CommissionLiquidation, string, error) {
	release := s.d.Locker.Lock(ctx, lockKey("liquidation", id))
	defer release()

	var liq *model.CommissionLiquidation
	var from string
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		liq, err = s.d.Liquidations.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return notFound(err, "liquidation")
		}
		from = liq.Status
		if err := authorize(actor, from, to); err != nil {
			return err
		}
		if err := fn(tx, liq); err != nil {
			return err
		}
		liq.UpdatedAt = s.d.Clock.Now()
		return s.d.Liquidations.UpdateTx(ctx, tx, liq)
	})
	if err != nil {
		return nil, "", storageError(op, err, map[string]string{"liquidation_id": id.String()})
	}
	return liq, from, nil
}

func (s *liquidationService) Approve(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error) {
	liq, from, err := s.transition(ctx, actor, "commissions.approve", id, model.LiquidationApproved, func(_ *gorm.DB, l *model.CommissionLiquidation) error {
		// paid → approved is only reachable through RevertPayment
		if l.Status != model.LiquidationDraft {
			return apperrors.Newf(apperrors.KindInvalidTransition,
				"liquidation cannot be approved from %s", l.Status)
		}
		if err := l.TransitionTo(model.LiquidationApproved); err != nil {
			return err
		}
		now := s.d.Clock.Now()
		l.ApprovedBy = &actor.UserID
		l.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitTransition(ctx, actor, liq, from, "approved", "liquidation approved")
	return liq, nil
}

// Pay writes the commission_payment expense into an open session and marks
// the liquidation paid in the same unit.
func (s *liquidationService) Pay(ctx context.Context, actor model.Actor, id uuid.UUID, sessionID *uuid.UUID) (*model.CommissionLiquidation, error) {
	var payment *model.Transaction
	liq, from, err := s.transition(ctx, actor, "commissions.pay", id, model.LiquidationPaid, func(tx *gorm.DB, l *model.CommissionLiquidation) error {
		if !model.CanTransition(l.Status, model.LiquidationPaid) {
			return apperrors.Newf(apperrors.KindInvalidTransition, "liquidation cannot move from %s to %s", l.Status, model.LiquidationPaid)
		}
		session, err := s.paySession(ctx, tx, actor, sessionID)
		if err != nil {
			return err
		}

		payment = &model.Transaction{
			SessionID:      session.ID,
			Direction:      model.DirectionExpense,
			Category:       model.CategoryCommissionPayment,
			Amount:         l.CommissionAmount,
			Description:    fmt.Sprintf("Commission payment, liquidation %s", l.ID),
			ProfessionalID: &l.ProfessionalID,
			LiquidationID:  &l.ID,
			CreatedBy:      actor.UserID,
		}
		if err := s.ledger.record(ctx, tx, payment); err != nil {
			return err
		}
		applyToSession(session, payment, false)
		if err := s.d.Sessions.UpdateTx(ctx, tx, session); err != nil {
			return err
		}

		if err := l.TransitionTo(model.LiquidationPaid); err != nil {
			return err
		}
		now := s.d.Clock.Now()
		l.PaymentTransactionID = &payment.ID
		l.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityTransaction, entityID: payment.ID, event: "created",
		description: payment.Description,
		newValues: map[string]interface{}{
			"direction": payment.Direction, "category": payment.Category, "amount": payment.Amount,
			"liquidation_id": liq.ID,
		},
	})
	s.emitTransition(ctx, actor, liq, from, "paid", "liquidation paid")
	s.notifyStatement(ctx, liq)
	return liq, nil
}

func (s *liquidationService) paySession(ctx context.Context, tx *gorm.DB, actor model.Actor, sessionID *uuid.UUID) (*model.CashSession, error) {
	if sessionID == nil {
		return s.ledger.activeSession(ctx, tx, actor.UserID)
	}
	session, err := s.d.Sessions.FindByIDForUpdate(ctx, tx, *sessionID)
	if err != nil {
		return nil, notFound(err, "cash session")
	}
	if !session.IsOpen() {
		return nil, apperrors.New(apperrors.KindNoActiveSession, "commissions can only be paid from an open cash session")
	}
	return session, nil
}

func (s *liquidationService) notifyStatement(ctx context.Context, liq *model.CommissionLiquidation) {
	if s.opts.Notifier == nil {
		return
	}
	p, err := s.d.Professionals.FindByID(ctx, liq.ProfessionalID)
	if err != nil || p.Email == nil || *p.Email == "" {
		return
	}
	if err := s.opts.Notifier.NotifyStatement(ctx, liq.ID, *p.Email); err != nil {
		log.Error().Err(err).Str("liquidation_id", liq.ID.String()).Msg("commissions: failed to schedule statement")
	}
}

func (s *liquidationService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.CommissionLiquidation, error) {
	liq, from, err := s.transition(ctx, actor, "commissions.cancel", id, model.LiquidationCancelled, func(_ *gorm.DB, l *model.CommissionLiquidation) error {
		if err := l.TransitionTo(model.LiquidationCancelled); err != nil {
			return err
		}
		now := s.d.Clock.Now()
		l.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitTransition(ctx, actor, liq, from, "cancelled", "liquidation cancelled")
	return liq, nil
}

// ── RevertPayment ─────────────────────────────────────────────────────────────
// The only path that un-winds a paid liquidation. paid → approved is a
// privileged transition, so transition rejects actors without the capability
// before the reason is checked. The payout entry is cancelled through the
// ledger, so its session must still be open.

func (s *liquidationService) RevertPayment(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.CommissionLiquidation, error) {
	reason = strings.TrimSpace(reason)

	var paymentID uuid.UUID
	liq, from, err := s.transition(ctx, actor, "commissions.revert_payment", id, model.LiquidationApproved, func(tx *gorm.DB, l *model.CommissionLiquidation) error {
		if len([]rune(reason)) < s.opts.RevertReasonMinLength {
			return apperrors.Newf(apperrors.KindValidation,
				"reason must be at least %d characters", s.opts.RevertReasonMinLength)
		}
		if err := l.TransitionTo(model.LiquidationApproved); err != nil {
			return err
		}
		if l.PaymentTransactionID == nil {
			return apperrors.New(apperrors.KindOriginalNotFound, "liquidation has no payment transaction")
		}
		paymentID = *l.PaymentTransactionID
		if _, _, err := s.ledger.cancel(ctx, tx, paymentID, actor.UserID, "payment reverted: "+reason); err != nil {
			return err
		}
		l.PaymentTransactionID = nil
		l.PaidAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Warn().Str("liquidation_id", id.String()).Str("transaction_id", paymentID.String()).
		Str("actor_id", actor.UserID.String()).Str("reason", reason).
		Msg("commissions: liquidation payment reverted")
	s.d.emit(ctx, actor.UserID,
		audit{
			entityType: model.EntityTransaction, entityID: paymentID, event: "cancelled",
			description: "payment reverted: " + reason,
			oldValues:   map[string]interface{}{"status": model.TransactionActive},
			newValues:   map[string]interface{}{"status": model.TransactionCancelled},
		},
		audit{
			entityType: model.EntityLiquidation, entityID: liq.ID, event: "payment_reverted",
			description: reason,
			oldValues:   map[string]interface{}{"status": from, "payment_transaction_id": paymentID},
			newValues:   map[string]interface{}{"status": liq.Status, "reason": reason},
		},
	)
	return liq, nil
}

func (s *liquidationService) emitTransition(ctx context.Context, actor model.Actor, l *model.CommissionLiquidation, from, event, desc string) {
	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityLiquidation, entityID: l.ID, event: event,
		description: desc,
		oldValues:   map[string]interface{}{"status": from},
		newValues:   map[string]interface{}{"status": l.Status},
	})
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *liquidationService) Get(ctx context.Context, id uuid.UUID) (*model.CommissionLiquidation, error) {
	liq, err := s.d.Liquidations.FindByID(ctx, id)
	if err != nil {
		return nil, storageError("commissions.get", notFound(err, "liquidation"), map[string]string{"liquidation_id": id.String()})
	}
	return liq, nil
}

func (s *liquidationService) List(ctx context.Context, f repository.LiquidationFilter) ([]model.CommissionLiquidation, int64, error) {
	rows, total, err := s.d.Liquidations.List(ctx, f)
	if err != nil {
		return nil, 0, storageError("commissions.list", err, nil)
	}
	return rows, total, nil
}

// PreviewServices lists the paid services of the period that no live
// liquidation covers yet.
func (s *liquidationService) PreviewServices(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]model.ServiceRequest, error) {
	if end.Before(start) {
		return nil, apperrors.New(apperrors.KindValidation, "end must not be before start")
	}
	rows, err := s.d.Requests.ListPaidByProfessional(ctx, professionalID, start, end)
	if err != nil {
		return nil, storageError("commissions.preview", err, map[string]string{"professional_id": professionalID.String()})
	}
	return rows, nil
}

// Report aggregates non-cancelled liquidations whose period overlaps
// [start, end], one row per professional.
func (s *liquidationService) Report(ctx context.Context, professionalID *uuid.UUID, start, end time.Time) (*dto.CommissionReport, error) {
	if end.Before(start) {
		return nil, apperrors.New(apperrors.KindValidation, "end must not be before start")
	}
	rows, _, err := s.d.Liquidations.List(ctx, repository.LiquidationFilter{
		ProfessionalID: professionalID, From: &start, To: &end,
	})
	if err != nil {
		return nil, storageError("commissions.report", err, nil)
	}

	byProfessional := map[uuid.UUID]*dto.CommissionReportRow{}
	var order []uuid.UUID
	report := &dto.CommissionReport{
		PeriodStart: start.Format("2006-01-02"),
		PeriodEnd:   end.Format("2006-01-02"),
		Rows:        []dto.CommissionReportRow{},
	}
	for _, l := range rows {
		if l.Status == model.LiquidationCancelled {
			continue
		}
		row, ok := byProfessional[l.ProfessionalID]
		if !ok {
			row = &dto.CommissionReportRow{ProfessionalID: l.ProfessionalID.String()}
			byProfessional[l.ProfessionalID] = row
			order = append(order, l.ProfessionalID)
		}
		addToReportRow(row, &l)
		addToReportRow(&report.Totals, &l)
	}
	for _, id := range order {
		report.Rows = append(report.Rows, *byProfessional[id])
	}
	return report, nil
}

func addToReportRow(row *dto.CommissionReportRow, l *model.CommissionLiquidation) {
	row.Liquidations++
	row.TotalServices += l.TotalServices
	row.GrossAmount = row.GrossAmount.Add(l.GrossAmount)
	row.CommissionAmount = row.CommissionAmount.Add(l.CommissionAmount)
	if l.Status == model.LiquidationPaid {
		row.PaidAmount = row.PaidAmount.Add(l.CommissionAmount)
	} else {
		row.PendingAmount = row.PendingAmount.Add(l.CommissionAmount)
	}
}

func (s *liquidationService) ExportReport(ctx context.Context, professionalID *uuid.UUID, start, end time.Time) ([]byte, error) {
	if s.opts.Exporter == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "report export is not available")
	}
	report, err := s.Report(ctx, professionalID, start, end)
	if err != nil {
		return nil, err
	}
	data, err := s.opts.Exporter.ExportCommissionReport(report)
	if err != nil {
		return nil, storageError("commissions.export", err, nil)
	}
	return data, nil
}

func (s *liquidationService) StatementPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.opts.Renderer == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "statements are not available")
	}
	liq, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.d.Professionals.FindByID(ctx, liq.ProfessionalID)
	if err != nil {
		return nil, storageError("commissions.statement", notFound(err, "professional"),
			map[string]string{"liquidation_id": id.String()})
	}
	data, err := s.opts.Renderer.RenderStatement(liq, p)
	if err != nil {
		return nil, storageError("commissions.statement", err, map[string]string{"liquidation_id": id.String()})
	}
	return data, nil
}
