package service

import (
	"context"
	"errors"
	"fmt"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RefundInput reverses a payment. TransactionID is optional: without it the
// latest active income entry of the request is refunded.
type RefundInput struct {
	ServiceRequestID uuid.UUID
	TransactionID    *uuid.UUID
	Amount           money.Money
	Reason           string
}

type RefundResult struct {
	Refund         *model.Transaction
	Original       *model.Transaction
	ServiceRequest *model.ServiceRequest
	Session        *model.CashSession
}

type RefundService interface {
	Refund(ctx context.Context, actor model.Actor, in RefundInput) (*RefundResult, error)
}

type refundService struct {
	d      Deps
	ledger ledger
}

func NewRefundService(d Deps) RefundService {
	d = d.withDefaults()
	return &refundService{d: d, ledger: ledger{d: d}}
}

const refundCancellationSuffix = " (cancelled via refund)"

// ── Refund ────────────────────────────────────────────────────────────────────
// Writes a compensating service_refund expense, cancels the original income
// entry and the service request, and lowers the session's income total. The
// original entry is cancelled directly: it may belong to an earlier, already
// closed session.

func (s *refundService) Refund(ctx context.Context, actor model.Actor, in RefundInput) (*RefundResult, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidAmount, "refund amount must be greater than zero")
	}

	release := s.d.Locker.Lock(ctx, lockKey("service_request", in.ServiceRequestID))
	defer release()

	res := &RefundResult{}
	var beforeStatus string
	var beforeIncome money.Money
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		req, err := s.d.Requests.FindByIDForUpdate(ctx, tx, in.ServiceRequestID)
		if err != nil {
			return notFound(err, "service request")
		}
		if req.PaymentStatus == model.PaymentCancelled {
			return apperrors.New(apperrors.KindAlreadyCancelled, "service request is already cancelled")
		}

		original, err := s.resolveOriginal(ctx, tx, req.ID, in.TransactionID)
		if err != nil {
			return err
		}
		if req.PaymentStatus != model.PaymentPaid {
			return apperrors.New(apperrors.KindNotFullyPaid, "only fully paid service requests can be refunded")
		}
		if in.Amount.GreaterThan(original.Amount) {
			return apperrors.Newf(apperrors.KindAmountExceedsOriginal,
				"refund %s exceeds the original payment %s", in.Amount, original.Amount)
		}
		liquidated, err := s.d.Liquidations.FindLiquidatedServiceIDs(ctx, tx, []uuid.UUID{req.ID})
		if err != nil {
			return err
		}
		if len(liquidated) > 0 {
			return apperrors.New(apperrors.KindConflict,
				"service request is part of a commission liquidation; cancel or revert the liquidation first")
		}
		session, err := s.ledger.activeSession(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		beforeStatus, beforeIncome = req.PaymentStatus, session.TotalIncome

		refund := &model.Transaction{
			SessionID:             session.ID,
			Direction:             model.DirectionExpense,
			Category:              model.CategoryServiceRefund,
			Amount:                in.Amount,
			PaymentMethod:         original.PaymentMethod,
			Description:           "Refund: " + in.Reason,
			ServiceRequestID:      &req.ID,
			ProfessionalID:        req.ProfessionalID,
			OriginalTransactionID: &original.ID,
			CreatedBy:             actor.UserID,
		}
		if err := s.ledger.record(ctx, tx, refund); err != nil {
			return err
		}

		now := s.d.Clock.Now()
		original.MarkCancelled(actor.UserID, fmt.Sprintf("refunded by transaction %s: %s", refund.ID, in.Reason), now)
		if err := s.d.Transactions.UpdateStatusTx(ctx, tx, original); err != nil {
			return err
		}

		session.ApplyIncome(in.Amount.Neg())
		if err := s.d.Sessions.UpdateTx(ctx, tx, session); err != nil {
			return err
		}

		req.Cancel(actor.UserID, in.Reason+refundCancellationSuffix, now)
		if err := s.d.Requests.UpdatePaymentTx(ctx, tx, req); err != nil {
			return err
		}

		res.Refund, res.Original, res.ServiceRequest, res.Session = refund, original, req, session
		return nil
	})
	if err != nil {
		return nil, storageError("refunds.refund", err,
			map[string]string{"service_request_id": in.ServiceRequestID.String(), "user_id": actor.UserID.String()})
	}

	log.Info().Str("service_request_id", res.ServiceRequest.ID.String()).
		Str("refund_id", res.Refund.ID.String()).Str("actor_id", actor.UserID.String()).
		Str("amount", in.Amount.String()).Msg("refunds: service payment refunded")
	s.d.emit(ctx, actor.UserID,
		audit{
			entityType: model.EntityTransaction, entityID: res.Refund.ID, event: "created",
			description: res.Refund.Description,
			newValues: map[string]interface{}{
				"direction": res.Refund.Direction, "category": res.Refund.Category, "amount": res.Refund.Amount,
				"original_transaction_id": res.Original.ID,
			},
		},
		audit{
			entityType: model.EntityTransaction, entityID: res.Original.ID, event: "cancelled",
			description: *res.Original.CancellationReason,
			oldValues:   map[string]interface{}{"status": model.TransactionActive},
			newValues:   map[string]interface{}{"status": res.Original.Status},
		},
		audit{
			entityType: model.EntityServiceRequest, entityID: res.ServiceRequest.ID, event: "refunded",
			description: *res.ServiceRequest.CancellationReason,
			oldValues:   map[string]interface{}{"payment_status": beforeStatus},
			newValues:   map[string]interface{}{"payment_status": res.ServiceRequest.PaymentStatus},
		},
		audit{
			entityType: model.EntityCashSession, entityID: res.Session.ID, event: "income_adjusted",
			description: "income lowered by refund",
			oldValues:   map[string]interface{}{"total_income": beforeIncome},
			newValues:   map[string]interface{}{"total_income": res.Session.TotalIncome},
		},
	)
	return res, nil
}

// resolveOriginal finds the income entry being refunded. An explicit id that
// belongs to another request, or is not an income entry, counts as missing.
func (s *refundService) resolveOriginal(ctx context.Context, tx *gorm.DB, requestID uuid.UUID, transactionID *uuid.UUID) (*model.Transaction, error) {
	if transactionID == nil {
		original, err := s.d.Transactions.FindLatestActiveIncome(ctx, tx, requestID)
		if err != nil {
			return nil, err
		}
		if original == nil {
			return nil, apperrors.New(apperrors.KindOriginalNotFound, "no active payment found for this service request")
		}
		return original, nil
	}

	original, err := s.d.Transactions.FindByIDForUpdate(ctx, tx, *transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindOriginalNotFound, "original transaction not found")
		}
		return nil, err
	}
	if original.ServiceRequestID == nil || *original.ServiceRequestID != requestID ||
		original.Direction != model.DirectionIncome {
		return nil, apperrors.New(apperrors.KindOriginalNotFound, "original transaction not found for this service request")
	}
	if !original.IsActive() {
		return nil, apperrors.New(apperrors.KindAlreadyCancelled, "original transaction was already cancelled")
	}
	return original, nil
}
