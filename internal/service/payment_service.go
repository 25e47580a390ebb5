package service

import (
	"context"
	"fmt"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentInput carries one service payment. IdempotencyKey is optional; when
// set, a replay returns the first result without writing anything.
type PaymentInput struct {
	ServiceRequestID uuid.UUID
	Amount           money.Money
	PaymentMethod    string
	Notes            *string
	IdempotencyKey   string
}

type PaymentResult struct {
	Transaction    *model.Transaction
	ServiceRequest *model.ServiceRequest
	Session        *model.CashSession
	Replayed       bool
}

type PaymentService interface {
	ProcessServicePayment(ctx context.Context, actor model.Actor, in PaymentInput) (*PaymentResult, error)
	PendingServices(ctx context.Context, page, limit int) ([]model.ServiceRequest, int64, error)
}

type paymentService struct {
	d      Deps
	ledger ledger
}

func NewPaymentService(d Deps) PaymentService {
	d = d.withDefaults()
	return &paymentService{d: d, ledger: ledger{d: d}}
}

// ── ProcessServicePayment ─────────────────────────────────────────────────────
// The service request row is locked before the remaining-amount check and held
// until commit, so concurrent payments on one request cannot overshoot its
// total. Ledger entry, request and session totals commit together or not at all.

func (s *paymentService) ProcessServicePayment(ctx context.Context, actor model.Actor, in PaymentInput) (*PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidAmount, "payment amount must be greater than zero")
	}

	release := s.d.Locker.Lock(ctx, lockKey("service_request", in.ServiceRequestID))
	defer release()

	res := &PaymentResult{}
	var before model.ServiceRequest
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		req, err := s.d.Requests.FindByIDForUpdate(ctx, tx, in.ServiceRequestID)
		if err != nil {
			return notFound(err, "service request")
		}
		res.ServiceRequest = req

		if in.IdempotencyKey != "" {
			replayed, err := s.replay(ctx, tx, actor, in, res)
			if err != nil || replayed {
				return err
			}
		}

		if !req.AcceptsPayments() {
			return apperrors.Newf(apperrors.KindAlreadyProcessed,
				"service request is %s and accepts no further payments", req.PaymentStatus)
		}
		remaining := req.Remaining()
		if in.Amount.GreaterThan(remaining) {
			return apperrors.Newf(apperrors.KindAmountExceedsRemaining,
				"amount %s exceeds the remaining balance %s", in.Amount, remaining)
		}
		session, err := s.ledger.activeSession(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		res.Session = session
		before = *req

		method := in.PaymentMethod
		entry := &model.Transaction{
			SessionID:        session.ID,
			Direction:        model.DirectionIncome,
			Category:         req.PaymentCategory(),
			Amount:           in.Amount,
			PaymentMethod:    &method,
			Description:      paymentDescription(req, in.Notes),
			ServiceRequestID: &req.ID,
			ProfessionalID:   req.ProfessionalID,
			CreatedBy:        actor.UserID,
		}
		if err := s.ledger.record(ctx, tx, entry); err != nil {
			return err
		}
		res.Transaction = entry

		req.ApplyPayment(in.Amount, entry.ID, s.d.Clock.Now())
		if err := s.d.Requests.UpdatePaymentTx(ctx, tx, req); err != nil {
			return err
		}
		applyToSession(session, entry, false)
		if err := s.d.Sessions.UpdateTx(ctx, tx, session); err != nil {
			return err
		}

		if in.IdempotencyKey != "" {
			return s.d.Idempotency.CreateTx(ctx, tx, &model.IdempotencyKey{
				ID:            uuid.New(),
				Scope:         model.IdempotencyServicePayment,
				Key:           in.IdempotencyKey,
				UserID:        actor.UserID,
				TransactionID: entry.ID,
				CreatedAt:     s.d.Clock.Now(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, storageError("payments.process", err,
			map[string]string{"service_request_id": in.ServiceRequestID.String(), "user_id": actor.UserID.String()})
	}
	if res.Replayed {
		return res, nil
	}

	t, req := res.Transaction, res.ServiceRequest
	s.d.emit(ctx, actor.UserID,
		audit{
			entityType: model.EntityTransaction, entityID: t.ID, event: "created",
			description: t.Description,
			newValues: map[string]interface{}{
				"direction": t.Direction, "category": t.Category, "amount": t.Amount,
				"session_id": t.SessionID, "service_request_id": req.ID,
			},
		},
		audit{
			entityType: model.EntityServiceRequest, entityID: req.ID, event: "payment_registered",
			description: fmt.Sprintf("payment of %s registered", t.Amount),
			oldValues:   map[string]interface{}{"paid_amount": before.PaidAmount, "payment_status": before.PaymentStatus},
			newValues:   map[string]interface{}{"paid_amount": req.PaidAmount, "payment_status": req.PaymentStatus},
		},
	)
	return res, nil
}

// replay resolves a previously used idempotency key. A key reused by another
// user or for a different service request is a conflict, not a replay.
func (s *paymentService) replay(ctx context.Context, tx *gorm.DB, actor model.Actor, in PaymentInput, res *PaymentResult) (bool, error) {
	key, err := s.d.Idempotency.FindTx(ctx, tx, model.IdempotencyServicePayment, in.IdempotencyKey)
	if err != nil || key == nil {
		return false, err
	}
	if key.UserID != actor.UserID {
		return false, apperrors.New(apperrors.KindConflict, "idempotency key was already used by another user")
	}
	t, err := s.d.Transactions.FindByIDForUpdate(ctx, tx, key.TransactionID)
	if err != nil {
		return false, err
	}
	if t.ServiceRequestID == nil || *t.ServiceRequestID != in.ServiceRequestID {
		return false, apperrors.New(apperrors.KindConflict, "idempotency key was already used for another service request")
	}
	session, err := s.d.Sessions.FindByID(ctx, t.SessionID)
	if err != nil {
		return false, err
	}
	res.Transaction = t
	res.Session = session
	res.Replayed = true
	return true, nil
}

func paymentDescription(req *model.ServiceRequest, notes *string) string {
	desc := fmt.Sprintf("Payment for service request %s", req.ID)
	if notes != nil && *notes != "" {
		desc += ": " + *notes
	}
	return desc
}

func (s *paymentService) PendingServices(ctx context.Context, page, limit int) ([]model.ServiceRequest, int64, error) {
	rows, total, err := s.d.Requests.ListPending(ctx, page, limit)
	if err != nil {
		return nil, 0, storageError("payments.pending", err, nil)
	}
	return rows, total, nil
}
