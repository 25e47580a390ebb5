package service

import (
	"context"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/dto"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type CashRegisterService interface {
	Open(ctx context.Context, actor model.Actor, initialAmount money.Money) (*model.CashSession, error)
	Close(ctx context.Context, actor model.Actor, sessionID uuid.UUID, finalPhysical *money.Money, notes *string) (*model.CashSession, error)
	// GetActive returns (nil, nil) when the user has no open session.
	GetActive(ctx context.Context, userID uuid.UUID) (*model.CashSession, error)
	CalculateBalance(ctx context.Context, sessionID uuid.UUID) (money.Money, error)
	RegisterIncome(ctx context.Context, actor model.Actor, amount money.Money, description string, method *string) (*model.Transaction, error)
	RegisterExpense(ctx context.Context, actor model.Actor, category string, amount money.Money, description string, method *string) (*model.Transaction, error)
	CancelTransaction(ctx context.Context, actor model.Actor, transactionID uuid.UUID, reason string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error)
	Report(ctx context.Context, sessionID uuid.UUID) (*dto.CashSessionReport, error)
	History(ctx context.Context, page, limit int) ([]model.CashSession, int64, error)
}

type cashRegisterService struct {
	d      Deps
	ledger ledger
}

func NewCashRegisterService(d Deps) CashRegisterService {
	d = d.withDefaults()
	return &cashRegisterService{d: d, ledger: ledger{d: d}}
}

// ── Open ──────────────────────────────────────────────────────────────────────
// Any session the user left open is force-closed in the same unit, without a
// physical count, so at most one open session per user ever exists.

func (s *cashRegisterService) Open(ctx context.Context, actor model.Actor, initialAmount money.Money) (*model.CashSession, error) {
	if initialAmount.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidAmount, "initial amount cannot be negative")
	}

	release := s.d.Locker.Lock(ctx, lockKey("cash_session_user", actor.UserID))
	defer release()

	var session, forced *model.CashSession
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		now := s.d.Clock.Now()
		prev, err := s.d.Sessions.FindOpenByUserForUpdate(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if prev != nil {
			balance, err := s.ledger.balance(ctx, tx, prev)
			if err != nil {
				return err
			}
			prev.Close(balance, nil, now)
			if err := s.d.Sessions.UpdateTx(ctx, tx, prev); err != nil {
				return err
			}
			forced = prev
		}

		session = &model.CashSession{
			ID:                uuid.New(),
			UserID:            actor.UserID,
			InitialAmount:     initialAmount,
			CalculatedBalance: initialAmount,
			Status:            model.SessionOpen,
			OpenedAt:          now,
		}
		return s.d.Sessions.CreateTx(ctx, tx, session)
	})
	if err != nil {
		return nil, storageError("cash_register.open", err, map[string]string{"user_id": actor.UserID.String()})
	}

	records := []audit{{
		entityType: model.EntityCashSession, entityID: session.ID, event: "opened",
		description: "cash session opened",
		newValues:   map[string]interface{}{"initial_amount": initialAmount, "status": session.Status},
	}}
	if forced != nil {
		log.Info().Str("session_id", forced.ID.String()).Str("user_id", actor.UserID.String()).
			Msg("cash_register: force-closed previous session on open")
		records = append(records, audit{
			entityType: model.EntityCashSession, entityID: forced.ID, event: "force_closed",
			description: "closed automatically when a new session was opened",
			oldValues:   map[string]interface{}{"status": model.SessionOpen},
			newValues:   map[string]interface{}{"status": forced.Status, "calculated_balance": forced.CalculatedBalance},
		})
	}
	s.d.emit(ctx, actor.UserID, records...)
	return session, nil
}

// ── Close ─────────────────────────────────────────────────────────────────────

func (s *cashRegisterService) Close(ctx context.Context, actor model.Actor, sessionID uuid.UUID, finalPhysical *money.Money, notes *string) (*model.CashSession, error) {
	if finalPhysical != nil && finalPhysical.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidAmount, "physical count cannot be negative")
	}

	release := s.d.Locker.Lock(ctx, lockKey("cash_session", sessionID))
	defer release()

	var session *model.CashSession
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		session, err = s.d.Sessions.FindByIDForUpdate(ctx, tx, sessionID)
		if err != nil {
			return notFound(err, "cash session")
		}
		if !session.IsOpen() {
			return apperrors.New(apperrors.KindNoActiveSession, "cash session is already closed")
		}
		if session.UserID != actor.UserID && !actor.Can(model.CapManageCashRegister) {
			return apperrors.New(apperrors.KindUnauthorized, "only the owner or a manager can close this session")
		}

		balance, err := s.ledger.balance(ctx, tx, session)
		if err != nil {
			return err
		}
		session.Close(balance, finalPhysical, s.d.Clock.Now())
		session.ClosingNotes = notes
		return s.d.Sessions.UpdateTx(ctx, tx, session)
	})
	if err != nil {
		return nil, storageError("cash_register.close", err, map[string]string{"session_id": sessionID.String()})
	}

	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityCashSession, entityID: session.ID, event: "closed",
		description: "cash session closed",
		oldValues:   map[string]interface{}{"status": model.SessionOpen},
		newValues: map[string]interface{}{
			"status":                session.Status,
			"calculated_balance":    session.CalculatedBalance,
			"final_physical_amount": session.FinalPhysicalAmount,
			"difference":            session.Difference,
		},
	})
	return session, nil
}

func (s *cashRegisterService) GetActive(ctx context.Context, userID uuid.UUID) (*model.CashSession, error) {
	session, err := s.d.Sessions.FindOpenByUser(ctx, userID)
	if err != nil {
		return nil, storageError("cash_register.get_active", err, map[string]string{"user_id": userID.String()})
	}
	return session, nil
}

func (s *cashRegisterService) CalculateBalance(ctx context.Context, sessionID uuid.UUID) (money.Money, error) {
	session, err := s.d.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return 0, storageError("cash_register.balance", notFound(err, "cash session"),
			map[string]string{"session_id": sessionID.String()})
	}
	balance, err := s.ledger.balance(ctx, nil, session)
	if err != nil {
		return 0, storageError("cash_register.balance", err, map[string]string{"session_id": sessionID.String()})
	}
	return balance, nil
}

// ── Manual income / expense ───────────────────────────────────────────────────

func (s *cashRegisterService) RegisterIncome(ctx context.Context, actor model.Actor, amount money.Money, description string, method *string) (*model.Transaction, error) {
	return s.registerManual(ctx, actor, &model.Transaction{
		Direction:     model.DirectionIncome,
		Category:      model.CategoryGeneralIncome,
		Amount:        amount,
		PaymentMethod: method,
		Description:   description,
	})
}

func (s *cashRegisterService) RegisterExpense(ctx context.Context, actor model.Actor, category string, amount money.Money, description string, method *string) (*model.Transaction, error) {
	if !isManualExpenseCategory(category) {
		return nil, apperrors.Newf(apperrors.KindValidation, "category %q cannot be registered manually", category)
	}
	return s.registerManual(ctx, actor, &model.Transaction{
		Direction:     model.DirectionExpense,
		Category:      category,
		Amount:        amount,
		PaymentMethod: method,
		Description:   description,
	})
}

func isManualExpenseCategory(category string) bool {
	for _, c := range model.ManualExpenseCategories {
		if c == category {
			return true
		}
	}
	return false
}

func (s *cashRegisterService) registerManual(ctx context.Context, actor model.Actor, t *model.Transaction) (*model.Transaction, error) {
	if !t.Amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindInvalidAmount, "amount must be greater than zero")
	}

	var session *model.CashSession
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		session, err = s.ledger.activeSession(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		t.SessionID = session.ID
		t.CreatedBy = actor.UserID
		if err := s.ledger.record(ctx, tx, t); err != nil {
			return err
		}
		applyToSession(session, t, false)
		return s.d.Sessions.UpdateTx(ctx, tx, session)
	})
	if err != nil {
		return nil, storageError("cash_register.register_"+t.Direction, err,
			map[string]string{"user_id": actor.UserID.String()})
	}

	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityTransaction, entityID: t.ID, event: "created",
		description: t.Description,
		newValues: map[string]interface{}{
			"direction": t.Direction, "category": t.Category, "amount": t.Amount, "session_id": t.SessionID,
		},
	})
	return t, nil
}

// ── CancelTransaction ─────────────────────────────────────────────────────────
// Only manually registered entries go through here. Payments are undone by a
// refund and commission payouts by a liquidation revert, which keep the linked
// records consistent.

func (s *cashRegisterService) CancelTransaction(ctx context.Context, actor model.Actor, transactionID uuid.UUID, reason string) (*model.Transaction, error) {
	if !actor.Can(model.CapManageCashRegister) {
		return nil, apperrors.Newf(apperrors.KindUnauthorized, "cancelling a transaction requires %s", model.CapManageCashRegister)
	}

	var cancelled *model.Transaction
	err := s.d.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		t, err := s.d.Transactions.FindByIDForUpdate(ctx, tx, transactionID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if !isManualCategory(t.Category) {
			return apperrors.Newf(apperrors.KindValidation,
				"%s entries are reversed through their own operation", t.Category)
		}
		cancelled, _, err = s.ledger.cancel(ctx, tx, transactionID, actor.UserID, reason)
		return err
	})
	if err != nil {
		return nil, storageError("cash_register.cancel_transaction", err,
			map[string]string{"transaction_id": transactionID.String()})
	}

	log.Warn().Str("transaction_id", transactionID.String()).Str("actor_id", actor.UserID.String()).
		Str("reason", reason).Msg("cash_register: transaction cancelled")
	s.d.emit(ctx, actor.UserID, audit{
		entityType: model.EntityTransaction, entityID: cancelled.ID, event: "cancelled",
		description: reason,
		oldValues:   map[string]interface{}{"status": model.TransactionActive},
		newValues:   map[string]interface{}{"status": cancelled.Status, "cancellation_reason": reason},
	})
	return cancelled, nil
}

func isManualCategory(category string) bool {
	return category == model.CategoryGeneralIncome || isManualExpenseCategory(category)
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *cashRegisterService) ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error) {
	txs, err := s.d.Transactions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, storageError("cash_register.list_transactions", err, map[string]string{"session_id": sessionID.String()})
	}
	return txs, nil
}

func (s *cashRegisterService) Report(ctx context.Context, sessionID uuid.UUID) (*dto.CashSessionReport, error) {
	fields := map[string]string{"session_id": sessionID.String()}
	session, err := s.d.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageError("cash_register.report", notFound(err, "cash session"), fields)
	}
	sums, err := s.d.Transactions.SumActive(ctx, nil, sessionID)
	if err != nil {
		return nil, storageError("cash_register.report", err, fields)
	}
	cats, err := s.d.Transactions.TotalsByCategory(ctx, sessionID)
	if err != nil {
		return nil, storageError("cash_register.report", err, fields)
	}

	report := &dto.CashSessionReport{
		Session:    dto.CashSession(session),
		Income:     sums.Income,
		Expense:    sums.Expense,
		Balance:    session.InitialAmount.Add(sums.Income).Sub(sums.Expense),
		Categories: make([]dto.CategoryTotalResponse, 0, len(cats)),
	}
	for _, c := range cats {
		report.Categories = append(report.Categories, dto.CategoryTotalResponse{
			Direction: c.Direction, Category: c.Category, Count: c.Count, Total: c.Total,
		})
	}
	return report, nil
}

func (s *cashRegisterService) History(ctx context.Context, page, limit int) ([]model.CashSession, int64, error) {
	rows, total, err := s.d.Sessions.List(ctx, page, limit)
	if err != nil {
		return nil, 0, storageError("cash_register.history", err, nil)
	}
	return rows, total, nil
}
