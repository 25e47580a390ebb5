package service

import (
	"context"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ledger wraps the transaction repository with the entry rules. It never
// touches session totals on record; callers adjust them in the same unit.
type ledger struct {
	d Deps
}

// record appends an active entry. Amount must be strictly positive; the
// sign comes from the direction.
func (l ledger) record(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if !t.Amount.IsPositive() {
		return apperrors.New(apperrors.KindInvalidAmount, "amount must be greater than zero")
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = model.TransactionActive
	t.CreatedAt = l.d.Clock.Now()
	return l.d.Transactions.CreateTx(ctx, tx, t)
}

// cancel flips an active entry to cancelled and takes it out of the owning
// session's cached totals. The owning session must still be open.
func (l ledger) cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor uuid.UUID, reason string) (*model.Transaction, *model.CashSession, error) {
	t, err := l.d.Transactions.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, nil, notFound(err, "transaction")
	}
	if !t.IsActive() {
		return nil, nil, apperrors.New(apperrors.KindAlreadyCancelled, "transaction is already cancelled")
	}
	session, err := l.d.Sessions.FindByIDForUpdate(ctx, tx, t.SessionID)
	if err != nil {
		return nil, nil, notFound(err, "cash session")
	}
	if !session.IsOpen() {
		return nil, nil, apperrors.New(apperrors.KindSessionClosed,
			"transactions can only be cancelled while their session is open")
	}

	t.MarkCancelled(actor, reason, l.d.Clock.Now())
	if err := l.d.Transactions.UpdateStatusTx(ctx, tx, t); err != nil {
		return nil, nil, err
	}
	applyToSession(session, t, true)
	if err := l.d.Sessions.UpdateTx(ctx, tx, session); err != nil {
		return nil, nil, err
	}
	return t, session, nil
}

// applyToSession moves t's amount into (or, when reverse is set, out of) the
// session's cached totals. Refund entries are not expenses: the refund path
// lowers income itself.
func applyToSession(s *model.CashSession, t *model.Transaction, reverse bool) {
	amount := t.Amount
	if reverse {
		amount = amount.Neg()
	}
	switch {
	case t.Direction == model.DirectionIncome:
		s.ApplyIncome(amount)
	case t.CountsAsExpense():
		s.ApplyExpense(amount)
	}
}

// balance re-derives a session's balance from its active ledger entries.
func (l ledger) balance(ctx context.Context, tx *gorm.DB, s *model.CashSession) (money.Money, error) {
	sums, err := l.d.Transactions.SumActive(ctx, tx, s.ID)
	if err != nil {
		return 0, err
	}
	return s.InitialAmount.Add(sums.Income).Sub(sums.Expense), nil
}

// activeSession resolves the actor's open session under a row lock.
func (l ledger) activeSession(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*model.CashSession, error) {
	s, err := l.d.Sessions.FindOpenByUserForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.ErrNoActiveSession
	}
	return s, nil
}
