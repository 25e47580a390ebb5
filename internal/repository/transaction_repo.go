package repository

import (
	"context"
	"errors"

	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionSums are the ledger-derived totals of a session: active income and
// active expense excluding refunds.
type SessionSums struct {
	Income  money.Money
	Expense money.Money
}

// CategoryTotal is one row of the per-category session breakdown.
type CategoryTotal struct {
	Direction string
	Category  string
	Count     int64
	Total     money.Money
}

// TransactionRepository is append-mostly: entries are created and their
// status flipped, never deleted.
type TransactionRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error)
	// FindLatestActiveIncome returns (nil, nil) when the request has no
	// active income entry.
	FindLatestActiveIncome(ctx context.Context, tx *gorm.DB, serviceRequestID uuid.UUID) (*model.Transaction, error)
	UpdateStatusTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error)
	SumActive(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (SessionSums, error)
	TotalsByCategory(ctx context.Context, sessionID uuid.UUID) ([]CategoryTotal, error)
}

type transactionRepo struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository { return &transactionRepo{db: db} }

func (r *transactionRepo) CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	return &t, err
}

func (r *transactionRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := forUpdate(tx.WithContext(ctx)).First(&t, "id = ?", id).Error
	return &t, err
}

func (r *transactionRepo) FindLatestActiveIncome(ctx context.Context, tx *gorm.DB, serviceRequestID uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := forUpdate(tx.WithContext(ctx)).
		Where("service_request_id = ? AND direction = ? AND status = ?",
			serviceRequestID, model.DirectionIncome, model.TransactionActive).
		Order("created_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateStatusTx persists the cancellation fields only; amount, direction
// and links are immutable once written.
func (r *transactionRepo) UpdateStatusTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":              t.Status,
			"cancelled_by":        t.CancelledBy,
			"cancellation_reason": t.CancellationReason,
			"cancelled_at":        t.CancelledAt,
		}).Error
}

func (r *transactionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepo) SumActive(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (SessionSums, error) {
	q := r.db
	if tx != nil {
		q = tx
	}
	var sums SessionSums
	err := q.WithContext(ctx).Model(&model.Transaction{}).
		Select(`COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN direction = ? AND category <> ? THEN amount ELSE 0 END), 0) AS expense`,
			model.DirectionIncome, model.DirectionExpense, model.CategoryServiceRefund).
		Where("session_id = ? AND status = ?", sessionID, model.TransactionActive).
		Scan(&sums).Error
	return sums, err
}

func (r *transactionRepo) TotalsByCategory(ctx context.Context, sessionID uuid.UUID) ([]CategoryTotal, error) {
	var rows []CategoryTotal
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Select("direction, category, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("session_id = ? AND status = ?", sessionID, model.TransactionActive).
		Group("direction, category").
		Order("direction, category").
		Scan(&rows).Error
	return rows, err
}
