package repository

import (
	"context"
	"errors"

	"clinicpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CashSessionRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error)
	// FindOpenByUser returns (nil, nil) when the user has no open session.
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*model.CashSession, error)
	FindOpenByUserForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*model.CashSession, error)
	UpdateTx(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	List(ctx context.Context, page, limit int) ([]model.CashSession, int64, error)
}

type cashSessionRepo struct{ db *gorm.DB }

func NewCashSessionRepository(db *gorm.DB) CashSessionRepository { return &cashSessionRepo{db: db} }

func (r *cashSessionRepo) CreateTx(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *cashSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *cashSessionRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := forUpdate(tx.WithContext(ctx)).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *cashSessionRepo) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*model.CashSession, error) {
	return findOpenByUser(r.db.WithContext(ctx), userID)
}

func (r *cashSessionRepo) FindOpenByUserForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*model.CashSession, error) {
	return findOpenByUser(forUpdate(tx.WithContext(ctx)), userID)
}

func findOpenByUser(q *gorm.DB, userID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := q.Where("user_id = ? AND status = ?", userID, model.SessionOpen).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashSessionRepo) UpdateTx(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	return tx.WithContext(ctx).Save(s).Error
}

func (r *cashSessionRepo) List(ctx context.Context, page, limit int) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64
	q := r.db.WithContext(ctx).Model(&model.CashSession{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("opened_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}
