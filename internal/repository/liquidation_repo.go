package repository

import (
	"context"
	"time"

	"clinicpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LiquidationFilter narrows List; zero fields are ignored.
type LiquidationFilter struct {
	ProfessionalID *uuid.UUID
	Status         string
	// From/To select liquidations whose period overlaps [From, To].
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

type LiquidationRepository interface {
	// CreateTx inserts the liquidation together with its detail rows.
	CreateTx(ctx context.Context, tx *gorm.DB, l *model.CommissionLiquidation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CommissionLiquidation, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CommissionLiquidation, error)
	// UpdateTx saves the header only; detail rows are immutable.
	UpdateTx(ctx context.Context, tx *gorm.DB, l *model.CommissionLiquidation) error
	// FindLiquidatedServiceIDs returns the subset of ids already attached to
	// a liquidation that is not cancelled.
	FindLiquidatedServiceIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]uuid.UUID, error)
	List(ctx context.Context, f LiquidationFilter) ([]model.CommissionLiquidation, int64, error)
}

type liquidationRepo struct{ db *gorm.DB }

func NewLiquidationRepository(db *gorm.DB) LiquidationRepository { return &liquidationRepo{db: db} }

func (r *liquidationRepo) CreateTx(ctx context.Context, tx *gorm.DB, l *model.CommissionLiquidation) error {
	return tx.WithContext(ctx).Create(l).Error
}

func (r *liquidationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CommissionLiquidation, error) {
	var l model.CommissionLiquidation
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("service_date ASC") }).
		First(&l, "id = ?", id).Error
	return &l, err
}

func (r *liquidationRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.CommissionLiquidation, error) {
	var l model.CommissionLiquidation
	if err := forUpdate(tx.WithContext(ctx)).First(&l, "id = ?", id).Error; err != nil {
		return &l, err
	}
	err := tx.WithContext(ctx).
		Where("liquidation_id = ?", id).
		Order("service_date ASC").
		Find(&l.Details).Error
	return &l, err
}

func (r *liquidationRepo) UpdateTx(ctx context.Context, tx *gorm.DB, l *model.CommissionLiquidation) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Save(l).Error
}

func (r *liquidationRepo) FindLiquidatedServiceIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]uuid.UUID, error) {
	var found []uuid.UUID
	err := tx.WithContext(ctx).Model(&model.CommissionLiquidationDetail{}).
		Distinct("commission_liquidation_details.service_request_id").
		Joins("JOIN commission_liquidations l ON l.id = commission_liquidation_details.liquidation_id").
		Where("l.status <> ? AND commission_liquidation_details.service_request_id IN ?",
			model.LiquidationCancelled, ids).
		Pluck("commission_liquidation_details.service_request_id", &found).Error
	return found, err
}

func (r *liquidationRepo) List(ctx context.Context, f LiquidationFilter) ([]model.CommissionLiquidation, int64, error) {
	var rows []model.CommissionLiquidation
	var total int64
	q := r.db.WithContext(ctx).Model(&model.CommissionLiquidation{})
	if f.ProfessionalID != nil {
		q = q.Where("professional_id = ?", *f.ProfessionalID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("period_end >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("period_start <= ?", *f.To)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q = q.Order("period_start DESC, created_at DESC")
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.Limit).Limit(f.Limit)
	}
	err := q.Find(&rows).Error
	return rows, total, err
}
