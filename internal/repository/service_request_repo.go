package repository

import (
	"context"
	"time"

	"clinicpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceRequestRepository only touches the payment side of a request; the
// rest of the row belongs to reception.
type ServiceRequestRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.ServiceRequest, error)
	// FindByIDsForUpdate locks rows in id order so two callers locking
	// overlapping sets cannot deadlock.
	FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]model.ServiceRequest, error)
	UpdatePaymentTx(ctx context.Context, tx *gorm.DB, r *model.ServiceRequest) error
	ListPending(ctx context.Context, page, limit int) ([]model.ServiceRequest, int64, error)
	ListPaidByProfessional(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]model.ServiceRequest, error)
}

type serviceRequestRepo struct{ db *gorm.DB }

func NewServiceRequestRepository(db *gorm.DB) ServiceRequestRepository {
	return &serviceRequestRepo{db: db}
}

func (r *serviceRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	var sr model.ServiceRequest
	err := r.db.WithContext(ctx).First(&sr, "id = ?", id).Error
	return &sr, err
}

func (r *serviceRequestRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.ServiceRequest, error) {
	var sr model.ServiceRequest
	err := forUpdate(tx.WithContext(ctx)).First(&sr, "id = ?", id).Error
	return &sr, err
}

func (r *serviceRequestRepo) FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]model.ServiceRequest, error) {
	var rows []model.ServiceRequest
	err := forUpdate(tx.WithContext(ctx)).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// UpdatePaymentTx writes the payment fields; UpdatedAt comes from the caller.
func (r *serviceRequestRepo) UpdatePaymentTx(ctx context.Context, tx *gorm.DB, sr *model.ServiceRequest) error {
	return tx.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("id = ?", sr.ID).
		Updates(map[string]interface{}{
			"paid_amount":            sr.PaidAmount,
			"payment_status":         sr.PaymentStatus,
			"payment_date":           sr.PaymentDate,
			"payment_transaction_id": sr.PaymentTransactionID,
			"cancelled_by":           sr.CancelledBy,
			"cancellation_reason":    sr.CancellationReason,
			"cancelled_at":           sr.CancelledAt,
			"updated_at":             sr.UpdatedAt,
		}).Error
}

func (r *serviceRequestRepo) ListPending(ctx context.Context, page, limit int) ([]model.ServiceRequest, int64, error) {
	var rows []model.ServiceRequest
	var total int64
	q := r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("payment_status IN ?", []string{model.PaymentPending, model.PaymentPartial})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("service_date ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

// ListPaidByProfessional returns paid requests of the professional whose
// service date falls in [start, end] and that no live liquidation covers.
func (r *serviceRequestRepo) ListPaidByProfessional(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]model.ServiceRequest, error) {
	var rows []model.ServiceRequest
	liquidated := r.db.Model(&model.CommissionLiquidationDetail{}).
		Select("commission_liquidation_details.service_request_id").
		Joins("JOIN commission_liquidations l ON l.id = commission_liquidation_details.liquidation_id").
		Where("l.status <> ?", model.LiquidationCancelled)
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND payment_status = ?", professionalID, model.PaymentPaid).
		Where("service_date >= ? AND service_date < ?", start, end.AddDate(0, 0, 1)).
		Where("id NOT IN (?)", liquidated).
		Order("service_date ASC").
		Find(&rows).Error
	return rows, err
}
