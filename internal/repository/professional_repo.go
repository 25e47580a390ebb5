package repository

import (
	"context"

	"clinicpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfessionalRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Professional, error)
}

type professionalRepo struct{ db *gorm.DB }

func NewProfessionalRepository(db *gorm.DB) ProfessionalRepository { return &professionalRepo{db: db} }

func (r *professionalRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Professional, error) {
	var p model.Professional
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return &p, err
}
