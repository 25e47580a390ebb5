package repository

import (
	"context"
	"errors"

	"clinicpos/internal/model"

	"gorm.io/gorm"
)

type IdempotencyRepository interface {
	// FindTx returns (nil, nil) when the key has not been used in scope.
	FindTx(ctx context.Context, tx *gorm.DB, scope, key string) (*model.IdempotencyKey, error)
	CreateTx(ctx context.Context, tx *gorm.DB, k *model.IdempotencyKey) error
}

type idempotencyRepo struct{ db *gorm.DB }

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository { return &idempotencyRepo{db: db} }

func (r *idempotencyRepo) FindTx(ctx context.Context, tx *gorm.DB, scope, key string) (*model.IdempotencyKey, error) {
	var k model.IdempotencyKey
	err := tx.WithContext(ctx).Where("scope = ? AND key = ?", scope, key).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *idempotencyRepo) CreateTx(ctx context.Context, tx *gorm.DB, k *model.IdempotencyKey) error {
	return tx.WithContext(ctx).Create(k).Error
}
