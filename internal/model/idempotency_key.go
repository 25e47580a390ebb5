package model

import (
	"time"

	"github.com/google/uuid"
)

// Idempotency scopes.
const IdempotencyServicePayment = "service_payment"

// IdempotencyKey remembers which ledger entry a client-supplied key produced,
// so a replayed payment call returns the first result instead of charging
// twice. Unique on (scope, key).
type IdempotencyKey struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Scope         string    `gorm:"type:varchar(40);not null;uniqueIndex:uniq_idempotency_scope_key"`
	Key           string    `gorm:"type:varchar(255);not null;uniqueIndex:uniq_idempotency_scope_key"`
	UserID        uuid.UUID `gorm:"type:uuid;not null"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt     time.Time
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }
