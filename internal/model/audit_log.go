package model

import (
	"time"

	"github.com/google/uuid"
)

// Audited entity types.
const (
	EntityCashSession    = "cash_session"
	EntityTransaction    = "transaction"
	EntityServiceRequest = "service_request"
	EntityLiquidation    = "commission_liquidation"
)

// AuditLog records one state-changing operation. OldValues / NewValues hold
// JSON snapshots of the fields that changed.
type AuditLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EntityType  string    `gorm:"type:varchar(40);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity" json:"entity_id"`
	Event       string    `gorm:"type:varchar(40);not null" json:"event"`
	OldValues   string    `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues   string    `gorm:"type:jsonb" json:"new_values,omitempty"`
	ActorID     uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
