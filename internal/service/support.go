package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clinicpos/internal/apperrors"
	"clinicpos/internal/model"
	"clinicpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Clock is the only source of "now" inside the services.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Locker serializes work on one entity across API instances. It is a second
// layer on top of the row locks taken inside each transaction: when the lock
// cannot be obtained the implementation logs and returns a no-op release.
type Locker interface {
	Lock(ctx context.Context, key string) (release func())
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) func() { return func() {} }

// AuditSink receives one record per committed state change. It is called
// after commit; an error is logged and never rolls anything back.
type AuditSink interface {
	Record(ctx context.Context, entry model.AuditLog) error
}

// StatementNotifier schedules delivery of a paid liquidation's statement.
type StatementNotifier interface {
	NotifyStatement(ctx context.Context, liquidationID uuid.UUID, toEmail string) error
}

// Deps groups the collaborators shared by every service.
type Deps struct {
	Tx            repository.Transactor
	Sessions      repository.CashSessionRepository
	Transactions  repository.TransactionRepository
	Requests      repository.ServiceRequestRepository
	Professionals repository.ProfessionalRepository
	Liquidations  repository.LiquidationRepository
	Idempotency   repository.IdempotencyRepository
	Audit         AuditSink
	Locker        Locker
	Clock         Clock
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = noopLocker{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	return d
}

func lockKey(entity string, id uuid.UUID) string {
	return "lock:" + entity + ":" + id.String()
}

// audit is a pending audit record, emitted only once the unit of work has
// committed.
type audit struct {
	entityType  string
	entityID    uuid.UUID
	event       string
	description string
	oldValues   interface{}
	newValues   interface{}
}

func (d Deps) emit(ctx context.Context, actor uuid.UUID, records ...audit) {
	if d.Audit == nil {
		return
	}
	now := d.Clock.Now()
	for _, a := range records {
		entry := model.AuditLog{
			ID:          uuid.New(),
			EntityType:  a.entityType,
			EntityID:    a.entityID,
			Event:       a.event,
			OldValues:   snapshot(a.oldValues),
			NewValues:   snapshot(a.newValues),
			ActorID:     actor,
			Description: a.description,
			CreatedAt:   now,
		}
		if err := d.Audit.Record(ctx, entry); err != nil {
			log.Error().Err(err).
				Str("entity_type", a.entityType).
				Str("entity_id", a.entityID.String()).
				Str("event", a.event).
				Msg("audit: failed to record event")
		}
	}
}

// snapshot renders v for a jsonb column; an absent value is "{}".
func snapshot(v interface{}) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// authorize is the single guard for privileged liquidation transitions.
func authorize(actor model.Actor, from, to string) error {
	capability, privileged := model.PrivilegedTransitions[model.Transition{From: from, To: to}]
	if !privileged || actor.Can(capability) {
		return nil
	}
	return apperrors.Newf(apperrors.KindUnauthorized,
		"moving a liquidation from %s to %s requires %s", from, to, capability)
}

// storageError logs an unexpected failure with the operation and ids
// involved and returns it unchanged when it is already part of the taxonomy.
// Anything else surfaces as a generic failure.
func storageError(op string, err error, fields map[string]string) error {
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Wrap(apperrors.KindConflict, "conflicting concurrent request", err)
	}
	ev := log.Error().Err(err).Str("op", op)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("storage failure")
	return err
}

// notFound maps gorm's missing-row error to KindNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Newf(apperrors.KindNotFound, "%s not found", what)
	}
	return err
}
