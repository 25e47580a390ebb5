package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clinicpos/internal/infra"
	"clinicpos/internal/model"
	"clinicpos/internal/repository"

	"gorm.io/gorm"
)

// AuditWorker persists audit entries from QueueAudit through the audit
// store's circuit breaker.
type AuditWorker struct {
	repo repository.AuditRepository
	cb   *infra.CircuitBreaker
}

func NewAuditWorker(repo repository.AuditRepository, cb *infra.CircuitBreaker) *AuditWorker {
	return &AuditWorker{repo: repo, cb: cb}
}

func (w *AuditWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var entry model.AuditLog
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Permanent(fmt.Errorf("audit_worker: invalid payload: %w", err))
	}
	return w.cb.Execute(func() error {
		err := w.repo.Create(ctx, &entry)
		// A retry of an entry whose first insert committed.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	})
}
