package worker

// email_worker.go
// Processes statement jobs from QueueEmail: renders the paid liquidation's
// PDF statement, archives it and mails it to the professional.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clinicpos/internal/model"
	"clinicpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type StatementRenderer interface {
	RenderStatement(l *model.CommissionLiquidation, p *model.Professional) ([]byte, error)
	Archive(id uuid.UUID, data []byte) (string, error)
}

type StatementMailer interface {
	Enabled() bool
	SendStatement(to, subject, body, filename string, pdf []byte) error
}

type EmailWorker struct {
	liquidations  repository.LiquidationRepository
	professionals repository.ProfessionalRepository
	renderer      StatementRenderer
	mailer        StatementMailer
}

func NewEmailWorker(
	liquidations repository.LiquidationRepository,
	professionals repository.ProfessionalRepository,
	renderer StatementRenderer,
	mailer StatementMailer,
) *EmailWorker {
	return &EmailWorker{liquidations: liquidations, professionals: professionals, renderer: renderer, mailer: mailer}
}

// Process sends the statement of the job's liquidation. With SMTP
// unconfigured the job is dropped.
func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var job StatementJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return Permanent(fmt.Errorf("email_worker: invalid payload: %w", err))
	}
	if job.ToEmail == "" {
		log.Warn().Str("liquidation_id", job.LiquidationID.String()).Msg("email_worker: empty to_email, skipping")
		return nil
	}
	if !w.mailer.Enabled() {
		log.Debug().Str("liquidation_id", job.LiquidationID.String()).Msg("email_worker: SMTP not configured, skipping")
		return nil
	}

	liq, err := w.liquidations.FindByID(ctx, job.LiquidationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Permanent(fmt.Errorf("email_worker: liquidation %s not found", job.LiquidationID))
	}
	if err != nil {
		return err
	}
	prof, err := w.professionals.FindByID(ctx, liq.ProfessionalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Permanent(fmt.Errorf("email_worker: professional %s not found", liq.ProfessionalID))
	}
	if err != nil {
		return err
	}

	pdf, err := w.renderer.RenderStatement(liq, prof)
	if err != nil {
		return Permanent(err)
	}
	if path, err := w.renderer.Archive(liq.ID, pdf); err != nil {
		log.Error().Err(err).Str("liquidation_id", liq.ID.String()).Msg("email_worker: archive failed")
	} else if path != "" {
		log.Debug().Str("path", path).Msg("email_worker: statement archived")
	}

	subject := fmt.Sprintf("Commission statement %s to %s",
		liq.PeriodStart.Format("2006-01-02"), liq.PeriodEnd.Format("2006-01-02"))
	body := fmt.Sprintf("Hello %s,\n\nYour commission of %s for this period has been paid. The statement is attached.\n",
		prof.Name, liq.CommissionAmount.String())
	filename := "statement_" + liq.ID.String() + ".pdf"

	if err := w.mailer.SendStatement(job.ToEmail, subject, body, filename, pdf); err != nil {
		return fmt.Errorf("email_worker: send to %s: %w", job.ToEmail, err)
	}
	log.Info().Str("to", job.ToEmail).Str("liquidation_id", liq.ID.String()).Msg("email_worker: statement sent")
	return nil
}
