package infra

import (
	"fmt"

	"clinicpos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial indexes, check constraints).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Unique violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates the schema. Also used by the integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Professional{},
		&model.ServiceRequest{},
		&model.CashSession{},
		&model.Transaction{},
		&model.CommissionLiquidation{},
		&model.CommissionLiquidationDetail{},
		&model.IdempotencyKey{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// handle on its own. Each statement uses IF NOT EXISTS semantics so re-running
// on an already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// At most one open session per user; the force-close on open relies on it.
		{"one open session per user", `
CREATE UNIQUE INDEX IF NOT EXISTS uniq_cash_sessions_open_user
    ON cash_sessions (user_id) WHERE status = 'open'`},
		{"active income lookup by service request", `
CREATE INDEX IF NOT EXISTS idx_cash_transactions_service_income
    ON cash_transactions (service_request_id, created_at DESC)
    WHERE direction = 'income' AND status = 'active'`},
		{"positive ledger amounts", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_cash_transactions_amount_positive') THEN
    ALTER TABLE cash_transactions
      ADD CONSTRAINT chk_cash_transactions_amount_positive CHECK (amount > 0);
  END IF;
END $$`},
		{"paid never exceeds total", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_service_requests_paid_le_total') THEN
    ALTER TABLE service_requests
      ADD CONSTRAINT chk_service_requests_paid_le_total CHECK (paid_amount >= 0 AND paid_amount <= total_amount);
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
