// cmd/seed loads demo professionals and pending service requests.
// Usage: go run ./cmd/seed
package main

import (
	"os"
	"time"

	"clinicpos/internal/config"
	"clinicpos/internal/infra"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}

	email := "ana.ruiz@clinic.test"
	pros := []model.Professional{
		{ID: uuid.MustParse("7b0c8f0e-4d7a-4b8e-9c55-3f1a2e6d9a01"), Name: "Ana Ruiz", Email: &email,
			CommissionPercentage: decimal.NewFromInt(20), Active: true},
		{ID: uuid.MustParse("7b0c8f0e-4d7a-4b8e-9c55-3f1a2e6d9a02"), Name: "Luis Paredes",
			CommissionPercentage: decimal.RequireFromString("12.5"), Active: true},
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pros).Error; err != nil {
			return err
		}
		day := time.Now().UTC().Truncate(24 * time.Hour)
		var reqs []model.ServiceRequest
		for i, amount := range []string{"300.00", "400.00", "100.00", "850.50"} {
			prof := pros[i%len(pros)].ID
			reqs = append(reqs, model.ServiceRequest{
				ID:             uuid.New(),
				PatientID:      uuid.New(),
				ServiceID:      uuid.New(),
				ProfessionalID: &prof,
				ReceptionType:  model.ReceptionScheduled,
				ServiceDate:    day.AddDate(0, 0, -i),
				TotalAmount:    money.MustParse(amount),
				PaymentStatus:  model.PaymentPending,
			})
		}
		reqs[len(reqs)-1].ReceptionType = model.ReceptionEmergency
		return tx.Create(&reqs).Error
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	log.Info().Int("professionals", len(pros)).Msg("seed complete")
}
