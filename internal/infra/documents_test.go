package infra

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clinicpos/internal/dto"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleLiquidation() (*model.CommissionLiquidation, *model.Professional) {
	prof := &model.Professional{ID: uuid.New(), Name: "José Núñez", CommissionPercentage: decimal.NewFromInt(20)}
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := &model.CommissionLiquidation{
		ID:                   uuid.New(),
		ProfessionalID:       prof.ID,
		PeriodStart:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:            time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		TotalServices:        2,
		GrossAmount:          money.MustParse("700.00"),
		CommissionPercentage: decimal.NewFromInt(20),
		CommissionAmount:     money.MustParse("140.00"),
		Status:               model.LiquidationPaid,
		PaidAt:               &paidAt,
	}
	for _, amt := range []string{"300.00", "400.00"} {
		a := money.MustParse(amt)
		l.Details = append(l.Details, model.CommissionLiquidationDetail{
			ServiceRequestID: uuid.New(),
			ServiceAmount:    a,
			CommissionAmount: a.Percent(decimal.NewFromInt(20)),
			ServiceDate:      l.PeriodStart.AddDate(0, 0, 3),
		})
	}
	return l, prof
}

func TestStatementPDF_RenderAndArchive(t *testing.T) {
	dir := t.TempDir()
	s := NewStatementPDF("Clínica Central", dir)
	l, p := sampleLiquidation()

	data, err := s.RenderStatement(l, p)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	path, err := s.Archive(l.ID, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "statement_"+l.ID.String()+".pdf"), path)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestStatementPDF_ArchiveDisabled(t *testing.T) {
	path, err := NewStatementPDF("Clinic", "").Archive(uuid.New(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestReportXLSX_Export(t *testing.T) {
	profA, profB := uuid.NewString(), uuid.NewString()
	report := &dto.CommissionReport{
		PeriodStart: "2026-02-01",
		PeriodEnd:   "2026-02-28",
		Rows: []dto.CommissionReportRow{
			{ProfessionalID: profA, Liquidations: 1, TotalServices: 3, GrossAmount: money.MustParse("800.00"),
				CommissionAmount: money.MustParse("160.00"), PaidAmount: money.MustParse("160.00")},
			{ProfessionalID: profB, Liquidations: 1, TotalServices: 1, GrossAmount: money.MustParse("10.00"),
				CommissionAmount: money.MustParse("5.00"), PendingAmount: money.MustParse("5.00")},
		},
		Totals: dto.CommissionReportRow{Liquidations: 2, TotalServices: 4, GrossAmount: money.MustParse("810.00"),
			CommissionAmount: money.MustParse("165.00"), PaidAmount: money.MustParse("160.00"), PendingAmount: money.MustParse("5.00")},
	}

	data, err := NewReportXLSX().ExportCommissionReport(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Commissions")
	require.NoError(t, err)
	require.Len(t, rows, 6) // period, blank, header, two rows, total
	assert.Equal(t, []string{"Period", "2026-02-01 to 2026-02-28"}, rows[0])
	assert.Equal(t, "Professional", rows[2][0])
	assert.Equal(t, profA, rows[3][0])
	assert.Equal(t, "160", rows[3][4])
	assert.Equal(t, "TOTAL", rows[5][0])
	assert.Equal(t, "810", rows[5][3])
}
