package infra

import (
	"fmt"

	"clinicpos/internal/dto"
	"clinicpos/internal/money"

	"github.com/xuri/excelize/v2"
)

// ReportXLSX exports commission reports as Excel workbooks.
type ReportXLSX struct{}

func NewReportXLSX() *ReportXLSX { return &ReportXLSX{} }

var reportHeader = []interface{}{
	"Professional", "Liquidations", "Services", "Gross", "Commission", "Paid", "Pending",
}

func (ReportXLSX) ExportCommissionReport(r *dto.CommissionReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Commissions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Period", r.PeriodStart + " to " + r.PeriodEnd}); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A3", &reportHeader); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A3", "G3", bold); err != nil {
		return nil, err
	}

	row := 4
	for _, rr := range r.Rows {
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), reportRow(rr.ProfessionalID, rr)); err != nil {
			return nil, err
		}
		row++
	}
	totalCell := fmt.Sprintf("A%d", row)
	if err := f.SetSheetRow(sheet, totalCell, reportRow("TOTAL", r.Totals)); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, totalCell, fmt.Sprintf("G%d", row), bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", "A", 38); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: write: %w", err)
	}
	return buf.Bytes(), nil
}

// reportRow writes amounts as numbers so spreadsheet sums work.
func reportRow(label string, r dto.CommissionReportRow) *[]interface{} {
	amount := func(m money.Money) float64 { return m.Decimal().InexactFloat64() }
	return &[]interface{}{
		label, r.Liquidations, r.TotalServices,
		amount(r.GrossAmount), amount(r.CommissionAmount), amount(r.PaidAmount), amount(r.PendingAmount),
	}
}
