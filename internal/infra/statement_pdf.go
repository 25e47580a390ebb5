package infra

// statement_pdf.go renders a commission liquidation statement with go-pdf/fpdf:
//   - Clinic name header and liquidation id
//   - Professional, period and status
//   - One row per liquidated service (date, amount, commission)
//   - Gross, rate and commission totals

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"clinicpos/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

type StatementPDF struct {
	clinicName  string
	storagePath string
}

// NewStatementPDF returns a renderer. When storagePath is non-empty, Archive
// keeps a copy of each delivered statement there.
func NewStatementPDF(clinicName, storagePath string) *StatementPDF {
	return &StatementPDF{clinicName: clinicName, storagePath: storagePath}
}

// RenderStatement builds the A4 statement of l for professional p.
func (s *StatementPDF) RenderStatement(l *model.CommissionLiquidation, p *model.Professional) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, tr(s.clinicName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, "Commission statement", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 9)
	info := [][2]string{
		{"Liquidation", l.ID.String()},
		{"Professional", p.Name},
		{"Period", l.PeriodStart.Format("2006-01-02") + " to " + l.PeriodEnd.Format("2006-01-02")},
		{"Status", l.Status},
	}
	if l.PaidAt != nil {
		info = append(info, [2]string{"Paid at", l.PaidAt.UTC().Format("2006-01-02 15:04")})
	}
	for _, row := range info {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(35, 5, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentW-35, 5, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// ── Detail table ──────────────────────────────────────────────────────────
	col1 := contentW * 0.22 // date
	col2 := contentW * 0.38 // service request
	col3 := contentW * 0.20 // amount
	col4 := contentW * 0.20 // commission

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(col1, 6, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(col2, 6, "Service request", "1", 0, "L", true, 0, "")
	pdf.CellFormat(col3, 6, "Amount", "1", 0, "R", true, 0, "")
	pdf.CellFormat(col4, 6, "Commission", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, d := range l.Details {
		pdf.CellFormat(col1, 5, d.ServiceDate.Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, d.ServiceRequestID.String()[:13], "1", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, d.ServiceAmount.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(col4, 5, d.CommissionAmount.String(), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	// ── Totals ────────────────────────────────────────────────────────────────
	totals := [][2]string{
		{fmt.Sprintf("Services (%d) gross:", l.TotalServices), l.GrossAmount.String()},
		{"Commission rate:", l.CommissionPercentage.StringFixed(2) + "%"},
	}
	pdf.SetFont("Helvetica", "", 9)
	for _, t := range totals {
		pdf.CellFormat(col1+col2+col3, 5, t[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(col4, 5, t[1], "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(col1+col2+col3, 7, "COMMISSION:", "", 0, "R", false, 0, "")
	pdf.CellFormat(col4, 7, l.CommissionAmount.String(), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render statement: %w", err)
	}
	return buf.Bytes(), nil
}

// Archive writes data to storagePath/statement_<id>.pdf and returns the path,
// or "" when archiving is disabled.
func (s *StatementPDF) Archive(id uuid.UUID, data []byte) (string, error) {
	if s.storagePath == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.storagePath, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	path := filepath.Join(s.storagePath, "statement_"+id.String()+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return path, nil
}
