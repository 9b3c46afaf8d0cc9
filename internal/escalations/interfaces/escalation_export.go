package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
)

const exportTimeLayout = "2006-01-02 15:04"

// BuildEscalationPDF renders an escalation report as PDF.
func BuildEscalationPDF(list []escalations.Escalation, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Escalation Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(list)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(60, 6, "Notification", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Level", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Reason", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Escalated To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Resolved", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, esc := range list {
		pdf.CellFormat(60, 6, esc.NotificationTitle, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d/%d", esc.Level, esc.MaxLevel), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, esc.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, string(esc.Reason), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, esc.EscalatedToName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, esc.CreatedAt.Format(exportTimeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, formatExportTime(esc.ResolvedAt), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEscalationXLSX renders an escalation report as XLSX.
func BuildEscalationXLSX(list []escalations.Escalation, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	recordsSheet := "escalations"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(recordsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Escalation Report")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generatedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Records")
	_ = f.SetCellValue(summarySheet, "B4", len(list))

	counts := map[string]int{}
	for _, esc := range list {
		counts[esc.Status]++
	}
	_ = f.SetCellValue(summarySheet, "A6", "Active")
	_ = f.SetCellValue(summarySheet, "B6", counts[escalations.StatusActive])
	_ = f.SetCellValue(summarySheet, "A7", "Acknowledged")
	_ = f.SetCellValue(summarySheet, "B7", counts[escalations.StatusAcknowledged])
	_ = f.SetCellValue(summarySheet, "A8", "Resolved")
	_ = f.SetCellValue(summarySheet, "B8", counts[escalations.StatusResolved])
	_ = f.SetCellValue(summarySheet, "A9", "Expired")
	_ = f.SetCellValue(summarySheet, "B9", counts[escalations.StatusExpired])

	headers := []string{"ID", "Notification", "Rule", "Level", "Max Level", "Status", "Reason", "Escalated To", "Role", "Created", "Acknowledged", "Resolved", "Notes"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, header)
	}
	for i, esc := range list {
		row := i + 2
		values := []any{
			esc.ID,
			esc.NotificationTitle,
			esc.RuleID,
			esc.Level,
			esc.MaxLevel,
			esc.Status,
			string(esc.Reason),
			esc.EscalatedToName,
			esc.EscalatedToRole,
			esc.CreatedAt.Format(exportTimeLayout),
			formatExportTime(esc.AcknowledgedAt),
			formatExportTime(esc.ResolvedAt),
			esc.ResolutionNotes,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(recordsSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatExportTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(exportTimeLayout)
}
