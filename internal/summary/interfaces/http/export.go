package http

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	summary "scentroute-cloud/internal/summary/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// BuildSummaryPDF renders a loading sheet for one worker and day.
func BuildSummaryPDF(s *summary.DailySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Loading Sheet")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Worker: %s", s.WorkerID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", s.Date))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Refill visits: %d", s.VisitCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Equipment visits: %d", s.EquipmentVisitCount))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Scent", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Volume", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range s.ScentLines() {
		pdf.CellFormat(80, 6, line.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%d", line.Total), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, fmt.Sprintf("%d", s.TotalVolume()), "1", 0, "R", false, 0, "")
	pdf.Ln(8)

	equipmentTable(pdf, "Device", s.DeviceLines())
	pdf.Ln(4)
	equipmentTable(pdf, "Battery", s.BatteryLines())

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func equipmentTable(pdf *gofpdf.Fpdf, heading string, lines []summary.Line) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, heading, "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Units", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range lines {
		pdf.CellFormat(80, 6, line.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%d", line.Total), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
}

// BuildSummaryXLSX renders the loading sheet as a workbook with a scents and
// an equipment sheet.
func BuildSummaryXLSX(s *summary.DailySummary) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	scentSheet := "scents"
	equipmentSheet := "equipment"
	if err := f.SetSheetName("Sheet1", scentSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(equipmentSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(scentSheet, "A1", "Worker")
	_ = f.SetCellValue(scentSheet, "B1", s.WorkerID)
	_ = f.SetCellValue(scentSheet, "A2", "Date")
	_ = f.SetCellValue(scentSheet, "B2", s.Date)
	_ = f.SetCellValue(scentSheet, "A3", "Refill visits")
	_ = f.SetCellValue(scentSheet, "B3", s.VisitCount)
	_ = f.SetCellValue(scentSheet, "A5", "Scent")
	_ = f.SetCellValue(scentSheet, "B5", "Volume")
	row := 6
	for _, line := range s.ScentLines() {
		_ = f.SetCellValue(scentSheet, fmt.Sprintf("A%d", row), line.Name)
		_ = f.SetCellValue(scentSheet, fmt.Sprintf("B%d", row), line.Total)
		row++
	}
	_ = f.SetCellValue(scentSheet, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(scentSheet, fmt.Sprintf("B%d", row), s.TotalVolume())

	_ = f.SetCellValue(equipmentSheet, "A1", "Equipment visits")
	_ = f.SetCellValue(equipmentSheet, "B1", s.EquipmentVisitCount)
	_ = f.SetCellValue(equipmentSheet, "A3", "Kind")
	_ = f.SetCellValue(equipmentSheet, "B3", "Item")
	_ = f.SetCellValue(equipmentSheet, "C3", "Units")
	row = 4
	for _, group := range []struct {
		kind  string
		lines []summary.Line
	}{
		{kind: "device", lines: s.DeviceLines()},
		{kind: "battery", lines: s.BatteryLines()},
	} {
		for _, line := range group.lines {
			_ = f.SetCellValue(equipmentSheet, fmt.Sprintf("A%d", row), group.kind)
			_ = f.SetCellValue(equipmentSheet, fmt.Sprintf("B%d", row), line.Name)
			_ = f.SetCellValue(equipmentSheet, fmt.Sprintf("C%d", row), line.Total)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
