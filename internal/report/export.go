package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"vendwatch/internal/observability/metrics"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Export renders a report in the requested format.
func Export(rep *Report, format string) ([]byte, error) {
	if rep == nil {
		return nil, errors.New("report: nil report")
	}
	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatXLSX:
		data, err = buildXLSX(rep)
	case FormatPDF:
		data, err = buildPDF(rep)
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveReportExport(format, result, time.Since(start))
	return data, err
}

func buildPDF(rep *Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sales Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Partner: %s", rep.PartnerName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s to %s",
		rep.WindowStart.Format("2006-01-02 15:04"),
		rep.WindowEnd.Format("2006-01-02 15:04")))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Serial", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Machine", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Completed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Failed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Void OK", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Void Fail", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rep.Rows {
		pdf.CellFormat(35, 6, row.Serial, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, row.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", row.Completed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", row.Failed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", row.VoidCompleted), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", row.VoidFailed), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, fmt.Sprintf("%d", rep.TotalCompleted), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 6, fmt.Sprintf("%d", rep.TotalFailed), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 6, fmt.Sprintf("%d", rep.TotalVoidCompleted), "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 6, fmt.Sprintf("%d", rep.TotalVoidFailed), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXLSX(rep *Report) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "sales"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Sales Report")
	_ = f.SetCellValue(sheet, "A2", "Partner")
	_ = f.SetCellValue(sheet, "B2", rep.PartnerName)
	_ = f.SetCellValue(sheet, "A3", "Window Start")
	_ = f.SetCellValue(sheet, "B3", rep.WindowStart.Format("2006-01-02 15:04"))
	_ = f.SetCellValue(sheet, "A4", "Window End")
	_ = f.SetCellValue(sheet, "B4", rep.WindowEnd.Format("2006-01-02 15:04"))

	_ = f.SetCellValue(sheet, "A6", "Serial")
	_ = f.SetCellValue(sheet, "B6", "Machine")
	_ = f.SetCellValue(sheet, "C6", "Completed")
	_ = f.SetCellValue(sheet, "D6", "Failed")
	_ = f.SetCellValue(sheet, "E6", "Void Completed")
	_ = f.SetCellValue(sheet, "F6", "Void Failed")
	for i, row := range rep.Rows {
		n := i + 7
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", n), row.Serial)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", n), row.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", n), row.Completed)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", n), row.Failed)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", n), row.VoidCompleted)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", n), row.VoidFailed)
	}
	totalRow := len(rep.Rows) + 7
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "Total")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", totalRow), rep.TotalCompleted)
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", totalRow), rep.TotalFailed)
	_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", totalRow), rep.TotalVoidCompleted)
	_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", totalRow), rep.TotalVoidFailed)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
