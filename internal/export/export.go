// Package export renders the application list as CSV or Excel.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"amsportal/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" (the default for "") or "xlsx".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName returns the download name for f.
func (f Format) FileName() string {
	return "applications." + string(f)
}

// SheetName is the worksheet holding the export.
const SheetName = "Applications"

// Headers are the export columns.
var Headers = []string{
	"App ID", "Applicant", "Agent", "Type", "App No.", "Cost", "Due",
	"Status", "Received", "Completed", "Remarks",
}

func row(a models.Application) []any {
	completed := ""
	if a.CompletedDate != nil {
		completed = *a.CompletedDate
	}
	return []any{
		a.ID, a.ApplicantName, a.AgentName, a.AppType, a.AppNumber, a.Cost, a.Due,
		string(a.Status), a.ReceivedDate, completed, a.Remarks,
	}
}

// Write renders apps in format f to w.
func Write(w io.Writer, f Format, apps []models.Application) error {
	switch f {
	case FormatXLSX:
		return writeExcel(w, apps)
	case FormatCSV:
		return writeCSV(w, apps)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

func writeCSV(w io.Writer, apps []models.Application) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, a := range apps {
		values := row(a)
		record := make([]string, len(values))
		for i, v := range values {
			switch v := v.(type) {
			case int:
				record[i] = strconv.Itoa(v)
			case decimal.Decimal:
				record[i] = v.StringFixed(2)
			default:
				record[i] = fmt.Sprint(v)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeExcel(w io.Writer, apps []models.Application) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	for i, header := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, header)
		f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	for r, a := range apps {
		for c, v := range row(a) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if d, ok := v.(decimal.Decimal); ok {
				f.SetCellFloat(SheetName, cell, d.InexactFloat64(), -1, 64)
				f.SetCellStyle(SheetName, cell, cell, moneyStyle)
				continue
			}
			f.SetCellValue(SheetName, cell, v)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(Headers))
	f.SetColWidth(SheetName, "A", last, 15)
	f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
