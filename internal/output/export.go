package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

const (
	consolidatedSheet = "Consolidated"
	varianceSheet     = "Variance"

	maxSheetName = 31
)

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

// rankSheetName builds a valid sheet name for a ranking window.
func rankSheetName(name string) string {
	sheet := []rune("Rank " + sheetNameReplacer.Replace(name))
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	return string(sheet)
}

// BuildWorkbook renders the wide table, each ranking and the variance
// table as sheets of one workbook.
func BuildWorkbook(rows []models.ConsolidatedRow, years []int, rankings []models.Ranking, variance []models.VarianceRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", consolidatedSheet); err != nil {
		return nil, err
	}
	grid := [][]any{toAny(ConsolidatedHeader(years))}
	for _, row := range rows {
		grid = append(grid, numericCells(ConsolidatedRecord(row, years), 2))
	}
	if err := writeGrid(f, consolidatedSheet, grid); err != nil {
		return nil, err
	}

	for _, r := range rankings {
		sheet := rankSheetName(r.Name)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		grid := [][]any{{"Rank", "Region", "Name", strconv.Itoa(r.FromYear), strconv.Itoa(r.ToYear), "Percent_Change"}}
		for _, row := range r.Rows {
			grid = append(grid, []any{row.Rank, string(row.Region), row.Name, cell(FormatNull(row.From)), cell(FormatNull(row.To)), cell(FormatNull(row.Percent))})
		}
		if err := writeGrid(f, sheet, grid); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(varianceSheet); err != nil {
		return nil, err
	}
	grid = [][]any{{"Region", "Name", "Years", "Variance"}}
	for _, v := range variance {
		grid = append(grid, []any{string(v.Region), v.Name, v.Years, cell(FormatNull(v.Variance))})
	}
	if err := writeGrid(f, varianceSheet, grid); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeGrid(f *excelize.File, sheet string, grid [][]any) error {
	for i, row := range grid {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// numericCells converts every value from index start on to a number, or
// leaves it blank when undefined.
func numericCells(values []string, start int) []any {
	out := toAny(values)
	for i := start; i < len(values); i++ {
		out[i] = cell(values[i])
	}
	return out
}

func cell(s string) any {
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// BuildRankingPDF renders every ranking as a table in a PDF report.
func BuildRankingPDF(title string, rankings []models.Ranking) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	for _, r := range rankings {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 6, fmt.Sprintf("Ranking %s: %d to %d", r.Name, r.FromYear, r.ToYear))
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(12, 6, "Rank", "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, "Region", "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 6, strconv.Itoa(r.FromYear), "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 6, strconv.Itoa(r.ToYear), "1", 0, "C", false, 0, "")
		pdf.CellFormat(32, 6, "Change %", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range r.Rows {
			label := string(row.Region)
			if row.Name != "" {
				label = row.Name
			}
			pdf.CellFormat(12, 6, strconv.Itoa(row.Rank), "1", 0, "C", false, 0, "")
			pdf.CellFormat(70, 6, label, "1", 0, "L", false, 0, "")
			pdf.CellFormat(32, 6, pdfNumber(row.From.Float64, row.From.Valid, 1), "1", 0, "R", false, 0, "")
			pdf.CellFormat(32, 6, pdfNumber(row.To.Float64, row.To.Valid, 1), "1", 0, "R", false, 0, "")
			pdf.CellFormat(32, 6, pdfNumber(row.Percent.Float64, row.Percent.Valid, 2), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pdfNumber(v float64, valid bool, prec int) string {
	if !valid {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
