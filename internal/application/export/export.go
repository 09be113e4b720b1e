// Package export renders query responses as spreadsheet or PDF files.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"fit-atlas/internal/application/query"
	"fit-atlas/internal/observability/metrics"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

var ErrUnknownFormat = errors.New("Export format must be xlsx or pdf")

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ContentType returns the MIME type served for a format.
func ContentType(format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatXLSX, "":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	case FormatPDF:
		return "application/pdf", nil
	}
	return "", ErrUnknownFormat
}

// Render dispatches on format; an empty format means xlsx.
func Render(format string, resp *query.Response) ([]byte, error) {
	var (
		out []byte
		err error
	)
	format = strings.ToLower(format)
	switch format {
	case FormatXLSX, "":
		format = FormatXLSX
		out, err = XLSX(resp)
	case FormatPDF:
		out, err = PDF(resp)
	default:
		return nil, ErrUnknownFormat
	}
	metrics.IncExport(format, err)
	return out, err
}

var resultHeader = []string{
	"Asset", "Technology", "Capacity (kW)", "Postcode area", "Commissioned", "Sector",
	"Rate (p/kWh)", "Generation (kWh)", "Estimated", "Annual income (£)", "Expiry",
	"Years left", "Remaining value (£)", "Category",
}

func resultRow(it query.Item) []interface{} {
	p := it.Projection
	return []interface{}{
		it.Asset.ID, string(it.Asset.Technology), it.Asset.CapacityKW, it.Asset.PostcodePrefix,
		it.Asset.CommissionDate.Format("2006-01-02"), string(it.Asset.Sector),
		p.RatePencePerKWh, p.AnnualGenerationKWh, p.GenerationEstimated, p.AnnualIncome,
		p.ExpiryDate.Format("2006-01-02"), p.YearsRemaining, p.TotalRemainingValue,
		string(p.RepoweringCategory),
	}
}

// XLSX writes a summary sheet plus one sheet for results or partitions.
func XLSX(resp *query.Response) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summary := "summary"
	f.SetSheetName("Sheet1", summary)

	_ = f.SetCellValue(summary, "A1", "FIT catalogue query")
	_ = f.SetCellValue(summary, "A3", "Question")
	_ = f.SetCellValue(summary, "B3", resp.Text)
	_ = f.SetCellValue(summary, "A4", "As of")
	_ = f.SetCellValue(summary, "B4", resp.AsOf.Format("2006-01-02"))
	_ = f.SetCellValue(summary, "A5", "Intent")
	_ = f.SetCellValue(summary, "B5", string(resp.Intent))
	_ = f.SetCellValue(summary, "A6", "Matches")
	_ = f.SetCellValue(summary, "B6", resp.TotalMatches)
	_ = f.SetCellValue(summary, "A7", "Truncated")
	_ = f.SetCellValue(summary, "B7", resp.Truncated)
	row := 8
	if resp.Aggregate != nil {
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", row), fmt.Sprintf("%s %s", resp.Aggregate.Function, resp.Aggregate.Field))
		if resp.Aggregate.Value != nil {
			_ = f.SetCellValue(summary, fmt.Sprintf("B%d", row), *resp.Aggregate.Value)
		}
		row++
	}
	for i, w := range resp.Warnings {
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", row+i), string(w.Code))
		_ = f.SetCellValue(summary, fmt.Sprintf("B%d", row+i), w.Message)
	}

	if len(resp.Results) > 0 {
		results := "results"
		if _, err := f.NewSheet(results); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(results, "A1", &resultHeader); err != nil {
			return nil, err
		}
		for i, it := range resp.Results {
			values := resultRow(it)
			if err := f.SetSheetRow(results, fmt.Sprintf("A%d", i+2), &values); err != nil {
				return nil, err
			}
		}
	}
	if len(resp.Partitions) > 0 {
		parts := "partitions"
		if _, err := f.NewSheet(parts); err != nil {
			return nil, err
		}
		header := []interface{}{"Partition", "Count", "Capacity (kW)", "Annual income (£)", "Remaining value (£)"}
		_ = f.SetSheetRow(parts, "A1", &header)
		for i, p := range resp.Partitions {
			values := []interface{}{p.Label(), p.Count, p.TotalCapacityKW, p.TotalAnnualIncome, p.TotalRemainingValue}
			_ = f.SetSheetRow(parts, fmt.Sprintf("A%d", i+2), &values)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders a landscape report of the same content.
func PDF(resp *query.Response) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, "FIT catalogue query")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Question: %s", resp.Text)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("As of: %s", resp.AsOf.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Intent: %s   Matches: %d   Truncated: %t", resp.Intent, resp.TotalMatches, resp.Truncated))
	pdf.Ln(5)
	if resp.Aggregate != nil {
		value := "n/a"
		if resp.Aggregate.Value != nil {
			value = fmt.Sprintf("%.2f", *resp.Aggregate.Value)
		}
		pdf.Cell(0, 6, fmt.Sprintf("%s %s: %s (sample size %d)", resp.Aggregate.Function, resp.Aggregate.Field, value, resp.Aggregate.SampleSize))
		pdf.Ln(5)
	}
	for _, w := range resp.Warnings {
		pdf.Cell(0, 6, tr(fmt.Sprintf("Warning %s: %s", w.Code, w.Message)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	if len(resp.Results) > 0 {
		widths := []float64{28, 30, 20, 16, 22, 22, 18, 24, 24, 22, 16, 28}
		header := []string{"Asset", "Technology", "kW", "Area", "Commissioned", "Sector", "p/kWh", "kWh/yr", "Income", "Expiry", "Years", "Value"}
		pdf.SetFont("Arial", "B", 8)
		for i, h := range header {
			pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
		for _, it := range resp.Results {
			p := it.Projection
			cells := []string{
				it.Asset.ID, string(it.Asset.Technology), fmt.Sprintf("%.1f", it.Asset.CapacityKW), it.Asset.PostcodePrefix,
				it.Asset.CommissionDate.Format("2006-01-02"), string(it.Asset.Sector), fmt.Sprintf("%.2f", p.RatePencePerKWh),
				fmt.Sprintf("%.0f", p.AnnualGenerationKWh), fmt.Sprintf("%.2f", p.AnnualIncome), p.ExpiryDate.Format("2006-01-02"),
				fmt.Sprintf("%d", p.YearsRemaining), fmt.Sprintf("%.2f", p.TotalRemainingValue),
			}
			for i, c := range cells {
				align := "L"
				if i >= 6 || i == 2 {
					align = "R"
				}
				pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
			}
			pdf.Ln(-1)
		}
	}
	if len(resp.Partitions) > 0 {
		pdf.SetFont("Arial", "B", 9)
		for _, h := range []string{"Partition", "Count", "Capacity (kW)", "Income", "Remaining value"} {
			pdf.CellFormat(50, 6, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, p := range resp.Partitions {
			pdf.CellFormat(50, 6, tr(p.Label()), "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%d", p.Count), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.1f", p.TotalCapacityKW), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", p.TotalAnnualIncome), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", p.TotalRemainingValue), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
