package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lvillar/bulkdoc"
)

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "xlsx":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", bulkdoc.ErrUnsupportedFormat, s)
}

// SampleFileName returns the download name of a sample template,
// e.g. bulk_result_sample.xlsx.
func SampleFileName(kind string, format Format) string {
	return "bulk_" + strings.ReplaceAll(kind, "-", "_") + "_sample." + string(format)
}

// SampleRows returns the header followed by one row per schema sample.
func SampleRows(schema bulkdoc.Schema) [][]string {
	header := schema.Header()
	rows := make([][]string, 0, len(schema.Samples)+1)
	rows = append(rows, header)
	for _, s := range schema.Samples {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = s[col]
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteSample writes a sample template for schema in the given format.
func WriteSample(w io.Writer, schema bulkdoc.Schema, format Format) error {
	rows := SampleRows(schema)
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("sheet: writing csv sample: %w", err)
		}
		return nil
	case FormatXLSX:
		return writeXLSX(w, schema, rows)
	}
	return fmt.Errorf("sheet: %w: %q", bulkdoc.ErrUnsupportedFormat, format)
}

func writeXLSX(w io.Writer, schema bulkdoc.Schema, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	name := schema.SheetName
	if name == "" {
		name = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return fmt.Errorf("sheet: naming sheet: %w", err)
	}

	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("sheet: row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return fmt.Errorf("sheet: writing row %d: %w", i+1, err)
		}
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("sheet: header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return fmt.Errorf("sheet: header range: %w", err)
		}
		if err := f.SetCellStyle(name, "A1", last, style); err != nil {
			return fmt.Errorf("sheet: styling header: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("sheet: writing workbook: %w", err)
	}
	return nil
}
