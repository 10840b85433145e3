// Package sheet turns uploaded spreadsheets into records and writes sample
// templates for each document kind.
//
// CSV and XLSX are supported. The first non-empty row is the header; every
// following non-blank row becomes one bulkdoc.Record keyed by header name.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/lvillar/bulkdoc"
)

// Format is an input or sample file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// DetectFormat picks the decoder from the content signature, then from the
// file extension. Legacy binary .xls files are rejected.
func DetectFormat(name string, head []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(head, oleMagic):
		return "", fmt.Errorf("%w: legacy .xls workbooks are not supported, save as .xlsx", bulkdoc.ErrUnsupportedFormat)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", bulkdoc.ErrUnsupportedFormat, filepath.Ext(name))
}

// ParseFile parses the spreadsheet at path.
func ParseFile(path string) ([]bulkdoc.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &bulkdoc.ParseError{Source: filepath.Base(path), Err: err}
	}
	defer f.Close()
	return Parse(filepath.Base(path), f)
}

// Parse decodes r as a spreadsheet. name is used for format detection and
// error messages. On failure no records are returned and the error is a
// *bulkdoc.ParseError.
func Parse(name string, r io.Reader) ([]bulkdoc.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &bulkdoc.ParseError{Source: name, Err: err}
	}
	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, &bulkdoc.ParseError{Source: name, Err: err}
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	default:
		rows, err = readCSV(name, data)
	}
	if err != nil {
		return nil, &bulkdoc.ParseError{Source: name, Err: err}
	}

	recs, err := Records(rows)
	if err != nil {
		return nil, &bulkdoc.ParseError{Source: name, Err: err}
	}
	return recs, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(name string, data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not UTF-8 text, save it as CSV UTF-8 or .xlsx", bulkdoc.ErrUnsupportedFormat, name)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comma = sniffDelimiter(name, data)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rows, nil
}

// sniffDelimiter chooses between comma, semicolon and tab by counting them
// in the first line. Ties go to the comma.
func sniffDelimiter(name string, data []byte) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// Records converts raw rows into records. The first non-empty row is the
// header. Cells are trimmed, blank rows are skipped, short rows are padded
// and cells beyond the header are ignored. When a header name repeats, the
// first column wins.
func Records(rows [][]string) ([]bulkdoc.Record, error) {
	headerAt := -1
	for i, row := range rows {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, bulkdoc.ErrNoHeader
	}

	header := rows[headerAt]
	cols := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		cols[i] = h
	}

	recs := make([]bulkdoc.Record, 0, len(rows)-headerAt-1)
	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		fields := make(map[string]string, len(cols))
		for c, name := range cols {
			if name == "" || c >= len(row) {
				continue
			}
			fields[name] = strings.TrimSpace(row[c])
		}
		recs = append(recs, bulkdoc.NewRecord(len(recs), i+1, fields))
	}
	return recs, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// UnknownColumns returns header names in recs that schema does not
// recognize, in sorted order.
func UnknownColumns(recs []bulkdoc.Record, schema bulkdoc.Schema) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		for _, k := range r.Keys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			if !schema.Recognizes(k) {
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
