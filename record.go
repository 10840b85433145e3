// Package bulkdoc holds the types shared by every stage of the bulk document
// pipeline: parsed records, the per-batch template configuration, exported
// files and the error taxonomy.
//
// The stages themselves live in sub-packages:
//
//	sheet     spreadsheet/CSV rows -> []Record, sample template writer
//	templates Record + TemplateConfig -> *doctpl.Document
//	raster    *doctpl.Document -> bitmap
//	exporter  bitmap -> paginated PDF or PNG
//	batch     ordered, throttled, cancellable loop over records
//	archive   exported files -> zip
//	pipeline  parse -> batch -> archive in one call
package bulkdoc

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one parsed data row.
type Record struct {
	Index  int // zero-based position among data rows
	Row    int // one-based sheet row; the header is row 1
	Fields map[string]string
}

// NewRecord builds a Record from a field map. Blank values are dropped so that
// presence checks only see cells that actually carry data.
func NewRecord(index, row int, fields map[string]string) Record {
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			continue
		}
		m[k] = v
	}
	return Record{Index: index, Row: row, Fields: m}
}

// Get returns the trimmed value of a field and whether it is present.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Value returns the field value or def when the field is absent.
func (r Record) Value(name, def string) string {
	if v, ok := r.Get(name); ok {
		return v
	}
	return def
}

// IndexedKey builds the column name of a repeated sub-entity field,
// e.g. IndexedKey("Subject", 2, "Code") == "Subject2_Code".
func IndexedKey(prefix string, n int, field string) string {
	return prefix + strconv.Itoa(n) + "_" + field
}

// IndexedField reads <prefix><n>_<field>.
func (r Record) IndexedField(prefix string, n int, field string) (string, bool) {
	return r.Get(IndexedKey(prefix, n, field))
}

// SubEntityCount probes <prefix>1_<codeField>, <prefix>2_<codeField>, ...
// and returns how many consecutive blocks are present. Probing stops at the
// first absent code field even when later blocks exist.
func (r Record) SubEntityCount(prefix, codeField string) int {
	n := 0
	for {
		if _, ok := r.IndexedField(prefix, n+1, codeField); !ok {
			return n
		}
		n++
	}
}

// Number parses a numeric field. An absent field yields (0, true). A present
// field that is not a finite number yields (0, false).
func (r Record) Number(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, true
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Keys returns the present field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
