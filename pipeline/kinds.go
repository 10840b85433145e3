package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/templates"
)

// KindInfo describes a registered document kind.
type KindInfo struct {
	Kind             string   `json:"kind"`
	DocumentKind     string   `json:"documentKind"`
	IdentifyingField string   `json:"identifyingField"`
	SheetName        string   `json:"sheetName,omitempty"`
	Columns          []string `json:"columns"`
}

// Kinds lists the registered document kinds with their sample columns.
func Kinds() []KindInfo {
	var out []KindInfo
	for _, k := range templates.Kinds() {
		r, err := templates.Lookup(k)
		if err != nil {
			continue
		}
		schema := r.Schema()
		out = append(out, KindInfo{
			Kind:             r.Kind(),
			DocumentKind:     r.DocumentKind(),
			IdentifyingField: r.IdentifyingField(),
			SheetName:        schema.SheetName,
			Columns:          schema.Header(),
		})
	}
	return out
}

// ParseSelect reads a list of 1-based record numbers and ranges such as
// "1,3-5" and returns zero-based spans {0 0} {2 4}. Ranges are not expanded,
// so their size is unbounded. An empty string selects everything and yields
// nil.
func ParseSelect(s string) ([]batch.Span, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []batch.Span
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || a < 1 {
			return nil, fmt.Errorf("pipeline: bad record number %q", part)
		}
		b := a
		if isRange {
			b, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || b < a {
				return nil, fmt.Errorf("pipeline: bad record range %q", part)
			}
		}
		out = append(out, batch.Span{First: a - 1, Last: b - 1})
	}
	return out, nil
}
