package bulkdoc

import (
	"strings"
)

// SubEntity describes a repeated block of columns such as
// Subject1_Code, Subject1_Name, Subject2_Code, ...
type SubEntity struct {
	Prefix      string   // "Subject"
	CodeField   string   // field whose presence decides that block n exists
	Fields      []string // field suffixes in column order
	SampleCount int      // blocks written to a sample template
}

// Schema is the column layout a document kind understands. It drives both
// the sample template writer and column recognition.
type Schema struct {
	Kind      string
	SheetName string
	Columns   []string
	SubEntity *SubEntity
	Samples   []map[string]string
}

// Header returns the sample template header: fixed columns followed by
// SampleCount sub-entity blocks.
func (s Schema) Header() []string {
	out := append([]string(nil), s.Columns...)
	if se := s.SubEntity; se != nil {
		for n := 1; n <= se.SampleCount; n++ {
			for _, f := range se.Fields {
				out = append(out, IndexedKey(se.Prefix, n, f))
			}
		}
	}
	return out
}

// Recognizes reports whether column is a fixed column or a sub-entity column
// of any index.
func (s Schema) Recognizes(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	se := s.SubEntity
	if se == nil || !strings.HasPrefix(column, se.Prefix) {
		return false
	}
	rest := column[len(se.Prefix):]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 || rest[0] == '0' || i >= len(rest) || rest[i] != '_' {
		return false
	}
	field := rest[i+1:]
	for _, f := range se.Fields {
		if f == field {
			return true
		}
	}
	return false
}
