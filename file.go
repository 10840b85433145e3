package bulkdoc

import (
	"strconv"
	"strings"
)

// MIME types of exported files.
const (
	MIMEPDF = "application/pdf"
	MIMEPNG = "image/png"
	MIMEZip = "application/zip"
)

// ExportedFile is a finished document for one record.
type ExportedFile struct {
	Name     string
	Data     []byte
	MIMEType string
}

// Ext returns the file extension of f without the dot.
func (f ExportedFile) Ext() string {
	if i := strings.LastIndexByte(f.Name, '.'); i >= 0 {
		return f.Name[i+1:]
	}
	return ""
}

// SanitizeName replaces every character outside [A-Za-z0-9] with '_'.
func SanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FileName builds <sanitized label>_<documentKind>.<ext>. An empty label falls
// back to record_<row>.
func FileName(label, documentKind, ext string, row int) string {
	base := SanitizeName(strings.TrimSpace(label))
	if strings.Trim(base, "_") == "" {
		base = "record_" + strconv.Itoa(row)
	}
	return base + "_" + documentKind + "." + ext
}
