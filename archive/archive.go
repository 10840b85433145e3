// Package archive bundles exported files into a single deterministic zip.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc"
)

// DefaultPrefix is used when Options.Prefix is empty.
const DefaultPrefix = "Student_Results"

// CompressionLevel is the DEFLATE level of every entry.
const CompressionLevel = 6

// epoch is the modification time of every entry.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Options controls packing.
type Options struct {
	Prefix string    // archive name prefix (default Student_Results)
	Date   time.Time // date stamp of the archive name (zero means today)
}

// Archive is a finished zip blob.
type Archive struct {
	Name    string   // suggested file name, <Prefix>_<YYYY-MM-DD>.zip
	Data    []byte   // zip bytes
	Entries []string // entry names in order
}

// File returns a as an exported file.
func (a *Archive) File() bulkdoc.ExportedFile {
	return bulkdoc.ExportedFile{Name: a.Name, Data: a.Data, MIMEType: bulkdoc.MIMEZip}
}

// Name returns the suggested archive file name.
func Name(prefix string, date time.Time) string {
	prefix = strings.Trim(bulkdoc.SanitizeName(strings.TrimSpace(prefix)), "_")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "_" + date.Format("2006-01-02") + ".zip"
}

// Disambiguate returns names with collisions resolved in first-occurrence
// order: the first "a.pdf" is kept, later ones become "a_1.pdf", "a_2.pdf".
// A generated name never collides with any name already handed out.
func Disambiguate(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	next := make(map[string]int)
	for i, name := range names {
		if !used[name] {
			used[name] = true
			out[i] = name
			continue
		}
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		n := next[name]
		for {
			n++
			candidate := base + "_" + strconv.Itoa(n) + ext
			if !used[candidate] {
				used[candidate] = true
				next[name] = n
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// Write streams files into a zip on w and returns the entry names. Zero files
// produce a valid empty archive.
func Write(w io.Writer, files []bulkdoc.ExportedFile) ([]string, error) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	names = Disambiguate(names)

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, CompressionLevel)
	})
	for i, f := range files {
		hdr := &zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: epoch,
		}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, &bulkdoc.PackagingError{Err: err}
		}
		if _, err := fw.Write(f.Data); err != nil {
			return nil, &bulkdoc.PackagingError{Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, &bulkdoc.PackagingError{Err: err}
	}
	return names, nil
}

// Pack builds the archive in memory.
func Pack(files []bulkdoc.ExportedFile, opts Options) (*Archive, error) {
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	var buf bytes.Buffer
	names, err := Write(&buf, files)
	if err != nil {
		return nil, err
	}
	return &Archive{Name: Name(opts.Prefix, date), Data: buf.Bytes(), Entries: names}, nil
}
