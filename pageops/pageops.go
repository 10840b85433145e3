// Package pageops combines finished per-record PDFs into a single booklet.
//
// Pages are imported as templates with the gofpdi contrib package, stamped
// with page numbers and an optional watermark, and bookmarked per source
// document. Page counting and validation use pdfcpu.
package pageops

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/lvillar/bulkdoc"
)

// Position specifies where to place a stamp on a page.
type Position int

const (
	BottomCenter Position = iota
	BottomLeft
	BottomRight
	TopLeft
	TopCenter
	TopRight
	Center
)

// Source is one input document.
type Source struct {
	Name string // used as the bookmark title
	Data []byte
}

// FromExported converts exported PDF files into booklet sources. Files that
// are not PDFs are skipped.
func FromExported(files []bulkdoc.ExportedFile) []Source {
	out := make([]Source, 0, len(files))
	for _, f := range files {
		if f.MIMEType != bulkdoc.MIMEPDF {
			continue
		}
		out = append(out, Source{Name: f.Name, Data: f.Data})
	}
	return out
}

// ReadSources loads sources from files on disk.
func ReadSources(paths ...string) ([]Source, error) {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("pageops: reading %s: %w", p, err)
		}
		out = append(out, Source{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}

var (
	confOnce sync.Once
	conf     *model.Configuration
)

// pdfcpuConfig returns a shared configuration that never touches the user's
// config directory.
func pdfcpuConfig() *model.Configuration {
	confOnce.Do(func() {
		model.ConfigPath = "disable"
		conf = model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
	})
	return conf
}

// PageCount returns the number of pages in a PDF.
func PageCount(rs io.ReadSeeker) (int, error) {
	n, err := api.PageCount(rs, pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("pageops: counting pages: %w", err)
	}
	return n, nil
}

// Validate checks that data is a well-formed PDF.
func Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), pdfcpuConfig()); err != nil {
		return fmt.Errorf("pageops: validating: %w", err)
	}
	return nil
}

// importPage imports a single page of the current source stream into the
// target PDF. It returns the template ID and the page dimensions in points.
func importPage(pdf *fpdf.Fpdf, imp *gofpdi.Importer, rs *io.ReadSeeker, pageNum int) (tplID int, w, h float64) {
	tplID = imp.ImportPageFromStream(pdf, rs, pageNum, "/MediaBox")
	sizes := imp.GetPageSizes()
	if dims, ok := sizes[pageNum]; ok {
		if mb, ok := dims["/MediaBox"]; ok {
			w = mb["w"]
			h = mb["h"]
		}
	}
	if w == 0 || h == 0 {
		w, h = 595.28, 841.89 // A4
	}
	return
}

// writePDFToFile writes the PDF to a file.
func writePDFToFile(pdf *fpdf.Fpdf, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("pageops: creating %s: %w", filename, err)
	}
	if err := pdf.Output(f); err != nil {
		f.Close()
		return fmt.Errorf("pageops: writing %s: %w", filename, err)
	}
	return f.Close()
}
