// Package exporter turns a rasterized document into a finished file.
//
// PDF output is A4 portrait with the bitmap scaled to the page width. A
// bitmap taller than one page is cut into consecutive horizontal slices of
// floor(W×297/210) pixels, one slice per page, so nothing is cropped or
// repeated across a page break.
package exporter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/draw"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/raster"
)

// A4 page size in millimetres.
const (
	PageWidthMM  = 210
	PageHeightMM = 297
)

// Exporter packs a bitmap into a file.
type Exporter interface {
	// Ext is the extension of produced files without the dot.
	Ext() string
	Export(img image.Image, name string) (bulkdoc.ExportedFile, error)
}

type settings struct {
	date      time.Time
	watermark string
	resolver  raster.Resolver
}

// Option configures the PDF and Vector exporters.
type Option func(*settings)

// WithDate fixes the creation and modification dates written to PDFs.
func WithDate(t time.Time) Option {
	return func(s *settings) { s.date = t }
}

// WithWatermark stamps text diagonally across every page.
func WithWatermark(text string) Option {
	return func(s *settings) { s.watermark = text }
}

// WithResolver sets how the vector exporter opens image blocks.
func WithResolver(r raster.Resolver) Option {
	return func(s *settings) { s.resolver = r }
}

func newSettings(opts []Option) settings {
	s := settings{
		date:     time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		resolver: raster.DefaultResolver{},
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Slices partitions b into A4-proportioned horizontal bands. Bands are
// contiguous and do not overlap; the last one holds the remainder.
func Slices(b image.Rectangle) []image.Rectangle {
	w := b.Dx()
	if w <= 0 || b.Dy() <= 0 {
		return nil
	}
	sliceH := w * PageHeightMM / PageWidthMM
	if sliceH < 1 {
		sliceH = 1
	}
	var out []image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y += sliceH {
		out = append(out, image.Rect(b.Min.X, y, b.Max.X, min(y+sliceH, b.Max.Y)))
	}
	return out
}

// crop returns the r part of img without copying when img supports it.
func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// PDF exports bitmaps as paginated A4 PDFs.
type PDF struct {
	s settings
}

// NewPDF returns a PDF exporter.
func NewPDF(opts ...Option) *PDF {
	return &PDF{s: newSettings(opts)}
}

// Ext implements Exporter.
func (*PDF) Ext() string { return "pdf" }

// Export implements Exporter.
func (e *PDF) Export(img image.Image, name string) (bulkdoc.ExportedFile, error) {
	if img == nil || img.Bounds().Empty() {
		return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "pdf", Err: bulkdoc.ErrEmptyImage}
	}
	bounds := img.Bounds()
	mmPerPx := float64(PageWidthMM) / float64(bounds.Dx())

	pdf := newDocument(e.s)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	for i, slice := range Slices(bounds) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, crop(img, slice)); err != nil {
			return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "encode", Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		key := fmt.Sprintf("page%d", i+1)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(key, opts, &buf)
		pdf.ImageOptions(key, 0, 0, PageWidthMM, float64(slice.Dy())*mmPerPx, false, opts, 0, "")
		if e.s.watermark != "" {
			pageops.DrawWatermark(pdf, pageops.TextWatermark{Text: e.s.watermark})
		}
		if pdf.Err() {
			return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "pdf", Err: fmt.Errorf("page %d: %w", i+1, pdf.Error())}
		}
	}
	return output(pdf, name)
}

func newDocument(s settings) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(s.date)
	pdf.SetModificationDate(s.date)
	pdf.SetCatalogSort(true)
	pdf.SetProducer("bulkdoc", false)
	return pdf
}

func output(pdf *fpdf.Fpdf, name string) (bulkdoc.ExportedFile, error) {
	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "pdf", Err: err}
	}
	return bulkdoc.ExportedFile{Name: name, Data: out.Bytes(), MIMEType: bulkdoc.MIMEPDF}, nil
}

// PNG exports the bitmap as a single PNG image.
type PNG struct{}

// Ext implements Exporter.
func (PNG) Ext() string { return "png" }

// Export implements Exporter.
func (PNG) Export(img image.Image, name string) (bulkdoc.ExportedFile, error) {
	if img == nil || img.Bounds().Empty() {
		return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "png", Err: bulkdoc.ErrEmptyImage}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "png", Err: err}
	}
	return bulkdoc.ExportedFile{Name: name, Data: buf.Bytes(), MIMEType: bulkdoc.MIMEPNG}, nil
}

// Vector skips rasterization and draws the document directly as a PDF with
// selectable text.
type Vector struct {
	s settings
}

// NewVector returns a vector PDF exporter.
func NewVector(opts ...Option) *Vector {
	return &Vector{s: newSettings(opts)}
}

// Ext returns "pdf".
func (*Vector) Ext() string { return "pdf" }

// ExportDocument renders doc to a PDF named name.
func (v *Vector) ExportDocument(ctx context.Context, doc *doctpl.Document, name string) (bulkdoc.ExportedFile, error) {
	opts := []doctpl.Option{
		doctpl.WithDate(v.s.date),
		doctpl.WithImageSource(func(src string) (io.ReadCloser, error) {
			return v.s.resolver.Open(ctx, src)
		}),
	}
	if v.s.watermark != "" {
		wm := pageops.TextWatermark{Text: v.s.watermark}
		opts = append(opts, doctpl.WithPageOverlay(func(pdf *fpdf.Fpdf) {
			pageops.DrawWatermark(pdf, wm)
		}))
	}
	var buf bytes.Buffer
	if err := doctpl.RenderDocument(&buf, doc, opts...); err != nil {
		return bulkdoc.ExportedFile{}, &bulkdoc.ExportError{Op: "vector", Err: err}
	}
	return bulkdoc.ExportedFile{Name: name, Data: buf.Bytes(), MIMEType: bulkdoc.MIMEPDF}, nil
}
