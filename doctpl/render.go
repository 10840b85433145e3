package doctpl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/boombuler/barcode/qr"
	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/barcode"

	"github.com/lvillar/bulkdoc/table"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageSource opens the bytes behind an image block's src.
type ImageSource func(src string) (io.ReadCloser, error)

type renderConfig struct {
	date    time.Time
	images  ImageSource
	overlay func(pdf *fpdf.Fpdf)
}

// Option configures RenderDocument.
type Option func(*renderConfig)

// WithDate fixes the creation and modification dates written to the PDF.
func WithDate(t time.Time) Option {
	return func(c *renderConfig) { c.date = t }
}

// WithImageSource sets how image blocks are opened. The default reads local files.
func WithImageSource(src ImageSource) Option {
	return func(c *renderConfig) { c.images = src }
}

// WithPageOverlay registers fn to draw over the content of every page as the
// page is closed, e.g. a watermark.
func WithPageOverlay(fn func(pdf *fpdf.Fpdf)) Option {
	return func(c *renderConfig) { c.overlay = fn }
}

func openFile(src string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(src, "file://"))
}

// pdf417 layout parameters shared with the raster package.
const (
	PDF417Columns  = 10
	PDF417Security = 2
)

// Render parses a JSON document and writes it as a vector PDF to w.
func Render(w io.Writer, jsonDoc []byte, opts ...Option) error {
	var doc Document
	if err := json.Unmarshal(jsonDoc, &doc); err != nil {
		return fmt.Errorf("doctpl: parsing document: %w", err)
	}
	return RenderDocument(w, &doc, opts...)
}

// RenderDocument draws doc onto A4 pages and writes the PDF to w. One CSS
// pixel of layout width maps to 210/doc.Width millimetres, so the PDF keeps
// the proportions of the rasterized output.
func RenderDocument(w io.Writer, doc *Document, opts ...Option) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	cfg := renderConfig{date: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), images: openFile}
	for _, o := range opts {
		o(&cfg)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pageW, pageH := pdf.GetPageSize()
	r := &vectorRenderer{
		pdf:   pdf,
		doc:   doc,
		k:     pageW / doc.Width,
		pageW: pageW,
		pageH: pageH,
		cfg:   cfg,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		base:  doc.BaseFont(),
	}
	margin := doc.Padding * r.k
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCreationDate(cfg.date)
	pdf.SetModificationDate(cfg.date)
	pdf.SetCatalogSort(true)
	pdf.SetProducer("bulkdoc", false)
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	if doc.Author != "" {
		pdf.SetAuthor(doc.Author, true)
	}
	pdf.SetHeaderFunc(r.decoratePage)
	if cfg.overlay != nil {
		pdf.SetFooterFunc(func() { cfg.overlay(pdf) })
	}

	pdf.AddPage()
	r.setColor(doc.Color)
	for i, b := range doc.Blocks {
		if err := r.block(b); err != nil {
			return fmt.Errorf("doctpl: block %d: %w", i+1, err)
		}
		if pdf.Err() {
			return fmt.Errorf("doctpl: block %d: %w", i+1, pdf.Error())
		}
	}

	if pdf.Err() {
		return fmt.Errorf("doctpl: %w", pdf.Error())
	}
	return pdf.Output(w)
}

type vectorRenderer struct {
	pdf          *fpdf.Fpdf
	doc          *Document
	k            float64 // mm per CSS px
	pageW, pageH float64
	cfg          renderConfig
	tr           func(string) string
	base         Font
	images       int
}

func (r *vectorRenderer) contentW() float64 {
	l, _, rm, _ := r.pdf.GetMargins()
	return r.pageW - l - rm
}

// decoratePage paints the document background and border on every page.
func (r *vectorRenderer) decoratePage() {
	pdf := r.pdf
	if bg := r.doc.Background; bg != nil {
		pdf.SetFillColor(bg.R, bg.G, bg.B)
		pdf.Rect(0, 0, r.pageW, r.pageH, "F")
	}
	if b := r.doc.Border; b != nil && b.Width > 0 {
		lw := b.Width * r.k
		inset := lw/2 + r.doc.Padding*r.k/3
		pdf.SetDrawColor(b.Color.R, b.Color.G, b.Color.B)
		pdf.SetLineWidth(lw)
		pdf.Rect(inset, inset, r.pageW-2*inset, r.pageH-2*inset, "D")
		if b.Double {
			gap := 3 * lw
			pdf.SetLineWidth(lw / 2)
			pdf.Rect(inset+gap, inset+gap, r.pageW-2*(inset+gap), r.pageH-2*(inset+gap), "D")
		}
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(0.2)
	}
	l, t, _, _ := pdf.GetMargins()
	pdf.SetXY(l, t)
}

// pt converts a CSS px size to PDF points.
func (r *vectorRenderer) pt(px float64) float64 {
	return px * r.k * 72 / 25.4
}

func (r *vectorRenderer) setFont(f Font) {
	family := "Helvetica"
	switch f.Family {
	case "mono":
		family = "Courier"
	case "serif":
		family = "Times"
	}
	r.pdf.SetFont(family, strings.ToUpper(f.Style), r.pt(f.Size))
}

func (r *vectorRenderer) setColor(c *Color) {
	if c == nil {
		c = r.doc.Color
	}
	if c == nil {
		r.pdf.SetTextColor(0, 0, 0)
		return
	}
	r.pdf.SetTextColor(c.R, c.G, c.B)
}

func (r *vectorRenderer) lineHeight(f Font) float64 {
	return f.Size * 1.35 * r.k
}

func align(a string) string {
	switch strings.ToUpper(a) {
	case "C", "CENTER":
		return "C"
	case "R", "RIGHT":
		return "R"
	}
	return "L"
}

func (r *vectorRenderer) block(b Block) error {
	switch b.Type {
	case TypeHeading:
		f := ResolveFont(r.base, b.Font, HeadingSize(b.Level), "B")
		r.paragraph(b.Text, f, b.Color, b.Align)
		r.pdf.Ln(f.Size * 0.3 * r.k)
	case TypeText:
		f := ResolveFont(r.base, b.Font, 0, "")
		r.paragraph(b.Text, f, b.Color, b.Align)
		r.pdf.Ln(f.Size * 0.2 * r.k)
	case TypeBanner:
		r.banner(b)
	case TypeFields:
		r.fields(b)
	case TypeTable:
		r.table(b)
	case TypeBarcode:
		return r.barcode(b)
	case TypeImage:
		return r.image(b)
	case TypeRule:
		r.rule(b)
	case TypeSpacer:
		h := b.Height
		if h == 0 {
			h = 16
		}
		r.pdf.Ln(h * r.k)
	case TypeSignature:
		r.signature(b)
	default:
		return fmt.Errorf("unknown block type %q", b.Type)
	}
	return nil
}

func (r *vectorRenderer) paragraph(text string, f Font, c *Color, a string) {
	r.setFont(f)
	r.setColor(c)
	r.pdf.MultiCell(r.contentW(), r.lineHeight(f), r.tr(text), "", align(a), false)
}

func (r *vectorRenderer) banner(b Block) {
	pdf := r.pdf
	f := ResolveFont(r.base, b.Font, 0, "B")
	lines := b.Lines
	if len(lines) == 0 && b.Text != "" {
		lines = []string{b.Text}
	}
	fill := b.FillColor
	if fill == nil {
		fill = &Color{R: 40, G: 40, B: 40}
	}
	pdf.SetFillColor(fill.R, fill.G, fill.B)
	if b.Color != nil {
		pdf.SetTextColor(b.Color.R, b.Color.G, b.Color.B)
	} else {
		pdf.SetTextColor(255, 255, 255)
	}
	pad := f.Size * 0.4 * r.k
	pdf.CellFormat(r.contentW(), pad, "", "", 2, "C", true, 0, "")
	for i, line := range lines {
		lf := f
		if i > 0 {
			lf.Size = f.Size * 0.75
			lf.Style = ""
		}
		r.setFont(lf)
		pdf.CellFormat(r.contentW(), r.lineHeight(lf), r.tr(line), "", 2, align(b.Align), true, 0, "")
	}
	pdf.CellFormat(r.contentW(), pad, "", "", 1, "C", true, 0, "")
	r.setColor(nil)
	pdf.Ln(f.Size * 0.5 * r.k)
}

func (r *vectorRenderer) fields(b Block) {
	pdf := r.pdf
	cols := b.GridColumns
	if cols <= 0 {
		cols = 2
	}
	f := ResolveFont(r.base, b.Font, 0, "")
	bold := f
	bold.Style = "B"
	lh := r.lineHeight(f)
	colW := r.contentW() / float64(cols)
	l, _, _, _ := pdf.GetMargins()
	r.setColor(b.Color)
	for i, fld := range b.Fields {
		if i%cols == 0 && i > 0 {
			pdf.Ln(lh)
		}
		pdf.SetX(l + float64(i%cols)*colW)
		label := r.tr(fld.Label + ": ")
		r.setFont(bold)
		lw := pdf.GetStringWidth(label)
		pdf.CellFormat(lw, lh, label, "", 0, "L", false, 0, "")
		r.setFont(f)
		pdf.CellFormat(colW-lw, lh, r.tr(fld.Value), "", 0, "L", false, 0, "")
	}
	if len(b.Fields) > 0 {
		pdf.Ln(lh)
	}
	pdf.Ln(f.Size * 0.4 * r.k)
}

func (r *vectorRenderer) table(b Block) {
	f := ResolveFont(r.base, b.Font, 0, "")
	family := "Helvetica"
	switch f.Family {
	case "mono":
		family = "Courier"
	case "serif":
		family = "Times"
	}
	font := &table.FontSpec{Family: family, Size: r.pt(f.Size)}
	bold := &table.FontSpec{Family: family, Style: "B", Size: r.pt(f.Size)}

	header := &table.CellStyle{Font: bold, FillColor: &table.RGBColor{R: 230, G: 230, B: 230}}
	if hs := b.HeaderStyle; hs != nil {
		if c := hs.FillColor; c != nil {
			header.FillColor = &table.RGBColor{R: c.R, G: c.G, B: c.B}
		}
		if c := hs.TextColor; c != nil {
			header.TextColor = &table.RGBColor{R: c.R, G: c.G, B: c.B}
		}
	}
	var text *table.RGBColor
	if c := b.Color; c != nil {
		text = &table.RGBColor{R: c.R, G: c.G, B: c.B}
	} else if c := r.doc.Color; c != nil {
		text = &table.RGBColor{R: c.R, G: c.G, B: c.B}
	}

	cols := make([]table.Column, len(b.Columns))
	for i, w := range ColumnWeights(b.Columns) {
		cols[i] = table.Column{Width: w * r.contentW(), Align: align(b.Columns[i].Align)}
	}
	pad := 2 * r.k
	t := table.New(r.pdf).
		SetColumns(cols...).
		SetTranslator(r.tr).
		SetStyle(table.Style{
			Border:      &table.BorderStyle{Width: 0.2, Color: table.RGBColor{R: 90, G: 90, B: 90}},
			HeaderStyle: header,
			FooterStyle: &table.CellStyle{Font: bold},
			CellPadding: table.Padding{Top: pad, Bottom: pad, Left: pad, Right: pad},
			CellFont:    font,
			TextColor:   text,
			LineHeight:  1.35,
		})
	if len(b.Columns) > 0 {
		headers := make([]string, len(b.Columns))
		for i, c := range b.Columns {
			headers[i] = c.Header
		}
		t.AddHeader(headers...)
	}
	for _, cells := range b.Rows {
		t.AddRow(cells...)
	}
	if len(b.FooterRow) > 0 {
		t.AddFooter(b.FooterRow...)
	}
	l, _, _, _ := r.pdf.GetMargins()
	r.pdf.SetX(l)
	if err := t.Render(); err != nil {
		r.pdf.SetError(err)
	}
	r.setColor(r.doc.Color)
	r.pdf.Ln(f.Size * 0.5 * r.k)
}

// reserve starts a new page when h millimetres do not fit below the cursor.
func (r *vectorRenderer) reserve(h float64) {
	_, _, _, bottom := r.pdf.GetMargins()
	if r.pdf.GetY()+h > r.pageH-bottom {
		r.pdf.AddPage()
	}
}

func (r *vectorRenderer) place(w float64, a string) float64 {
	l, _, _, _ := r.pdf.GetMargins()
	switch align(a) {
	case "C":
		return l + (r.contentW()-w)/2
	case "R":
		return l + r.contentW() - w
	}
	return l
}

// BarcodeSize returns the default drawn size in CSS px of a barcode block.
func BarcodeSize(b Block) (w, h float64) {
	w, h = b.Width, b.Height
	if b.Barcode != nil && b.Barcode.Kind == BarcodePDF417 {
		if w == 0 {
			w = 280
		}
		if h == 0 {
			h = w / 4
		}
		return w, h
	}
	if w == 0 {
		w = 96
	}
	if h == 0 {
		h = w
	}
	return w, h
}

func (r *vectorRenderer) barcode(b Block) error {
	var key string
	switch b.Barcode.Kind {
	case BarcodeQR:
		key = barcode.RegisterQR(r.pdf, b.Barcode.Data, qr.M, qr.Auto)
	case BarcodePDF417:
		key = barcode.RegisterPdf417(r.pdf, b.Barcode.Data, PDF417Columns, PDF417Security)
	default:
		return fmt.Errorf("unknown barcode kind %q", b.Barcode.Kind)
	}
	if r.pdf.Err() {
		return fmt.Errorf("encoding %s: %w", b.Barcode.Kind, r.pdf.Error())
	}
	wpx, hpx := BarcodeSize(b)
	w, h := wpx*r.k, hpx*r.k
	r.reserve(h)
	x, y := r.place(w, b.Align), r.pdf.GetY()
	barcode.Barcode(r.pdf, key, x, y, w, h, false)
	r.pdf.SetY(y + h + 6*r.k)
	return nil
}

func (r *vectorRenderer) image(b Block) error {
	rc, err := r.cfg.images(b.Src)
	if err != nil {
		return fmt.Errorf("opening image %s: %w", b.Src, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return fmt.Errorf("decoding image %s: %w", b.Src, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return fmt.Errorf("image %s has zero area", b.Src)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding image %s: %w", b.Src, err)
	}
	r.images++
	name := fmt.Sprintf("img%d", r.images)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	r.pdf.RegisterImageOptionsReader(name, opts, &buf)

	wpx, hpx := b.Width, b.Height
	switch {
	case wpx == 0 && hpx == 0:
		wpx, hpx = float64(bounds.Dx()), float64(bounds.Dy())
	case hpx == 0:
		hpx = wpx * float64(bounds.Dy()) / float64(bounds.Dx())
	case wpx == 0:
		wpx = hpx * float64(bounds.Dx()) / float64(bounds.Dy())
	}
	w, h := wpx*r.k, hpx*r.k
	r.reserve(h)
	x, y := r.place(w, b.Align), r.pdf.GetY()
	r.pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	r.pdf.SetY(y + h + 6*r.k)
	return nil
}

func (r *vectorRenderer) rule(b Block) {
	pdf := r.pdf
	lw := b.LineWidth
	if lw == 0 {
		lw = 1
	}
	c := Color{R: 160, G: 160, B: 160}
	if b.Color != nil {
		c = *b.Color
	}
	pdf.Ln(4 * r.k)
	w := r.contentW()
	if b.Width > 0 && b.Width*r.k < w {
		w = b.Width * r.k
	}
	x := r.place(w, b.Align)
	y := pdf.GetY()
	pdf.SetLineWidth(lw * r.k)
	pdf.SetDrawColor(c.R, c.G, c.B)
	pdf.Line(x, y, x+w, y)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.Ln(6 * r.k)
}

func (r *vectorRenderer) signature(b Block) {
	pdf := r.pdf
	f := ResolveFont(r.base, b.Font, 0, "")
	bold := f
	bold.Style = "B"
	signers := Signers(b)
	lineW := 200 * r.k
	lh := r.lineHeight(f)
	r.reserve(40*r.k + 2*lh)
	pdf.Ln(40 * r.k)
	y := pdf.GetY()
	r.setColor(b.Color)
	for i, s := range signers {
		x := r.signerX(i, len(signers), lineW, b.Align)
		pdf.SetDrawColor(60, 60, 60)
		pdf.SetLineWidth(0.3)
		pdf.Line(x, y, x+lineW, y)
		pdf.SetXY(x, y+2*r.k)
		r.setFont(bold)
		pdf.CellFormat(lineW, lh, r.tr(s.Label), "", 2, "C", false, 0, "")
		if s.Value != "" {
			r.setFont(f)
			pdf.CellFormat(lineW, lh, r.tr(s.Value), "", 2, "C", false, 0, "")
		}
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.SetY(y + 2*r.k + 2*lh)
}

func (r *vectorRenderer) signerX(i, n int, w float64, a string) float64 {
	if n == 1 {
		return r.place(w, a)
	}
	l, _, _, _ := r.pdf.GetMargins()
	slot := r.contentW() / float64(n)
	return l + float64(i)*slot + (slot-w)/2
}
