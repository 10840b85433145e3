// Package preview renders a document as a standalone HTML page, so a record
// can be checked in a browser before a batch is generated.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
	"github.com/lvillar/bulkdoc/raster"
	"github.com/lvillar/bulkdoc/templates"
)

// maxImageBytes bounds an image embedded into the page.
const maxImageBytes = 8 << 20

var page = template.Must(template.New("preview").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { margin: 24px; background: #e5e7eb; }
    .page { margin: 0 auto; box-sizing: border-box; }
    .block { margin: 0 0 10px 0; }
    .banner { padding: 8px; }
    .banner .sub { font-size: 0.75em; font-weight: normal; }
    .fields { display: grid; gap: 4px 12px; }
    .fields .label { font-weight: bold; }
    table.grid { width: 100%; border-collapse: collapse; }
    table.grid th, table.grid td { border: 1px solid #666; padding: 4px; }
    table.grid tfoot td { font-weight: bold; }
    .signers { display: flex; justify-content: space-around; margin-top: 40px; }
    .signer { width: 200px; border-top: 1px solid #3c3c3c; text-align: center; }
    .signer .name { font-weight: bold; }
  </style>
</head>
<body>
<div class="page" style="{{.Style}}">
{{- range .Blocks}}
{{- if eq .Type "heading"}}
  {{- if eq .Level 1}}<h1 class="block heading" style="{{.Style}}">{{.Text}}</h1>
  {{- else if eq .Level 2}}<h2 class="block heading" style="{{.Style}}">{{.Text}}</h2>
  {{- else if eq .Level 3}}<h3 class="block heading" style="{{.Style}}">{{.Text}}</h3>
  {{- else}}<h4 class="block heading" style="{{.Style}}">{{.Text}}</h4>{{end}}
{{- else if eq .Type "text"}}
  <p class="block text" style="{{.Style}}">{{.Text}}</p>
{{- else if eq .Type "banner"}}
  <div class="block banner" style="{{.Style}}">
  {{- range $i, $l := .Lines}}<div{{if $i}} class="sub"{{end}}>{{$l}}</div>{{end}}
  </div>
{{- else if eq .Type "fields"}}
  <div class="block fields" style="{{.Style}}">
  {{- range .Fields}}<div><span class="label">{{.Label}}:</span> <span class="value">{{.Value}}</span></div>{{end}}
  </div>
{{- else if eq .Type "table"}}
  <table class="block grid" style="{{.Style}}">
    <thead><tr>{{range .Head}}<th style="{{.Style}}">{{.Text}}</th>{{end}}</tr></thead>
    <tbody>
    {{- range .Rows}}<tr>{{range .}}<td style="{{.Style}}">{{.Text}}</td>{{end}}</tr>{{end}}
    </tbody>
    {{- if .Foot}}
    <tfoot><tr>{{range .Foot}}<td style="{{.Style}}">{{.Text}}</td>{{end}}</tr></tfoot>
    {{- end}}
  </table>
{{- else if eq .Type "barcode"}}
  <div class="block" style="{{.Style}}"><img class="barcode" alt="{{.Text}}" src="{{.Src}}" width="{{.Width}}" height="{{.Height}}"></div>
{{- else if eq .Type "image"}}
  <div class="block" style="{{.Style}}">{{if .Src}}<img class="image" alt="" src="{{.Src}}" width="{{.Width}}">{{else}}<span class="missing">{{.Text}}</span>{{end}}</div>
{{- else if eq .Type "rule"}}
  <hr class="block rule" style="{{.Style}}">
{{- else if eq .Type "spacer"}}
  <div class="spacer" style="{{.Style}}"></div>
{{- else if eq .Type "signature"}}
  <div class="block signers" style="{{.Style}}">
  {{- range .Fields}}<div class="signer"><div class="name">{{.Label}}</div><div class="title">{{.Value}}</div></div>{{end}}
  </div>
{{- end}}
{{- end}}
</div>
</body>
</html>
`))

type cell struct {
	Text  string
	Style template.CSS
}

type blockView struct {
	Type   string
	Level  int
	Text   string
	Style  template.CSS
	Lines  []string
	Fields []doctpl.Field
	Head   []cell
	Rows   [][]cell
	Foot   []cell
	Src    template.URL
	Width  int
	Height int
}

type pageView struct {
	Title  string
	Style  template.CSS
	Blocks []blockView
}

// Option configures a Previewer.
type Option func(*Previewer)

// WithResolver sets how image blocks are opened. The default is
// raster.DefaultResolver{}.
func WithResolver(r raster.Resolver) Option {
	return func(p *Previewer) { p.resolver = r }
}

// Previewer renders documents to HTML.
type Previewer struct {
	resolver raster.Resolver
}

// New returns a Previewer.
func New(opts ...Option) *Previewer {
	p := &Previewer{resolver: raster.DefaultResolver{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render writes doc as an HTML page. Images are embedded as data URIs; an
// image that cannot be loaded is replaced by a placeholder.
func (p *Previewer) Render(ctx context.Context, w io.Writer, doc *doctpl.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	v := pageView{Title: doc.Title, Style: pageStyle(doc)}
	base := doctpl.DefaultFont
	if doc.Font != nil {
		base = doctpl.ResolveFont(base, doc.Font, 0, "")
	}
	for i, b := range doc.Blocks {
		bv, err := p.block(ctx, base, b)
		if err != nil {
			return fmt.Errorf("preview: block %d: %w", i, err)
		}
		v.Blocks = append(v.Blocks, bv)
	}
	if v.Title == "" {
		v.Title = "Preview"
	}
	if err := page.Execute(w, v); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	return nil
}

// Record renders rec with r and writes the HTML page. Render failures are
// returned as *bulkdoc.RecordError.
func (p *Previewer) Record(ctx context.Context, w io.Writer, r templates.Renderer, rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) error {
	doc, err := r.Render(rec, cfg.Freeze())
	if err != nil {
		return err
	}
	return p.Render(ctx, w, doc)
}

func pageStyle(doc *doctpl.Document) template.CSS {
	var s styleBuilder
	s.add("width", fmt.Sprintf("%.0fpx", doc.Width))
	if doc.MinHeight > 0 {
		s.add("min-height", fmt.Sprintf("%.0fpx", doc.MinHeight))
	}
	s.add("padding", fmt.Sprintf("%.0fpx", doc.Padding))
	bg := doctpl.Color{R: 255, G: 255, B: 255}
	if doc.Background != nil {
		bg = *doc.Background
	}
	s.add("background", bg.Hex())
	if doc.Color != nil {
		s.add("color", doc.Color.Hex())
	}
	if b := doc.Border; b != nil && b.Width > 0 {
		kind := "solid"
		if b.Double {
			kind = "double"
		}
		s.add("border", fmt.Sprintf("%.0fpx %s %s", b.Width, kind, b.Color.Hex()))
	}
	s.font(doctpl.ResolveFont(doctpl.DefaultFont, doc.Font, 0, ""))
	return s.css()
}

type styleBuilder struct {
	parts []string
}

func (s *styleBuilder) add(prop, value string) {
	s.parts = append(s.parts, prop+": "+value)
}

func (s *styleBuilder) color(c *doctpl.Color) {
	if c != nil {
		s.add("color", c.Hex())
	}
}

func (s *styleBuilder) align(a string) {
	switch strings.ToUpper(a) {
	case "C", "CENTER":
		s.add("text-align", "center")
	case "R", "RIGHT":
		s.add("text-align", "right")
	}
}

var families = map[string]string{
	"sans":  "Helvetica, Arial, sans-serif",
	"serif": "Times New Roman, serif",
	"mono":  "Courier New, monospace",
}

func (s *styleBuilder) font(f doctpl.Font) {
	if fam, ok := families[f.Family]; ok {
		s.add("font-family", fam)
	}
	if f.Size > 0 {
		s.add("font-size", fmt.Sprintf("%.0fpx", f.Size))
	}
	if f.Bold() {
		s.add("font-weight", "bold")
	}
	if f.Italic() {
		s.add("font-style", "italic")
	}
}

// css returns the declarations. Values come from numbers, fixed keywords and
// Color.Hex only, never from record text.
func (s *styleBuilder) css() template.CSS {
	return template.CSS(strings.Join(s.parts, "; "))
}

func (p *Previewer) block(ctx context.Context, base doctpl.Font, b doctpl.Block) (blockView, error) {
	v := blockView{Type: b.Type, Text: b.Text}
	var s styleBuilder
	switch b.Type {
	case doctpl.TypeHeading:
		v.Level = min(max(b.Level, 1), 4)
		s.font(doctpl.ResolveFont(base, b.Font, doctpl.HeadingSize(b.Level), "B"))
		s.color(b.Color)
		s.align(b.Align)
	case doctpl.TypeText:
		if b.Font != nil {
			s.font(doctpl.ResolveFont(base, b.Font, 0, ""))
		}
		s.color(b.Color)
		s.align(b.Align)
	case doctpl.TypeBanner:
		v.Lines = b.Lines
		if len(v.Lines) == 0 && b.Text != "" {
			v.Lines = []string{b.Text}
		}
		fill := doctpl.Color{R: 40, G: 40, B: 40}
		if b.FillColor != nil {
			fill = *b.FillColor
		}
		ink := doctpl.Color{R: 255, G: 255, B: 255}
		if b.Color != nil {
			ink = *b.Color
		}
		s.add("background", fill.Hex())
		s.add("color", ink.Hex())
		s.add("font-weight", "bold")
		s.align(b.Align)
	case doctpl.TypeFields:
		cols := b.GridColumns
		if cols <= 0 {
			cols = 2
		}
		v.Fields = b.Fields
		s.add("grid-template-columns", fmt.Sprintf("repeat(%d, 1fr)", cols))
		s.color(b.Color)
	case doctpl.TypeTable:
		p.table(&v, b)
	case doctpl.TypeBarcode:
		code, err := raster.EncodeBarcode(b.Barcode)
		if err != nil {
			return v, err
		}
		src, err := pngDataURI(code)
		if err != nil {
			return v, err
		}
		w, h := doctpl.BarcodeSize(b)
		v.Src, v.Width, v.Height, v.Text = src, int(w), int(h), b.Barcode.Data
		s.align(b.Align)
	case doctpl.TypeImage:
		v.Width = int(b.Width)
		if src, err := p.image(ctx, b.Src); err == nil {
			v.Src = src
		} else {
			v.Text = "image unavailable: " + b.Src
		}
		s.align(b.Align)
	case doctpl.TypeRule:
		lw := b.LineWidth
		if lw <= 0 {
			lw = 1
		}
		ink := doctpl.Color{R: 0, G: 0, B: 0}
		if b.Color != nil {
			ink = *b.Color
		}
		s.add("border", "0")
		s.add("border-top", fmt.Sprintf("%.0fpx solid %s", lw, ink.Hex()))
		if b.Width > 0 {
			s.add("width", fmt.Sprintf("%.0fpx", b.Width))
			switch strings.ToUpper(b.Align) {
			case "C", "CENTER":
				s.add("margin-left", "auto")
				s.add("margin-right", "auto")
			case "R", "RIGHT":
				s.add("margin-left", "auto")
			}
		}
	case doctpl.TypeSpacer:
		h := b.Height
		if h == 0 {
			h = 16
		}
		s.add("height", fmt.Sprintf("%.0fpx", h))
	case doctpl.TypeSignature:
		v.Fields = doctpl.Signers(b)
		s.color(b.Color)
	default:
		return v, fmt.Errorf("unknown block type %q", b.Type)
	}
	v.Style = s.css()
	return v, nil
}

func (p *Previewer) table(v *blockView, b doctpl.Block) {
	weights := doctpl.ColumnWeights(b.Columns)
	var hs styleBuilder
	if st := b.HeaderStyle; st != nil {
		if st.FillColor != nil {
			hs.add("background", st.FillColor.Hex())
		}
		hs.color(st.TextColor)
	}
	colStyle := func(i int, withWidth bool) template.CSS {
		var s styleBuilder
		if withWidth {
			s.parts = append(s.parts, hs.parts...)
			s.add("width", fmt.Sprintf("%.2f%%", weights[i]*100))
		}
		s.align(b.Columns[i].Align)
		return s.css()
	}
	for i, c := range b.Columns {
		v.Head = append(v.Head, cell{Text: c.Header, Style: colStyle(i, true)})
	}
	row := func(r []string) []cell {
		out := make([]cell, len(b.Columns))
		for i := range b.Columns {
			if i < len(r) {
				out[i].Text = r[i]
			}
			out[i].Style = colStyle(i, false)
		}
		return out
	}
	for _, r := range b.Rows {
		v.Rows = append(v.Rows, row(r))
	}
	if len(b.FooterRow) > 0 {
		v.Foot = row(b.FooterRow)
	}
}

func pngDataURI(img image.Image) (template.URL, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding barcode: %w", err)
	}
	return dataURI("image/png", buf.Bytes()), nil
}

func dataURI(mime string, data []byte) template.URL {
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// image loads src through the resolver and embeds it.
func (p *Previewer) image(ctx context.Context, src string) (template.URL, error) {
	rc, err := p.resolver.Open(ctx, src)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image %s is larger than %d bytes", src, maxImageBytes)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("image %s has content type %s", src, mime)
	}
	return dataURI(mime, data), nil
}
