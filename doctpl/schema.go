// Package doctpl describes a rendered document as a declarative tree of blocks.
//
// A Document is what a template renderer produces for one record. It is laid
// out in CSS pixels at a fixed width and can be turned into pixels by the
// raster package or drawn directly as a vector PDF with RenderDocument. The
// schema is plain JSON, so a document can also be written by hand:
//
//	{
//	  "title": "JOHN DOE",
//	  "width": 794,
//	  "padding": 40,
//	  "blocks": [
//	    {"type": "heading", "text": "STATEMENT OF GRADES", "align": "C"},
//	    {"type": "fields", "gridColumns": 2, "fields": [
//	      {"label": "SEAT NO", "value": "S001"},
//	      {"label": "PRN", "value": "PRN-0001"}
//	    ]},
//	    {"type": "table", "columns": [{"header": "CODE"}, {"header": "GRADE"}],
//	     "rows": [["CS-101", "A"]]}
//	  ]
//	}
package doctpl

import (
	"fmt"
	"strconv"
	"strings"
)

// Block types.
const (
	TypeHeading   = "heading"
	TypeText      = "text"
	TypeFields    = "fields"
	TypeTable     = "table"
	TypeBarcode   = "barcode"
	TypeImage     = "image"
	TypeRule      = "rule"
	TypeSpacer    = "spacer"
	TypeBanner    = "banner"
	TypeSignature = "signature"
)

// Barcode kinds.
const (
	BarcodeQR     = "qr"
	BarcodePDF417 = "pdf417"
)

// A4Width is the layout width of an A4 page at 96 CSS pixels per inch.
const A4Width = 794

// Document is the root of a rendered document.
type Document struct {
	Title      string  `json:"title,omitempty"`
	Author     string  `json:"author,omitempty"`
	Width      float64 `json:"width"`               // layout width in CSS px
	MinHeight  float64 `json:"minHeight,omitempty"` // pad the page to at least this height
	Padding    float64 `json:"padding,omitempty"`
	Font       *Font   `json:"font,omitempty"` // default font
	Color      *Color  `json:"color,omitempty"`
	Background *Color  `json:"background,omitempty"`
	Border     *Border `json:"border,omitempty"`
	Blocks     []Block `json:"blocks"`
}

// Font specifies a font face. Family is one of sans, serif or mono.
type Font struct {
	Family string  `json:"family,omitempty"`
	Style  string  `json:"style,omitempty"` // "" (regular), "B", "I", "BI"
	Size   float64 `json:"size,omitempty"`  // CSS px
}

// Bold reports whether the style asks for a bold face.
func (f Font) Bold() bool { return strings.Contains(strings.ToUpper(f.Style), "B") }

// Italic reports whether the style asks for an italic face.
func (f Font) Italic() bool { return strings.Contains(strings.ToUpper(f.Style), "I") }

// Color is an RGB color.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Border frames the whole document.
type Border struct {
	Color  Color   `json:"color"`
	Width  float64 `json:"width"`
	Double bool    `json:"double,omitempty"`
}

// Block is a single element of the document flow. The Type field determines
// which other fields are relevant.
type Block struct {
	Type string `json:"type"`

	// heading, text, banner, signature
	Text  string `json:"text,omitempty"`
	Level int    `json:"level,omitempty"` // heading level 1-4
	Align string `json:"align,omitempty"` // L, C, R (default: L)
	Font  *Font  `json:"font,omitempty"`
	Color *Color `json:"color,omitempty"`

	// banner: filled strip with one or more centered lines
	Lines     []string `json:"lines,omitempty"`
	FillColor *Color   `json:"fillColor,omitempty"`

	// fields: label/value grid; signature: name/title per signer
	Fields      []Field `json:"fields,omitempty"`
	GridColumns int     `json:"gridColumns,omitempty"`

	// table
	Columns     []Column   `json:"columns,omitempty"`
	Rows        [][]string `json:"rows,omitempty"`
	FooterRow   []string   `json:"footerRow,omitempty"`
	HeaderStyle *CellStyle `json:"headerStyle,omitempty"`

	// barcode
	Barcode *Barcode `json:"barcode,omitempty"`

	// image
	Src string `json:"src,omitempty"`

	// image, barcode, spacer, rule: size in CSS px
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// rule
	LineWidth float64 `json:"lineWidth,omitempty"`
}

// Field is one label/value pair of a fields grid.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Column defines a table column. Weight is the relative column width.
type Column struct {
	Header string  `json:"header"`
	Weight float64 `json:"weight,omitempty"` // 0 = 1
	Align  string  `json:"align,omitempty"`  // L, C, R
}

// CellStyle defines styling for table header cells.
type CellStyle struct {
	FillColor *Color `json:"fillColor,omitempty"`
	TextColor *Color `json:"textColor,omitempty"`
}

// Barcode is a two-dimensional code drawn as a square (qr) or a wide strip (pdf417).
type Barcode struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

// ParseHexColor parses "#rrggbb".
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("doctpl: color %q is not #rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("doctpl: color %q: %w", s, err)
	}
	return Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}

// Hex formats c as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R&0xff, c.G&0xff, c.B&0xff)
}

// HeadingSize returns the default font size in px for a heading level.
func HeadingSize(level int) float64 {
	sizes := []float64{28, 22, 18, 15}
	if level < 1 {
		level = 1
	}
	if level > len(sizes) {
		level = len(sizes)
	}
	return sizes[level-1]
}

// DefaultFont is used when a document does not set one.
var DefaultFont = Font{Family: "sans", Size: 14}

// ResolveFont merges an element font over base. fallbackSize and
// fallbackStyle replace the base values when set; override wins over both.
func ResolveFont(base Font, override *Font, fallbackSize float64, fallbackStyle string) Font {
	f := base
	if fallbackSize > 0 {
		f.Size = fallbackSize
	}
	if fallbackStyle != "" {
		f.Style = fallbackStyle
	}
	if override != nil {
		if override.Family != "" {
			f.Family = override.Family
		}
		if override.Style != "" {
			f.Style = override.Style
		}
		if override.Size > 0 {
			f.Size = override.Size
		}
	}
	if f.Family == "" {
		f.Family = DefaultFont.Family
	}
	if f.Size <= 0 {
		f.Size = DefaultFont.Size
	}
	return f
}

// BaseFont returns the document default font.
func (d *Document) BaseFont() Font {
	return ResolveFont(DefaultFont, d.Font, 0, "")
}

// Validate checks that the document can be laid out.
func (d *Document) Validate() error {
	if d.Width <= 0 {
		return fmt.Errorf("doctpl: width must be positive, got %v", d.Width)
	}
	if 2*d.Padding >= d.Width {
		return fmt.Errorf("doctpl: padding %v leaves no content width", d.Padding)
	}
	for i, b := range d.Blocks {
		if err := b.validate(); err != nil {
			return fmt.Errorf("doctpl: block %d: %w", i+1, err)
		}
	}
	return nil
}

func (b Block) validate() error {
	switch b.Type {
	case TypeHeading, TypeText, TypeFields, TypeTable, TypeRule, TypeSpacer, TypeBanner, TypeSignature:
		return nil
	case TypeBarcode:
		if b.Barcode == nil || b.Barcode.Data == "" {
			return fmt.Errorf("barcode block requires data")
		}
		if b.Barcode.Kind != BarcodeQR && b.Barcode.Kind != BarcodePDF417 {
			return fmt.Errorf("unknown barcode kind %q", b.Barcode.Kind)
		}
		return nil
	case TypeImage:
		if b.Src == "" {
			return fmt.Errorf("image block requires 'src' field")
		}
		return nil
	}
	return fmt.Errorf("unknown block type %q", b.Type)
}

// Signers returns the people a signature block is for. Fields list them as
// name/title pairs; otherwise the first line of Text is the name and the
// rest the title.
func Signers(b Block) []Field {
	if len(b.Fields) > 0 {
		return b.Fields
	}
	name, title, _ := strings.Cut(b.Text, "\n")
	return []Field{{Label: name, Value: title}}
}

// ColumnWeights returns normalized column width fractions.
func ColumnWeights(cols []Column) []float64 {
	out := make([]float64, len(cols))
	total := 0.0
	for i, c := range cols {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		out[i] = w
		total += w
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Text returns every piece of text in the document in flow order. It is used
// for previews and tests.
func (d *Document) Text() []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, b := range d.Blocks {
		add(b.Text)
		for _, l := range b.Lines {
			add(l)
		}
		for _, f := range b.Fields {
			add(f.Label)
			add(f.Value)
		}
		for _, c := range b.Columns {
			add(c.Header)
		}
		for _, r := range b.Rows {
			for _, c := range r {
				add(c)
			}
		}
		for _, c := range b.FooterRow {
			add(c)
		}
	}
	return out
}
