// Package table draws bordered grids onto an fpdf document.
//
// Columns have fixed or shared widths, cell text wraps, and header rows are
// repeated at the top of every page the table spills onto.
package table

// RGBColor represents an RGB color value.
type RGBColor struct {
	R, G, B int
}

// FontSpec defines font properties for text rendering.
type FontSpec struct {
	Family string
	Style  string  // "", "B", "I", "BI"
	Size   float64 // in points
}

// Padding defines spacing inside a cell, in document units.
type Padding struct {
	Top, Right, Bottom, Left float64
}

// UniformPadding creates a Padding with the same value on all sides.
func UniformPadding(v float64) Padding {
	return Padding{Top: v, Right: v, Bottom: v, Left: v}
}

// BorderStyle defines the appearance of cell borders.
type BorderStyle struct {
	Width float64
	Color RGBColor
}

// CellStyle defines the visual appearance of a row.
type CellStyle struct {
	FillColor *RGBColor
	TextColor *RGBColor
	Font      *FontSpec
	Align     string // "L", "C", "R"; overrides the column alignment
}

// AlternateStyle defines alternating body row fills.
type AlternateStyle struct {
	Even CellStyle
	Odd  CellStyle
}

// Style defines the overall appearance of a table.
type Style struct {
	Border        *BorderStyle // nil draws 0.2 wide black lines
	HeaderStyle   *CellStyle
	FooterStyle   *CellStyle
	AlternateRows *AlternateStyle
	CellPadding   Padding
	CellFont      *FontSpec // nil keeps the document's current font
	TextColor     *RGBColor // body text; nil is black
	LineHeight    float64   // multiple of the font size; 0 means 1.25
}

// mergeStyle copies non-nil fields from src to dst.
func mergeStyle(dst *CellStyle, src *CellStyle) {
	if src == nil {
		return
	}
	if src.FillColor != nil {
		dst.FillColor = src.FillColor
	}
	if src.TextColor != nil {
		dst.TextColor = src.TextColor
	}
	if src.Font != nil {
		dst.Font = src.Font
	}
	if src.Align != "" {
		dst.Align = src.Align
	}
}
