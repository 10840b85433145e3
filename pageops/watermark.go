package pageops

import (
	"fmt"

	"github.com/go-pdf/fpdf"
)

// TextWatermark is a rotated, translucent stamp such as "DUPLICATE" or
// "PROVISIONAL". Zero fields take the defaults 60pt, grey 200, 0.3 alpha
// and 45 degrees.
type TextWatermark struct {
	Text     string
	FontSize float64
	Color    RGBColor
	Opacity  float64
	Angle    float64
}

func (wm TextWatermark) withDefaults() TextWatermark {
	if wm.FontSize == 0 {
		wm.FontSize = 60
	}
	if wm.Opacity == 0 {
		wm.Opacity = 0.3
	}
	if wm.Angle == 0 {
		wm.Angle = 45
	}
	if wm.Color == (RGBColor{}) {
		wm.Color = RGBColor{200, 200, 200}
	}
	return wm
}

// RGBColor is an 8-bit RGB triple.
type RGBColor struct {
	R, G, B int
}

// PageNumberStyle controls the footer stamped on booklet pages. Format gets
// the page number and the page count.
type PageNumberStyle struct {
	Format   string // default "Page %d of %d"
	Position Position
	FontSize float64 // points, default 9
	Color    RGBColor
	Margin   float64 // points from the page edge, default 20
}

func (s PageNumberStyle) withDefaults() PageNumberStyle {
	if s.Format == "" {
		s.Format = "Page %d of %d"
	}
	if s.FontSize == 0 {
		s.FontSize = 9
	}
	if s.Margin == 0 {
		s.Margin = 20
	}
	return s
}

// DrawWatermark stamps wm, with defaults applied, centred on the current page
// of pdf. The document may use any unit.
func DrawWatermark(pdf *fpdf.Fpdf, wm TextWatermark) {
	if wm.Text == "" {
		return
	}
	w, h := pdf.GetPageSize()
	drawTextWatermark(pdf, wm.withDefaults(), w, h)
}

func drawTextWatermark(pdf *fpdf.Fpdf, wm TextWatermark, pageW, pageH float64) {
	pdf.SetFont("Helvetica", "B", wm.FontSize)
	pdf.SetTextColor(wm.Color.R, wm.Color.G, wm.Color.B)
	pdf.SetAlpha(wm.Opacity, "Normal")

	textW := pdf.GetStringWidth(wm.Text)
	cx := pageW / 2
	cy := pageH / 2

	pdf.TransformBegin()
	pdf.TransformRotate(wm.Angle, cx, cy)
	pdf.Text(cx-textW/2, cy+pdf.PointToUnitConvert(wm.FontSize)/3, wm.Text)
	pdf.TransformEnd()

	pdf.SetAlpha(1.0, "Normal")
}

func drawPageNumber(pdf *fpdf.Fpdf, style PageNumberStyle, page, total int, pageW, pageH float64) {
	text := fmt.Sprintf(style.Format, page, total)
	pdf.SetFont("Helvetica", "", style.FontSize)
	pdf.SetTextColor(style.Color.R, style.Color.G, style.Color.B)
	x, y := calculatePosition(style.Position, pageW, pageH, pdf.GetStringWidth(text), style.FontSize, style.Margin)
	pdf.Text(x, y, text)
}

// calculatePosition returns the baseline origin of a textW wide label.
func calculatePosition(pos Position, pageW, pageH, textW, textH, margin float64) (x, y float64) {
	switch pos {
	case TopLeft:
		return margin, margin + textH
	case TopCenter:
		return (pageW - textW) / 2, margin + textH
	case TopRight:
		return pageW - textW - margin, margin + textH
	case BottomLeft:
		return margin, pageH - margin
	case BottomRight:
		return pageW - textW - margin, pageH - margin
	case Center:
		return (pageW - textW) / 2, pageH / 2
	default:
		return (pageW - textW) / 2, pageH - margin
	}
}
