package table

import (
	"github.com/go-pdf/fpdf"
)

// Column defines the properties of a table column.
type Column struct {
	Width float64 // fixed width in document units; 0 shares the remaining space
	Align string  // "L" (default), "C" or "R"
}

type row struct {
	cells []string
	kind  rowKind
	style *CellStyle
}

type rowKind int

const (
	bodyRow rowKind = iota
	headerRow
	footerRow
)

// Table is a builder for one grid. It draws at the current cursor position.
type Table struct {
	pdf     *fpdf.Fpdf
	columns []Column
	header  []*row
	body    []*row
	footer  []*row
	style   Style
	width   float64
	tr      func(string) string
}

// New creates a Table that draws onto pdf.
func New(pdf *fpdf.Fpdf) *Table {
	return &Table{
		pdf:   pdf,
		style: Style{CellPadding: UniformPadding(1)},
		tr:    func(s string) string { return s },
	}
}

// SetColumns sets column definitions for the table.
func (t *Table) SetColumns(cols ...Column) *Table {
	t.columns = cols
	return t
}

// SetWidth sets the total table width. If not called, the width between the
// page margins is used.
func (t *Table) SetWidth(w float64) *Table {
	t.width = w
	return t
}

// SetStyle sets the table-wide style.
func (t *Table) SetStyle(s Style) *Table {
	t.style = s
	return t
}

// SetTranslator sets the function applied to cell text before it is drawn,
// e.g. a UTF-8 to code page translator.
func (t *Table) SetTranslator(tr func(string) string) *Table {
	if tr != nil {
		t.tr = tr
	}
	return t
}

// AddHeader adds a header row. Header rows are repeated on every page.
func (t *Table) AddHeader(cells ...string) *Table {
	t.header = append(t.header, &row{cells: cells, kind: headerRow})
	return t
}

// AddRow adds a body row.
func (t *Table) AddRow(cells ...string) *Table {
	t.body = append(t.body, &row{cells: cells, kind: bodyRow})
	return t
}

// AddStyledRow adds a body row with its own style.
func (t *Table) AddStyledRow(s CellStyle, cells ...string) *Table {
	t.body = append(t.body, &row{cells: cells, kind: bodyRow, style: &s})
	return t
}

// AddFooter adds a row drawn after the body, e.g. totals.
func (t *Table) AddFooter(cells ...string) *Table {
	t.footer = append(t.footer, &row{cells: cells, kind: footerRow})
	return t
}

// Render draws the table. Rows never split across pages: a row that does not
// fit below the cursor starts a new page, which begins with the header rows.
func (t *Table) Render() error {
	pdf := t.pdf
	if pdf.Err() {
		return pdf.Error()
	}
	widths := t.calculateWidths()
	if len(widths) == 0 {
		return nil
	}

	auto, margin := pdf.GetAutoPageBreak()
	pdf.SetAutoPageBreak(false, margin)
	defer pdf.SetAutoPageBreak(auto, margin)

	startX := pdf.GetX()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	limit := pageH - bottom

	for _, r := range t.header {
		t.renderRow(r, widths, startX, 0)
	}
	rest := append(append([]*row{}, t.body...), t.footer...)
	for i, r := range rest {
		h := t.rowHeight(r, widths, i)
		if pdf.GetY()+h > limit && pdf.GetY() > t.topOfPage()+t.headerHeight(widths) {
			pdf.AddPage()
			pdf.SetX(startX)
			for _, hr := range t.header {
				t.renderRow(hr, widths, startX, 0)
			}
		}
		t.renderRow(r, widths, startX, i)
	}

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetFillColor(0, 0, 0)
	pdf.SetTextColor(0, 0, 0)
	return pdf.Error()
}

func (t *Table) topOfPage() float64 {
	_, top, _, _ := t.pdf.GetMargins()
	return top
}

func (t *Table) headerHeight(widths []float64) float64 {
	h := 0.0
	for _, r := range t.header {
		h += t.rowHeight(r, widths, 0)
	}
	return h
}

// calculateWidths computes final column widths based on definitions and available space.
func (t *Table) calculateWidths() []float64 {
	totalWidth := t.width
	if totalWidth == 0 {
		pageW, _ := t.pdf.GetPageSize()
		lMargin, _, rMargin, _ := t.pdf.GetMargins()
		totalWidth = pageW - lMargin - rMargin
	}

	numCols := len(t.columns)
	if numCols == 0 {
		for _, rows := range [][]*row{t.header, t.body, t.footer} {
			for _, r := range rows {
				numCols = max(numCols, len(r.cells))
			}
		}
		if numCols == 0 {
			return nil
		}
		t.columns = make([]Column, numCols)
	}

	widths := make([]float64, numCols)
	fixedTotal := 0.0
	autoCount := 0
	for i, col := range t.columns {
		if col.Width > 0 {
			widths[i] = col.Width
			fixedTotal += col.Width
		} else {
			autoCount++
		}
	}
	if autoCount > 0 {
		autoWidth := max(totalWidth-fixedTotal, 0) / float64(autoCount)
		for i, col := range t.columns {
			if col.Width == 0 {
				widths[i] = autoWidth
			}
		}
	}
	return widths
}

// resolveStyle merges the table, alternate row, row kind and row styles.
func (t *Table) resolveStyle(r *row, bodyIdx int) CellStyle {
	res := CellStyle{Font: t.style.CellFont, TextColor: t.style.TextColor}
	switch r.kind {
	case headerRow:
		mergeStyle(&res, t.style.HeaderStyle)
	case footerRow:
		mergeStyle(&res, t.style.FooterStyle)
	default:
		if alt := t.style.AlternateRows; alt != nil {
			if bodyIdx%2 == 0 {
				mergeStyle(&res, &alt.Even)
			} else {
				mergeStyle(&res, &alt.Odd)
			}
		}
	}
	mergeStyle(&res, r.style)
	return res
}

func (t *Table) applyFont(f *FontSpec) {
	if f != nil {
		t.pdf.SetFont(f.Family, f.Style, f.Size)
	}
}

func (t *Table) lineHeight() float64 {
	_, size := t.pdf.GetFontSize()
	k := t.style.LineHeight
	if k == 0 {
		k = 1.25
	}
	return size * k
}

func cellText(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// rowHeight computes the height needed for the wrapped text of r.
func (t *Table) rowHeight(r *row, widths []float64, bodyIdx int) float64 {
	style := t.resolveStyle(r, bodyIdx)
	t.applyFont(style.Font)
	pad := t.style.CellPadding
	lines := 1
	for i, w := range widths {
		txt := t.tr(cellText(r.cells, i))
		if txt == "" {
			continue
		}
		n := len(t.pdf.SplitText(txt, max(w-pad.Left-pad.Right, 1)))
		lines = max(lines, n)
	}
	return float64(lines)*t.lineHeight() + pad.Top + pad.Bottom
}

// renderRow draws r at the cursor and moves the cursor below it.
func (t *Table) renderRow(r *row, widths []float64, startX float64, bodyIdx int) {
	pdf := t.pdf
	h := t.rowHeight(r, widths, bodyIdx)
	style := t.resolveStyle(r, bodyIdx)
	t.applyFont(style.Font)
	lh := t.lineHeight()
	pad := t.style.CellPadding

	border := BorderStyle{Width: 0.2}
	if t.style.Border != nil {
		border = *t.style.Border
	}
	pdf.SetLineWidth(border.Width)
	pdf.SetDrawColor(border.Color.R, border.Color.G, border.Color.B)
	if c := style.TextColor; c != nil {
		pdf.SetTextColor(c.R, c.G, c.B)
	} else {
		pdf.SetTextColor(0, 0, 0)
	}

	y := pdf.GetY()
	x := startX
	for i, w := range widths {
		if c := style.FillColor; c != nil {
			pdf.SetFillColor(c.R, c.G, c.B)
			pdf.Rect(x, y, w, h, "F")
		}
		pdf.Rect(x, y, w, h, "D")

		align := style.Align
		if align == "" && i < len(t.columns) {
			align = t.columns[i].Align
		}
		if align == "" {
			align = "L"
		}
		contentW := max(w-pad.Left-pad.Right, 1)
		lines := pdf.SplitText(t.tr(cellText(r.cells, i)), contentW)
		// Vertically centred within the padded box.
		ty := y + pad.Top + (h-pad.Top-pad.Bottom-float64(len(lines))*lh)/2
		for j, line := range lines {
			pdf.SetXY(x+pad.Left, ty+float64(j)*lh)
			pdf.CellFormat(contentW, lh, line, "", 0, align, false, 0, "")
		}
		x += w
	}
	pdf.SetXY(startX, y+h)
}
