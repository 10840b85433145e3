package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
)

func newTestPDF() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()
	return pdf
}

func output(t *testing.T, pdf *fpdf.Fpdf) string {
	t.Helper()
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("output: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatal("output is not a PDF")
	}
	return buf.String()
}

func TestBasicTable(t *testing.T) {
	pdf := newTestPDF()
	y0 := pdf.GetY()

	err := New(pdf).
		SetColumns(Column{Width: 40}, Column{}, Column{Width: 30, Align: "C"}).
		AddHeader("CODE", "SUBJECT", "GRADE").
		AddRow("CS-101", "DATA STRUCTURES", "A").
		AddRow("CS-102", "OPERATING SYSTEMS", "B+").
		AddFooter("", "SGPA", "8.50").
		Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if pdf.GetY() <= y0 {
		t.Error("cursor did not move below the table")
	}
	out := output(t, pdf)
	for _, s := range []string{"(CODE) Tj", "(OPERATING SYSTEMS) Tj", "(8.50) Tj"} {
		if !strings.Contains(out, s) {
			t.Errorf("output lacks %s", s)
		}
	}
}

func TestCalculateWidths(t *testing.T) {
	pdf := newTestPDF()
	l, _, r, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	avail := pageW - l - r

	tb := New(pdf).SetColumns(Column{Width: 50}, Column{}, Column{})
	w := tb.calculateWidths()
	if w[0] != 50 || w[1] != (avail-50)/2 || w[1] != w[2] {
		t.Errorf("widths = %v", w)
	}

	tb = New(pdf).SetWidth(90).AddRow("a", "b", "c")
	w = tb.calculateWidths()
	if len(w) != 3 || w[0] != 30 {
		t.Errorf("columns inferred from rows = %v", w)
	}
}

func TestHeaderRepeatsOnPageBreak(t *testing.T) {
	pdf := newTestPDF()

	tb := New(pdf).SetColumns(Column{}, Column{}).AddHeader("CODE", "NAME")
	for i := 0; i < 150; i++ {
		tb.AddRow("CS", "SUBJECT")
	}
	if err := tb.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	pages := pdf.PageNo()
	if pages < 2 {
		t.Fatalf("expected several pages, got %d", pages)
	}
	if n := strings.Count(output(t, pdf), "(CODE) Tj"); n != pages {
		t.Errorf("header drawn %d times on %d pages", n, pages)
	}
}

func TestWrappedRowHeight(t *testing.T) {
	pdf := newTestPDF()
	tb := New(pdf).SetColumns(Column{Width: 20}, Column{Width: 100})

	short := &row{cells: []string{"A", "B"}}
	long := &row{cells: []string{"a fairly long subject name that wraps", "B"}}
	widths := tb.calculateWidths()
	hs, hl := tb.rowHeight(short, widths, 0), tb.rowHeight(long, widths, 0)
	if hl <= hs*2 {
		t.Errorf("wrapped row height %.2f, single line %.2f", hl, hs)
	}
}

func TestStyles(t *testing.T) {
	pdf := newTestPDF()
	red := RGBColor{200, 0, 0}
	tb := New(pdf).SetStyle(Style{
		HeaderStyle:   &CellStyle{FillColor: &RGBColor{230, 230, 230}, Font: &FontSpec{Family: "Helvetica", Style: "B", Size: 10}},
		AlternateRows: &AlternateStyle{Odd: CellStyle{FillColor: &RGBColor{245, 245, 245}}},
		CellPadding:   UniformPadding(1.5),
	}).AddHeader("H").AddRow("even").AddStyledRow(CellStyle{TextColor: &red, Align: "R"}, "odd")

	if s := tb.resolveStyle(tb.body[1], 1); s.FillColor == nil || s.TextColor != &red || s.Align != "R" {
		t.Errorf("odd row style = %+v", s)
	}
	if s := tb.resolveStyle(tb.header[0], 0); s.Font == nil || s.Font.Style != "B" {
		t.Errorf("header style = %+v", s)
	}
	if err := tb.Render(); err != nil {
		t.Fatal(err)
	}
	output(t, pdf)
}

func TestTranslatorAndEmptyTable(t *testing.T) {
	pdf := newTestPDF()
	y0 := pdf.GetY()
	if err := New(pdf).Render(); err != nil {
		t.Fatalf("empty table: %v", err)
	}
	if pdf.GetY() != y0 {
		t.Error("empty table moved the cursor")
	}

	err := New(pdf).SetTranslator(strings.ToUpper).AddRow("grade").Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(output(t, pdf), "(GRADE) Tj") {
		t.Error("translator not applied")
	}
}
