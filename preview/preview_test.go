package preview

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
	"github.com/lvillar/bulkdoc/templates"
)

func parse(t *testing.T, html []byte) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		t.Fatalf("parsing preview: %v", err)
	}
	return doc
}

func TestRenderBlocks(t *testing.T) {
	doc := &doctpl.Document{
		Title:   "JOHN DOE",
		Width:   doctpl.A4Width,
		Padding: 24,
		Blocks: []doctpl.Block{
			{Type: doctpl.TypeHeading, Level: 2, Text: "STATEMENT OF GRADES", Align: "C"},
			{Type: doctpl.TypeBanner, Lines: []string{"BRANCH: COMPUTER", "APR/MAY 2024"}},
			{Type: doctpl.TypeFields, GridColumns: 3, Fields: []doctpl.Field{{Label: "SEAT NO", Value: "12345"}, {Label: "PRN", Value: "21012345678"}}},
			{Type: doctpl.TypeTable,
				Columns:   []doctpl.Column{{Header: "CODE"}, {Header: "GRADE", Align: "C", Weight: 3}},
				Rows:      [][]string{{"CS-101", "A"}, {"CS-102"}},
				FooterRow: []string{"Total", "A"}},
			{Type: doctpl.TypeRule, Width: 128, Align: "C"},
			{Type: doctpl.TypeBarcode, Barcode: &doctpl.Barcode{Kind: doctpl.BarcodeQR, Data: "12345|21012345678"}},
			{Type: doctpl.TypeSignature, Fields: []doctpl.Field{{Label: "Mr. Smith", Value: "Class Teacher"}, {Label: "Dr. Rao", Value: "Principal"}}},
			{Type: doctpl.TypeText, Text: "<script>alert(1)</script>"},
		},
	}
	var buf bytes.Buffer
	if err := New().Render(context.Background(), &buf, doc); err != nil {
		t.Fatalf("Render: %v", err)
	}
	q := parse(t, buf.Bytes())

	if got := q.Find("title").Text(); got != "JOHN DOE" {
		t.Errorf("title = %q", got)
	}
	if got := q.Find("h2.heading").Text(); got != "STATEMENT OF GRADES" {
		t.Errorf("heading = %q", got)
	}
	if n := q.Find(".banner > div").Length(); n != 2 {
		t.Errorf("banner lines = %d", n)
	}
	if got := q.Find(".fields .value").First().Text(); got != "12345" {
		t.Errorf("first field = %q", got)
	}
	if style, _ := q.Find(".fields").Attr("style"); !strings.Contains(style, "repeat(3, 1fr)") {
		t.Errorf("fields style = %q", style)
	}
	if n := q.Find("table.grid tbody tr").Length(); n != 2 {
		t.Errorf("table rows = %d", n)
	}
	if n := q.Find("table.grid tbody tr").Last().Find("td").Length(); n != 2 {
		t.Errorf("short row padded to %d cells", n)
	}
	if got := q.Find("table.grid tfoot td").First().Text(); got != "Total" {
		t.Errorf("footer = %q", got)
	}
	if style, _ := q.Find("table.grid th").Last().Attr("style"); !strings.Contains(style, "width: 75.00%") {
		t.Errorf("header style = %q", style)
	}
	src, _ := q.Find("img.barcode").Attr("src")
	if !strings.HasPrefix(src, "data:image/png;base64,") {
		t.Errorf("barcode src = %.40q", src)
	}
	if n := q.Find(".signer").Length(); n != 2 {
		t.Errorf("signers = %d", n)
	}
	if q.Find("script").Length() != 0 {
		t.Error("record text was not escaped")
	}
	if got := q.Find("p.text").Text(); got != "<script>alert(1)</script>" {
		t.Errorf("text = %q", got)
	}
}

func TestRenderMissingImage(t *testing.T) {
	doc := &doctpl.Document{Width: 400, Blocks: []doctpl.Block{
		{Type: doctpl.TypeImage, Src: "/nonexistent/logo.png", Width: 80},
	}}
	var buf bytes.Buffer
	if err := New().Render(context.Background(), &buf, doc); err != nil {
		t.Fatalf("a missing logo must not fail the preview: %v", err)
	}
	q := parse(t, buf.Bytes())
	if !strings.Contains(q.Find(".missing").Text(), "logo.png") {
		t.Error("missing image placeholder not rendered")
	}
}

func TestRenderDataImage(t *testing.T) {
	// 1x1 transparent GIF.
	const gif = "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"
	doc := &doctpl.Document{Width: 400, Blocks: []doctpl.Block{{Type: doctpl.TypeImage, Src: gif, Width: 50}}}
	var buf bytes.Buffer
	if err := New().Render(context.Background(), &buf, doc); err != nil {
		t.Fatal(err)
	}
	src, _ := parse(t, buf.Bytes()).Find("img.image").Attr("src")
	if !strings.HasPrefix(src, "data:image/gif;base64,") {
		t.Errorf("image src = %.40q", src)
	}
}

func TestRenderInvalidDocument(t *testing.T) {
	err := New().Render(context.Background(), &bytes.Buffer{}, &doctpl.Document{Width: 0})
	if err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestRecord(t *testing.T) {
	rec := bulkdoc.NewRecord(0, 2, map[string]string{
		"Recipient Name": "Jane Smith",
		"Title":          "Go Workshop",
		"Date":           "2024-06-15",
	})
	var buf bytes.Buffer
	err := New().Record(context.Background(), &buf, templates.Certificate{}, rec, bulkdoc.TemplateConfig{Kind: "certificate", Variant: "completion"})
	if err != nil {
		t.Fatal(err)
	}
	q := parse(t, buf.Bytes())
	if !strings.Contains(q.Text(), "Jane Smith") || !strings.Contains(q.Text(), "June 15, 2024") {
		t.Error("certificate preview lacks recipient or date")
	}
	style, _ := q.Find(".page").Attr("style")
	if !strings.Contains(style, "background: #f0fdfa") {
		t.Errorf("page style = %q", style)
	}

	bad := bulkdoc.NewRecord(1, 3, map[string]string{"Student Name": "X", "Subject1_Code": "A", "Subject1_Internal": "abc"})
	err = New().Record(context.Background(), &buf, templates.Result{}, bad, bulkdoc.DefaultConfig("result"))
	if !errors.Is(err, bulkdoc.ErrRender) {
		t.Errorf("err = %v", err)
	}
}
