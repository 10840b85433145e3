package pageops

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"
)

// BookletOptions controls how sources are combined.
type BookletOptions struct {
	Title       string
	Date        time.Time        // creation date; zero means 2000-01-01 UTC
	PageNumbers *PageNumberStyle // nil disables page numbers
	Watermark   *TextWatermark   // nil disables the watermark
	Bookmarks   bool             // add one outline entry per source
}

// Booklet combines sources into a single PDF written to w. Pages are added in
// order: all pages of the first source, then all of the second, and so on.
func Booklet(w io.Writer, sources []Source, opts BookletOptions) error {
	pdf, err := buildBooklet(sources, opts)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

// BookletFiles combines PDF files on disk and writes the result to outputPath.
func BookletFiles(outputPath string, opts BookletOptions, inputPaths ...string) error {
	sources, err := ReadSources(inputPaths...)
	if err != nil {
		return err
	}
	pdf, err := buildBooklet(sources, opts)
	if err != nil {
		return err
	}
	return writePDFToFile(pdf, outputPath)
}

func buildBooklet(sources []Source, opts BookletOptions) (*fpdf.Fpdf, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("pageops: no input documents provided")
	}

	counts := make([]int, len(sources))
	total := 0
	for i, src := range sources {
		n, err := PageCount(bytes.NewReader(src.Data))
		if err != nil {
			return nil, fmt.Errorf("pageops: merging %s: %w", src.Name, err)
		}
		counts[i] = n
		total += n
	}

	date := opts.Date
	if date.IsZero() {
		date = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(date)
	pdf.SetModificationDate(date)
	pdf.SetCatalogSort(true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}

	var numbers PageNumberStyle
	if opts.PageNumbers != nil {
		numbers = opts.PageNumbers.withDefaults()
	}
	var wm TextWatermark
	if opts.Watermark != nil {
		wm = opts.Watermark.withDefaults()
	}

	imp := gofpdi.NewImporter()
	streams := make([]io.ReadSeeker, len(sources))
	page := 0
	for i, src := range sources {
		streams[i] = bytes.NewReader(src.Data)
		for p := 1; p <= counts[i]; p++ {
			tplID, pw, ph := importPage(pdf, imp, &streams[i], p)
			pdf.AddPageFormat("P", fpdf.SizeType{Wd: pw, Ht: ph})
			imp.UseImportedTemplate(pdf, tplID, 0, 0, pw, ph)
			page++
			if p == 1 && opts.Bookmarks {
				pdf.Bookmark(src.Name, 0, 0)
			}
			if opts.Watermark != nil {
				drawTextWatermark(pdf, wm, pw, ph)
			}
			if opts.PageNumbers != nil {
				drawPageNumber(pdf, numbers, page, total, pw, ph)
			}
		}
		if pdf.Err() {
			return nil, fmt.Errorf("pageops: merging %s: %w", src.Name, pdf.Error())
		}
	}
	return pdf, nil
}
