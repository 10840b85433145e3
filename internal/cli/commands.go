package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lvillar/bulkdoc/mcp"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/pipeline"
	"github.com/lvillar/bulkdoc/preview"
	"github.com/lvillar/bulkdoc/server"
	"github.com/lvillar/bulkdoc/sheet"
	"github.com/lvillar/bulkdoc/templates"
)

func (a *app) runSample(args []string) error {
	fs := a.newFlagSet("sample")
	kind := fs.String("kind", "result", "document kind")
	format := fs.String("format", "xlsx", "xlsx|csv")
	out := fs.String("out", "", "output path (default: bulk_<kind>_sample.<format>); - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rd, err := templates.Lookup(*kind)
	if err != nil {
		return err
	}
	f, err := sheet.ParseFormat(*format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := sheet.WriteSample(&buf, rd.Schema(), f); err != nil {
		return err
	}
	if *out == "-" {
		_, err := a.stdout.Write(buf.Bytes())
		return err
	}
	path := *out
	if path == "" {
		path = sheet.SampleFileName(rd.Kind(), f)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	fmt.Fprintf(a.stdout, "wrote %s\n", path)
	return nil
}

func (a *app) runPreview(ctx context.Context, args []string) error {
	fs := a.newFlagSet("preview")
	input := fs.String("input", "", "spreadsheet path; may also be the first argument")
	kind := fs.String("kind", "", "document kind")
	configPath := fs.String("config", "", "template configuration JSON file")
	row := fs.Int("row", 1, "1-based record number")
	out := fs.String("out", "-", "HTML output path; - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}
	if *input == "" {
		return errors.New("preview: an input spreadsheet is required")
	}
	cfg, err := loadConfig(*kind, *configPath)
	if err != nil {
		return err
	}
	rd, cfg, err := pipeline.Prepare(cfg)
	if err != nil {
		return err
	}
	recs, err := sheet.ParseFile(*input)
	if err != nil {
		return err
	}
	if *row < 1 || *row > len(recs) {
		return fmt.Errorf("preview: row %d out of range, file has %d records", *row, len(recs))
	}
	if cfg.ResultDate == "" {
		cfg.ResultDate = time.Now().Format(pipeline.ResultDateLayout)
	}
	var buf bytes.Buffer
	if err := preview.New().Record(ctx, &buf, rd, recs[*row-1], cfg); err != nil {
		return err
	}
	if *out == "-" {
		_, err := a.stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(*out, buf.Bytes(), 0o644)
}

func (a *app) runKinds(args []string) error {
	fs := a.newFlagSet("kinds")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kinds := pipeline.Kinds()
	if *jsonOut {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(kinds)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KIND", "FILE SUFFIX", "LABEL COLUMN", "COLUMNS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, k := range kinds {
		t.Row(k.Kind, k.DocumentKind, k.IdentifyingField, strconv.Itoa(len(k.Columns)))
	}
	fmt.Fprintln(a.stdout, t.Render())
	return nil
}

func (a *app) runMerge(args []string) error {
	fs := a.newFlagSet("merge")
	out := fs.String("out", "booklet.pdf", "output PDF")
	title := fs.String("title", "", "document title")
	watermark := fs.String("watermark", "", "text stamped on every page")
	numbers := fs.Bool("page-numbers", true, "number pages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("merge: at least one input PDF is required")
	}
	opts := pageops.BookletOptions{Title: *title, Bookmarks: true}
	if *numbers {
		opts.PageNumbers = &pageops.PageNumberStyle{}
	}
	if *watermark != "" {
		opts.Watermark = &pageops.TextWatermark{Text: *watermark}
	}
	if err := pageops.BookletFiles(*out, opts, fs.Args()...); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "merged %d files into %s\n", fs.NArg(), *out)
	return nil
}

func (a *app) runServe(ctx context.Context, args []string) error {
	fs := a.newFlagSet("serve")
	addr := fs.String("addr", envString("BULKDOC_ADDR", ":8080"), "listen address")
	maxUpload := fs.Int64("max-upload", server.DefaultMaxUpload, "upload limit in bytes")
	grace := fs.Duration("shutdown-timeout", 15*time.Second, "time to finish in-flight requests")
	rf := addRunFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := rf.logger(a.stderr)
	if err != nil {
		return err
	}
	runner := pipeline.New(rf.runnerOptions(logger)...)
	srv := server.New(runner, server.WithLogger(logger), server.WithMaxUpload(*maxUpload))
	return srv.ListenAndServe(ctx, *addr, *grace)
}

func (a *app) runMCP(ctx context.Context, args []string) error {
	fs := a.newFlagSet("mcp")
	rf := addRunFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	// stdout carries the protocol.
	logger, err := rf.logger(a.stderr)
	if err != nil {
		return err
	}
	s := mcp.NewServerWithIO(a.stdin, a.stdout)
	s.SetLogger(logger)
	mcp.RegisterDefaultTools(s, pipeline.New(rf.runnerOptions(logger)...))
	mcp.RegisterDefaultResources(s)
	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
