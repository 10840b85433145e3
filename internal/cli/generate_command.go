package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/pipeline"
)

func (a *app) runGenerate(ctx context.Context, args []string) error {
	fs := a.newFlagSet("generate")
	input := fs.String("input", "", "spreadsheet path (.xlsx, .csv, .tsv); may also be the first argument")
	kind := fs.String("kind", "", "document kind: result, report-card, certificate")
	configPath := fs.String("config", "", "template configuration JSON file")
	format := fs.String("format", pipeline.FormatPDF, "output format: pdf|png")
	mode := fs.String("mode", string(pipeline.ModeRaster), "raster|vector")
	sel := fs.String("select", "", "1-based records to generate, e.g. 1,3-5")
	booklet := fs.Bool("booklet", false, "also combine the PDFs into one booklet")
	outDir := fs.String("out", ".", "directory for the archive")
	jsonOut := fs.Bool("json", false, "print the JSON report")
	showProgress := fs.Bool("progress", true, "show progress")
	rf := addRunFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}
	if *input == "" {
		return errors.New("generate: an input spreadsheet is required")
	}

	cfg, err := loadConfig(*kind, *configPath)
	if err != nil {
		return err
	}
	selected, err := pipeline.ParseSelect(*sel)
	if err != nil {
		return err
	}

	// A live progress bar owns the terminal, so logs are held back and
	// printed once it is gone.
	var rep reporter = quietReporter{}
	logOut := a.stderr
	var held bytes.Buffer
	switch {
	case !*showProgress || *jsonOut:
	case a.tty(a.stderr):
		rep = &tuiReporter{w: a.stderr, title: fmt.Sprintf("Generating %s documents", cfg.Kind)}
		logOut = &held
	default:
		rep = &lineReporter{w: a.stderr}
	}
	logger, err := rf.logger(logOut)
	if err != nil {
		return err
	}
	opts := append(rf.runnerOptions(logger), pipeline.WithObserver(rep.observe))
	runner := pipeline.New(opts...)

	f, err := os.Open(*input)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	defer f.Close()

	job := pipeline.Job{
		Source:  filepath.Base(*input),
		Input:   f,
		Config:  cfg,
		Mode:    pipeline.Mode(*mode),
		Format:  *format,
		Select:  selected,
		Booklet: *booklet,
	}
	out, runErr := rep.run(ctx, func(ctx context.Context, onProgress batch.ProgressFunc) (*pipeline.Outcome, error) {
		return runner.Run(ctx, job, onProgress)
	})
	_, _ = io.Copy(a.stderr, &held)

	var saved []string
	if out != nil && out.Archive != nil {
		saved, err = saveOutputs(*outDir, out)
		if err != nil {
			return err
		}
	}

	if out != nil {
		if *jsonOut {
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out.Report()); err != nil {
				return err
			}
		} else {
			a.printSummary(out, saved)
		}
	}
	if runErr != nil {
		return runErr
	}
	if out.AllFailed() {
		return ErrAllFailed
	}
	return nil
}

func loadConfig(kind, path string) (bulkdoc.TemplateConfig, error) {
	if path == "" {
		if kind == "" {
			return bulkdoc.TemplateConfig{}, fmt.Errorf("%w: --kind or --config is required", bulkdoc.ErrInvalidConfig)
		}
		return bulkdoc.DefaultConfig(kind), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return bulkdoc.TemplateConfig{}, fmt.Errorf("loading config: %w", err)
	}
	defer f.Close()
	return bulkdoc.DecodeConfigFor(kind, f)
}

// saveOutputs writes the archive and the optional booklet into dir and
// returns their paths.
func saveOutputs(dir string, out *pipeline.Outcome) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	files := []bulkdoc.ExportedFile{out.Archive.File()}
	if out.Booklet != nil {
		files = append(files, *out.Booklet)
	}
	var paths []string
	for _, file := range files {
		p := filepath.Join(dir, file.Name)
		if err := os.WriteFile(p, file.Data, 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (a *app) printSummary(out *pipeline.Outcome, saved []string) {
	rep := out.Report()
	w := a.stdout
	sum := rep.Summary
	line := okStyle.Render(fmt.Sprintf("%d generated", sum.Succeeded))
	if sum.Failed > 0 {
		line += ", " + errorStyle.Render(fmt.Sprintf("%d failed", sum.Failed))
	}
	fmt.Fprintf(w, "%s of %d records (%s)\n", line, sum.Total, rep.State)
	for _, f := range rep.Failures {
		label := f.Label
		if label == "" {
			label = "-"
		}
		stage := f.Stage
		if stage == "" {
			stage = "error"
		}
		fmt.Fprintf(w, "  row %d %s: %s: %s\n", f.Row, label, stage, f.Error)
	}
	if len(rep.UnknownColumns) > 0 {
		fmt.Fprintln(w, mutedStyle.Render("ignored columns: "+strings.Join(rep.UnknownColumns, ", ")))
	}
	for _, p := range saved {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
}
