// Package pipeline runs a complete job: parse the spreadsheet, run the batch
// and pack the archive. Every front end (CLI, HTTP, MCP) goes through Runner.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/archive"
	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/exporter"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/raster"
	"github.com/lvillar/bulkdoc/sheet"
	"github.com/lvillar/bulkdoc/templates"
)

// Mode selects how documents become files.
type Mode string

const (
	// ModeRaster draws each document into a bitmap and paginates the bitmap.
	ModeRaster Mode = "raster"
	// ModeVector writes each document straight to PDF.
	ModeVector Mode = "vector"
)

// Output formats.
const (
	FormatPDF = "pdf"
	FormatPNG = "png"
)

// ResultDateLayout formats the result date filled in from the clock.
const ResultDateLayout = "02 Jan 2006"

// Job describes one bulk generation request.
type Job struct {
	// Source names the input for format detection and error messages.
	Source string
	// Input is the spreadsheet. Ignored when Records is set.
	Input   io.Reader
	Records []bulkdoc.Record

	Config bulkdoc.TemplateConfig
	Mode   Mode         // default ModeRaster
	Format string       // pdf (default) or png; vector mode only supports pdf
	Select []batch.Span // record indices to generate; nil means all
	// Booklet additionally merges all PDFs into one numbered document.
	Booklet bool
	// Date stamps the archive name and PDF metadata; zero means now.
	Date time.Time
}

// Outcome is the result of a job.
type Outcome struct {
	// Batch.State is the state of the whole job: Aborted also when the
	// records ran but packaging failed.
	Batch   *batch.Result
	Archive *archive.Archive
	Booklet *bulkdoc.ExportedFile
	// UnknownColumns lists input columns the renderer does not read.
	UnknownColumns []string
}

// AllFailed reports whether records were attempted and none succeeded.
func (o *Outcome) AllFailed() bool {
	return o.Batch != nil && o.Batch.Total > 0 && o.Batch.Succeeded == 0
}

// Summary returns the batch tally.
func (o *Outcome) Summary() batch.Summary {
	if o.Batch == nil {
		return batch.Summary{}
	}
	return o.Batch.Summary()
}

type options struct {
	workers  int
	timeout  time.Duration
	yielder  batch.Yielder
	logger   *slog.Logger
	resolver raster.Resolver
	scale    float64
	clock    func() time.Time
	observe  func(batch.Event)
}

// Option configures a Runner.
type Option func(*options)

// WithWorkers sets the number of records processed concurrently.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithTimeout sets the per-record time limit.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithYielder sets the scheduling point between records.
func WithYielder(y batch.Yielder) Option { return func(o *options) { o.yielder = y } }

// WithLogger sets the logger passed down to the batch.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithResolver sets how image sources (logos) are opened.
func WithResolver(r raster.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithScale sets the raster scale (device pixels per CSS pixel).
func WithScale(s float64) Option { return func(o *options) { o.scale = s } }

// WithClock sets the time source for default dates.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// WithObserver forwards per-record step events.
func WithObserver(fn func(batch.Event)) Option { return func(o *options) { o.observe = fn } }

// Runner executes jobs. It is safe for concurrent use; each job gets its own
// rasterizer and orchestrator.
type Runner struct {
	opts options
}

// New returns a Runner.
func New(opts ...Option) *Runner {
	o := options{
		workers:  1,
		timeout:  batch.DefaultTimeout,
		yielder:  batch.Throttle{},
		logger:   slog.Default(),
		resolver: raster.DefaultResolver{},
		scale:    raster.DefaultScale,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{opts: o}
}

// Prepare resolves the renderer and checks the configuration without
// touching any record. It returns the effective configuration.
func Prepare(cfg bulkdoc.TemplateConfig) (templates.Renderer, bulkdoc.TemplateConfig, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	r, err := templates.Lookup(cfg.Kind)
	if err != nil {
		return nil, cfg, err
	}
	if v, ok := r.(templates.ConfigValidator); ok {
		if err := v.ValidateConfig(cfg); err != nil {
			return nil, cfg, err
		}
	}
	return r, cfg, nil
}

// Run executes job. Batch-fatal problems (bad configuration, unreadable
// input, packaging failure, cancellation) are returned as errors; per-record
// failures are entries of Outcome.Batch. On cancellation the outcome still
// carries the partial batch result but no archive.
func (r *Runner) Run(ctx context.Context, job Job, onProgress batch.ProgressFunc) (*Outcome, error) {
	renderer, cfg, err := Prepare(job.Config)
	if err != nil {
		return nil, err
	}
	date := job.Date
	if date.IsZero() {
		date = r.opts.clock()
	}
	if cfg.ResultDate == "" {
		cfg.ResultDate = date.Format(ResultDateLayout)
	}
	stages, format, err := r.stages(renderer, job, cfg, date)
	if err != nil {
		return nil, err
	}

	recs := job.Records
	if recs == nil {
		if job.Input == nil {
			return nil, &bulkdoc.ParseError{Source: job.Source, Err: fmt.Errorf("no input")}
		}
		recs, err = sheet.Parse(job.Source, job.Input)
		if err != nil {
			return nil, err
		}
	}

	out := &Outcome{UnknownColumns: sheet.UnknownColumns(recs, renderer.Schema())}
	if len(out.UnknownColumns) > 0 {
		r.opts.logger.Warn("input has columns the template does not use",
			"kind", renderer.Kind(), "columns", strings.Join(out.UnknownColumns, ","))
	}

	bopts := []batch.Option{
		batch.WithWorkers(r.opts.workers),
		batch.WithTimeout(r.opts.timeout),
		batch.WithYielder(r.opts.yielder),
		batch.WithLogger(r.opts.logger),
		batch.WithClock(r.opts.clock),
	}
	if job.Select != nil {
		bopts = append(bopts, batch.WithSpans(job.Select...))
	}
	if r.opts.observe != nil {
		bopts = append(bopts, batch.WithObserver(r.opts.observe))
	}
	orch, err := batch.New(stages, bopts...)
	if err != nil {
		return nil, err
	}
	res, err := orch.Run(ctx, recs, cfg, onProgress)
	out.Batch = res
	if err != nil {
		return out, err
	}

	return out, pack(out, renderer, cfg, date, job.Booklet && format == FormatPDF)
}

// pack builds the archive, and the booklet when withBooklet is set, from the
// files of out.Batch. A packaging failure marks out.Batch Aborted even though
// every record ran.
func pack(out *Outcome, renderer templates.Renderer, cfg bulkdoc.TemplateConfig, date time.Time, withBooklet bool) error {
	files := out.Batch.Files()
	a, err := archive.Pack(files, archive.Options{Prefix: ArchivePrefix(renderer.Kind(), cfg), Date: date})
	if err != nil {
		out.Batch.State = batch.Aborted
		return err
	}
	out.Archive = a

	if withBooklet && len(files) > 0 {
		b, err := booklet(files, cfg, renderer, date)
		if err != nil {
			out.Batch.State = batch.Aborted
			return &bulkdoc.PackagingError{Err: err}
		}
		out.Booklet = b
	}
	return nil
}

func (r *Runner) stages(renderer templates.Renderer, job Job, cfg bulkdoc.TemplateConfig, date time.Time) (batch.Stages, string, error) {
	format := strings.ToLower(strings.TrimSpace(job.Format))
	if format == "" {
		format = FormatPDF
	}
	mode := job.Mode
	if mode == "" {
		mode = ModeRaster
	}
	eopts := []exporter.Option{
		exporter.WithDate(date),
		exporter.WithWatermark(cfg.Watermark),
		exporter.WithResolver(r.opts.resolver),
	}
	st := batch.Stages{Renderer: renderer}

	switch mode {
	case ModeVector:
		if format != FormatPDF {
			return st, "", fmt.Errorf("%w: vector mode writes pdf only, got %q", bulkdoc.ErrUnsupportedFormat, format)
		}
		st.Direct = exporter.NewVector(eopts...)
		return st, format, nil
	case ModeRaster:
	default:
		return st, "", fmt.Errorf("%w: unknown mode %q", bulkdoc.ErrInvalidConfig, mode)
	}

	st.Rasterizer = raster.New(raster.WithScale(r.opts.scale), raster.WithResolver(r.opts.resolver))
	switch format {
	case FormatPDF:
		st.Exporter = exporter.NewPDF(eopts...)
	case FormatPNG:
		st.Exporter = exporter.PNG{}
	default:
		return st, "", fmt.Errorf("%w: output format %q", bulkdoc.ErrUnsupportedFormat, format)
	}
	return st, format, nil
}

// ArchivePrefix picks the archive name prefix: the configured prefix, else a
// per-kind default.
func ArchivePrefix(kind string, cfg bulkdoc.TemplateConfig) string {
	if cfg.ArchivePrefix != "" {
		return cfg.ArchivePrefix
	}
	switch kind {
	case "report-card":
		if cfg.Organization != nil && cfg.Organization.Name != "" {
			return cfg.Organization.Name + "_report_cards"
		}
		return "report_cards"
	case "certificate":
		return "Certificates"
	}
	return archive.DefaultPrefix
}

func booklet(files []bulkdoc.ExportedFile, cfg bulkdoc.TemplateConfig, r templates.Renderer, date time.Time) (*bulkdoc.ExportedFile, error) {
	opts := pageops.BookletOptions{
		Title:       r.DocumentKind() + " booklet",
		Date:        date,
		PageNumbers: &pageops.PageNumberStyle{},
		Bookmarks:   true,
	}
	var buf bytes.Buffer
	if err := pageops.Booklet(&buf, pageops.FromExported(files), opts); err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(archive.Name(ArchivePrefix(r.Kind(), cfg), date), ".zip") + "_booklet.pdf"
	return &bulkdoc.ExportedFile{Name: name, Data: buf.Bytes(), MIMEType: bulkdoc.MIMEPDF}, nil
}
