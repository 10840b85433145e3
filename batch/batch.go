// Package batch runs the per-record pipeline (render, rasterize, export) over
// a list of records in input order. A failing record becomes a failure entry
// and the run moves on; only cancellation stops a run early.
//
// Between records the orchestrator calls its Yielder, which is where the host
// gets control back and where cancellation is observed. Progress callbacks
// are synchronous and always arrive in input order, also when records are
// processed by several workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
	"github.com/lvillar/bulkdoc/raster"
	"github.com/lvillar/bulkdoc/templates"
)

// DefaultTimeout bounds the work spent on a single record.
const DefaultTimeout = 30 * time.Second

// Rasterizer turns a document into a bitmap. *raster.Rasterizer implements it.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc *doctpl.Document) (*raster.Image, error)
}

// Exporter packs a bitmap into a file. exporter.PDF and exporter.PNG implement it.
type Exporter interface {
	Ext() string
	Export(img image.Image, name string) (bulkdoc.ExportedFile, error)
}

// DocumentExporter writes a document straight to a file without a bitmap.
// exporter.Vector implements it.
type DocumentExporter interface {
	Ext() string
	ExportDocument(ctx context.Context, doc *doctpl.Document, name string) (bulkdoc.ExportedFile, error)
}

// Stages are the per-record steps. Either Direct or both Rasterizer and
// Exporter must be set.
type Stages struct {
	Renderer   templates.Renderer
	Rasterizer Rasterizer
	Exporter   Exporter
	Direct     DocumentExporter
}

func (s Stages) ext() string {
	if s.Direct != nil {
		return s.Direct.Ext()
	}
	return s.Exporter.Ext()
}

// ProgressFunc receives (done, total) after each record.
type ProgressFunc func(done, total int)

// Event reports a record entering a step.
type Event struct {
	Index int
	Step  Step
}

type options struct {
	workers  int
	timeout  time.Duration
	yielder  Yielder
	logger   *slog.Logger
	clock    func() time.Time
	selected []Span
	observe  func(Event)
}

// Option configures an Orchestrator.
type Option func(*options)

// WithWorkers processes up to n records concurrently. Results and progress
// are still delivered in input order. n < 1 means 1.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = max(n, 1) }
}

// WithTimeout sets the per-record time limit. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithYielder replaces the default Throttle{}.
func WithYielder(y Yielder) Option {
	return func(o *options) { o.yielder = y }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source for Result.Started and Result.Finished.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Span is an inclusive range of zero-based record indices.
type Span struct {
	First, Last int
}

// WithSelect restricts the run to the records with the given indices. Input
// order is kept and unknown indices are ignored.
func WithSelect(indices ...int) Option {
	spans := make([]Span, len(indices))
	for i, n := range indices {
		spans[i] = Span{First: n, Last: n}
	}
	return WithSpans(spans...)
}

// WithSpans restricts the run to the records whose index falls in one of
// spans. Input order is kept.
func WithSpans(spans ...Span) Option {
	return func(o *options) { o.selected = append([]Span(nil), spans...) }
}

// WithObserver receives a call each time a record enters a step. With
// several workers the observer is called concurrently.
func WithObserver(fn func(Event)) Option {
	return func(o *options) { o.observe = fn }
}

// Orchestrator runs one batch. It is single use: Run may be called once.
type Orchestrator struct {
	stages Stages
	opts   options
	// surface admits one rasterize and export at a time.
	surface chan struct{}

	mu    sync.Mutex
	state State
}

// New validates the stages and returns an idle orchestrator.
func New(stages Stages, opts ...Option) (*Orchestrator, error) {
	if stages.Renderer == nil {
		return nil, errors.New("batch: renderer is required")
	}
	if stages.Direct == nil && (stages.Rasterizer == nil || stages.Exporter == nil) {
		return nil, errors.New("batch: rasterizer and exporter are required without a direct exporter")
	}
	o := options{
		workers: 1,
		timeout: DefaultTimeout,
		yielder: Throttle{},
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator{stages: stages, opts: o, surface: make(chan struct{}, 1)}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run processes records and returns the ordered result.
//
// Per-record failures never make Run fail; they are entries of the result.
// When ctx is cancelled the run stops at the next yield point and returns the
// entries completed so far together with an error wrapping both
// bulkdoc.ErrAborted and the context error.
func (o *Orchestrator) Run(ctx context.Context, records []bulkdoc.Record, cfg bulkdoc.TemplateConfig, onProgress ProgressFunc) (*Result, error) {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return nil, fmt.Errorf("batch: orchestrator is %s", o.state)
	}
	o.state = Running
	o.mu.Unlock()

	cfg = cfg.Freeze()
	records = o.selection(records)
	res := &Result{
		ID:      uuid.NewString(),
		Total:   len(records),
		Entries: make([]Entry, 0, len(records)),
		Started: o.opts.clock(),
	}
	log := o.opts.logger.With("batch_id", res.ID)
	log.Info("batch started", "kind", o.stages.Renderer.Kind(), "total", res.Total, "workers", o.opts.workers)

	emit := func(e Entry) error {
		res.add(e)
		if !e.OK() {
			o.logFailure(log, e)
		}
		if onProgress != nil {
			onProgress(res.Attempted, res.Total)
		}
		if res.Attempted < res.Total {
			return o.opts.yielder.Yield(ctx, res.Attempted)
		}
		return nil
	}

	var err error
	if o.opts.workers > 1 && len(records) > 1 {
		err = o.runParallel(ctx, records, cfg, emit)
	} else {
		err = o.runSequential(ctx, records, cfg, emit)
	}

	res.Finished = o.opts.clock()
	if err != nil {
		res.State = Aborted
		o.setState(Aborted)
		log.Warn("batch aborted", "attempted", res.Attempted, "total", res.Total, "err", err)
		return res, fmt.Errorf("%w: %w", bulkdoc.ErrAborted, err)
	}
	res.State = Completed
	o.setState(Completed)
	log.Info("batch finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"total", res.Total,
		"elapsed", res.Finished.Sub(res.Started))
	return res, nil
}

func (o *Orchestrator) selection(records []bulkdoc.Record) []bulkdoc.Record {
	if o.opts.selected == nil {
		return records
	}
	var out []bulkdoc.Record
	for _, rec := range records {
		for _, sp := range o.opts.selected {
			if rec.Index >= sp.First && rec.Index <= sp.Last {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) logFailure(log *slog.Logger, e Entry) {
	attrs := []any{"index", e.Index, "row", e.Row, "label", e.Label}
	var re *bulkdoc.RecordError
	if errors.As(e.Err, &re) {
		attrs = append(attrs, "stage", string(re.Stage))
	}
	log.Warn("record failed", append(attrs, "err", e.Err)...)
}

func (o *Orchestrator) runSequential(ctx context.Context, records []bulkdoc.Record, cfg bulkdoc.TemplateConfig, emit func(Entry) error) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := o.record(ctx, rec, cfg)
		if !ok {
			return ctx.Err()
		}
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

type slot struct {
	pos   int
	entry Entry
	ok    bool
}

// runParallel fans records out to the worker group and releases finished
// entries in input order through a reorder buffer.
func (o *Orchestrator) runParallel(ctx context.Context, records []bulkdoc.Record, cfg bulkdoc.TemplateConfig, emit func(Entry) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan slot, len(records))
	var g errgroup.Group
	g.SetLimit(o.opts.workers)
	go func() {
		for i, rec := range records {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				e, ok := o.record(runCtx, rec, cfg)
				done <- slot{pos: i, entry: e, ok: ok}
				return nil
			})
		}
		g.Wait()
		close(done)
	}()

	pending := make(map[int]slot)
	next := 0
	var stop error
	for s := range done {
		if stop != nil {
			continue
		}
		pending[s.pos] = s
		for {
			s, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if !s.ok {
				stop = context.Cause(runCtx)
				break
			}
			if err := emit(s.entry); err != nil {
				stop = err
				break
			}
		}
		if stop != nil {
			cancel()
		}
	}
	if stop == nil {
		stop = ctx.Err()
		if next == len(records) {
			stop = nil
		}
	}
	return stop
}

// record runs one record. ok is false when ctx was cancelled before the
// record finished; such a record is not part of the result.
func (o *Orchestrator) record(ctx context.Context, rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) (Entry, bool) {
	label := templates.Label(o.stages.Renderer, rec)
	e := Entry{Index: rec.Index, Row: rec.Row, Label: label}
	f, err := o.attempt(ctx, rec, label, cfg)
	if err != nil && ctx.Err() != nil {
		return e, false
	}
	if err != nil {
		e.Err = err
		o.notify(rec.Index, Failed)
		return e, true
	}
	e.File = &f
	o.notify(rec.Index, Succeeded)
	return e, true
}

// attempt runs the stages of one record within the per-record time limit.
// The limit is charged only while a stage of this record runs, so waiting
// for the shared raster surface behind other workers does not count.
func (o *Orchestrator) attempt(ctx context.Context, rec bulkdoc.Record, label string, cfg bulkdoc.TemplateConfig) (bulkdoc.ExportedFile, error) {
	s := o.stages
	b := &budget{limit: o.opts.timeout, left: o.opts.timeout}
	id := recordID{index: rec.Index, label: label}

	doc, err := runStage(ctx, b, bulkdoc.StageRender, id, func(context.Context) (*doctpl.Document, error) {
		o.notify(rec.Index, Rendering)
		return s.Renderer.Render(rec, cfg)
	})
	if err != nil {
		return bulkdoc.ExportedFile{}, err
	}
	name := templates.FileName(s.Renderer, rec, s.ext())

	if s.Direct != nil {
		return runStage(ctx, b, bulkdoc.StageExport, id, func(ctx context.Context) (bulkdoc.ExportedFile, error) {
			o.notify(rec.Index, Exporting)
			return s.Direct.ExportDocument(ctx, doc, name)
		})
	}

	select {
	case o.surface <- struct{}{}:
	case <-ctx.Done():
		return bulkdoc.ExportedFile{}, bulkdoc.NewRecordError(bulkdoc.StageRasterize, rec.Index, label, ctx.Err())
	}
	defer func() { <-o.surface }()

	img, err := runStage(ctx, b, bulkdoc.StageRasterize, id, func(ctx context.Context) (*raster.Image, error) {
		o.notify(rec.Index, Rasterizing)
		return s.Rasterizer.Rasterize(ctx, doc)
	})
	if err != nil {
		return bulkdoc.ExportedFile{}, err
	}
	return runStage(ctx, b, bulkdoc.StageExport, id, func(context.Context) (bulkdoc.ExportedFile, error) {
		o.notify(rec.Index, Exporting)
		return s.Exporter.Export(img, name)
	})
}

type recordID struct {
	index int
	label string
}

// budget is the unused part of a record's time limit. A zero limit means
// no limit.
type budget struct {
	limit, left time.Duration
}

func (b *budget) expired(err error) error {
	return fmt.Errorf("timed out after %s: %w", b.limit, err)
}

// runStage runs fn with the remaining budget as its deadline. A stage that
// ignores its context is abandoned when the deadline passes, and a panic
// becomes the stage's error.
func runStage[T any](ctx context.Context, b *budget, stage bulkdoc.Stage, id recordID, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	fail := func(err error) (T, error) {
		return zero, bulkdoc.NewRecordError(stage, id.index, id.label, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	sctx := ctx
	if b.limit > 0 {
		if b.left <= 0 {
			return fail(b.expired(context.DeadlineExceeded))
		}
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, b.left)
		defer cancel()
		started := time.Now()
		defer func() { b.left -= time.Since(started) }()
	}

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(sctx)
		ch <- outcome{v: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return fail(out.err)
		}
		return out.v, nil
	case <-sctx.Done():
		err := sctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = b.expired(err)
		}
		return fail(err)
	}
}

func (o *Orchestrator) notify(index int, step Step) {
	if o.opts.observe != nil {
		o.opts.observe(Event{Index: index, Step: step})
	}
}
