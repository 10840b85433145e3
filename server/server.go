// Package server exposes the pipeline over HTTP.
//
//	POST /api/generate   multipart: file, kind, config (JSON), format, mode, select, booklet
//	GET  /api/sample     ?kind=&format=xlsx|csv
//	POST /api/preview    multipart: file, kind, config, row (1-based data row)
//	GET  /api/kinds
//	GET  /healthz
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/pipeline"
	"github.com/lvillar/bulkdoc/preview"
	"github.com/lvillar/bulkdoc/sheet"
	"github.com/lvillar/bulkdoc/templates"
)

// DefaultMaxUpload bounds the multipart body of uploads.
const DefaultMaxUpload = 32 << 20

// Server handles the HTTP API.
type Server struct {
	runner    *pipeline.Runner
	preview   *preview.Previewer
	logger    *slog.Logger
	maxUpload int64
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithMaxUpload sets the upload limit in bytes.
func WithMaxUpload(n int64) Option { return func(s *Server) { s.maxUpload = n } }

// WithPreviewer replaces the default HTML previewer.
func WithPreviewer(p *preview.Previewer) Option { return func(s *Server) { s.preview = p } }

// New returns a Server that runs jobs with runner.
func New(runner *pipeline.Runner, opts ...Option) *Server {
	s := &Server{
		runner:    runner,
		preview:   preview.New(),
		logger:    slog.Default(),
		maxUpload: DefaultMaxUpload,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /api/sample", s.handleSample)
	s.mux.HandleFunc("POST /api/preview", s.handlePreview)
	s.mux.HandleFunc("GET /api/kinds", s.handleKinds)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

// Handler returns the API handler wrapped with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	return s.recoverer(s.logRequests(s.mux))
}

// ListenAndServe serves on addr until ctx is done, then shuts down and waits
// up to timeout for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down", "timeout", timeout)
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.logger.Error("shutdown failed", "err", err)
	}
	return <-errc
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic", "err", p, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps batch-fatal errors to HTTP statuses.
func statusFor(err error) int {
	var pe *bulkdoc.ParseError
	var pkg *bulkdoc.PackagingError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, bulkdoc.ErrUnknownKind),
		errors.Is(err, bulkdoc.ErrInvalidConfig),
		errors.Is(err, bulkdoc.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &pkg):
		return http.StatusInternalServerError
	case errors.Is(err, bulkdoc.ErrAborted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// upload is the parsed multipart request shared by generate and preview.
type upload struct {
	name string
	data []byte
	cfg  bulkdoc.TemplateConfig
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("form field file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hdr.Filename, err)
	}

	kind := strings.TrimSpace(r.FormValue("kind"))
	var cfg bulkdoc.TemplateConfig
	if raw := r.FormValue("config"); strings.TrimSpace(raw) != "" {
		cfg, err = bulkdoc.DecodeConfigFor(kind, strings.NewReader(raw))
		if err != nil {
			return nil, err
		}
	} else {
		cfg = bulkdoc.DefaultConfig(kind)
	}
	return &upload{name: hdr.Filename, data: data, cfg: cfg}, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sel, err := pipeline.ParseSelect(r.FormValue("select"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	booklet := r.FormValue("booklet") == "1" || strings.EqualFold(r.FormValue("booklet"), "true")
	job := pipeline.Job{
		Source:  up.name,
		Input:   bytes.NewReader(up.data),
		Config:  up.cfg,
		Mode:    pipeline.Mode(r.FormValue("mode")),
		Format:  r.FormValue("format"),
		Select:  sel,
		Booklet: booklet,
	}
	out, err := s.runner.Run(r.Context(), job, nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	rep := out.Report()
	if out.AllFailed() {
		writeJSON(w, http.StatusUnprocessableEntity, rep)
		return
	}

	file := out.Archive.File()
	if booklet && out.Booklet != nil {
		file = *out.Booklet
	}
	sum := out.Summary()
	h := w.Header()
	h.Set("Content-Type", file.MIMEType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	h.Set("X-Bulkdoc-Batch-Id", rep.BatchID)
	h.Set("X-Bulkdoc-Succeeded", strconv.Itoa(sum.Succeeded))
	h.Set("X-Bulkdoc-Failed", strconv.Itoa(sum.Failed))
	h.Set("X-Bulkdoc-Total", strconv.Itoa(sum.Total))
	h.Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	rd, err := templates.Lookup(kind)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	format, err := sheet.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var buf bytes.Buffer
	if err := sheet.WriteSample(&buf, rd.Schema(), format); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ctype := "text/csv"
	if format == sheet.FormatXLSX {
		ctype = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": sheet.SampleFileName(rd.Kind(), format)}))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	rd, cfg, err := pipeline.Prepare(up.cfg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	recs, err := sheet.Parse(up.name, bytes.NewReader(up.data))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	n := 1
	if v := r.FormValue("row"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("row: %w", err))
			return
		}
	}
	if n < 1 || n > len(recs) {
		writeError(w, http.StatusNotFound, fmt.Errorf("row %d out of range, file has %d records", n, len(recs)))
		return
	}
	if cfg.ResultDate == "" {
		cfg.ResultDate = time.Now().Format(pipeline.ResultDateLayout)
	}
	var buf bytes.Buffer
	if err := s.preview.Record(r.Context(), &buf, rd, recs[n-1], cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.Kinds())
}
