package bulkdoc

import (
	"errors"
	"fmt"
)

// Sentinel errors for common bulk generation failure conditions.
var (
	ErrUnsupportedFormat = errors.New("bulkdoc: unsupported input format")
	ErrNoHeader          = errors.New("bulkdoc: input has no header row")
	ErrUnknownKind       = errors.New("bulkdoc: unknown document kind")
	ErrInvalidConfig     = errors.New("bulkdoc: invalid template configuration")
	ErrEmptyImage        = errors.New("bulkdoc: image has zero area")
	ErrAborted           = errors.New("bulkdoc: batch aborted")

	ErrRender    = errors.New("render failed")
	ErrRasterize = errors.New("rasterize failed")
	ErrExport    = errors.New("export failed")
)

// Stage names the step of the per-record pipeline in which a RecordError occurred.
type Stage string

const (
	StageRender    Stage = "render"
	StageRasterize Stage = "rasterize"
	StageExport    Stage = "export"
)

func (s Stage) sentinel() error {
	switch s {
	case StageRender:
		return ErrRender
	case StageRasterize:
		return ErrRasterize
	case StageExport:
		return ErrExport
	}
	return nil
}

// ParseError reports an input file that could not be decoded. It is fatal
// to the whole batch.
type ParseError struct {
	Source string // file name as supplied by the caller
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("bulkdoc: parse: %v", e.Err)
	}
	return fmt.Sprintf("bulkdoc: parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RecordError is a failure scoped to one record. The orchestrator records it
// as a failure entry and moves on to the next record.
type RecordError struct {
	Stage Stage
	Index int    // zero-based record index
	Label string // identifying field value, may be empty
	Err   error
}

func (e *RecordError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("bulkdoc: record %d (%s): %s: %v", e.Index, e.Label, e.Stage, e.Err)
	}
	return fmt.Sprintf("bulkdoc: record %d: %s: %v", e.Index, e.Stage, e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause, so
// errors.Is(err, ErrRasterize) and errors.Is(err, context.DeadlineExceeded)
// both hold for a rasterizer timeout.
func (e *RecordError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Stage.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewRecordError wraps err for the given stage. An err that is already a
// *RecordError is returned as is.
func NewRecordError(stage Stage, index int, label string, err error) *RecordError {
	var re *RecordError
	if errors.As(err, &re) {
		return re
	}
	return &RecordError{Stage: stage, Index: index, Label: label, Err: err}
}

// ExportError represents a failure while packing a raster image into a file.
type ExportError struct {
	Op  string // operation name, e.g. "paginate", "encode"
	Err error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bulkdoc.export.%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bulkdoc.export.%s: unknown error", e.Op)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// PackagingError reports that the archive itself could not be assembled.
// It is fatal to the batch.
type PackagingError struct {
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("bulkdoc: packaging: %v", e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}
