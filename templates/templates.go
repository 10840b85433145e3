// Package templates turns one record plus the batch configuration into a
// rendered document. Each document kind is a Renderer; renderers are pure
// functions of their inputs and never read clocks or global state.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

// ErrInvalidNumber is wrapped by render errors for numeric cells that are
// not finite non-negative numbers.
var ErrInvalidNumber = errors.New("templates: invalid number")

// Renderer produces the document for one record.
type Renderer interface {
	// Kind is the registry key, e.g. "result".
	Kind() string
	// DocumentKind is the file name suffix, e.g. "Result".
	DocumentKind() string
	// IdentifyingField names the column used for labels and file names.
	IdentifyingField() string
	// Schema lists the columns the renderer reads.
	Schema() bulkdoc.Schema
	// Render builds the document. Failures are *bulkdoc.RecordError values
	// with stage render.
	Render(rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) (*doctpl.Document, error)
}

// ConfigValidator is implemented by renderers that can reject a
// configuration before any record is rendered.
type ConfigValidator interface {
	ValidateConfig(cfg bulkdoc.TemplateConfig) error
}

var (
	mu       sync.RWMutex
	registry = map[string]Renderer{}
)

func init() {
	Register(Result{})
	Register(ReportCard{})
	Register(Certificate{})
}

// Register adds or replaces a renderer.
func Register(r Renderer) {
	mu.Lock()
	defer mu.Unlock()
	registry[r.Kind()] = r
}

// Lookup returns the renderer for kind.
func Lookup(kind string) (Renderer, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", bulkdoc.ErrUnknownKind, kind, strings.Join(kindsLocked(), ", "))
	}
	return r, nil
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return kindsLocked()
}

func kindsLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Label returns the identifying value of rec for r.
func Label(r Renderer, rec bulkdoc.Record) string {
	return rec.Value(r.IdentifyingField(), "")
}

// FileName returns the export file name of rec for r.
func FileName(r Renderer, rec bulkdoc.Record, ext string) string {
	return bulkdoc.FileName(Label(r, rec), r.DocumentKind(), ext, rec.Row)
}

// fieldReader collects the first numeric error while reading a record.
type fieldReader struct {
	rec bulkdoc.Record
	err error
}

// number reads a non-negative numeric field; absent fields are 0.
func (fr *fieldReader) number(name string) float64 {
	v, ok := fr.rec.Number(name)
	if !ok || v < 0 {
		if fr.err == nil {
			raw, _ := fr.rec.Get(name)
			fr.err = fmt.Errorf("%w: %s = %q", ErrInvalidNumber, name, raw)
		}
		return 0
	}
	return v
}

func renderError(r Renderer, rec bulkdoc.Record, err error) error {
	return bulkdoc.NewRecordError(bulkdoc.StageRender, rec.Index, Label(r, rec), err)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func accent(cfg bulkdoc.TemplateConfig, def doctpl.Color) doctpl.Color {
	if cfg.AccentColor == "" {
		return def
	}
	c, err := doctpl.ParseHexColor(cfg.AccentColor)
	if err != nil {
		return def
	}
	return c
}

func logoBlock(cfg bulkdoc.TemplateConfig, width float64) []doctpl.Block {
	if cfg.LogoPath == "" {
		return nil
	}
	return []doctpl.Block{{Type: doctpl.TypeImage, Src: cfg.LogoPath, Width: width, Align: "C"}}
}

func rgb(hex string) doctpl.Color {
	c, err := doctpl.ParseHexColor(hex)
	if err != nil {
		panic(err)
	}
	return c
}
