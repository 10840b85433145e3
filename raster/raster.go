// Package raster paints a doctpl.Document onto a bitmap.
//
// Layout runs in two passes over the same code: the first pass measures the
// flow height, the second allocates a canvas of that height and paints. One
// CSS pixel of the document maps to Scale device pixels.
package raster

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

// DefaultScale matches the capture scale of the browser snapshot.
const DefaultScale = 2

// Image is a rasterized document.
type Image struct {
	*image.RGBA
	Scale float64 // device pixels per CSS px
}

type options struct {
	scale     float64
	resolver  Resolver
	maxPixels int
}

// Option configures a Rasterizer.
type Option func(*options)

// WithScale sets device pixels per CSS pixel.
func WithScale(s float64) Option {
	return func(o *options) { o.scale = s }
}

// WithResolver sets how image blocks are fetched.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithMaxPixels bounds the canvas area. Larger documents fail instead of
// allocating.
func WithMaxPixels(n int) Option {
	return func(o *options) { o.maxPixels = n }
}

// Rasterizer renders documents to bitmaps. Calls are serialised: a
// Rasterizer owns a single drawing surface and font cache, so two
// rasterizations never overlap.
type Rasterizer struct {
	mu    sync.Mutex
	opts  options
	faces faceCache
}

// New returns a Rasterizer.
func New(opts ...Option) *Rasterizer {
	o := options{
		scale:     DefaultScale,
		resolver:  DefaultResolver{},
		maxPixels: 64 << 20,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Rasterizer{opts: o}
}

// Scale returns the device pixels per CSS px.
func (r *Rasterizer) Scale() float64 { return r.opts.scale }

// Rasterize lays out and paints doc. The context is checked between blocks
// and passed to the resolver.
func (r *Rasterizer) Rasterize(ctx context.Context, doc *doctpl.Document) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}
	if r.opts.scale <= 0 {
		return nil, fmt.Errorf("raster: scale must be positive, got %v", r.opts.scale)
	}

	p := &painter{
		ctx:    ctx,
		doc:    doc,
		s:      r.opts.scale,
		faces:  &r.faces,
		res:    r.opts.resolver,
		images: make(map[string]image.Image),
		base:   doc.BaseFont(),
	}
	width := int(math.Round(doc.Width * p.s))

	// measure
	height, err := p.run(nil)
	if err != nil {
		return nil, err
	}
	h := int(math.Ceil(math.Max(height, doc.MinHeight*p.s)))
	if width <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: %dx%d canvas: %w", width, h, bulkdoc.ErrEmptyImage)
	}
	if r.opts.maxPixels > 0 && width*h > r.opts.maxPixels {
		return nil, fmt.Errorf("raster: %dx%d canvas exceeds %d pixels", width, h, r.opts.maxPixels)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, h))
	if _, err := p.run(dst); err != nil {
		return nil, err
	}
	return &Image{RGBA: dst, Scale: p.s}, nil
}
