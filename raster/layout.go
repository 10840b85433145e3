package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/boombuler/barcode/qr"
	pdf417 "github.com/ruudk/golang-pdf417"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/lvillar/bulkdoc/doctpl"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// painter walks the block flow. With dst == nil it only advances the cursor.
type painter struct {
	ctx    context.Context
	doc    *doctpl.Document
	dst    *image.RGBA
	s      float64
	faces  *faceCache
	res    Resolver
	images map[string]image.Image
	base   doctpl.Font

	left, right float64
	y           float64
}

func (p *painter) run(dst *image.RGBA) (float64, error) {
	p.dst = dst
	pad := p.doc.Padding * p.s
	p.left = pad
	p.right = p.doc.Width*p.s - pad
	p.y = pad
	if dst != nil {
		p.decorate()
	}
	for i, b := range p.doc.Blocks {
		if err := p.ctx.Err(); err != nil {
			return 0, fmt.Errorf("raster: block %d: %w", i+1, err)
		}
		if err := p.block(b); err != nil {
			return 0, fmt.Errorf("raster: block %d: %w", i+1, err)
		}
	}
	return p.y + pad, nil
}

func (p *painter) contentW() float64 { return p.right - p.left }

func rgba(c doctpl.Color) color.RGBA {
	return color.RGBA{uint8(c.R), uint8(c.G), uint8(c.B), 255}
}

func (p *painter) textColor(c *doctpl.Color) color.RGBA {
	if c == nil {
		c = p.doc.Color
	}
	if c == nil {
		return color.RGBA{0, 0, 0, 255}
	}
	return rgba(*c)
}

func rect(x0, y0, x1, y1 float64) image.Rectangle {
	return image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
}

func (p *painter) fill(r image.Rectangle, c color.Color) {
	if p.dst == nil {
		return
	}
	draw.Draw(p.dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// stroke draws the outline of r with lines lw device pixels wide.
func (p *painter) stroke(x0, y0, x1, y1, lw float64, c color.Color) {
	if lw < 1 {
		lw = 1
	}
	p.fill(rect(x0, y0, x1, y0+lw), c)
	p.fill(rect(x0, y1-lw, x1, y1), c)
	p.fill(rect(x0, y0, x0+lw, y1), c)
	p.fill(rect(x1-lw, y0, x1, y1), c)
}

func (p *painter) decorate() {
	b := p.dst.Bounds()
	paper := color.RGBA{255, 255, 255, 255}
	if bg := p.doc.Background; bg != nil {
		paper = rgba(*bg)
	}
	p.fill(b, paper)
	bd := p.doc.Border
	if bd == nil || bd.Width <= 0 {
		return
	}
	w, h := float64(b.Dx()), float64(b.Dy())
	lw := bd.Width * p.s
	inset := p.doc.Padding * p.s / 3
	c := rgba(bd.Color)
	p.stroke(inset, inset, w-inset, h-inset, lw, c)
	if bd.Double {
		gap := inset + 3*lw
		p.stroke(gap, gap, w-gap, h-gap, lw/2, c)
	}
}

func (p *painter) face(f doctpl.Font) (font.Face, error) {
	return p.faces.face(f, p.s)
}

func (p *painter) lineHeight(f doctpl.Font) float64 {
	return f.Size * 1.35 * p.s
}

func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s)) / 64
}

// text draws s with its line box at (x, top), clipped to clip.
func (p *painter) text(face font.Face, s string, x, top, lh float64, c color.Color, clip image.Rectangle) {
	if p.dst == nil || s == "" {
		return
	}
	m := face.Metrics()
	ascent := float64(m.Ascent) / 64
	descent := float64(m.Descent) / 64
	baseline := top + (lh-ascent-descent)/2 + ascent
	dst, ok := p.dst.SubImage(clip.Intersect(p.dst.Bounds())).(*image.RGBA)
	if !ok {
		return
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(baseline * 64)},
	}
	d.DrawString(s)
}

func (p *painter) canvas() image.Rectangle {
	if p.dst == nil {
		return image.Rectangle{}
	}
	return p.dst.Bounds()
}

// wrap breaks text into lines no wider than width. Explicit newlines are kept;
// a single word wider than width gets a line of its own.
func wrap(face font.Face, text string, width float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if measure(face, line+" "+w) <= width {
				line += " " + w
				continue
			}
			out = append(out, line)
			line = w
		}
		out = append(out, line)
	}
	return out
}

func align(a string) string {
	switch strings.ToUpper(a) {
	case "C", "CENTER":
		return "C"
	case "R", "RIGHT":
		return "R"
	}
	return "L"
}

// place returns the left edge of a box of width w aligned inside [x0, x1].
func place(x0, x1, w float64, a string) float64 {
	switch align(a) {
	case "C":
		return x0 + (x1-x0-w)/2
	case "R":
		return x1 - w
	}
	return x0
}

func (p *painter) block(b doctpl.Block) error {
	switch b.Type {
	case doctpl.TypeHeading:
		f := doctpl.ResolveFont(p.base, b.Font, doctpl.HeadingSize(b.Level), "B")
		if err := p.paragraph(b.Text, f, b.Color, b.Align); err != nil {
			return err
		}
		p.y += f.Size * 0.3 * p.s
	case doctpl.TypeText:
		f := doctpl.ResolveFont(p.base, b.Font, 0, "")
		if err := p.paragraph(b.Text, f, b.Color, b.Align); err != nil {
			return err
		}
		p.y += f.Size * 0.2 * p.s
	case doctpl.TypeBanner:
		return p.banner(b)
	case doctpl.TypeFields:
		return p.fields(b)
	case doctpl.TypeTable:
		return p.table(b)
	case doctpl.TypeBarcode:
		return p.barcode(b)
	case doctpl.TypeImage:
		return p.image(b)
	case doctpl.TypeRule:
		p.rule(b)
	case doctpl.TypeSpacer:
		h := b.Height
		if h == 0 {
			h = 16
		}
		p.y += h * p.s
	case doctpl.TypeSignature:
		return p.signature(b)
	default:
		return fmt.Errorf("unknown block type %q", b.Type)
	}
	return nil
}

func (p *painter) paragraph(text string, f doctpl.Font, c *doctpl.Color, a string) error {
	face, err := p.face(f)
	if err != nil {
		return err
	}
	lh := p.lineHeight(f)
	ink := p.textColor(c)
	for _, line := range wrap(face, text, p.contentW()) {
		x := place(p.left, p.right, measure(face, line), a)
		p.text(face, line, x, p.y, lh, ink, p.canvas())
		p.y += lh
	}
	return nil
}

func (p *painter) banner(b doctpl.Block) error {
	f := doctpl.ResolveFont(p.base, b.Font, 0, "B")
	lines := b.Lines
	if len(lines) == 0 && b.Text != "" {
		lines = []string{b.Text}
	}
	fill := color.RGBA{40, 40, 40, 255}
	if b.FillColor != nil {
		fill = rgba(*b.FillColor)
	}
	ink := color.RGBA{255, 255, 255, 255}
	if b.Color != nil {
		ink = rgba(*b.Color)
	}

	pad := f.Size * 0.4 * p.s
	type line struct {
		face font.Face
		text string
		lh   float64
	}
	ls := make([]line, len(lines))
	h := 2 * pad
	for i, s := range lines {
		lf := f
		if i > 0 {
			lf.Size = f.Size * 0.75
			lf.Style = ""
		}
		face, err := p.face(lf)
		if err != nil {
			return err
		}
		ls[i] = line{face, s, p.lineHeight(lf)}
		h += ls[i].lh
	}

	p.fill(rect(p.left, p.y, p.right, p.y+h), fill)
	y := p.y + pad
	for _, l := range ls {
		x := place(p.left, p.right, measure(l.face, l.text), b.Align)
		p.text(l.face, l.text, x, y, l.lh, ink, p.canvas())
		y += l.lh
	}
	p.y += h + f.Size*0.5*p.s
	return nil
}

func (p *painter) fields(b doctpl.Block) error {
	cols := b.GridColumns
	if cols <= 0 {
		cols = 2
	}
	f := doctpl.ResolveFont(p.base, b.Font, 0, "")
	bold := f
	bold.Style = "B"
	face, err := p.face(f)
	if err != nil {
		return err
	}
	boldFace, err := p.face(bold)
	if err != nil {
		return err
	}
	lh := p.lineHeight(f)
	colW := p.contentW() / float64(cols)
	ink := p.textColor(b.Color)
	for i, fld := range b.Fields {
		if i%cols == 0 && i > 0 {
			p.y += lh
		}
		x := p.left + float64(i%cols)*colW
		clip := rect(x, p.y, x+colW, p.y+lh)
		label := fld.Label + ": "
		p.text(boldFace, label, x, p.y, lh, ink, clip)
		p.text(face, fld.Value, x+measure(boldFace, label), p.y, lh, ink, clip)
	}
	if len(b.Fields) > 0 {
		p.y += lh
	}
	p.y += f.Size * 0.4 * p.s
	return nil
}

func (p *painter) table(b doctpl.Block) error {
	f := doctpl.ResolveFont(p.base, b.Font, 0, "")
	bold := f
	bold.Style = "B"
	face, err := p.face(f)
	if err != nil {
		return err
	}
	boldFace, err := p.face(bold)
	if err != nil {
		return err
	}
	rowH := p.lineHeight(f) + 4*p.s
	cellPad := 4 * p.s
	grid := color.RGBA{90, 90, 90, 255}
	lw := math.Max(1, 0.75*p.s)
	weights := doctpl.ColumnWeights(b.Columns)

	row := func(cells []string, fc font.Face, fill *color.RGBA, ink color.Color) {
		x := p.left
		for i, w := range weights {
			cw := w * p.contentW()
			if fill != nil {
				p.fill(rect(x, p.y, x+cw, p.y+rowH), *fill)
			}
			p.stroke(x, p.y, x+cw+lw, p.y+rowH+lw, lw, grid)
			if i < len(cells) && cells[i] != "" {
				a := ""
				if i < len(b.Columns) {
					a = b.Columns[i].Align
				}
				tx := place(x+cellPad, x+cw-cellPad, measure(fc, cells[i]), a)
				p.text(fc, cells[i], tx, p.y, rowH, ink, rect(x+lw, p.y, x+cw-lw, p.y+rowH))
			}
			x += cw
		}
		p.y += rowH
	}

	headerFill := color.RGBA{230, 230, 230, 255}
	headerInk := p.textColor(nil)
	if hs := b.HeaderStyle; hs != nil {
		if hs.FillColor != nil {
			headerFill = rgba(*hs.FillColor)
		}
		if hs.TextColor != nil {
			headerInk = rgba(*hs.TextColor)
		}
	}
	if len(b.Columns) > 0 {
		headers := make([]string, len(b.Columns))
		for i, c := range b.Columns {
			headers[i] = c.Header
		}
		row(headers, boldFace, &headerFill, headerInk)
	}
	ink := p.textColor(b.Color)
	for _, cells := range b.Rows {
		row(cells, face, nil, ink)
	}
	if len(b.FooterRow) > 0 {
		row(b.FooterRow, boldFace, nil, ink)
	}
	p.y += f.Size * 0.5 * p.s
	return nil
}

// EncodeBarcode returns the unscaled module image of bc.
func EncodeBarcode(bc *doctpl.Barcode) (image.Image, error) {
	switch bc.Kind {
	case doctpl.BarcodeQR:
		code, err := qr.Encode(bc.Data, qr.M, qr.Auto)
		if err != nil {
			return nil, fmt.Errorf("encoding qr: %w", err)
		}
		return code, nil
	case doctpl.BarcodePDF417:
		return pdf417.Encode(bc.Data, doctpl.PDF417Columns, doctpl.PDF417Security), nil
	}
	return nil, fmt.Errorf("unknown barcode kind %q", bc.Kind)
}

func (p *painter) barcode(b doctpl.Block) error {
	code, err := EncodeBarcode(b.Barcode)
	if err != nil {
		return err
	}
	if code.Bounds().Empty() {
		return fmt.Errorf("%s barcode is empty", b.Barcode.Kind)
	}
	wpx, hpx := doctpl.BarcodeSize(b)
	w, h := wpx*p.s, hpx*p.s
	x := place(p.left, p.right, w, b.Align)
	if p.dst != nil {
		draw.NearestNeighbor.Scale(p.dst, rect(x, p.y, x+w, p.y+h), code, code.Bounds(), draw.Over, nil)
	}
	p.y += h + 6*p.s
	return nil
}

func (p *painter) load(src string) (image.Image, error) {
	if img, ok := p.images[src]; ok {
		return img, nil
	}
	rc, err := p.res.Open(p.ctx, src)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", src, err)
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", src, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image %s has zero area", src)
	}
	p.images[src] = img
	return img, nil
}

func (p *painter) image(b doctpl.Block) error {
	img, err := p.load(b.Src)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	wpx, hpx := b.Width, b.Height
	switch {
	case wpx == 0 && hpx == 0:
		wpx, hpx = float64(bounds.Dx()), float64(bounds.Dy())
	case hpx == 0:
		hpx = wpx * float64(bounds.Dy()) / float64(bounds.Dx())
	case wpx == 0:
		wpx = hpx * float64(bounds.Dx()) / float64(bounds.Dy())
	}
	w, h := wpx*p.s, hpx*p.s
	x := place(p.left, p.right, w, b.Align)
	if p.dst != nil {
		draw.CatmullRom.Scale(p.dst, rect(x, p.y, x+w, p.y+h), img, bounds, draw.Over, nil)
	}
	p.y += h + 6*p.s
	return nil
}

func (p *painter) rule(b doctpl.Block) {
	lw := b.LineWidth
	if lw == 0 {
		lw = 1
	}
	lw *= p.s
	c := color.RGBA{160, 160, 160, 255}
	if b.Color != nil {
		c = rgba(*b.Color)
	}
	w := p.contentW()
	if b.Width > 0 && b.Width*p.s < w {
		w = b.Width * p.s
	}
	p.y += 4 * p.s
	x := place(p.left, p.right, w, b.Align)
	p.fill(rect(x, p.y, x+w, p.y+math.Max(1, lw)), c)
	p.y += lw + 6*p.s
}

func (p *painter) signature(b doctpl.Block) error {
	f := doctpl.ResolveFont(p.base, b.Font, 0, "")
	bold := f
	bold.Style = "B"
	face, err := p.face(f)
	if err != nil {
		return err
	}
	boldFace, err := p.face(bold)
	if err != nil {
		return err
	}
	signers := doctpl.Signers(b)
	lineW := 200 * p.s
	lh := p.lineHeight(f)
	ink := p.textColor(b.Color)
	p.y += 40 * p.s
	slot := p.contentW() / float64(len(signers))
	for i, s := range signers {
		x := place(p.left, p.right, lineW, b.Align)
		if len(signers) > 1 {
			x = p.left + float64(i)*slot + (slot-lineW)/2
		}
		p.fill(rect(x, p.y, x+lineW, p.y+math.Max(1, p.s)), color.RGBA{60, 60, 60, 255})
		top := p.y + 2*p.s
		p.text(boldFace, s.Label, place(x, x+lineW, measure(boldFace, s.Label), "C"), top, lh, ink, p.canvas())
		p.text(face, s.Value, place(x, x+lineW, measure(face, s.Value), "C"), top+lh, lh, ink, p.canvas())
	}
	p.y += 2*p.s + 2*lh
	return nil
}
