package raster

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/lvillar/bulkdoc/doctpl"
)

// The Go font family has no serif cut, so "serif" renders with the
// proportional faces.
var ttfs = map[string][]byte{
	"sans":    goregular.TTF,
	"sans-B":  gobold.TTF,
	"sans-I":  goitalic.TTF,
	"sans-BI": gobolditalic.TTF,
	"mono":    gomono.TTF,
	"mono-B":  gomonobold.TTF,
	"mono-I":  gomonoitalic.TTF,
	"mono-BI": gomonobolditalic.TTF,
}

var (
	parseOnce sync.Once
	parsed    map[string]*opentype.Font
	parseErr  error
)

func parsedFonts() (map[string]*opentype.Font, error) {
	parseOnce.Do(func() {
		parsed = make(map[string]*opentype.Font, len(ttfs))
		for name, data := range ttfs {
			f, err := opentype.Parse(data)
			if err != nil {
				parseErr = fmt.Errorf("raster: parsing font %s: %w", name, err)
				return
			}
			parsed[name] = f
		}
	})
	return parsed, parseErr
}

func fontName(f doctpl.Font) string {
	name := "sans"
	if f.Family == "mono" {
		name = "mono"
	}
	switch {
	case f.Bold() && f.Italic():
		return name + "-BI"
	case f.Bold():
		return name + "-B"
	case f.Italic():
		return name + "-I"
	}
	return name
}

type faceKey struct {
	name string
	size float64 // device px
}

// faceCache holds the faces of one Rasterizer. Faces are not safe for
// concurrent use; the Rasterizer mutex guards the cache.
type faceCache struct {
	faces map[faceKey]font.Face
}

func (c *faceCache) face(f doctpl.Font, scale float64) (font.Face, error) {
	key := faceKey{fontName(f), f.Size * scale}
	if face, ok := c.faces[key]; ok {
		return face, nil
	}
	fonts, err := parsedFonts()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fonts[key.name], &opentype.FaceOptions{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("raster: font face %s %.1fpx: %w", key.name, key.size, err)
	}
	if c.faces == nil {
		c.faces = make(map[faceKey]font.Face)
	}
	c.faces[key] = face
	return face, nil
}
