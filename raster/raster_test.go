package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

func testDocument(blocks ...doctpl.Block) *doctpl.Document {
	return &doctpl.Document{Width: doctpl.A4Width, Padding: 40, Blocks: blocks}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRasterizeDimensions(t *testing.T) {
	doc := testDocument(
		doctpl.Block{Type: doctpl.TypeHeading, Text: "STATEMENT OF GRADES", Align: "C"},
		doctpl.Block{Type: doctpl.TypeText, Text: "Hello, World!"},
	)
	img, err := New(WithScale(1)).Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != doctpl.A4Width {
		t.Errorf("width = %d, want %d", b.Dx(), doctpl.A4Width)
	}
	if b.Dy() <= 80 {
		t.Errorf("height = %d, expected content below the padding", b.Dy())
	}

	img2, err := New().Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if img2.Bounds().Dx() != 2*doctpl.A4Width || img2.Scale != DefaultScale {
		t.Errorf("default scale image = %v scale %v", img2.Bounds(), img2.Scale)
	}
}

func TestRasterizePaintsText(t *testing.T) {
	doc := testDocument(doctpl.Block{Type: doctpl.TypeHeading, Text: "MMMMMMMM"})
	img, err := New(WithScale(1)).Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	dark := 0
	for y := 40; y < 80; y++ {
		for x := 40; x < 300; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("heading left no ink on the canvas")
	}
}

func TestRasterizeMinHeightAndBackground(t *testing.T) {
	doc := testDocument(doctpl.Block{Type: doctpl.TypeText, Text: "x"})
	doc.MinHeight = 1123
	doc.Background = &doctpl.Color{R: 240, G: 253, B: 250}
	img, err := New(WithScale(1)).Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dy() != 1123 {
		t.Errorf("height = %d, want 1123", img.Bounds().Dy())
	}
	if c := img.RGBAAt(400, 1000); c != (color.RGBA{240, 253, 250, 255}) {
		t.Errorf("background pixel = %v", c)
	}
}

func TestRasterizeDeterministic(t *testing.T) {
	doc := testDocument(
		doctpl.Block{Type: doctpl.TypeBanner, Lines: []string{"UNIVERSITY", "CITY"}},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 3, Fields: []doctpl.Field{{Label: "Seat", Value: "1"}, {Label: "PRN", Value: "2"}}},
		doctpl.Block{Type: doctpl.TypeTable, Columns: []doctpl.Column{{Header: "A"}, {Header: "B", Align: "R"}}, Rows: [][]string{{"1", "2"}}, FooterRow: []string{"T", "3"}},
		doctpl.Block{Type: doctpl.TypeBarcode, Barcode: &doctpl.Barcode{Kind: doctpl.BarcodeQR, Data: "12345|PRN"}},
		doctpl.Block{Type: doctpl.TypeBarcode, Barcode: &doctpl.Barcode{Kind: doctpl.BarcodePDF417, Data: "Acme|Jane|June 15, 2024"}},
		doctpl.Block{Type: doctpl.TypeRule, Width: 100, Align: "C"},
		doctpl.Block{Type: doctpl.TypeSignature, Fields: []doctpl.Field{{Label: "A", Value: "Teacher"}, {Label: "B", Value: "Principal"}}},
	)
	doc.Border = &doctpl.Border{Width: 2, Double: true}

	r := New(WithScale(1))
	a, err := r.Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Rasterize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("two rasterizations of the same document differ")
	}
}

func TestRasterizeImageSources(t *testing.T) {
	logo := pngBytes(t, 20, 10, color.RGBA{255, 0, 0, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logo.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(logo)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{"http", srv.URL + "/logo.png", false},
		{"data uri", "data:image/png;base64," + base64.StdEncoding.EncodeToString(logo), false},
		{"http 404", srv.URL + "/missing.png", true},
		{"missing file", "/nonexistent/logo.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument(doctpl.Block{Type: doctpl.TypeImage, Src: tt.src, Width: 40, Align: "C"})
			img, err := New(WithScale(1)).Rasterize(context.Background(), doc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unreachable image")
				}
				return
			}
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			// 40x20 logo centred below the top padding
			if c := img.RGBAAt(doctpl.A4Width/2, 50); c.R < 200 || c.G > 60 {
				t.Errorf("logo pixel = %v", c)
			}
		})
	}
}

func TestRasterizeResolverUsesContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	slow := ResolverFunc(func(ctx context.Context, src string) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	doc := testDocument(doctpl.Block{Type: doctpl.TypeImage, Src: "slow.png"})
	_, err := New(WithResolver(slow)).Rasterize(ctx, doc)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRasterizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Rasterize(ctx, testDocument(doctpl.Block{Type: doctpl.TypeText, Text: "x"}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRasterizeZeroArea(t *testing.T) {
	doc := &doctpl.Document{Width: doctpl.A4Width}
	_, err := New().Rasterize(context.Background(), doc)
	if !errors.Is(err, bulkdoc.ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}

	doc = &doctpl.Document{Width: 0, Blocks: []doctpl.Block{{Type: doctpl.TypeText, Text: "x"}}}
	if _, err := New().Rasterize(context.Background(), doc); err == nil {
		t.Error("expected error for zero width document")
	}
}

func TestRasterizeMaxPixels(t *testing.T) {
	doc := testDocument(doctpl.Block{Type: doctpl.TypeSpacer, Height: 5000})
	_, err := New(WithScale(1), WithMaxPixels(1000*1000)).Rasterize(context.Background(), doc)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestRasterizeSerialised(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	logo := pngBytes(t, 4, 4, color.Black)
	res := ResolverFunc(func(ctx context.Context, src string) (io.ReadCloser, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return io.NopCloser(bytes.NewReader(logo)), nil
	})

	r := New(WithScale(1), WithResolver(res))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := testDocument(doctpl.Block{Type: doctpl.TypeImage, Src: "logo.png"})
			if _, err := r.Rasterize(context.Background(), doc); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Errorf("%d rasterizations overlapped", peak)
	}
}

func TestWrap(t *testing.T) {
	c := faceCache{}
	face, err := c.face(doctpl.Font{Family: "mono", Size: 10}, 1)
	if err != nil {
		t.Fatal(err)
	}
	w := measure(face, "aaaa")
	lines := wrap(face, "aaaa bbbb cccc\ndd", w*2.5)
	if strings.Join(lines, "|") != "aaaa bbbb|cccc|dd" {
		t.Errorf("wrap = %q", lines)
	}
}
