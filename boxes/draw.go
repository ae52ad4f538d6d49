package boxes

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Red is the outline colour.
var Red = color.RGBA{R: 0xff, A: 0xff}

// Draw outlines r on img with a one pixel line. Corners are inclusive and
// the outline is clipped to the image bounds; non-finite rectangles draw
// nothing.
func Draw(img draw.Image, r Rect, c color.Color) {
	if !r.finite() {
		return
	}
	b := img.Bounds()
	x0, y0 := math.Round(r.MinX), math.Round(r.MinY)
	x1, y1 := math.Round(r.MaxX), math.Round(r.MaxY)

	// visible span of the outline, in float space so huge values never
	// reach an int conversion
	lx, hx := math.Max(x0, float64(b.Min.X)), math.Min(x1, float64(b.Max.X-1))
	ly, hy := math.Max(y0, float64(b.Min.Y)), math.Min(y1, float64(b.Max.Y-1))
	if lx > hx || ly > hy {
		return
	}

	inX := func(x float64) bool { return x >= float64(b.Min.X) && x < float64(b.Max.X) }
	inY := func(y float64) bool { return y >= float64(b.Min.Y) && y < float64(b.Max.Y) }
	for x := int(lx); x <= int(hx); x++ {
		if inY(y0) {
			img.Set(x, int(y0), c)
		}
		if inY(y1) {
			img.Set(x, int(y1), c)
		}
	}
	for y := int(ly); y <= int(hy); y++ {
		if inX(x0) {
			img.Set(int(x0), y, c)
		}
		if inX(x1) {
			img.Set(int(x1), y, c)
		}
	}
}

// decodeImage reads any supported format into a drawable RGBA copy.
func decodeImage(path string) (*image.RGBA, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("boxes: decoding %s: %w", path, err)
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst, format, nil
}

// encodeImage writes img in the format implied by the file extension.
func encodeImage(w io.Writer, path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("boxes: unsupported output format %q", filepath.Ext(path))
	}
}

func saveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeImage(f, path, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
