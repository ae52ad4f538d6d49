package boxes

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Preset names the two historical directory layouts.
type Preset string

const (
	PresetDrawer     Preset = "drawer"
	PresetApplicator Preset = "applicator"
)

// Dirs returns the input and output folders of p under base.
func (p Preset) Dirs(base string) (in, out string, err error) {
	switch p {
	case PresetDrawer, "":
		return filepath.Join(base, "images", "box_input"), filepath.Join(base, "images", "box_output"), nil
	case PresetApplicator:
		return filepath.Join(base, "images", "input"), filepath.Join(base, "images", "output"), nil
	default:
		return "", "", fmt.Errorf("boxes: unknown preset %q", string(p))
	}
}

type Options struct {
	InputDir  string
	OutputDir string
}

// Summary counts what Run did with each image.
type Summary struct {
	Found      int
	Paired     int
	Drawn      int
	Mismatched int
	Failed     int
}

// Run outlines the object in every image/JSON pair of opts.InputDir and
// writes the result under the same name to opts.OutputDir. Pairs whose
// image size differs from the exported canvas size are skipped.
func Run(opts Options, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sum Summary

	images, created, err := FindImages(opts.InputDir)
	if err != nil {
		return sum, err
	}
	if created {
		logger.Info("created missing input directory", zap.String("dir", opts.InputDir))
	}
	sum.Found = len(images)
	if len(images) == 0 {
		return sum, fmt.Errorf("%w in %s: add at least one PNG, JP(E)G, GIF, TIFF or BMP image", ErrNoImages, opts.InputDir)
	}

	if _, _, err := FindImages(opts.OutputDir); err != nil {
		return sum, err
	}

	pairs := Pair(opts.InputDir, images)
	sum.Paired = len(pairs)
	for _, p := range pairs {
		log := logger.With(zap.String("image", p.Image), zap.String("data", p.Data))
		drawn, err := drawPair(p, opts.OutputDir)
		switch {
		case err != nil:
			sum.Failed++
			log.Error("drawing bounding box failed", zap.Error(err))
		case !drawn:
			sum.Mismatched++
			log.Warn("image size does not match exported canvas size, skipping")
		default:
			sum.Drawn++
			log.Info("bounding box drawn")
		}
	}
	return sum, nil
}

func drawPair(p ImagePair, outDir string) (bool, error) {
	img, _, err := decodeImage(p.Image)
	if err != nil {
		return false, err
	}
	sd, err := LoadSpaceData(p.Data)
	if err != nil {
		return false, err
	}

	size := img.Bounds().Size()
	if float64(size.X) != sd.CanvasSize.X || float64(size.Y) != sd.CanvasSize.Y {
		return false, nil
	}

	rect, err := ExtremePoints(sd.Space.ScreenSpace)
	if err != nil {
		return false, err
	}
	Draw(img, rect, Red)

	if err := saveImage(filepath.Join(outDir, filepath.Base(p.Image)), img); err != nil {
		return false, err
	}
	return true, nil
}
