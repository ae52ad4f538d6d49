// Package boxes outlines objects in rendered images using the screen space
// points exported alongside each image.
package boxes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNoImages = errors.New("boxes: no images found")
	ErrNoPoints = errors.New("boxes: no screen space points")
	ErrBadPoint = errors.New("boxes: screen space point is not a finite number")
)

var imagePattern = regexp.MustCompile(`^.*\.(png|jpe?g|gif|tiff|bmp)$`)

// FindImages lists the image files in dir by name, sorted. A missing dir is
// created and reported with created set.
func FindImages(dir string) (images []string, created bool, err error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imagePattern.MatchString(e.Name()) {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, false, nil
}

// ImagePair is an image and the JSON export describing it.
type ImagePair struct {
	Image string
	Data  string
}

// Pair matches each image in dir with <stem>.json, where stem is the file
// name up to its first dot. Images without data are left out.
func Pair(dir string, images []string) []ImagePair {
	var pairs []ImagePair
	for _, name := range images {
		stem, _, _ := strings.Cut(name, ".")
		img := filepath.Join(dir, name)
		data := filepath.Join(dir, stem+".json")
		if !exists(img) || !exists(data) {
			continue
		}
		pairs = append(pairs, ImagePair{Image: img, Data: data})
	}
	return pairs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ScreenPoint struct {
	Position Vec2 `json:"position"`
}

// SpaceData is the JSON export written next to each rendered image.
type SpaceData struct {
	CanvasSize Vec2 `json:"canvasSize"`
	Space      struct {
		ScreenSpace []ScreenPoint `json:"screenSpace"`
	} `json:"space"`
}

func LoadSpaceData(path string) (*SpaceData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sd SpaceData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("boxes: decoding %s: %w", path, err)
	}
	return &sd, nil
}

// Rect is an axis aligned box in image coordinates; Max is inclusive.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// ExtremePoints returns the smallest box containing every point.
func ExtremePoints(points []ScreenPoint) (Rect, error) {
	if len(points) == 0 {
		return Rect{}, ErrNoPoints
	}
	r := Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for i, p := range points {
		if !finite(p.Position.X) || !finite(p.Position.Y) {
			return Rect{}, fmt.Errorf("%w: point %d is (%v, %v)", ErrBadPoint, i, p.Position.X, p.Position.Y)
		}
		r.MinX = math.Min(r.MinX, p.Position.X)
		r.MaxX = math.Max(r.MaxX, p.Position.X)
		r.MinY = math.Min(r.MinY, p.Position.Y)
		r.MaxY = math.Max(r.MaxY, p.Position.Y)
	}
	return r, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r Rect) finite() bool {
	return finite(r.MinX) && finite(r.MinY) && finite(r.MaxX) && finite(r.MaxY)
}
