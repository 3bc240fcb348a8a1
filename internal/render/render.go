// Package render draws annotated previews of labeled frames: one colored
// box per detection with the label written above it.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"

	// Frames are JPEG, reference images may be PNG.
	_ "image/png"
)

// categoryColors matches the dashboard legend.
var categoryColors = map[string]color.RGBA{
	"pedestrian":   {R: 255, A: 255},
	"vehicle":      {G: 255, A: 255},
	"traffic_sign": {G: 100, B: 255, A: 255},
	"construction": {R: 255, G: 165, A: 255},
}

var unknownColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// labelRuneLimit is where drawn labels get truncated, matching the preview
// style of the annotation dashboard.
const labelRuneLimit = 20

// Previewer renders preview images for labeled frames.
type Previewer struct {
	// Quality is the JPEG quality used for previews.
	Quality int
}

// NewPreviewer returns a Previewer with the default JPEG quality.
func NewPreviewer() *Previewer {
	return &Previewer{Quality: 90}
}

// Render draws the detections over the frame image and writes the preview
// to destPath as JPEG.
func (p *Previewer) Render(imagePath string, dets []domain.Detection, destPath string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	src, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, det := range dets {
		col := colorFor(det.Category)
		drawBox(canvas, det.BBox, col, 3)
		drawLabel(canvas, det.Label, det.BBox[0], det.BBox[1]-15, col)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	quality := p.Quality
	if quality <= 0 {
		quality = 90
	}
	if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: quality}); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close preview: %w", err)
	}
	return nil
}

// PreviewPath returns the conventional preview location for a frame image.
func PreviewPath(dir, imagePath string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+"_vis.jpg")
}

func colorFor(category string) color.RGBA {
	if col, ok := categoryColors[category]; ok {
		return col
	}
	return unknownColor
}

// drawBox outlines the box with a stroke of the given width, expanding
// inward, clipped to the canvas.
func drawBox(dst *image.RGBA, box domain.BBox, col color.RGBA, stroke int) {
	r := image.Rect(box[0], box[1], box[2], box[3])
	if r.Empty() {
		return
	}

	fill := image.NewUniform(col)
	edges := []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+stroke)}, // top
		{Min: image.Pt(r.Min.X, r.Max.Y-stroke), Max: r.Max}, // bottom
		{Min: r.Min, Max: image.Pt(r.Min.X+stroke, r.Max.Y)}, // left
		{Min: image.Pt(r.Max.X-stroke, r.Min.Y), Max: r.Max}, // right
	}
	for _, edge := range edges {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
	}
}

// drawLabel writes the label with its top-left corner at (x, y) in the
// category color. Off-canvas text is clipped by the drawer.
func drawLabel(dst *image.RGBA, label string, x, y int, col color.RGBA) {
	if len(label) > labelRuneLimit {
		label = label[:labelRuneLimit] + "..."
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	drawer.DrawString(label)
}
