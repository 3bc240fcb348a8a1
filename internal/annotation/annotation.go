// Package annotation writes and reads per-frame annotation records in the
// X-AnyLabeling JSON layout, one record per image, so labeled output can be
// opened directly in the annotation tool.
package annotation

import (
	"path/filepath"
	"strings"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/labels"
)

// Version is the X-AnyLabeling schema version emitted in every record.
const Version = "0.4.1"

// Shape is a single labeled rectangle inside a record.
type Shape struct {
	Label     string            `json:"label"`
	Text      string            `json:"text"`
	Points    [][2]int          `json:"points"`
	GroupID   *int              `json:"group_id"`
	ShapeType string            `json:"shape_type"`
	Flags     map[string]string `json:"flags"`
}

// Record is the on-disk annotation document for one image.
type Record struct {
	Version     string         `json:"version"`
	Flags       map[string]any `json:"flags"`
	Shapes      []Shape        `json:"shapes"`
	ImagePath   string         `json:"imagePath"`
	ImageData   *string        `json:"imageData"`
	ImageHeight int            `json:"imageHeight"`
	ImageWidth  int            `json:"imageWidth"`
}

// NewRecord builds a record for an image of the given pixel size. Each
// detection becomes one rectangle shape with its category tucked into the
// shape flags.
func NewRecord(imagePath string, width, height int, dets []domain.Detection) Record {
	shapes := make([]Shape, 0, len(dets))
	for _, det := range dets {
		shapes = append(shapes, Shape{
			Label:     det.Label,
			Text:      det.Label,
			Points:    [][2]int{{det.BBox[0], det.BBox[1]}, {det.BBox[2], det.BBox[3]}},
			ShapeType: "rectangle",
			Flags:     map[string]string{"category": det.Category},
		})
	}

	return Record{
		Version:     Version,
		Flags:       map[string]any{},
		Shapes:      shapes,
		ImagePath:   filepath.Base(imagePath),
		ImageHeight: height,
		ImageWidth:  width,
	}
}

// Detections maps the record's shapes back to domain detections. Shapes
// written by older tools may lack the category flag; those are re-derived
// from the label.
func (r Record) Detections() []domain.Detection {
	out := make([]domain.Detection, 0, len(r.Shapes))
	for _, shape := range r.Shapes {
		if len(shape.Points) < 2 {
			continue
		}
		category := shape.Flags["category"]
		if category == "" {
			category = labels.Category(shape.Label)
		}
		out = append(out, domain.Detection{
			Label:    shape.Label,
			Category: category,
			BBox: domain.BBox{
				shape.Points[0][0], shape.Points[0][1],
				shape.Points[1][0], shape.Points[1][1],
			},
		})
	}
	return out
}

// Stem returns the base name of an image path without its extension, which
// is also the annotation file stem and the frame ID.
func Stem(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
