package domain

// BBox is an axis-aligned bounding box in pixel coordinates,
// stored as [x1, y1, x2, y2].
type BBox [4]int

// Valid reports whether the box has positive width and height.
func (b BBox) Valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Width returns the box width, or 0 for degenerate boxes.
func (b BBox) Width() int {
	if w := b[2] - b[0]; w > 0 {
		return w
	}
	return 0
}

// Height returns the box height, or 0 for degenerate boxes.
func (b BBox) Height() int {
	if h := b[3] - b[1]; h > 0 {
		return h
	}
	return 0
}

// Area returns the box area in square pixels, or 0 for degenerate boxes.
func (b BBox) Area() int {
	return b.Width() * b.Height()
}

// IoU computes the intersection-over-union between two boxes.
// Degenerate boxes yield 0.
func (b BBox) IoU(o BBox) float64 {
	ix1 := max(b[0], o[0])
	iy1 := max(b[1], o[1])
	ix2 := min(b[2], o[2])
	iy2 := min(b[3], o[3])

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Detection is a single labeled object found in a frame. Label carries the
// concrete (possibly state-suffixed) label, Category the coarse class it
// maps to.
type Detection struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	BBox     BBox   `json:"bbox"`
}

// FrameResult is the outcome of processing one frame or image. A failed
// frame carries the error message and no detections.
type FrameResult struct {
	FrameID        string      `json:"frame_id"`
	ImagePath      string      `json:"image_path"`
	Detections     []Detection `json:"detections"`
	Issues         []Issue     `json:"issues,omitempty"`
	ElapsedMS      int64       `json:"elapsed_ms"`
	VisualizedPath string      `json:"visualized_path,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Failed reports whether processing of this frame ended in an error.
func (r FrameResult) Failed() bool {
	return r.Error != ""
}
