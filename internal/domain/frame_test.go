package domain

import (
	"math"
	"testing"
)

func TestBBoxGeometry(t *testing.T) {
	t.Parallel()

	b := BBox{10, 20, 110, 70}
	if !b.Valid() {
		t.Error("Expected box to be valid")
	}
	if b.Width() != 100 || b.Height() != 50 {
		t.Errorf("Expected 100x50, got %dx%d", b.Width(), b.Height())
	}
	if b.Area() != 5000 {
		t.Errorf("Expected area 5000, got %d", b.Area())
	}

	inverted := BBox{50, 50, 40, 60}
	if inverted.Valid() {
		t.Error("Expected inverted box to be invalid")
	}
	if inverted.Area() != 0 {
		t.Errorf("Expected zero area for inverted box, got %d", inverted.Area())
	}
}

func TestBBoxIoU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{"identical", BBox{0, 0, 10, 10}, BBox{0, 0, 10, 10}, 1.0},
		{"disjoint", BBox{0, 0, 10, 10}, BBox{20, 20, 30, 30}, 0.0},
		{"touching edges", BBox{0, 0, 10, 10}, BBox{10, 0, 20, 10}, 0.0},
		{"half overlap", BBox{0, 0, 10, 10}, BBox{5, 0, 15, 10}, 50.0 / 150.0},
		{"degenerate", BBox{5, 5, 5, 5}, BBox{0, 0, 10, 10}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.IoU(tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("IoU(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			// IoU is symmetric.
			if rev := tc.b.IoU(tc.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("Expected symmetric IoU, got %v and %v", got, rev)
			}
		})
	}
}

func TestFrameResultFailed(t *testing.T) {
	t.Parallel()

	ok := FrameResult{FrameID: "f1"}
	if ok.Failed() {
		t.Error("Expected frame without error to report success")
	}

	bad := FrameResult{FrameID: "f2", Error: "timeout"}
	if !bad.Failed() {
		t.Error("Expected frame with error to report failure")
	}
}
