package render

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

func writeBlackJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame_000001.jpg")
	writeBlackJPEG(t, framePath, 200, 150)

	dets := []domain.Detection{
		{Label: "pedestrian", Category: "pedestrian", BBox: domain.BBox{40, 40, 120, 120}},
		{Label: "vehicle_braking", Category: "vehicle", BBox: domain.BBox{130, 30, 190, 90}},
	}

	destPath := PreviewPath(dir, framePath)
	require.NoError(t, NewPreviewer().Render(framePath, dets, destPath))

	f, err := os.Open(destPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	// The pedestrian box edge should read strongly red against the black
	// frame, allowing for JPEG loss.
	edge := color.RGBAModel.Convert(img.At(80, 41)).(color.RGBA)
	assert.Greater(t, edge.R, uint8(150), "red channel on box edge")
	assert.Less(t, edge.G, uint8(100), "green channel on box edge")
	assert.Less(t, edge.B, uint8(100), "blue channel on box edge")

	// The vehicle box edge should read strongly green.
	edge = color.RGBAModel.Convert(img.At(160, 31)).(color.RGBA)
	assert.Less(t, edge.R, uint8(100), "red channel on vehicle edge")
	assert.Greater(t, edge.G, uint8(150), "green channel on vehicle edge")
}

func TestRenderLongLabelAndEdgeBoxes(t *testing.T) {
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame_000002.jpg")
	writeBlackJPEG(t, framePath, 100, 100)

	dets := []domain.Detection{
		// Long label truncates, box at the top edge clips the text.
		{Label: "variable_speed_limit_100_km_h", Category: "traffic_sign", BBox: domain.BBox{5, 5, 60, 40}},
		// Degenerate box draws nothing but must not fail.
		{Label: "vehicle", Category: "vehicle", BBox: domain.BBox{80, 80, 80, 90}},
		// Unmapped category falls back to gray.
		{Label: "mystery", Category: "unknown", BBox: domain.BBox{20, 60, 50, 90}},
	}

	destPath := filepath.Join(dir, "out.jpg")
	require.NoError(t, NewPreviewer().Render(framePath, dets, destPath))

	info, err := os.Stat(destPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRenderMissingFrame(t *testing.T) {
	dir := t.TempDir()
	err := NewPreviewer().Render(filepath.Join(dir, "missing.jpg"), nil, filepath.Join(dir, "out.jpg"))
	require.Error(t, err)
}

func TestPreviewPath(t *testing.T) {
	assert.Equal(t, filepath.Join("vis", "frame_000123_vis.jpg"),
		PreviewPath("vis", filepath.Join("frames", "frame_000123.jpg")))
	assert.Equal(t, filepath.Join("vis", "img_vis.jpg"), PreviewPath("vis", "img.png"))
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 255, A: 255}, colorFor("pedestrian"))
	assert.Equal(t, unknownColor, colorFor("unknown"))
	assert.Equal(t, unknownColor, colorFor(""))
}
