package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "bare array",
			text: `[{"label": "car", "bbox_2d": [1, 2, 3, 4]}]`,
			want: `[{"label": "car", "bbox_2d": [1, 2, 3, 4]}]`,
			ok:   true,
		},
		{
			name: "json fence",
			text: "```json\n[{\"label\": \"car\", \"bbox_2d\": [1, 2, 3, 4]}]\n```",
			want: `[{"label": "car", "bbox_2d": [1, 2, 3, 4]}]`,
			ok:   true,
		},
		{
			name: "plain fence",
			text: "```\n[]\n```",
			want: "[]",
			ok:   true,
		},
		{
			name: "prose around the array",
			text: "Here are the detections:\n[{\"label\": \"bus\", \"bbox_2d\": [5, 6, 7, 8]}]\nLet me know if you need more.",
			want: `[{"label": "bus", "bbox_2d": [5, 6, 7, 8]}]`,
			ok:   true,
		},
		{
			name: "empty scene",
			text: "[]",
			want: "[]",
			ok:   true,
		},
		{
			name: "no array at all",
			text: "I could not find any objects in this image.",
			ok:   false,
		},
		{
			name: "closing bracket before opening",
			text: "] broken [",
			ok:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSONArray(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestParseDetections(t *testing.T) {
	raw, err := parseDetections("```json\n[{\"label\": \"car\", \"bbox_2d\": [10, 20, 30, 40]}, {\"label\": \"traffic_sign\", \"bbox_2d\": [1, 2, 3, 4]}]\n```")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, "car", raw[0].Label)
	assert.Equal(t, []int{10, 20, 30, 40}, raw[0].BBox2D)
	assert.Equal(t, "traffic_sign", raw[1].Label)
}

func TestParseDetectionsEmptyScene(t *testing.T) {
	raw, err := parseDetections("[]")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestParseDetectionsMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no array", "the scene is empty"},
		{"broken json", `[{"label": "car", "bbox_2d": [1, 2,]`},
		{"object instead of array elements", `["just a string"]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDetections(tc.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, detection.ErrMalformedResponse)
		})
	}
}

func TestToDomain(t *testing.T) {
	raw := []rawDetection{
		{Label: "Car braking", BBox2D: []int{100, 200, 300, 400}},
		{Label: "traffic sign", BBox2D: []int{50, 50, 80, 80}},
		{Label: "pedestrian", BBox2D: []int{0, 0, 1000}}, // dropped, 3 values
		{Label: "mystery object", BBox2D: []int{1, 1, 2, 2}},
	}

	dets := toDomain(raw, 1920, 1080, 1000)
	require.Len(t, dets, 3)

	assert.Equal(t, "vehicle_braking", dets[0].Label)
	assert.Equal(t, "vehicle", dets[0].Category)
	assert.Equal(t, domain.BBox{192, 216, 576, 432}, dets[0].BBox)

	assert.Equal(t, "traffic_sign", dets[1].Label)
	assert.Equal(t, "traffic_sign", dets[1].Category)
	assert.Equal(t, domain.BBox{96, 54, 153, 86}, dets[1].BBox)

	assert.Equal(t, "mystery_object", dets[2].Label)
	assert.Equal(t, "unknown", dets[2].Category)
}

func TestToDomainPassthroughBase(t *testing.T) {
	// coordBase 0 means the model already speaks pixels.
	raw := []rawDetection{{Label: "car", BBox2D: []int{10, 20, 30, 40}}}
	dets := toDomain(raw, 1920, 1080, 0)
	require.Len(t, dets, 1)
	assert.Equal(t, domain.BBox{10, 20, 30, 40}, dets[0].BBox)
}

func TestScale(t *testing.T) {
	tests := []struct {
		v, size, base int
		want          int
	}{
		{0, 1920, 1000, 0},
		{1000, 1920, 1000, 1920},
		{500, 1080, 1000, 540},
		{999, 1920, 1000, 1918}, // truncates, never rounds up
		{333, 100, 1000, 33},
		{42, 640, 0, 42},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, scale(tc.v, tc.size, tc.base),
			"scale(%d, %d, %d)", tc.v, tc.size, tc.base)
	}
}

func TestMimeFor(t *testing.T) {
	assert.Equal(t, "image/png", mimeFor("frame_000001.png"))
	assert.Equal(t, "image/png", mimeFor("FRAME.PNG"))
	assert.Equal(t, "image/jpeg", mimeFor("frame_000001.jpg"))
	assert.Equal(t, "image/jpeg", mimeFor("frame_000001.jpeg"))
	assert.Equal(t, "image/jpeg", mimeFor("frame"))
}

func TestFirstInt(t *testing.T) {
	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{"Option 12.", 12, true},
		{"The answer is 7 because...", 7, true},
		{"0", 0, true},
		{"none of these", 0, false},
		{"", 0, false},
	}

	for _, tc := range tests {
		got, ok := firstInt(tc.text)
		assert.Equal(t, tc.ok, ok, "firstInt(%q)", tc.text)
		assert.Equal(t, tc.want, got, "firstInt(%q)", tc.text)
	}
}

func TestFirstNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"70", "70", true},
		{"The limit is 100 km/h", "100", true},
		{"about 3.5 m", "3.5", true},
		{"no digits here", "", false},
	}

	for _, tc := range tests {
		got, ok := firstNumber(tc.text)
		assert.Equal(t, tc.ok, ok, "firstNumber(%q)", tc.text)
		assert.Equal(t, tc.want, got, "firstNumber(%q)", tc.text)
	}
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "exactly ten", clip("exactly ten", 11))
	assert.Equal(t, "truncated ...", clip("truncated text that runs long", 10))
}
