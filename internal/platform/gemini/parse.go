// Package gemini provides implementations of the detection interfaces using Google's Gemini API.
package gemini

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/labels"
)

// rawDetection is the shape of one entry in the model's JSON output.
type rawDetection struct {
	Label  string `json:"label"`
	BBox2D []int  `json:"bbox_2d"`
}

// parseDetections extracts and unmarshals the JSON detection array from the
// model's response text.
func parseDetections(text string) ([]rawDetection, error) {
	payload, ok := extractJSONArray(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in %q",
			detection.ErrMalformedResponse, clip(text, 120))
	}

	var raw []rawDetection
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrMalformedResponse, err)
	}
	return raw, nil
}

// extractJSONArray cuts the detection array out of the response. Models
// occasionally wrap the JSON in markdown fences or lead with prose despite
// the prompt, so everything outside the outermost brackets is discarded.
func extractJSONArray(text string) (string, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

// toDomain converts raw detections to domain detections, scaling the
// model's coordinate grid to pixel space and canonicalizing labels.
// Entries without a full 4-value box are dropped.
func toDomain(raw []rawDetection, width, height, coordBase int) []domain.Detection {
	dets := make([]domain.Detection, 0, len(raw))
	for _, r := range raw {
		if len(r.BBox2D) != 4 {
			continue
		}

		label := labels.Normalize(r.Label)
		category := labels.Category(label)
		if category == "vehicle" {
			label = labels.NormalizeVehicle(label)
		}

		dets = append(dets, domain.Detection{
			Label:    label,
			Category: category,
			BBox: domain.BBox{
				scale(r.BBox2D[0], width, coordBase),
				scale(r.BBox2D[1], height, coordBase),
				scale(r.BBox2D[2], width, coordBase),
				scale(r.BBox2D[3], height, coordBase),
			},
		})
	}
	return dets
}

// scale maps a coordinate on the model's grid to pixel space.
func scale(v, size, coordBase int) int {
	if coordBase <= 0 {
		return v
	}
	return v * size / coordBase
}

// mimeFor returns the upload MIME type for a frame image path.
func mimeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

var (
	intPattern    = regexp.MustCompile(`[0-9]+`)
	numberPattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

// firstInt returns the first integer appearing in text.
func firstInt(text string) (int, bool) {
	m := intPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// firstNumber returns the first integer or decimal appearing in text,
// verbatim.
func firstNumber(text string) (string, bool) {
	m := numberPattern.FindString(text)
	return m, m != ""
}

// clip shortens s for error messages and logs.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
