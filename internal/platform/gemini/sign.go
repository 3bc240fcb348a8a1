// Package gemini provides implementations of the detection interfaces using Google's Gemini API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/labels"
)

// genericSignLabel is the fallback when refinement cannot improve on the
// detector's label.
const genericSignLabel = "traffic_sign"

// genericSigns maps catalog entries whose meaning depends on a number
// printed on the sign to the follow-up question and the label template the
// answer is substituted into.
var genericSigns = map[string]struct {
	question string
	format   string
}{
	"Speed_limit_(in_km_h)": {
		question: "Read the speed limit shown on this sign (e.g. 20, 30, 50, 70, 100). Return only the number.",
		format:   "Speed_limit_{}_km_h",
	},
	"Variable_speed_limit_(in_km_h)": {
		question: "Read the number shown on this variable speed limit display. Return only the number.",
		format:   "Variable_speed_limit_{}_km_h",
	},
	"Distance_as_shown_to_hazard": {
		question: "Read the distance in metres shown on this sign. Return only the number.",
		format:   "Distance_{}_m_to_hazard",
	},
	"Maximum_height_as_shown_(in_metres)": {
		question: "Read the maximum height in metres shown on this sign. Return only the number.",
		format:   "Maximum_height_{}_m",
	},
	"Maximum_payload_as_shown_(in_tonnes)": {
		question: "Read the maximum payload in tonnes shown on this sign. Return only the number.",
		format:   "Maximum_payload_{}_tonnes",
	},
}

// loadSignNames reads the reference catalog from dir: one PNG per sign, the
// file stem being the sign's display name. A missing directory yields an
// empty catalog.
func loadSignNames(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signs dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// ClassifySign refines a generic traffic_sign detection by showing the
// model a crop of the sign next to the reference catalog. Classification
// runs in two stages: pick the best catalog match, then read the number off
// signs whose meaning depends on one (speed limits, height limits and
// similar).
//
// Failures that do not involve the API degrade to the generic traffic_sign
// label; API errors propagate so the caller's retry policy applies.
func (c *Client) ClassifySign(ctx context.Context, imagePath string, box domain.BBox) (string, error) {
	if len(c.signs) == 0 {
		return genericSignLabel, nil
	}

	crop, err := c.cropJPEG(imagePath, box)
	if err != nil {
		c.logger.DebugContext(ctx, "sign crop failed, keeping generic label",
			"image", filepath.Base(imagePath),
			"error", err)
		return genericSignLabel, nil
	}

	choice, err := c.generate(ctx, []*genai.Part{
		genai.NewPartFromBytes(crop, "image/jpeg"),
		genai.NewPartFromText(selectSignPrompt(c.signs)),
	})
	if err != nil {
		return "", err
	}

	idx, ok := firstInt(choice)
	if !ok || idx < 1 || idx > len(c.signs) {
		return genericSignLabel, nil
	}
	name := c.signs[idx-1]

	generic, ok := genericSigns[name]
	if !ok {
		return labels.Normalize(name), nil
	}

	detail, err := c.generate(ctx, []*genai.Part{
		genai.NewPartFromBytes(crop, "image/jpeg"),
		genai.NewPartFromText(generic.question),
	})
	if err != nil {
		return "", err
	}

	value, ok := firstNumber(detail)
	if !ok {
		return labels.Normalize(name), nil
	}
	return labels.Normalize(strings.Replace(generic.format, "{}", value, 1)), nil
}

// cropJPEG cuts the padded detection box out of the source image and
// encodes it as JPEG for upload.
func (c *Client) cropJPEG(imagePath string, box domain.BBox) ([]byte, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// Build the rectangle directly: image.Rect would swap inverted
	// coordinates and hide a box that lies outside the frame.
	bounds := src.Bounds()
	rect := image.Rectangle{
		Min: image.Pt(max(box[0]-c.cropPadding, bounds.Min.X), max(box[1]-c.cropPadding, bounds.Min.Y)),
		Max: image.Pt(min(box[2]+c.cropPadding, bounds.Max.X), min(box[3]+c.cropPadding, bounds.Max.Y)),
	}
	if rect.Empty() {
		return nil, fmt.Errorf("box %v leaves an empty crop", box)
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), src, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
