// Package gemini provides implementations of the detection interfaces using Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// ReviewFrame asks the model to audit a finished frame for missed objects
// and mislabeled detections. It returns the model's finding text, or ""
// when the frame passes.
func (c *Client) ReviewFrame(ctx context.Context, imagePath string, dets []domain.Detection) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	text, err := c.generate(ctx, []*genai.Part{
		genai.NewPartFromBytes(data, mimeFor(imagePath)),
		genai.NewPartFromText(auditPrompt(dets)),
	})
	if err != nil {
		return "", err
	}

	finding := strings.TrimSpace(text)
	// Very short replies are the model agreeing in its own words.
	if strings.Contains(finding, noIssuesMarker) || len(finding) <= 10 {
		return "", nil
	}

	c.logger.DebugContext(ctx, "frame audit raised a finding",
		"image", filepath.Base(imagePath),
		"finding", clip(finding, 200))
	return finding, nil
}
