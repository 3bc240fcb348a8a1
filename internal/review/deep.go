package review

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// findingLimit caps how much of the model's finding lands in an issue
// description.
const findingLimit = 200

// DeepReviewer sends a random sample of frames through a model-based
// completeness audit. Safe for concurrent use from multiple workers.
type DeepReviewer struct {
	logger  *slog.Logger
	auditor detection.Auditor
	rate    float64

	// randFloat is swappable in tests.
	randFloat func() float64
}

// NewDeepReviewer creates a DeepReviewer that audits roughly rate of all
// frames (0 disables sampling, 1 audits every frame).
func NewDeepReviewer(logger *slog.Logger, auditor detection.Auditor, rate float64) *DeepReviewer {
	return &DeepReviewer{
		logger:    logger,
		auditor:   auditor,
		rate:      rate,
		randFloat: rand.Float64,
	}
}

// ReviewSample audits the frame when it falls into the sample. It returns
// nil when the frame was skipped or the audit found nothing.
func (d *DeepReviewer) ReviewSample(ctx context.Context, frameID, imagePath string, dets []domain.Detection) (*domain.Issue, error) {
	if d.auditor == nil || d.randFloat() >= d.rate {
		return nil, nil
	}

	d.logger.DebugContext(ctx, "frame sampled for deep review", "frame_id", frameID)

	finding, err := d.auditor.ReviewFrame(ctx, imagePath, dets)
	if err != nil {
		return nil, err
	}
	if finding == "" {
		return nil, nil
	}

	if len(finding) > findingLimit {
		finding = finding[:findingLimit]
	}
	issue := domain.NewIssue(frameID, domain.IssueKindMissingDetection, domain.IssueSeverityWarning,
		"AI review found an issue: "+finding,
		"review manually",
		domain.IssueSourceAIDeep)
	return &issue, nil
}
