// Package review implements the layered annotation quality checks: cheap
// geometry and label rules on every frame, frame-to-frame consistency
// checks, and a sampled model-based audit.
package review

import (
	"fmt"
	"image"
	"os"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"

	// Frames are JPEG, reference images may be PNG.
	_ "image/jpeg"
	_ "image/png"
)

// validCategories are the coarse classes the pipeline annotates. Anything
// else is flagged for triage.
var validCategories = map[string]bool{
	"pedestrian":   true,
	"vehicle":      true,
	"traffic_sign": true,
	"construction": true,
}

// RuleReviewer runs the quality checks that need no model calls: box
// geometry rules, label rules and temporal consistency against the
// previous frame.
//
// It keeps per-task state for the temporal checks, so a RuleReviewer must
// see the frames of a single task in playback order. It is not safe for
// concurrent use.
type RuleReviewer struct {
	minBoxArea   int
	maxAreaRatio float64
	overlapIoU   float64

	prevSeen  bool
	prevCount int
}

// NewRuleReviewer creates a RuleReviewer with the configured thresholds.
func NewRuleReviewer(cfg config.ReviewConfig) *RuleReviewer {
	return &RuleReviewer{
		minBoxArea:   cfg.MinBoxArea,
		maxAreaRatio: cfg.MaxAreaRatio,
		overlapIoU:   cfg.OverlapIoU,
	}
}

// Review checks one frame's detections and returns any findings. The frame
// also becomes the reference for the next frame's temporal checks.
func (r *RuleReviewer) Review(frameID, imagePath string, dets []domain.Detection) []domain.Issue {
	var issues []domain.Issue
	issues = append(issues, r.checkBoxes(frameID, imagePath, dets)...)
	issues = append(issues, r.checkLabels(frameID, dets)...)
	if r.prevSeen {
		issues = append(issues, r.checkTemporal(frameID, len(dets))...)
	}

	r.prevSeen = true
	r.prevCount = len(dets)
	return issues
}

// Reset clears the temporal state between tasks.
func (r *RuleReviewer) Reset() {
	r.prevSeen = false
	r.prevCount = 0
}

// checkBoxes applies the geometry rules. When the frame's dimensions
// cannot be read none of the geometry rules can judge, so all are skipped.
func (r *RuleReviewer) checkBoxes(frameID, imagePath string, dets []domain.Detection) []domain.Issue {
	width, height, err := imageSize(imagePath)
	if err != nil {
		return nil
	}
	imageArea := width * height

	var issues []domain.Issue
	for _, det := range dets {
		box := det.BBox
		area := box.Area()

		if area < r.minBoxArea {
			issue := domain.NewIssue(frameID, domain.IssueKindBBoxTooSmall, domain.IssueSeverityWarning,
				fmt.Sprintf("%s bbox area is only %dpx^2", det.Label, area),
				"possible false positive, consider removing it",
				domain.IssueSourceRule)
			issue.BBox = &box
			issues = append(issues, issue)
		}

		if imageArea > 0 && float64(area) > float64(imageArea)*r.maxAreaRatio {
			issue := domain.NewIssue(frameID, domain.IssueKindBBoxTooLarge, domain.IssueSeverityWarning,
				fmt.Sprintf("%s bbox covers %.0f%% of the image", det.Label, float64(area)/float64(imageArea)*100),
				"check whether the whole scene was boxed by mistake",
				domain.IssueSourceRule)
			issue.BBox = &box
			issues = append(issues, issue)
		}

		if !box.Valid() {
			issue := domain.NewIssue(frameID, domain.IssueKindBBoxTooSmall, domain.IssueSeverityError,
				fmt.Sprintf("%s bbox coordinates are inverted %v", det.Label, box),
				"bbox coordinate order is wrong",
				domain.IssueSourceRule)
			issue.BBox = &box
			issues = append(issues, issue)
		}
	}

	issues = append(issues, r.checkOverlap(frameID, dets)...)
	return issues
}

// checkOverlap flags pairs of detections whose boxes overlap almost
// entirely, which usually means the model reported the same object twice.
func (r *RuleReviewer) checkOverlap(frameID string, dets []domain.Detection) []domain.Issue {
	var issues []domain.Issue
	for i := range dets {
		for j := i + 1; j < len(dets); j++ {
			iou := dets[i].BBox.IoU(dets[j].BBox)
			if iou > r.overlapIoU {
				issues = append(issues, domain.NewIssue(frameID, domain.IssueKindBBoxOverlap, domain.IssueSeverityWarning,
					fmt.Sprintf("%s and %s overlap heavily (IoU=%.2f)", dets[i].Label, dets[j].Label, iou),
					"possible duplicate detection, consider removing one",
					domain.IssueSourceRule))
			}
		}
	}
	return issues
}

// checkLabels flags detections outside the annotated taxonomy.
func (r *RuleReviewer) checkLabels(frameID string, dets []domain.Detection) []domain.Issue {
	var issues []domain.Issue
	for _, det := range dets {
		if !validCategories[det.Category] {
			issues = append(issues, domain.NewIssue(frameID, domain.IssueKindUnknownLabel, domain.IssueSeverityInfo,
				fmt.Sprintf("unrecognized category: %s (category=%s)", det.Label, det.Category),
				"consider mapping it to a known category or adding a new one",
				domain.IssueSourceRule))
		}
	}
	return issues
}

// checkTemporal compares the object count against the previous frame.
func (r *RuleReviewer) checkTemporal(frameID string, currCount int) []domain.Issue {
	var issues []domain.Issue

	if currCount == 0 && r.prevCount > 3 {
		issues = append(issues, domain.NewIssue(frameID, domain.IssueKindTemporalDisappear, domain.IssueSeverityWarning,
			fmt.Sprintf("all objects vanished at once (%d -> 0)", r.prevCount),
			"possible detection failure, review manually",
			domain.IssueSourceRule))
	}

	if r.prevCount > 0 && currCount > r.prevCount*3 {
		issues = append(issues, domain.NewIssue(frameID, domain.IssueKindTemporalAppear, domain.IssueSeverityInfo,
			fmt.Sprintf("object count jumped (%d -> %d)", r.prevCount, currCount),
			"possible scene change, confirm manually",
			domain.IssueSourceRule))
	}

	return issues
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
