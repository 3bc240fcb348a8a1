package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssueKind identifies the quality problem a review pass found.
type IssueKind string

// Possible issue kinds.
const (
	IssueKindBBoxTooSmall      IssueKind = "bbox_too_small"
	IssueKindBBoxTooLarge      IssueKind = "bbox_too_large"
	IssueKindBBoxOverlap       IssueKind = "bbox_overlap"
	IssueKindUnknownLabel      IssueKind = "unknown_label"
	IssueKindTemporalDisappear IssueKind = "temporal_disappear"
	IssueKindTemporalAppear    IssueKind = "temporal_appear"
	IssueKindMissingDetection  IssueKind = "missing_detection"
)

// IssueSeverity grades how actionable an issue is.
type IssueSeverity string

// Possible issue severities.
const (
	IssueSeverityInfo    IssueSeverity = "info"
	IssueSeverityWarning IssueSeverity = "warning"
	IssueSeverityError   IssueSeverity = "error"
)

// IssueSource records which review mechanism raised the issue.
type IssueSource string

// Possible issue sources.
const (
	IssueSourceRule   IssueSource = "rule"
	IssueSourceAIScan IssueSource = "ai_scan"
	IssueSourceAIDeep IssueSource = "ai_deep"
)

// IssueStatus tracks the triage state of an issue.
type IssueStatus string

// Possible issue statuses.
const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
	IssueStatusIgnored  IssueStatus = "ignored"
)

// Issue is a quality finding attached to a frame, raised either by the
// rule-based reviewer or by a sampled model review.
type Issue struct {
	ID          string        `json:"id"`
	FrameID     string        `json:"frame_id"`
	Kind        IssueKind     `json:"issue_type"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
	Suggestion  string        `json:"suggestion,omitempty"`
	DetectedBy  IssueSource   `json:"detected_by"`
	BBox        *BBox         `json:"bbox,omitempty"`
	Status      IssueStatus   `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// NewIssue creates an open Issue with a fresh short ID and the current
// timestamp.
func NewIssue(frameID string, kind IssueKind, severity IssueSeverity, description, suggestion string, source IssueSource) Issue {
	return Issue{
		ID:          uuid.NewString()[:8],
		FrameID:     frameID,
		Kind:        kind,
		Severity:    severity,
		Description: description,
		Suggestion:  suggestion,
		DetectedBy:  source,
		Status:      IssueStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
}
