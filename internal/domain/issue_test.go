package domain

import "testing"

func TestNewIssue(t *testing.T) {
	t.Parallel()

	issue := NewIssue("cam01_000007", IssueKindBBoxOverlap, IssueSeverityWarning,
		"boxes overlap with IoU 0.93", "merge duplicate detections", IssueSourceRule)

	if len(issue.ID) != 8 {
		t.Errorf("Expected 8-character issue ID, got %q", issue.ID)
	}
	if issue.FrameID != "cam01_000007" {
		t.Errorf("Expected frame ID carried over, got %q", issue.FrameID)
	}
	if issue.Status != IssueStatusOpen {
		t.Errorf("Expected new issue to be open, got %s", issue.Status)
	}
	if issue.DetectedBy != IssueSourceRule {
		t.Errorf("Expected rule source, got %s", issue.DetectedBy)
	}
	if issue.CreatedAt.IsZero() {
		t.Error("Expected non-zero CreatedAt time")
	}
	if issue.BBox != nil {
		t.Error("Expected no bbox unless one is attached")
	}
}
