package domain

import (
	"errors"
	"fmt"
	"testing"
)

func newTestImagesTask(t *testing.T, n int) *Task {
	t.Helper()

	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("cam01_%06d.jpg", i)
	}

	task, err := NewImagesTask(ImagesTaskParams{
		Prefix:         "cam01",
		Items:          items,
		Workers:        2,
		AnnotationsDir: "out/cam01_annotations",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return task
}

func newTestVideoTask(t *testing.T) *Task {
	t.Helper()

	task, err := NewVideoTask(VideoTaskParams{
		Name:           "dashcam_01",
		VideoName:      "dashcam_01.mp4",
		VideoPath:      "videos/dashcam_01.mp4",
		FPS:            3,
		Workers:        4,
		FramesDir:      "temp_frames/dashcam_01",
		AnnotationsDir: "out/dashcam_01_annotations",
		VisualizedDir:  "out/dashcam_01_visualized",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return task
}

func TestNewImagesTask(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 5)

	if task.ID == "" {
		t.Error("Expected non-empty task ID")
	}
	if task.Mode != TaskModeImages {
		t.Errorf("Expected mode %s, got %s", TaskModeImages, task.Mode)
	}
	if task.Status() != TaskStatusPending {
		t.Errorf("Expected status %s, got %s", TaskStatusPending, task.Status())
	}
	if total, _, _ := task.Counters(); total != 5 {
		t.Errorf("Expected 5 total frames, got %d", total)
	}
	if task.CreatedAt.IsZero() {
		t.Error("Expected non-zero CreatedAt time")
	}

	_, err := NewImagesTask(ImagesTaskParams{Prefix: "", Items: []string{"a.jpg"}})
	if !errors.Is(err, ErrEmptyPrefix) {
		t.Errorf("Expected ErrEmptyPrefix, got %v", err)
	}

	_, err = NewImagesTask(ImagesTaskParams{Prefix: "cam01"})
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}

func TestNewVideoTask(t *testing.T) {
	t.Parallel()

	task := newTestVideoTask(t)

	if task.Mode != TaskModeVideo {
		t.Errorf("Expected mode %s, got %s", TaskModeVideo, task.Mode)
	}
	if total, _, _ := task.Counters(); total != 0 {
		t.Errorf("Expected 0 total frames before extraction, got %d", total)
	}

	_, err := NewVideoTask(VideoTaskParams{Name: "x", VideoPath: "", FPS: 3})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for empty path, got %v", err)
	}

	_, err = NewVideoTask(VideoTaskParams{Name: "x", VideoPath: "v.mp4", FPS: 0})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for zero fps, got %v", err)
	}
}

func TestTaskTransitions(t *testing.T) {
	t.Parallel()

	task := newTestVideoTask(t)

	steps := []TaskStatus{TaskStatusExtracting, TaskStatusRunning, TaskStatusVisualizing, TaskStatusPackaging}
	for _, s := range steps {
		if err := task.Transition(s); err != nil {
			t.Fatalf("Expected transition to %s to succeed, got %v", s, err)
		}
	}
	if err := task.Complete(); err != nil {
		t.Fatalf("Expected Complete to succeed, got %v", err)
	}
	if task.Status() != TaskStatusCompleted {
		t.Errorf("Expected status %s, got %s", TaskStatusCompleted, task.Status())
	}

	// Terminal states admit no further moves.
	if err := task.Transition(TaskStatusRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition from completed, got %v", err)
	}
	if err := task.Fail("late failure"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for Fail after completion, got %v", err)
	}
}

func TestTaskTransitionRejectsSkips(t *testing.T) {
	t.Parallel()

	task := newTestVideoTask(t)

	if err := task.Transition(TaskStatusPackaging); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pending -> packaging, got %v", err)
	}
	if err := task.Transition("exploding"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for unknown status, got %v", err)
	}
	if task.Status() != TaskStatusPending {
		t.Errorf("Expected status unchanged, got %s", task.Status())
	}
}

func TestTaskPauseResume(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 3)

	if err := task.Transition(TaskStatusRunning); err != nil {
		t.Fatalf("Expected transition to running, got %v", err)
	}
	if err := task.Transition(TaskStatusPaused); err != nil {
		t.Fatalf("Expected transition to paused, got %v", err)
	}
	if err := task.Transition(TaskStatusRunning); err != nil {
		t.Fatalf("Expected resume to running, got %v", err)
	}
}

func TestTaskApplyResult(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 4)

	task.ApplyResult(FrameResult{
		FrameID:   "cam01_000000",
		ImagePath: "cam01_000000.jpg",
		Detections: []Detection{
			{Label: "car", Category: "vehicle", BBox: BBox{10, 10, 50, 50}},
			{Label: "pedestrian", Category: "pedestrian", BBox: BBox{60, 10, 80, 90}},
		},
		Issues: []Issue{NewIssue("cam01_000000", IssueKindBBoxTooSmall, IssueSeverityWarning, "tiny box", "", IssueSourceRule)},
	})
	task.ApplyResult(FrameResult{FrameID: "cam01_000001", Error: "api exploded"})

	total, completed, failed := task.Counters()
	if total != 4 || completed != 1 || failed != 1 {
		t.Errorf("Expected counters (4, 1, 1), got (%d, %d, %d)", total, completed, failed)
	}

	stats := task.Stats()
	if stats.Vehicle != 1 || stats.Pedestrian != 1 {
		t.Errorf("Expected one vehicle and one pedestrian, got %+v", stats)
	}
	if stats.Labels["car"] != 1 {
		t.Errorf("Expected label tally for car, got %+v", stats.Labels)
	}
	if stats.TotalObjects() != 2 {
		t.Errorf("Expected 2 total objects, got %d", stats.TotalObjects())
	}

	if got := len(task.Issues()); got != 1 {
		t.Errorf("Expected 1 issue, got %d", got)
	}

	// Failed frames contribute no detections.
	if stats.Unknown != 0 {
		t.Errorf("Expected no unknown detections, got %d", stats.Unknown)
	}

	if p := task.Progress(); p != 0.5 {
		t.Errorf("Expected progress 0.5, got %v", p)
	}
}

func TestTaskProgressMonotonic(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 8)

	prev := task.Progress()
	for i := 0; i < 8; i++ {
		result := FrameResult{FrameID: fmt.Sprintf("cam01_%06d", i)}
		if i%3 == 2 {
			result.Error = "detector timeout"
		}
		task.ApplyResult(result)

		total, completed, failed := task.Counters()
		if completed+failed > total {
			t.Fatalf("Counters overran total: %d+%d > %d", completed, failed, total)
		}
		if p := task.Progress(); p < prev {
			t.Fatalf("Progress regressed from %v to %v at frame %d", prev, p, i)
		} else {
			prev = p
		}
	}

	if prev != 1.0 {
		t.Errorf("Expected progress 1.0 after all frames, got %v", prev)
	}
}

func TestTaskRecentFrameWindow(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 60)
	for i := 0; i < 55; i++ {
		task.ApplyResult(FrameResult{FrameID: fmt.Sprintf("cam01_%06d", i)})
	}

	recent := task.RecentFrames(100)
	if len(recent) != recentFrameLimit {
		t.Fatalf("Expected window of %d frames, got %d", recentFrameLimit, len(recent))
	}
	if recent[0].FrameID != "cam01_000054" {
		t.Errorf("Expected newest frame first, got %s", recent[0].FrameID)
	}
	if recent[len(recent)-1].FrameID != "cam01_000005" {
		t.Errorf("Expected oldest five frames evicted, got %s", recent[len(recent)-1].FrameID)
	}

	if got := len(task.RecentFrames(20)); got != 20 {
		t.Errorf("Expected 20 frames, got %d", got)
	}
}

func TestTaskRecentFrameLookup(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 2)
	task.ApplyResult(FrameResult{FrameID: "cam01_000000", ElapsedMS: 120})

	frame, err := task.RecentFrame("cam01_000000")
	if err != nil {
		t.Fatalf("Expected frame lookup to succeed, got %v", err)
	}
	if frame.ElapsedMS != 120 {
		t.Errorf("Expected elapsed 120ms, got %d", frame.ElapsedMS)
	}

	_, err = task.RecentFrame("missing")
	if !errors.Is(err, ErrFrameNotFound) {
		t.Errorf("Expected ErrFrameNotFound, got %v", err)
	}
}

func TestTaskProgressVideo(t *testing.T) {
	t.Parallel()

	task := newTestVideoTask(t)
	task.SetTotalFrames(10)

	task.SetExtractProgress(1.0)
	for i := 0; i < 10; i++ {
		task.ApplyResult(FrameResult{FrameID: fmt.Sprintf("f%d", i)})
	}
	task.SetVisualizeProgress(1.0)

	// 0.2 + 0.6 + 0.15, packaging share withheld until completion.
	if p := task.Progress(); p < 0.949 || p > 0.951 {
		t.Errorf("Expected progress ~0.95, got %v", p)
	}

	if err := task.Transition(TaskStatusExtracting); err != nil {
		t.Fatalf("transition: %v", err)
	}
	for _, s := range []TaskStatus{TaskStatusRunning, TaskStatusVisualizing, TaskStatusPackaging} {
		if err := task.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if err := task.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if p := task.Progress(); p != 1.0 {
		t.Errorf("Expected progress 1.0 after completion, got %v", p)
	}
}

func TestTaskApplySkipped(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 10)
	task.ApplySkipped(4)

	_, completed, _ := task.Counters()
	if completed != 4 {
		t.Errorf("Expected 4 completed after skip credit, got %d", completed)
	}
	if p := task.Progress(); p != 0.4 {
		t.Errorf("Expected progress 0.4, got %v", p)
	}

	task.ApplySkipped(0)
	task.ApplySkipped(-3)
	if _, completed, _ = task.Counters(); completed != 4 {
		t.Errorf("Expected non-positive skips ignored, got %d", completed)
	}
}

func TestTaskStopFlag(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 1)
	if task.StopRequested() {
		t.Error("Expected stop flag to start cleared")
	}
	task.RequestStop()
	if !task.StopRequested() {
		t.Error("Expected stop flag raised")
	}
	task.ClearStop()
	if task.StopRequested() {
		t.Error("Expected stop flag cleared")
	}
}

func TestTaskSnapshot(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 2)
	task.MarkStarted()
	if err := task.Transition(TaskStatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	task.ApplyResult(FrameResult{
		FrameID:    "cam01_000000",
		Detections: []Detection{{Label: "bus", Category: "vehicle", BBox: BBox{0, 0, 10, 10}}},
	})

	snap := task.Snapshot()
	if snap.Status != TaskStatusRunning {
		t.Errorf("Expected snapshot status running, got %s", snap.Status)
	}
	if snap.CompletedFrames != 1 || snap.TotalFrames != 2 {
		t.Errorf("Expected 1/2 frames, got %d/%d", snap.CompletedFrames, snap.TotalFrames)
	}
	if snap.Stats.Vehicle != 1 {
		t.Errorf("Expected one vehicle in snapshot stats, got %+v", snap.Stats)
	}
	if snap.CurrentStage != "labeling" {
		t.Errorf("Expected stage label %q, got %q", "labeling", snap.CurrentStage)
	}
	if snap.StartedAt == nil {
		t.Error("Expected snapshot to carry start timestamp")
	}

	// Snapshot stats must not alias the live map.
	snap.Stats.Labels["bus"] = 99
	if task.Stats().Labels["bus"] != 1 {
		t.Error("Expected snapshot mutation to leave task stats untouched")
	}
}

func TestTaskSnapshotFailedStage(t *testing.T) {
	t.Parallel()

	task := newTestVideoTask(t)
	if err := task.Transition(TaskStatusExtracting); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := task.Fail("ffmpeg exited with code 1"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	snap := task.Snapshot()
	if snap.Status != TaskStatusFailed {
		t.Errorf("Expected failed status, got %s", snap.Status)
	}
	if snap.Error != "ffmpeg exited with code 1" {
		t.Errorf("Expected error carried in snapshot, got %q", snap.Error)
	}
	if snap.CurrentStage != "failed: ffmpeg exited with code 1" {
		t.Errorf("Expected failure stage line, got %q", snap.CurrentStage)
	}
}

func TestMarkStartedIsIdempotent(t *testing.T) {
	t.Parallel()

	task := newTestImagesTask(t, 1)
	task.MarkStarted()
	first := task.StartedAt()
	task.MarkStarted()
	if task.StartedAt() != first {
		t.Error("Expected second MarkStarted to keep the original timestamp")
	}
}
