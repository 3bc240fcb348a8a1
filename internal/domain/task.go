package domain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// recentFrameLimit bounds the per-task window of recent frame results kept
// in memory for dashboard previews. Older entries are evicted in completion
// order.
const recentFrameLimit = 50

// Task is an annotation run over a set of images or an extracted video.
// Configuration fields are assigned at creation and never mutated afterwards;
// all run state is guarded by the internal mutex so the engine can write
// while API handlers read.
type Task struct {
	ID        string
	Prefix    string
	Mode      TaskMode
	CreatedAt time.Time

	VideoName string
	VideoPath string
	FPS       int

	Workers   int
	UseRefine bool

	// Items is the ordered list of image paths for an images task.
	// Video tasks discover their items during extraction.
	Items []string

	ImagesDir      string
	FramesDir      string
	AnnotationsDir string
	VisualizedDir  string

	mu     sync.RWMutex
	status TaskStatus

	totalFrames     int
	completedFrames int
	failedFrames    int

	extractProgress   float64
	labelProgress     float64
	visualizeProgress float64

	stats  TaskStats
	issues []Issue
	recent []FrameResult

	datasetDir  string
	lastError   string
	startedAt   *time.Time
	completedAt *time.Time

	stop atomic.Bool
}

// ImagesTaskParams carries the inputs for NewImagesTask.
type ImagesTaskParams struct {
	Prefix         string
	Items          []string
	Workers        int
	UseRefine      bool
	ImagesDir      string
	AnnotationsDir string
	VisualizedDir  string
}

// NewImagesTask creates a pending task over a fixed set of image paths.
// Returns an error if the prefix is empty or no items were supplied.
func NewImagesTask(p ImagesTaskParams) (*Task, error) {
	if p.Prefix == "" {
		return nil, ErrEmptyPrefix
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: prefix %q matched no images", ErrNoFrames, p.Prefix)
	}

	return &Task{
		ID:             shortuuid.New(),
		Prefix:         p.Prefix,
		Mode:           TaskModeImages,
		CreatedAt:      time.Now().UTC(),
		Workers:        p.Workers,
		UseRefine:      p.UseRefine,
		Items:          p.Items,
		ImagesDir:      p.ImagesDir,
		AnnotationsDir: p.AnnotationsDir,
		VisualizedDir:  p.VisualizedDir,
		status:         TaskStatusPending,
		totalFrames:    len(p.Items),
	}, nil
}

// VideoTaskParams carries the inputs for NewVideoTask.
type VideoTaskParams struct {
	Name           string
	VideoName      string
	VideoPath      string
	FPS            int
	Workers        int
	UseRefine      bool
	FramesDir      string
	AnnotationsDir string
	VisualizedDir  string
}

// NewVideoTask creates a pending task for a full video pipeline run.
// The frame count stays zero until extraction finishes.
func NewVideoTask(p VideoTaskParams) (*Task, error) {
	if p.Name == "" {
		return nil, ErrEmptyPrefix
	}
	if p.VideoPath == "" {
		return nil, fmt.Errorf("%w: video path cannot be empty", ErrValidation)
	}
	if p.FPS <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive, got %d", ErrValidation, p.FPS)
	}

	return &Task{
		ID:             shortuuid.New(),
		Prefix:         p.Name,
		Mode:           TaskModeVideo,
		CreatedAt:      time.Now().UTC(),
		VideoName:      p.VideoName,
		VideoPath:      p.VideoPath,
		FPS:            p.FPS,
		Workers:        p.Workers,
		UseRefine:      p.UseRefine,
		FramesDir:      p.FramesDir,
		AnnotationsDir: p.AnnotationsDir,
		VisualizedDir:  p.VisualizedDir,
		status:         TaskStatusPending,
	}, nil
}

// Status returns the current lifecycle state.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Transition moves the task to the given status, enforcing the lifecycle
// graph. Returns ErrInvalidTransition (wrapped with both states) when the
// move is not allowed.
func (t *Task) Transition(to TaskStatus) error {
	if !isValidTaskStatus(to) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, to)
	}
	t.status = to
	return nil
}

// MarkStarted records the start timestamp. Only the first call has an
// effect, so a resumed task keeps its original start time.
func (t *Task) MarkStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt == nil {
		now := time.Now().UTC()
		t.startedAt = &now
	}
}

// Complete transitions the task to COMPLETED and records the completion
// timestamp.
func (t *Task) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.status, TaskStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, TaskStatusCompleted)
	}
	t.status = TaskStatusCompleted
	if t.completedAt == nil {
		now := time.Now().UTC()
		t.completedAt = &now
	}
	return nil
}

// Fail transitions the task to FAILED and records the reason.
func (t *Task) Fail(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.status, TaskStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, TaskStatusFailed)
	}
	t.status = TaskStatusFailed
	t.lastError = reason
	return nil
}

// RequestStop raises the cooperative stop flag. Workers observe it between
// items; in-flight items run to completion.
func (t *Task) RequestStop() {
	t.stop.Store(true)
}

// StopRequested reports whether a stop has been requested.
func (t *Task) StopRequested() bool {
	return t.stop.Load()
}

// ClearStop resets the stop flag ahead of a new run.
func (t *Task) ClearStop() {
	t.stop.Store(false)
}

// SetTotalFrames fixes the item count once extraction has discovered it.
func (t *Task) SetTotalFrames(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFrames = n
}

// SetExtractProgress updates the extraction stage progress, clamped to [0, 1].
func (t *Task) SetExtractProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extractProgress = clamp01(p)
}

// SetVisualizeProgress updates the preview-rendering stage progress,
// clamped to [0, 1].
func (t *Task) SetVisualizeProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visualizeProgress = clamp01(p)
}

// ApplySkipped credits n previously completed items, so a resumed run
// re-baselines its counters before processing the remainder.
func (t *Task) ApplySkipped(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedFrames += n
	t.updateLabelProgressLocked()
}

// ApplyResult folds one frame outcome into the task: counters, statistics,
// issues and the recent-frame window. Failed frames advance the failed
// counter and contribute no detections.
func (t *Task) ApplyResult(r FrameResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Failed() {
		t.failedFrames++
	} else {
		t.completedFrames++
		for _, det := range r.Detections {
			t.stats.Increment(det.Category, det.Label)
		}
	}

	t.issues = append(t.issues, r.Issues...)

	t.recent = append(t.recent, r)
	if len(t.recent) > recentFrameLimit {
		t.recent = t.recent[len(t.recent)-recentFrameLimit:]
	}

	t.updateLabelProgressLocked()
}

// updateLabelProgressLocked recomputes label progress. Callers must hold mu.
func (t *Task) updateLabelProgressLocked() {
	if t.totalFrames > 0 {
		t.labelProgress = clamp01(float64(t.completedFrames+t.failedFrames) / float64(t.totalFrames))
	}
}

// SetDatasetDir records the packaged dataset location.
func (t *Task) SetDatasetDir(dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.datasetDir = dir
}

// DatasetDir returns the packaged dataset location, or "" before packaging.
func (t *Task) DatasetDir() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.datasetDir
}

// Counters returns the total, completed and failed item counts.
func (t *Task) Counters() (total, completed, failed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalFrames, t.completedFrames, t.failedFrames
}

// Progress returns the overall progress in [0, 1]. Video tasks weight their
// stages as extraction 20%, labeling 60%, preview rendering 15% and
// packaging 5%; image tasks report plain item completion.
func (t *Task) Progress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progressLocked()
}

func (t *Task) progressLocked() float64 {
	if t.Mode == TaskModeVideo {
		p := t.extractProgress*0.2 + t.labelProgress*0.6 + t.visualizeProgress*0.15
		if t.status == TaskStatusCompleted {
			p += 0.05
		}
		return clamp01(p)
	}
	return t.labelProgress
}

// Stats returns a copy of the accumulated statistics.
func (t *Task) Stats() TaskStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats.Clone()
}

// Issues returns a copy of all issues raised so far.
func (t *Task) Issues() []Issue {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Issue, len(t.issues))
	copy(out, t.issues)
	return out
}

// RecentFrames returns up to n of the most recent frame results, newest
// first.
func (t *Task) RecentFrames(n int) []FrameResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.recent) {
		n = len(t.recent)
	}
	out := make([]FrameResult, 0, n)
	for i := len(t.recent) - 1; i >= len(t.recent)-n; i-- {
		out = append(out, t.recent[i])
	}
	return out
}

// RecentFrame looks up a frame result by ID within the recent window.
func (t *Task) RecentFrame(frameID string) (FrameResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.recent) - 1; i >= 0; i-- {
		if t.recent[i].FrameID == frameID {
			return t.recent[i], nil
		}
	}
	return FrameResult{}, fmt.Errorf("%w: %s", ErrFrameNotFound, frameID)
}

// StartedAt returns the start timestamp, or nil if the task never started.
func (t *Task) StartedAt() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// TaskSnapshot is a consistent, wire-ready view of a task.
type TaskSnapshot struct {
	ID                string     `json:"id"`
	Prefix            string     `json:"prefix"`
	Mode              TaskMode   `json:"mode"`
	Status            TaskStatus `json:"status"`
	VideoName         string     `json:"video_name,omitempty"`
	FPS               int        `json:"fps,omitempty"`
	Workers           int        `json:"workers"`
	UseRefine         bool       `json:"use_refine"`
	TotalFrames       int        `json:"total_frames"`
	CompletedFrames   int        `json:"completed_frames"`
	FailedFrames      int        `json:"failed_frames"`
	Progress          float64    `json:"progress"`
	ExtractProgress   float64    `json:"extract_progress"`
	LabelProgress     float64    `json:"label_progress"`
	VisualizeProgress float64    `json:"visualize_progress"`
	CurrentStage      string     `json:"current_stage"`
	Stats             TaskStats  `json:"stats"`
	IssuesCount       int        `json:"issues_count"`
	AnnotationsDir    string     `json:"annotations_dir,omitempty"`
	VisualizedDir     string     `json:"visualized_dir,omitempty"`
	DatasetDir        string     `json:"dataset_dir,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Snapshot captures the task under a single read lock.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stage := t.status.StageLabel()
	if t.status == TaskStatusFailed && t.lastError != "" {
		stage = "failed: " + t.lastError
	}

	return TaskSnapshot{
		ID:                t.ID,
		Prefix:            t.Prefix,
		Mode:              t.Mode,
		Status:            t.status,
		VideoName:         t.VideoName,
		FPS:               t.FPS,
		Workers:           t.Workers,
		UseRefine:         t.UseRefine,
		TotalFrames:       t.totalFrames,
		CompletedFrames:   t.completedFrames,
		FailedFrames:      t.failedFrames,
		Progress:          t.progressLocked(),
		ExtractProgress:   t.extractProgress,
		LabelProgress:     t.labelProgress,
		VisualizeProgress: t.visualizeProgress,
		CurrentStage:      stage,
		Stats:             t.stats.Clone(),
		IssuesCount:       len(t.issues),
		AnnotationsDir:    t.AnnotationsDir,
		VisualizedDir:     t.VisualizedDir,
		DatasetDir:        t.datasetDir,
		Error:             t.lastError,
		CreatedAt:         t.CreatedAt,
		StartedAt:         t.startedAt,
		CompletedAt:       t.completedAt,
	}
}

// clamp01 bounds v to the closed interval [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
