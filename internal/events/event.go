package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// Type identifies the kind of a pipeline event.
type Type string

// Event types published during a task run.
const (
	TypeTaskCreated   Type = "task_created"
	TypeTaskStarted   Type = "task_started"
	TypeTaskProgress  Type = "task_progress"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskError     Type = "task_error"

	TypeStageChanged Type = "stage_changed"

	TypeExtractProgress  Type = "extract_progress"
	TypeExtractCompleted Type = "extract_completed"

	TypeVisualizeProgress  Type = "visualize_progress"
	TypeVisualizeCompleted Type = "visualize_completed"
	TypePackageCompleted   Type = "package_completed"

	TypeFrameStarted   Type = "frame_started"
	TypeFrameCompleted Type = "frame_completed"
	TypeFrameError     Type = "frame_error"

	TypeIssueDetected Type = "issue_detected"
	TypeStatsUpdate   Type = "stats_update"
)

// Payload is the sealed set of event data shapes. Each event type carries
// exactly one payload variant under the "data" key on the wire.
type Payload interface {
	isPayload()
}

// Event is a single timestamped pipeline occurrence scoped to a task.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"data"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(t Type, taskID string, payload Payload) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TaskCreatedPayload announces a newly registered task.
type TaskCreatedPayload struct {
	Task domain.TaskSnapshot `json:"task"`
}

// TaskStartedPayload marks the beginning of an engine run.
type TaskStartedPayload struct {
	Mode        domain.TaskMode `json:"mode"`
	VideoName   string          `json:"video_name,omitempty"`
	TotalFrames int             `json:"total_frames"`
}

// TaskProgressPayload reports overall progress at stage boundaries.
type TaskProgressPayload struct {
	Progress  float64 `json:"progress"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
}

// TaskCompletedPayload closes out a successful run.
type TaskCompletedPayload struct {
	Stats          domain.TaskStats `json:"stats"`
	IssuesCount    int              `json:"issues_count"`
	DatasetDir     string           `json:"dataset_dir,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// TaskErrorPayload reports an unrecoverable run failure.
type TaskErrorPayload struct {
	Error string `json:"error"`
}

// StageChangedPayload signals entry into a pipeline stage.
type StageChangedPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ExtractProgressPayload reports ffmpeg extraction progress in [0, 1].
type ExtractProgressPayload struct {
	Progress float64 `json:"progress"`
}

// ExtractCompletedPayload closes the extraction stage.
type ExtractCompletedPayload struct {
	FrameCount int    `json:"frame_count"`
	FramesDir  string `json:"frames_dir"`
}

// VisualizeProgressPayload reports preview rendering progress in [0, 1].
type VisualizeProgressPayload struct {
	Progress float64 `json:"progress"`
}

// VisualizeCompletedPayload closes the preview rendering stage.
type VisualizeCompletedPayload struct {
	Rendered      int    `json:"rendered"`
	VisualizedDir string `json:"visualized_dir"`
}

// PackageCompletedPayload reports the packaged dataset location.
type PackageCompletedPayload struct {
	DatasetDir string `json:"dataset_dir"`
}

// FrameStartedPayload marks a frame entering a worker.
type FrameStartedPayload struct {
	FrameID string `json:"frame_id"`
}

// FrameCompletedPayload carries one finished frame with updated counters.
type FrameCompletedPayload struct {
	Frame     domain.FrameResult `json:"frame"`
	Progress  float64            `json:"progress"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
}

// FrameErrorPayload reports a frame that failed after all retries.
type FrameErrorPayload struct {
	FrameID string `json:"frame_id"`
	Error   string `json:"error"`
}

// IssueDetectedPayload carries a single review finding.
type IssueDetectedPayload struct {
	Issue domain.Issue `json:"issue"`
}

// StatsUpdatePayload carries the running per-category statistics.
type StatsUpdatePayload struct {
	Stats domain.TaskStats `json:"stats"`
}

func (TaskCreatedPayload) isPayload()        {}
func (TaskStartedPayload) isPayload()        {}
func (TaskProgressPayload) isPayload()       {}
func (TaskCompletedPayload) isPayload()      {}
func (TaskErrorPayload) isPayload()          {}
func (StageChangedPayload) isPayload()       {}
func (ExtractProgressPayload) isPayload()    {}
func (ExtractCompletedPayload) isPayload()   {}
func (VisualizeProgressPayload) isPayload()  {}
func (VisualizeCompletedPayload) isPayload() {}
func (PackageCompletedPayload) isPayload()   {}
func (FrameStartedPayload) isPayload()       {}
func (FrameCompletedPayload) isPayload()     {}
func (FrameErrorPayload) isPayload()         {}
func (IssueDetectedPayload) isPayload()      {}
func (StatsUpdatePayload) isPayload()        {}
