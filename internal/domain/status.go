package domain

// TaskStatus represents the lifecycle state of an annotation task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusExtracting  TaskStatus = "extracting"
	TaskStatusRunning     TaskStatus = "running"
	TaskStatusVisualizing TaskStatus = "visualizing"
	TaskStatusPackaging   TaskStatus = "packaging"
	TaskStatusPaused      TaskStatus = "paused"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
)

// Active reports whether the task currently occupies the pipeline, i.e. an
// engine run owns it and a second start must be rejected.
func (s TaskStatus) Active() bool {
	switch s {
	case TaskStatusExtracting, TaskStatusRunning, TaskStatusVisualizing, TaskStatusPackaging:
		return true
	default:
		return false
	}
}

// Terminal reports whether the task has reached a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// StageLabel returns the human-readable stage line shown on dashboards.
func (s TaskStatus) StageLabel() string {
	switch s {
	case TaskStatusPending:
		return "waiting to start"
	case TaskStatusExtracting:
		return "extracting frames"
	case TaskStatusRunning:
		return "labeling"
	case TaskStatusVisualizing:
		return "rendering previews"
	case TaskStatusPackaging:
		return "packaging dataset"
	case TaskStatusPaused:
		return "paused"
	case TaskStatusCompleted:
		return "completed"
	case TaskStatusFailed:
		return "failed"
	default:
		return string(s)
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusExtracting, TaskStatusRunning,
		TaskStatusVisualizing, TaskStatusPackaging, TaskStatusPaused,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// taskTransitions is the lifecycle graph. Transitions are monotonic: the
// only way back is PAUSED, which a later start resumes from.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:     {TaskStatusExtracting, TaskStatusRunning, TaskStatusFailed},
	TaskStatusExtracting:  {TaskStatusRunning, TaskStatusPaused, TaskStatusFailed},
	TaskStatusRunning:     {TaskStatusVisualizing, TaskStatusCompleted, TaskStatusPaused, TaskStatusFailed},
	TaskStatusVisualizing: {TaskStatusPackaging, TaskStatusPaused, TaskStatusFailed},
	TaskStatusPackaging:   {TaskStatusCompleted, TaskStatusPaused, TaskStatusFailed},
	TaskStatusPaused:      {TaskStatusExtracting, TaskStatusRunning, TaskStatusFailed},
	TaskStatusCompleted:   nil,
	TaskStatusFailed:      nil,
}

// canTransition reports whether the lifecycle graph allows from -> to.
func canTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskMode distinguishes loose-image tasks from full video pipelines.
type TaskMode string

// Possible task modes.
const (
	TaskModeImages TaskMode = "images"
	TaskModeVideo  TaskMode = "video"
)

// isValidTaskMode checks if the given mode is a valid TaskMode.
func isValidTaskMode(mode TaskMode) bool {
	return mode == TaskModeImages || mode == TaskModeVideo
}
