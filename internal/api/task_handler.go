package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/api/shared"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/task"
)

// recentFramesWindow is how many recent frame results the frames endpoint
// returns.
const recentFramesWindow = 20

// TaskManager is the slice of the task registry the handlers depend on.
// *task.Manager satisfies it.
type TaskManager interface {
	CreateImagesTask(p task.CreateImagesParams) (*domain.Task, error)
	CreateVideoTask(p task.CreateVideoParams) (*domain.Task, error)
	Start(taskID string) (*domain.Task, error)
	Stop(taskID string) (*domain.Task, error)
	Delete(taskID string) error
	Get(taskID string) (*domain.Task, error)
	List() []*domain.Task
	ListVideos() ([]string, error)
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	manager TaskManager
	logger  *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(manager TaskManager, logger *slog.Logger) *TaskHandler {
	if manager == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task manager cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		manager: manager,
		logger:  logger.With(slog.String("component", "task_handler")),
	}
}

// ListTasks handles GET /api/tasks requests.
// It returns every registered task, newest first.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.manager.List()

	snapshots := make([]domain.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, t.Snapshot())
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TasksResponse{Tasks: snapshots})
}

// CreateTask handles POST /api/tasks requests.
// It registers a pending images task over the images matching the prefix.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	created, err := h.manager.CreateImagesTask(task.CreateImagesParams{
		Prefix:    req.Prefix,
		UseRefine: req.UseRefine,
		Limit:     req.Limit,
		ImagesDir: req.ImagesDir,
		OutputDir: req.OutputDir,
		Workers:   req.Workers,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("images task created",
		slog.String("task_id", created.ID),
		slog.String("prefix", created.Prefix),
		slog.Int("total_frames", len(created.Items)))
	shared.RespondWithJSON(w, r, http.StatusCreated, TaskResponse{Task: created.Snapshot()})
}

// CreateVideoTask handles POST /api/tasks/video requests.
// It registers a pending full-pipeline task for a library video.
func (h *TaskHandler) CreateVideoTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateVideoTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	created, err := h.manager.CreateVideoTask(task.CreateVideoParams{
		VideoName: req.VideoName,
		Name:      req.OutputName,
		FPS:       req.FPS,
		UseRefine: req.UseRefine,
		Workers:   req.Workers,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("video task created",
		slog.String("task_id", created.ID),
		slog.String("video", created.VideoName),
		slog.Int("fps", created.FPS))
	shared.RespondWithJSON(w, r, http.StatusCreated, TaskResponse{Task: created.Snapshot()})
}

// GetTask handles GET /api/tasks/{taskID} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	t, err := h.manager.Get(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{Task: t.Snapshot()})
}

// StartTask handles POST /api/tasks/{taskID}/start requests.
// The engine run happens on its own goroutine; the response carries the
// snapshot taken right after the handoff.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	t, err := h.manager.Start(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task started", slog.String("task_id", taskID))
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{Task: t.Snapshot()})
}

// StopTask handles POST /api/tasks/{taskID}/stop requests.
// Stop is cooperative: in-flight frames finish before the run parks.
func (h *TaskHandler) StopTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	t, err := h.manager.Stop(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task stop requested", slog.String("task_id", taskID))
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{Task: t.Snapshot()})
}

// DeleteTask handles DELETE /api/tasks/{taskID} requests.
// An active task is stopped first; its event subscribers are closed.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	if err := h.manager.Delete(taskID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("task deleted", slog.String("task_id", taskID))
	shared.RespondWithJSON(w, r, http.StatusOK, DeleteResponse{Success: true})
}

// GetIssues handles GET /api/tasks/{taskID}/issues requests.
func (h *TaskHandler) GetIssues(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	t, err := h.manager.Get(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	issues := t.Issues()
	if issues == nil {
		issues = []domain.Issue{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, IssuesResponse{Issues: issues})
}

// GetRecentFrames handles GET /api/tasks/{taskID}/frames requests.
// It returns up to 20 of the most recently completed frames, newest first.
func (h *TaskHandler) GetRecentFrames(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	t, err := h.manager.Get(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	frames := t.RecentFrames(recentFramesWindow)
	if frames == nil {
		frames = []domain.FrameResult{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, FramesResponse{Frames: frames})
}

// GetFrame handles GET /api/tasks/{taskID}/frames/{frameID} requests.
// Only frames still inside the recent window can be fetched.
func (h *TaskHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	frameID := chi.URLParam(r, "frameID")
	if taskID == "" || frameID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID and frame ID are required")
		return
	}

	t, err := h.manager.Get(taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	frame, err := t.RecentFrame(frameID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, FrameResponse{Frame: frame})
}

// ListVideos handles GET /api/videos requests.
func (h *TaskHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.manager.ListVideos()
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to list videos", err)
		return
	}

	if videos == nil {
		videos = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, VideosResponse{Videos: videos})
}
