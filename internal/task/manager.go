package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/engine"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/video"
)

// ManagerConfig holds the defaults applied to new tasks.
type ManagerConfig struct {
	// ImagesDir is the default source directory for image tasks.
	ImagesDir string

	// OutputDir is where per-task annotation and preview directories are
	// created.
	OutputDir string

	// FramesDir is the base directory for extracted video frames; each
	// video task gets its own subdirectory.
	FramesDir string

	// Workers is the default per-task concurrency.
	Workers int

	// FPS is the default video sample rate.
	FPS int
}

// Manager is the task registry. One instance serves the whole process.
type Manager struct {
	logger  *slog.Logger
	bus     *events.Bus
	engine  *engine.Engine
	library *video.Library
	cfg     ManagerConfig

	mu    sync.RWMutex
	tasks map[string]*domain.Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates the registry.
//
// Parameters:
//   - logger: the logger for lifecycle diagnostics.
//   - bus: the event bus tasks publish on.
//   - eng: the engine that executes runs.
//   - library: the source video library.
//   - cfg: defaults for new tasks.
//
// Returns:
//   - *Manager: the configured manager.
//   - error: if a required dependency is missing.
func NewManager(logger *slog.Logger, bus *events.Bus, eng *engine.Engine, library *video.Library, cfg ManagerConfig) (*Manager, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if library == nil {
		return nil, errors.New("video library cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:  logger,
		bus:     bus,
		engine:  eng,
		library: library,
		cfg:     cfg,
		tasks:   make(map[string]*domain.Task),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Shutdown stops accepting new runs, cancels in-flight ones, and waits for
// their goroutines to drain.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// ListVideos returns the stems of the videos available for new tasks.
func (m *Manager) ListVideos() ([]string, error) {
	return m.library.List()
}

// CreateImagesParams carries the inputs for CreateImagesTask. Zero values
// fall back to the manager defaults.
type CreateImagesParams struct {
	Prefix    string
	UseRefine bool

	// Limit caps the number of images taken, in sorted order. 0 is no cap.
	Limit int

	ImagesDir string
	OutputDir string
	Workers   int
}

// CreateImagesTask registers a pending task over the images matching the
// prefix.
func (m *Manager) CreateImagesTask(p CreateImagesParams) (*domain.Task, error) {
	imagesDir := p.ImagesDir
	if imagesDir == "" {
		imagesDir = m.cfg.ImagesDir
	}
	outputDir := p.OutputDir
	if outputDir == "" {
		outputDir = m.cfg.OutputDir
	}

	files, err := FindImages(imagesDir, p.Prefix)
	if err != nil {
		return nil, err
	}
	if p.Limit > 0 && len(files) > p.Limit {
		files = files[:p.Limit]
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images matching %q in %s", domain.ErrNoFrames, p.Prefix, imagesDir)
	}

	base := strings.ToLower(p.Prefix)
	if p.UseRefine {
		base += "_refined"
	}

	task, err := domain.NewImagesTask(domain.ImagesTaskParams{
		Prefix:         p.Prefix,
		Items:          files,
		Workers:        m.workersOr(p.Workers),
		UseRefine:      p.UseRefine,
		ImagesDir:      imagesDir,
		AnnotationsDir: filepath.Join(outputDir, base+"_annotations"),
		VisualizedDir:  filepath.Join(outputDir, base+"_visualized"),
	})
	if err != nil {
		return nil, err
	}

	m.register(task)
	return task, nil
}

// CreateVideoParams carries the inputs for CreateVideoTask. Zero values
// fall back to the manager defaults.
type CreateVideoParams struct {
	VideoName string

	// Name is the output dataset name. Defaults to the video name.
	Name string

	FPS       int
	UseRefine bool
	Workers   int
}

// CreateVideoTask registers a pending full-pipeline task for a library
// video. The video must exist at creation time.
func (m *Manager) CreateVideoTask(p CreateVideoParams) (*domain.Task, error) {
	videoPath, err := m.library.Resolve(p.VideoName)
	if err != nil {
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = p.VideoName
	}
	fps := p.FPS
	if fps <= 0 {
		fps = m.cfg.FPS
	}
	base := strings.ToLower(name)

	task, err := domain.NewVideoTask(domain.VideoTaskParams{
		Name:           name,
		VideoName:      p.VideoName,
		VideoPath:      videoPath,
		FPS:            fps,
		Workers:        m.workersOr(p.Workers),
		UseRefine:      p.UseRefine,
		FramesDir:      filepath.Join(m.cfg.FramesDir, name),
		AnnotationsDir: filepath.Join(m.cfg.OutputDir, base+"_annotations"),
		VisualizedDir:  filepath.Join(m.cfg.OutputDir, base+"_visualized"),
	})
	if err != nil {
		return nil, err
	}

	m.register(task)
	return task, nil
}

func (m *Manager) workersOr(requested int) int {
	if requested > 0 {
		return requested
	}
	return m.cfg.Workers
}

func (m *Manager) register(task *domain.Task) {
	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	m.logger.Info("task created",
		"task_id", task.ID,
		"mode", task.Mode,
		"prefix", task.Prefix)
	m.bus.Publish(events.New(events.TypeTaskCreated, task.ID, events.TaskCreatedPayload{
		Task: task.Snapshot(),
	}))
}

// Start hands the task to the engine on its own goroutine. Pending and
// paused tasks can start; active ones and finished ones cannot.
func (m *Manager) Start(taskID string) (*domain.Task, error) {
	task, err := m.Get(taskID)
	if err != nil {
		return nil, err
	}

	status := task.Status()
	if status.Active() {
		return nil, fmt.Errorf("%w: %s", ErrTaskAlreadyRunning, taskID)
	}
	if status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTaskFinished, taskID)
	}

	task.ClearStop()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Run records failures on the task itself; the error here is
		// only for the log.
		if err := m.engine.Run(m.ctx, task); err != nil {
			m.logger.Error("task run ended with error",
				"task_id", task.ID,
				"error", err)
		}
	}()

	return task, nil
}

// Stop raises the task's cooperative stop flag and parks it. In-flight
// frames run to completion; the engine goroutine drains on its own.
func (m *Manager) Stop(taskID string) (*domain.Task, error) {
	task, err := m.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status().Active() {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotRunning, taskID)
	}

	task.RequestStop()
	if terr := task.Transition(domain.TaskStatusPaused); terr != nil {
		// The run finished between the status check and here.
		m.logger.Debug("stop raced with completion", "task_id", taskID)
	} else {
		m.bus.Publish(events.New(events.TypeStageChanged, task.ID, events.StageChangedPayload{
			Stage:   "paused",
			Message: "stop requested, run paused",
		}))
	}

	m.logger.Info("task stop requested", "task_id", taskID)
	return task, nil
}

// Delete removes the task from the registry, stopping it first if it is
// active. Subscribers to the task's event stream are closed.
func (m *Manager) Delete(taskID string) error {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	delete(m.tasks, taskID)
	m.mu.Unlock()

	if task.Status().Active() {
		task.RequestStop()
	}
	m.bus.ClearTask(taskID)

	m.logger.Info("task deleted", "task_id", taskID)
	return nil
}

// Get returns the task with the given ID.
func (m *Manager) Get(taskID string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// List returns all registered tasks, newest first.
func (m *Manager) List() []*domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FindImages returns the sorted, deduplicated image paths matching the
// prefix in dir. The prefix matches both underscore-separated frame names
// and bare prefixes.
func FindImages(dir, prefix string) ([]string, error) {
	patterns := []string{
		prefix + "_*.jpg",
		prefix + "_*.png",
		prefix + "*.jpg",
	}

	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob images: %w", err)
		}
		for _, match := range matches {
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files, nil
}
