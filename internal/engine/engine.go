// Package engine drives annotation tasks through their pipeline stages.
// Image tasks run a single labeling stage; video tasks run extraction,
// labeling, preview rendering and dataset packaging in order. The engine
// owns all task content mutation for the duration of a run and publishes a
// stage_changed event before any item-level event of the new stage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/annotation"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/batch"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/video"
)

// visualizeProgressStep is the granularity of visualize_progress events.
const visualizeProgressStep = 0.1

// Deps bundles the engine collaborators.
type Deps struct {
	Logger    *slog.Logger
	Bus       *events.Bus
	Processor batch.Processor

	// Extractor turns videos into frames. Required only for video tasks.
	Extractor detection.Extractor

	// Packager assembles datasets after a video run. Optional.
	Packager *video.Packager

	// Renderer fills in previews that labeling left behind. Optional.
	Renderer batch.Renderer

	// Resume makes labeling skip items whose annotation record already
	// exists, so a restarted task continues instead of redoing work.
	Resume bool
}

// Engine runs tasks to completion. Safe for concurrent use; each Run call
// owns its task exclusively.
type Engine struct {
	logger    *slog.Logger
	bus       *events.Bus
	processor batch.Processor
	extractor detection.Extractor
	packager  *video.Packager
	renderer  batch.Renderer
	resume    bool
}

// New creates an engine.
//
// Parameters:
//   - deps: the engine collaborators. Logger, Bus and Processor are
//     required.
//
// Returns:
//   - *Engine: the configured engine.
//   - error: if a required dependency is missing.
func New(deps Deps) (*Engine, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if deps.Bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if deps.Processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	return &Engine{
		logger:    deps.Logger,
		bus:       deps.Bus,
		processor: deps.Processor,
		extractor: deps.Extractor,
		packager:  deps.Packager,
		renderer:  deps.Renderer,
		resume:    deps.Resume,
	}, nil
}

// Run executes the task's pipeline. It blocks until the task completes,
// fails, or pauses on a stop request; callers start it on its own
// goroutine. Any error is also recorded on the task and published as a
// task_error event before the state changes.
func (e *Engine) Run(ctx context.Context, task *domain.Task) error {
	task.MarkStarted()

	total, _, _ := task.Counters()
	e.bus.Publish(events.New(events.TypeTaskStarted, task.ID, events.TaskStartedPayload{
		Mode:        task.Mode,
		VideoName:   task.VideoName,
		TotalFrames: total,
	}))
	e.logger.InfoContext(ctx, "task started",
		"task_id", task.ID,
		"mode", task.Mode,
		"prefix", task.Prefix)

	var err error
	if task.Mode == domain.TaskModeVideo {
		err = e.runVideo(ctx, task)
	} else {
		err = e.runImages(ctx, task)
	}
	if err != nil {
		e.fail(ctx, task, err)
		return err
	}
	return nil
}

func (e *Engine) runImages(ctx context.Context, task *domain.Task) error {
	if err := task.Transition(domain.TaskStatusRunning); err != nil {
		return err
	}
	e.stage(ctx, task, "label", fmt.Sprintf("labeling %d images", len(task.Items)))

	if _, err := e.label(ctx, task, task.Items); err != nil {
		return err
	}
	if task.StopRequested() {
		e.pause(ctx, task)
		return nil
	}
	return e.complete(ctx, task, "")
}

func (e *Engine) runVideo(ctx context.Context, task *domain.Task) error {
	if e.extractor == nil {
		return errors.New("video tasks need a frame extractor")
	}

	if err := task.Transition(domain.TaskStatusExtracting); err != nil {
		return err
	}
	e.stage(ctx, task, "extract", fmt.Sprintf("extracting frames from %s", task.VideoName))

	frames, err := e.extractor.Extract(ctx, task.VideoPath, task.FPS, task.FramesDir, task.Prefix,
		func(p float64) {
			task.SetExtractProgress(p)
			e.bus.Publish(events.New(events.TypeExtractProgress, task.ID,
				events.ExtractProgressPayload{Progress: p}))
		})
	if err != nil {
		return fmt.Errorf("extract %s: %w", task.VideoName, err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("extract %s: no frames produced", task.VideoName)
	}

	task.SetTotalFrames(len(frames))
	task.SetExtractProgress(1)
	e.bus.Publish(events.New(events.TypeExtractCompleted, task.ID, events.ExtractCompletedPayload{
		FrameCount: len(frames),
		FramesDir:  task.FramesDir,
	}))

	if task.StopRequested() {
		e.pause(ctx, task)
		return nil
	}

	if err := task.Transition(domain.TaskStatusRunning); err != nil {
		return err
	}
	e.stage(ctx, task, "label", fmt.Sprintf("labeling %d frames", len(frames)))

	if _, err := e.label(ctx, task, frames); err != nil {
		return err
	}
	if task.StopRequested() {
		e.pause(ctx, task)
		return nil
	}

	if err := task.Transition(domain.TaskStatusVisualizing); err != nil {
		return err
	}
	e.stage(ctx, task, "visualize", "rendering remaining previews")

	rendered, err := e.visualize(ctx, task, frames)
	if err != nil {
		return err
	}
	task.SetVisualizeProgress(1)
	e.bus.Publish(events.New(events.TypeVisualizeCompleted, task.ID, events.VisualizeCompletedPayload{
		Rendered:      rendered,
		VisualizedDir: task.VisualizedDir,
	}))

	if task.StopRequested() {
		e.pause(ctx, task)
		return nil
	}

	if err := task.Transition(domain.TaskStatusPackaging); err != nil {
		return err
	}
	e.stage(ctx, task, "package", "packaging dataset")

	datasetDir := ""
	if e.packager != nil {
		datasetDir, err = e.packager.Create(ctx, video.PackageInput{
			Name:           task.Prefix,
			VideoPath:      task.VideoPath,
			FramesDir:      task.FramesDir,
			AnnotationsDir: task.AnnotationsDir,
			VisualizedDir:  task.VisualizedDir,
			FPS:            task.FPS,
			UseRefine:      task.UseRefine,
		})
		if err != nil {
			return fmt.Errorf("package dataset: %w", err)
		}
		task.SetDatasetDir(datasetDir)
		e.bus.Publish(events.New(events.TypePackageCompleted, task.ID, events.PackageCompletedPayload{
			DatasetDir: datasetDir,
		}))
	}

	return e.complete(ctx, task, datasetDir)
}

// label runs the batch processor over frames with the task's output
// locations.
func (e *Engine) label(ctx context.Context, task *domain.Task, frames []string) (batch.Summary, error) {
	store, err := annotation.NewStore(task.AnnotationsDir)
	if err != nil {
		return batch.Summary{}, err
	}
	if task.VisualizedDir != "" {
		if err := os.MkdirAll(task.VisualizedDir, 0o755); err != nil {
			return batch.Summary{}, fmt.Errorf("create visualized dir: %w", err)
		}
	}

	summary, err := e.processor.Process(ctx, task, batch.Run{
		Frames:        frames,
		Store:         store,
		VisualizedDir: task.VisualizedDir,
		Resume:        e.resume,
		Workers:       task.Workers,
	})
	if err != nil {
		return summary, err
	}

	e.logger.InfoContext(ctx, "labeling finished",
		"task_id", task.ID,
		"success", summary.Success,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"frames_per_second", summary.FramesPerSecond)
	return summary, nil
}

// visualize renders previews for annotated frames that do not have one
// yet. Labeling renders previews as it goes, so this normally only fills
// gaps left by resumed runs.
func (e *Engine) visualize(ctx context.Context, task *domain.Task, frames []string) (int, error) {
	if e.renderer == nil || task.VisualizedDir == "" {
		return 0, nil
	}

	store, err := annotation.NewStore(task.AnnotationsDir)
	if err != nil {
		return 0, err
	}

	rendered := 0
	lastStep := 0.0
	for i, frame := range frames {
		if ctx.Err() != nil || task.StopRequested() {
			break
		}

		p := float64(i+1) / float64(len(frames))
		task.SetVisualizeProgress(p)
		if p-lastStep >= visualizeProgressStep {
			lastStep = p
			e.bus.Publish(events.New(events.TypeVisualizeProgress, task.ID,
				events.VisualizeProgressPayload{Progress: p}))
		}

		destPath := filepath.Join(task.VisualizedDir, annotation.Stem(frame)+"_vis.jpg")
		if _, serr := os.Stat(destPath); serr == nil {
			continue
		}
		rec, lerr := store.LoadFor(frame)
		if lerr != nil {
			// Failed frames have no record and no preview.
			continue
		}
		if rerr := e.renderer.Render(frame, rec.Detections(), destPath); rerr != nil {
			e.logger.WarnContext(ctx, "preview render failed",
				"task_id", task.ID,
				"frame", frame,
				"error", rerr)
			continue
		}
		rendered++
	}
	return rendered, nil
}

// stage publishes the stage transition and a progress checkpoint. Stage
// events always precede the item events of the stage they open.
func (e *Engine) stage(ctx context.Context, task *domain.Task, stage, message string) {
	e.logger.InfoContext(ctx, "stage changed",
		"task_id", task.ID,
		"stage", stage,
		"message", message)
	e.bus.Publish(events.New(events.TypeStageChanged, task.ID, events.StageChangedPayload{
		Stage:   stage,
		Message: message,
	}))

	total, completed, _ := task.Counters()
	e.bus.Publish(events.New(events.TypeTaskProgress, task.ID, events.TaskProgressPayload{
		Progress:  task.Progress(),
		Completed: completed,
		Total:     total,
	}))
}

func (e *Engine) complete(ctx context.Context, task *domain.Task, datasetDir string) error {
	if err := task.Complete(); err != nil {
		return err
	}

	elapsed := 0.0
	if started := task.StartedAt(); started != nil {
		elapsed = time.Since(*started).Seconds()
	}
	e.bus.Publish(events.New(events.TypeTaskCompleted, task.ID, events.TaskCompletedPayload{
		Stats:          task.Stats(),
		IssuesCount:    len(task.Issues()),
		DatasetDir:     datasetDir,
		ElapsedSeconds: elapsed,
	}))

	_, completed, failed := task.Counters()
	e.logger.InfoContext(ctx, "task completed",
		"task_id", task.ID,
		"completed", completed,
		"failed", failed,
		"elapsed_seconds", elapsed)
	return nil
}

// pause parks the task after a stop request. The stop path usually moves
// the task to PAUSED already; the transition error in that case is the
// expected no-op.
func (e *Engine) pause(ctx context.Context, task *domain.Task) {
	// The side that lands the PAUSED transition publishes the event, so a
	// stop raced between manager and engine still emits exactly one.
	if err := task.Transition(domain.TaskStatusPaused); err == nil {
		e.bus.Publish(events.New(events.TypeStageChanged, task.ID, events.StageChangedPayload{
			Stage:   "paused",
			Message: "stop requested, run paused",
		}))
	}
	_, completed, _ := task.Counters()
	e.logger.InfoContext(ctx, "task paused",
		"task_id", task.ID,
		"completed", completed)
}

// fail publishes the task_error event and then records the failure, so
// observers never see a failed task before the failure event.
func (e *Engine) fail(ctx context.Context, task *domain.Task, cause error) {
	e.logger.ErrorContext(ctx, "task failed",
		"task_id", task.ID,
		"error", cause)
	e.bus.Publish(events.New(events.TypeTaskError, task.ID, events.TaskErrorPayload{
		Error: cause.Error(),
	}))
	if err := task.Fail(cause.Error()); err != nil {
		e.logger.Warn("could not mark task failed",
			"task_id", task.ID,
			"error", err)
	}
}
