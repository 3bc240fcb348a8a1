package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/annotation"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/retry"

	_ "image/jpeg"
	_ "image/png"
)

// genericSignLabel is the label refinement tries to improve on.
const genericSignLabel = "traffic_sign"

// Reviewer applies rule-based checks to a finished frame. Implementations
// may carry temporal state between calls; the collector invokes them from
// a single goroutine in frame completion order.
type Reviewer interface {
	Review(frameID, imagePath string, dets []domain.Detection) []domain.Issue
}

// DeepReviewer samples finished frames for a model-based completeness
// review. Implementations must be safe for concurrent use; workers call
// them directly.
type DeepReviewer interface {
	ReviewSample(ctx context.Context, frameID, imagePath string, dets []domain.Detection) (*domain.Issue, error)
}

// Renderer draws detection previews next to the source frames.
type Renderer interface {
	Render(imagePath string, dets []domain.Detection, destPath string) error
}

// Run describes one labeling pass over a set of frames.
type Run struct {
	// Frames is the ordered list of image paths to label.
	Frames []string

	// Store receives one annotation record per successful frame. A nil
	// store disables persistence and resume.
	Store *annotation.Store

	// VisualizedDir receives preview images when a Renderer is configured.
	VisualizedDir string

	// Resume skips frames whose annotation record already exists.
	Resume bool

	// Workers bounds concurrent frame processing. Values below 1 are
	// treated as 1.
	Workers int
}

// Summary reports the outcome of a labeling pass.
type Summary struct {
	Success         int
	Failed          int
	Skipped         int
	TotalObjects    int
	Elapsed         time.Duration
	FramesPerSecond float64
}

// Processor labels every frame of a run on behalf of a task.
type Processor interface {
	// Process runs the labeling loop until every frame is handled, the
	// context is canceled, or the task requests a stop. A stop request
	// is a clean outcome: Process returns the partial summary with a nil
	// error and leaves the decision to the caller.
	Process(ctx context.Context, task *domain.Task, run Run) (Summary, error)
}

// Deps bundles the collaborators a processor needs.
type Deps struct {
	Logger   *slog.Logger
	Bus      *events.Bus
	Detector detection.Detector

	// Classifier refines generic sign labels. Optional.
	Classifier detection.SignClassifier

	// DeepReviewer samples frames for model review. Optional.
	DeepReviewer DeepReviewer

	// Renderer draws per-frame previews. Optional.
	Renderer Renderer

	// NewReviewer builds a fresh rule reviewer per run, so temporal state
	// never leaks between tasks. Optional.
	NewReviewer func() Reviewer

	// Retry controls the detection retry policy.
	Retry retry.Config
}

func (d Deps) validate() error {
	if d.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	if d.Bus == nil {
		return errors.New("event bus cannot be nil")
	}
	if d.Detector == nil {
		return errors.New("detector cannot be nil")
	}
	return nil
}

// msgKind discriminates worker messages on the collector channel.
type msgKind int

const (
	msgStarted msgKind = iota
	msgDone
)

type message struct {
	kind    msgKind
	frameID string
	result  domain.FrameResult
}

// dispatchFunc hands frames to workers under a concurrency bound. It must
// return once every accepted frame has produced its messages.
type dispatchFunc func(ctx context.Context, task *domain.Task, w *worker, frames []string, workers int)

// process is the shared labeling loop. The dispatch strategy is the only
// part that differs between processors.
func process(ctx context.Context, deps Deps, task *domain.Task, run Run, dispatch dispatchFunc) (Summary, error) {
	start := time.Now()

	frames := run.Frames
	skipped := 0
	if run.Resume && run.Store != nil {
		pending, done := run.Store.FilterPending(frames)
		if done > 0 {
			task.ApplySkipped(done)
			deps.Logger.InfoContext(ctx, "resuming run, annotated frames skipped",
				"task_id", task.ID,
				"skipped", done,
				"pending", len(pending))
		}
		frames = pending
		skipped = done
	}

	workers := run.Workers
	if workers < 1 {
		workers = 1
	}

	var reviewer Reviewer
	if deps.NewReviewer != nil {
		reviewer = deps.NewReviewer()
	}

	msgs := make(chan message, workers*2)
	col := &collector{
		logger:   deps.Logger,
		bus:      deps.Bus,
		task:     task,
		reviewer: reviewer,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		col.run(msgs)
	}()

	w := &worker{
		logger:        deps.Logger,
		detector:      deps.Detector,
		classifier:    deps.Classifier,
		deepReviewer:  deps.DeepReviewer,
		renderer:      deps.Renderer,
		retryCfg:      deps.Retry,
		useRefine:     task.UseRefine,
		visualizedDir: run.VisualizedDir,
		store:         run.Store,
		msgs:          msgs,
	}

	dispatch(ctx, task, w, frames, workers)
	close(msgs)
	<-done

	elapsed := time.Since(start)
	summary := Summary{
		Success:      col.success,
		Failed:       col.failed,
		Skipped:      skipped,
		TotalObjects: col.objects,
		Elapsed:      elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		summary.FramesPerSecond = float64(summary.Success+summary.Failed) / secs
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("labeling interrupted: %w", err)
	}
	return summary, nil
}

// imageSize reads the pixel dimensions from an image header.
func imageSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
