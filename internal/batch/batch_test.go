package batch_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/annotation"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/batch"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/retry"
)

// stubDetector returns a fixed detection set and tracks its own peak
// concurrency so tests can verify the dispatch bound.
type stubDetector struct {
	mu      sync.Mutex
	dets    []domain.Detection
	failFor map[string]error
	delay   time.Duration
	calls   int
	cur     int
	peak    int
}

func (d *stubDetector) Detect(_ context.Context, imagePath string) ([]domain.Detection, error) {
	d.mu.Lock()
	d.calls++
	d.cur++
	if d.cur > d.peak {
		d.peak = d.cur
	}
	err := d.failFor[imagePath]
	dets := append([]domain.Detection(nil), d.dets...)
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	d.cur--
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return dets, nil
}

func (d *stubDetector) stats() (calls, peak int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls, d.peak
}

type stubClassifier struct {
	mu    sync.Mutex
	label string
	calls int
}

func (c *stubClassifier) ClassifySign(context.Context, string, domain.BBox) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.label, nil
}

type stubRenderer struct {
	mu    sync.Mutex
	dests []string
}

func (r *stubRenderer) Render(_ string, _ []domain.Detection, destPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dests = append(r.dests, destPath)
	return nil
}

type stubDeepReviewer struct {
	flag bool
	err  error
}

func (s *stubDeepReviewer) ReviewSample(_ context.Context, frameID, _ string, _ []domain.Detection) (*domain.Issue, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.flag {
		return nil, nil
	}
	issue := domain.NewIssue(frameID, domain.IssueKindMissingDetection, domain.IssueSeverityWarning,
		"AI review found an issue: a cyclist is unlabeled", "review manually", domain.IssueSourceAIDeep)
	return &issue, nil
}

// stubReviewer records the frame order it observed. The collector calls it
// from a single goroutine, so no locking is needed.
type stubReviewer struct {
	frames  []string
	flagAll bool
}

func (r *stubReviewer) Review(frameID, _ string, _ []domain.Detection) []domain.Issue {
	r.frames = append(r.frames, frameID)
	if !r.flagAll {
		return nil
	}
	issue := domain.NewIssue(frameID, domain.IssueKindUnknownLabel, domain.IssueSeverityInfo,
		"unrecognized category: mystery", "", domain.IssueSourceRule)
	return []domain.Issue{issue}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(det *stubDetector) batch.Deps {
	return batch.Deps{
		Logger:   discardLogger(),
		Bus:      events.NewBus(discardLogger(), 256),
		Detector: det,
		Retry:    retry.Config{MaxAttempts: 1, Delay: time.Millisecond, BackoffFactor: 1},
	}
}

func framePaths(dir string, n int) []string {
	paths := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		paths = append(paths, filepath.Join(dir, fmt.Sprintf("demo_%06d.jpg", i)))
	}
	return paths
}

func newImagesTask(t *testing.T, frames []string, refine bool) *domain.Task {
	t.Helper()
	task, err := domain.NewImagesTask(domain.ImagesTaskParams{
		Prefix:    "demo",
		Items:     frames,
		Workers:   3,
		UseRefine: refine,
	})
	require.NoError(t, err)
	return task
}

func drainEvents(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func writeFrameJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 50, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.RGBA{A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

func TestPoolProcessLabelsAllFrames(t *testing.T) {
	det := &stubDetector{dets: []domain.Detection{
		{Label: "pedestrian", Category: "pedestrian", BBox: domain.BBox{10, 10, 40, 60}},
		{Label: "vehicle_braking", Category: "vehicle", BBox: domain.BBox{100, 50, 220, 130}},
	}}
	deps := testDeps(det)
	renderer := &stubRenderer{}
	deps.Renderer = renderer

	frames := framePaths(t.TempDir(), 10)
	task := newImagesTask(t, frames, false)

	proc, err := batch.NewPool(deps)
	require.NoError(t, err)

	summary, err := proc.Process(context.Background(), task, batch.Run{
		Frames:        frames,
		VisualizedDir: t.TempDir(),
		Workers:       3,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Success)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 20, summary.TotalObjects)
	assert.Greater(t, summary.FramesPerSecond, 0.0)

	total, completed, failed := task.Counters()
	assert.Equal(t, 10, total)
	assert.Equal(t, 10, completed)
	assert.Equal(t, 0, failed)
	assert.InDelta(t, 1.0, task.Progress(), 0.001)

	stats := task.Stats()
	assert.Equal(t, 10, stats.Pedestrian)
	assert.Equal(t, 10, stats.Vehicle)
	assert.Equal(t, 10, stats.Labels["vehicle_braking"])

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.Len(t, renderer.dests, 10)
	assert.True(t, strings.HasSuffix(renderer.dests[0], "_vis.jpg"))
}

func TestAsyncProcessLabelsAllFrames(t *testing.T) {
	det := &stubDetector{dets: []domain.Detection{
		{Label: "traffic_cone", Category: "construction", BBox: domain.BBox{5, 5, 25, 45}},
	}}
	frames := framePaths(t.TempDir(), 6)
	task := newImagesTask(t, frames, false)

	proc, err := batch.NewAsync(testDeps(det))
	require.NoError(t, err)

	summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Success)
	assert.Equal(t, 6, summary.TotalObjects)
	assert.Equal(t, 6, task.Stats().Construction)
}

func TestProcessEventSequence(t *testing.T) {
	det := &stubDetector{dets: []domain.Detection{
		{Label: "vehicle", Category: "vehicle", BBox: domain.BBox{10, 10, 90, 70}},
	}}
	deps := testDeps(det)
	reviewer := &stubReviewer{flagAll: true}
	deps.NewReviewer = func() batch.Reviewer { return reviewer }

	frames := framePaths(t.TempDir(), 1)
	task := newImagesTask(t, frames, false)

	sub := deps.Bus.Subscribe(task.ID)
	defer deps.Bus.Unsubscribe(sub)

	proc, err := batch.NewPool(deps)
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 1})
	require.NoError(t, err)

	evs := drainEvents(sub)
	require.Len(t, evs, 4)
	assert.Equal(t, events.TypeFrameStarted, evs[0].Type)
	assert.Equal(t, events.TypeFrameCompleted, evs[1].Type)
	assert.Equal(t, events.TypeStatsUpdate, evs[2].Type)
	assert.Equal(t, events.TypeIssueDetected, evs[3].Type)

	completed, ok := evs[1].Payload.(events.FrameCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, "demo_000001", completed.Frame.FrameID)
	assert.Equal(t, 1, completed.Completed)
	assert.Equal(t, 1, completed.Total)
	assert.InDelta(t, 1.0, completed.Progress, 0.001)
	require.Len(t, completed.Frame.Issues, 1)
	assert.Equal(t, domain.IssueKindUnknownLabel, completed.Frame.Issues[0].Kind)

	detected, ok := evs[3].Payload.(events.IssueDetectedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.IssueSourceRule, detected.Issue.DetectedBy)

	assert.Equal(t, []string{"demo_000001"}, reviewer.frames)
}

func TestProcessFrameFailureAfterRetries(t *testing.T) {
	frames := framePaths(t.TempDir(), 3)
	det := &stubDetector{
		dets:    []domain.Detection{{Label: "vehicle", Category: "vehicle", BBox: domain.BBox{0, 0, 50, 50}}},
		failFor: map[string]error{frames[1]: errors.New("model unavailable")},
	}
	deps := testDeps(det)
	deps.Retry = retry.Config{MaxAttempts: 2, Delay: time.Millisecond, BackoffFactor: 1}

	task := newImagesTask(t, frames, false)
	sub := deps.Bus.Subscribe(task.ID)
	defer deps.Bus.Unsubscribe(sub)

	proc, err := batch.NewPool(deps)
	require.NoError(t, err)

	summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Failed)

	_, completed, failed := task.Counters()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)

	var errPayload events.FrameErrorPayload
	found := false
	for _, ev := range drainEvents(sub) {
		if ev.Type == events.TypeFrameError {
			errPayload, found = ev.Payload.(events.FrameErrorPayload)
		}
	}
	require.True(t, found)
	assert.Equal(t, "demo_000002", errPayload.FrameID)
	assert.Contains(t, errPayload.Error, "all 2 attempts failed")
	assert.Contains(t, errPayload.Error, "model unavailable")
}

func TestProcessRefinesGenericSigns(t *testing.T) {
	det := &stubDetector{dets: []domain.Detection{
		{Label: "traffic_sign", Category: "traffic_sign", BBox: domain.BBox{10, 10, 50, 50}},
		{Label: "vehicle", Category: "vehicle", BBox: domain.BBox{60, 10, 120, 60}},
	}}
	deps := testDeps(det)
	classifier := &stubClassifier{label: "speed_limit_70_km_h"}
	deps.Classifier = classifier

	frames := framePaths(t.TempDir(), 2)
	task := newImagesTask(t, frames, true)

	sub := deps.Bus.Subscribe(task.ID)
	defer deps.Bus.Unsubscribe(sub)

	proc, err := batch.NewPool(deps)
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 1})
	require.NoError(t, err)

	// One sign per frame, the vehicle is never sent for refinement.
	classifier.mu.Lock()
	assert.Equal(t, 2, classifier.calls)
	classifier.mu.Unlock()

	for _, ev := range drainEvents(sub) {
		completed, ok := ev.Payload.(events.FrameCompletedPayload)
		if !ok {
			continue
		}
		labels := []string{completed.Frame.Detections[0].Label, completed.Frame.Detections[1].Label}
		assert.Contains(t, labels, "speed_limit_70_km_h")
		assert.NotContains(t, labels, "traffic_sign")
	}

	assert.Equal(t, 2, task.Stats().Labels["speed_limit_70_km_h"])
}

func TestProcessDeepReviewOutcomes(t *testing.T) {
	t.Run("finding becomes an issue", func(t *testing.T) {
		det := &stubDetector{}
		deps := testDeps(det)
		deps.DeepReviewer = &stubDeepReviewer{flag: true}

		frames := framePaths(t.TempDir(), 1)
		task := newImagesTask(t, frames, false)

		proc, err := batch.NewPool(deps)
		require.NoError(t, err)

		summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Success)

		issues := task.Issues()
		require.Len(t, issues, 1)
		assert.Equal(t, domain.IssueSourceAIDeep, issues[0].DetectedBy)
		assert.Equal(t, domain.IssueKindMissingDetection, issues[0].Kind)
	})

	t.Run("review error does not fail the frame", func(t *testing.T) {
		det := &stubDetector{}
		deps := testDeps(det)
		deps.DeepReviewer = &stubDeepReviewer{err: errors.New("model unavailable")}

		frames := framePaths(t.TempDir(), 2)
		task := newImagesTask(t, frames, false)

		proc, err := batch.NewPool(deps)
		require.NoError(t, err)

		summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Success)
		assert.Empty(t, task.Issues())
	})
}

func TestProcessPersistsAnnotationsAndResumes(t *testing.T) {
	imagesDir := t.TempDir()
	frames := framePaths(imagesDir, 3)
	for _, p := range frames {
		writeFrameJPEG(t, p)
	}

	store, err := annotation.NewStore(t.TempDir())
	require.NoError(t, err)

	det := &stubDetector{dets: []domain.Detection{
		{Label: "pedestrian", Category: "pedestrian", BBox: domain.BBox{5, 5, 20, 35}},
	}}
	deps := testDeps(det)

	proc, err := batch.NewPool(deps)
	require.NoError(t, err)

	task := newImagesTask(t, frames, false)
	summary, err := proc.Process(context.Background(), task, batch.Run{
		Frames:  frames,
		Store:   store,
		Workers: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)

	for _, p := range frames {
		require.True(t, store.Exists(p))
		rec, lerr := store.LoadFor(p)
		require.NoError(t, lerr)
		assert.Equal(t, 50, rec.ImageWidth)
		assert.Equal(t, 40, rec.ImageHeight)
		assert.Len(t, rec.Detections(), 1)
	}

	// A second pass over the same frames does nothing but credit them.
	resumed := newImagesTask(t, frames, false)
	summary, err = proc.Process(context.Background(), resumed, batch.Run{
		Frames:  frames,
		Store:   store,
		Resume:  true,
		Workers: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 3, summary.Skipped)

	calls, _ := det.stats()
	assert.Equal(t, 3, calls)
	assert.InDelta(t, 1.0, resumed.Progress(), 0.001)
}

func TestProcessConcurrencyBound(t *testing.T) {
	build := map[string]func(batch.Deps) (batch.Processor, error){
		"pool": func(d batch.Deps) (batch.Processor, error) { return batch.NewPool(d) },
		"async": func(d batch.Deps) (batch.Processor, error) {
			return batch.NewAsync(d)
		},
	}

	for name, newProc := range build {
		t.Run(name, func(t *testing.T) {
			det := &stubDetector{delay: 10 * time.Millisecond}
			frames := framePaths(t.TempDir(), 12)
			task := newImagesTask(t, frames, false)

			proc, err := newProc(testDeps(det))
			require.NoError(t, err)

			summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 3})
			require.NoError(t, err)
			assert.Equal(t, 12, summary.Success)

			calls, peak := det.stats()
			assert.Equal(t, 12, calls)
			assert.LessOrEqual(t, peak, 3)
		})
	}
}

func TestProcessStopRequest(t *testing.T) {
	det := &stubDetector{}
	frames := framePaths(t.TempDir(), 8)
	task := newImagesTask(t, frames, false)
	task.RequestStop()

	proc, err := batch.NewPool(testDeps(det))
	require.NoError(t, err)

	summary, err := proc.Process(context.Background(), task, batch.Run{Frames: frames, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Success)
	calls, _ := det.stats()
	assert.Equal(t, 0, calls)
}

func TestProcessCanceledContext(t *testing.T) {
	det := &stubDetector{}
	frames := framePaths(t.TempDir(), 4)
	task := newImagesTask(t, frames, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc, err := batch.NewAsync(testDeps(det))
	require.NoError(t, err)

	summary, err := proc.Process(ctx, task, batch.Run{Frames: frames, Workers: 2})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Success)
}

func TestNewProcessorValidation(t *testing.T) {
	det := &stubDetector{}
	valid := testDeps(det)

	tests := []struct {
		name    string
		mutate  func(*batch.Deps)
		wantErr string
	}{
		{"missing logger", func(d *batch.Deps) { d.Logger = nil }, "logger cannot be nil"},
		{"missing bus", func(d *batch.Deps) { d.Bus = nil }, "event bus cannot be nil"},
		{"missing detector", func(d *batch.Deps) { d.Detector = nil }, "detector cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := valid
			tt.mutate(&deps)

			_, err := batch.NewPool(deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			_, err = batch.NewAsync(deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
