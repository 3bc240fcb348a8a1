package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/annotation"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/retry"
)

// worker runs the per-frame pipeline and reports outcomes on msgs. It is
// shared by all dispatch goroutines; every field is read-only after
// construction, so concurrent label calls are safe.
type worker struct {
	logger        *slog.Logger
	detector      detection.Detector
	classifier    detection.SignClassifier
	deepReviewer  DeepReviewer
	renderer      Renderer
	retryCfg      retry.Config
	useRefine     bool
	visualizedDir string
	store         *annotation.Store
	msgs          chan<- message
}

// label processes one frame end to end and emits the started and done
// messages around it.
func (w *worker) label(ctx context.Context, imagePath string) {
	frameID := annotation.Stem(imagePath)
	w.msgs <- message{kind: msgStarted, frameID: frameID}

	start := time.Now()
	result := w.process(ctx, frameID, imagePath)
	result.ElapsedMS = time.Since(start).Milliseconds()

	w.msgs <- message{kind: msgDone, frameID: frameID, result: result}
}

func (w *worker) process(ctx context.Context, frameID, imagePath string) domain.FrameResult {
	result := domain.FrameResult{
		FrameID:   frameID,
		ImagePath: imagePath,
	}

	var dets []domain.Detection
	err := retry.Do(ctx, w.retryCfg, func() error {
		var derr error
		dets, derr = w.detector.Detect(ctx, imagePath)
		return derr
	}, w.observer(frameID))
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if w.useRefine && w.classifier != nil {
		w.refine(ctx, frameID, imagePath, dets)
	}

	if w.deepReviewer != nil {
		issue, derr := w.deepReviewer.ReviewSample(ctx, frameID, imagePath, dets)
		if derr != nil {
			w.logger.WarnContext(ctx, "deep review failed",
				"frame_id", frameID,
				"error", derr)
		} else if issue != nil {
			result.Issues = append(result.Issues, *issue)
		}
	}

	if w.store != nil {
		width, height, serr := imageSize(imagePath)
		if serr != nil {
			w.logger.WarnContext(ctx, "image dimensions unavailable",
				"frame_id", frameID,
				"error", serr)
		}
		rec := annotation.NewRecord(imagePath, width, height, dets)
		if werr := w.store.Write(imagePath, rec); werr != nil {
			result.Error = fmt.Sprintf("save annotation: %v", werr)
			return result
		}
	}

	if w.renderer != nil && w.visualizedDir != "" {
		destPath := filepath.Join(w.visualizedDir, frameID+"_vis.jpg")
		if rerr := w.renderer.Render(imagePath, dets, destPath); rerr != nil {
			w.logger.WarnContext(ctx, "preview render failed",
				"frame_id", frameID,
				"error", rerr)
		} else {
			result.VisualizedPath = destPath
		}
	}

	result.Detections = dets
	return result
}

// refine upgrades generic sign labels in place. A refinement failure keeps
// the generic label rather than failing the frame.
func (w *worker) refine(ctx context.Context, frameID, imagePath string, dets []domain.Detection) {
	for i := range dets {
		if dets[i].Label != genericSignLabel {
			continue
		}

		var refined string
		err := retry.Do(ctx, w.retryCfg, func() error {
			var cerr error
			refined, cerr = w.classifier.ClassifySign(ctx, imagePath, dets[i].BBox)
			return cerr
		}, w.observer(frameID))
		if err != nil {
			w.logger.WarnContext(ctx, "sign refinement failed, keeping generic label",
				"frame_id", frameID,
				"error", err)
			continue
		}
		if refined != "" {
			dets[i].Label = refined
		}
	}
}

func (w *worker) observer(frameID string) retry.Observer {
	return func(attempt int, err error) {
		w.logger.Debug("frame attempt failed, retrying",
			"frame_id", frameID,
			"attempt", attempt,
			"error", err)
	}
}
