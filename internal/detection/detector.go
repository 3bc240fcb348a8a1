package detection

import (
	"context"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// Detector locates traffic-scene objects in a single image. Implementations
// make one remote call per invocation; retry policy lives with the caller.
//
// A returned error may implement StatusCode() int and RetryAfter()
// time.Duration, which the retry executor uses to recognize rate limiting
// and honor server backoff hints.
type Detector interface {
	// Detect returns the labeled detections found in the image, in pixel
	// coordinates. An empty slice means the scene contained nothing of
	// interest.
	Detect(ctx context.Context, imagePath string) ([]domain.Detection, error)
}

// SignClassifier refines a generic traffic_sign detection into a concrete
// sign label by inspecting a crop of the detection.
type SignClassifier interface {
	// ClassifySign returns the refined label for the sign inside box.
	// Implementations fall back to "traffic_sign" when classification
	// cannot improve on the generic label.
	ClassifySign(ctx context.Context, imagePath string, box domain.BBox) (string, error)
}

// Auditor performs a model-based completeness review of a finished frame.
type Auditor interface {
	// ReviewFrame asks the model whether the detections cover the scene.
	// It returns the model's finding text, or "" when the frame looks
	// complete.
	ReviewFrame(ctx context.Context, imagePath string, dets []domain.Detection) (string, error)
}

// Extractor turns a video into numbered frame images on disk.
type Extractor interface {
	// Extract decodes the source video at the given sample rate into
	// destDir using the naming prefix, reporting progress in [0, 1] while
	// it runs. It returns the ordered list of extracted frame paths.
	Extract(ctx context.Context, source string, fps int, destDir, prefix string, onProgress func(float64)) ([]string, error)
}
