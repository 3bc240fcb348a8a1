package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// AsyncProcessor labels frames with one goroutine per frame behind a
// weighted semaphore. The permit count bounds in-flight frames the same
// way a pool does, but a goroutine parked in a retry wait costs only its
// permit, and dispatch keeps admitting frames the moment one frees up.
type AsyncProcessor struct {
	deps Deps
}

// NewAsync creates a semaphore-based processor.
//
// Parameters:
//   - deps: the processor collaborators. Logger, Bus and Detector are
//     required.
//
// Returns:
//   - *AsyncProcessor: the configured processor.
//   - error: if a required dependency is missing.
func NewAsync(deps Deps) (*AsyncProcessor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &AsyncProcessor{deps: deps}, nil
}

// Process implements Processor.
func (p *AsyncProcessor) Process(ctx context.Context, task *domain.Task, run Run) (Summary, error) {
	return process(ctx, p.deps, task, run, dispatchAsync)
}

func dispatchAsync(ctx context.Context, task *domain.Task, w *worker, frames []string, permits int) {
	sem := semaphore.NewWeighted(int64(permits))

	var wg sync.WaitGroup
	for _, path := range frames {
		if ctx.Err() != nil || task.StopRequested() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			w.label(ctx, path)
		}(path)
	}
	wg.Wait()
}
