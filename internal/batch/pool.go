package batch

import (
	"context"
	"sync"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
)

// PoolProcessor labels frames with a fixed pool of workers fed from a
// channel. Each worker handles one frame at a time, so a frame sitting in
// a retry wait occupies its pool slot until it finishes.
type PoolProcessor struct {
	deps Deps
}

// NewPool creates a pool-based processor.
//
// Parameters:
//   - deps: the processor collaborators. Logger, Bus and Detector are
//     required.
//
// Returns:
//   - *PoolProcessor: the configured processor.
//   - error: if a required dependency is missing.
func NewPool(deps Deps) (*PoolProcessor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &PoolProcessor{deps: deps}, nil
}

// Process implements Processor.
func (p *PoolProcessor) Process(ctx context.Context, task *domain.Task, run Run) (Summary, error) {
	return process(ctx, p.deps, task, run, dispatchPool)
}

func dispatchPool(ctx context.Context, task *domain.Task, w *worker, frames []string, workers int) {
	jobs := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				w.label(ctx, path)
			}
		}()
	}

	for _, path := range frames {
		if ctx.Err() != nil || task.StopRequested() {
			break
		}
		jobs <- path
	}
	close(jobs)
	wg.Wait()
}
