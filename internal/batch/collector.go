package batch

import (
	"log/slog"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
)

// collector is the single goroutine that folds worker results into the
// task and publishes events. Funneling all task mutation through one
// goroutine keeps the per-task event stream ordered and lets the rule
// reviewer keep temporal state without locks.
type collector struct {
	logger   *slog.Logger
	bus      *events.Bus
	task     *domain.Task
	reviewer Reviewer

	success int
	failed  int
	objects int
}

func (c *collector) run(msgs <-chan message) {
	for msg := range msgs {
		switch msg.kind {
		case msgStarted:
			c.bus.Publish(events.New(events.TypeFrameStarted, c.task.ID,
				events.FrameStartedPayload{FrameID: msg.frameID}))
		case msgDone:
			c.finish(msg.result)
		}
	}
}

func (c *collector) finish(result domain.FrameResult) {
	if result.Failed() {
		c.failed++
		c.task.ApplyResult(result)
		c.logger.Warn("frame failed",
			"task_id", c.task.ID,
			"frame_id", result.FrameID,
			"error", result.Error)
		c.bus.Publish(events.New(events.TypeFrameError, c.task.ID,
			events.FrameErrorPayload{FrameID: result.FrameID, Error: result.Error}))
		return
	}

	// Rule review runs here rather than in the worker so the temporal
	// checks observe frames in completion order.
	if c.reviewer != nil {
		issues := c.reviewer.Review(result.FrameID, result.ImagePath, result.Detections)
		result.Issues = append(result.Issues, issues...)
	}

	c.success++
	c.objects += len(result.Detections)
	c.task.ApplyResult(result)

	total, completed, _ := c.task.Counters()
	c.bus.Publish(events.New(events.TypeFrameCompleted, c.task.ID,
		events.FrameCompletedPayload{
			Frame:     result,
			Progress:  c.task.Progress(),
			Completed: completed,
			Total:     total,
		}))
	c.bus.Publish(events.New(events.TypeStatsUpdate, c.task.ID,
		events.StatsUpdatePayload{Stats: c.task.Stats()}))

	for _, issue := range result.Issues {
		c.bus.Publish(events.New(events.TypeIssueDetected, c.task.ID,
			events.IssueDetectedPayload{Issue: issue}))
	}
}
