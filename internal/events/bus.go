package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// defaultBufferSize is the per-subscriber queue depth used when the caller
// does not pick one.
const defaultBufferSize = 256

// Subscription is one consumer's private event queue. Events arrive in
// publish order; when the queue is full, new events for this subscriber are
// dropped rather than blocking the publisher.
type Subscription struct {
	taskID string
	ch     chan Event
	closed bool
}

// Events returns the receive side of the queue. The channel is closed when
// the subscription is removed from the bus.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// TaskID returns the task this subscription follows, or "" for a global
// subscription.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Bus fans pipeline events out to task-scoped and global subscribers.
type Bus struct {
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	byTask map[string]map[*Subscription]struct{}
	global map[*Subscription]struct{}

	dropped atomic.Uint64
}

// NewBus creates a bus whose subscriber queues hold buffer events each.
// A non-positive buffer selects the default depth.
func NewBus(logger *slog.Logger, buffer int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Bus{
		logger: logger.With("component", "event_bus"),
		buffer: buffer,
		byTask: make(map[string]map[*Subscription]struct{}),
		global: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a consumer. A non-empty taskID scopes delivery to
// that task's events; an empty taskID receives every event on the bus.
func (b *Bus) Subscribe(taskID string) *Subscription {
	sub := &Subscription{
		taskID: taskID,
		ch:     make(chan Event, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if taskID == "" {
		b.global[sub] = struct{}{}
	} else {
		set, ok := b.byTask[taskID]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.byTask[taskID] = set
		}
		set[sub] = struct{}{}
	}

	b.logger.Debug("subscriber added", "task_id", taskID)
	return sub
}

// Unsubscribe removes the consumer and closes its queue. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}

	if sub.taskID == "" {
		delete(b.global, sub)
	} else if set, ok := b.byTask[sub.taskID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.byTask, sub.taskID)
		}
	}

	sub.closed = true
	close(sub.ch)
}

// ClearTask drops every subscription scoped to the given task, closing
// their queues. Global subscribers are unaffected.
func (b *Bus) ClearTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.byTask[taskID] {
		sub.closed = true
		close(sub.ch)
	}
	delete(b.byTask, taskID)
}

// Publish delivers the event to the task's subscribers and to all global
// subscribers. Delivery to each queue is non-blocking: a full queue counts
// a drop for that subscriber and the publisher moves on. Events published
// from a single goroutine arrive at each subscriber in publish order.
func (b *Bus) Publish(ev Event) {
	// The read lock is held across delivery so a concurrent Unsubscribe
	// cannot close a queue mid-send. Sends never block, so the hold is
	// short.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.byTask[ev.TaskID] {
		b.deliver(sub, ev)
	}
	for sub := range b.global {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
	default:
		b.dropped.Add(1)
		b.logger.Debug("event dropped for slow subscriber",
			"type", ev.Type,
			"task_id", ev.TaskID)
	}
}

// Dropped returns the number of events discarded because a subscriber
// queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the current number of subscriptions on the bus.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.global)
	for _, set := range b.byTask {
		n += len(set)
	}
	return n
}
