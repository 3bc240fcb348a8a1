// Package batch runs the frame labeling loop for a task: it fans image
// paths out to a bounded set of workers, each of which detects objects,
// optionally refines generic sign labels, samples frames for a deep model
// review, persists the annotation record, and renders a preview. A single
// collector goroutine folds worker results back into the task in completion
// order, runs the rule-based review, and publishes progress events.
//
// Key components:
//
//  1. Processor: the entry point interface. Two implementations share the
//     same worker and collector and differ only in how frames are handed
//     to workers. PoolProcessor feeds a fixed worker pool over a channel;
//     AsyncProcessor spawns one goroutine per frame behind a weighted
//     semaphore, so a frame stuck in a retry wait does not hold up a pool
//     slot.
//
//  2. Worker: the per-frame pipeline. Detection failures are retried with
//     backoff; refinement and preview failures degrade with a warning
//     instead of failing the frame.
//
//  3. Collector: the single goroutine that owns task mutation and event
//     publication, which keeps per-task event order deterministic and lets
//     the rule reviewer carry temporal state without locking.
package batch
