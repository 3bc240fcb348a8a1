// Package task manages the lifecycle of annotation tasks. The Manager is
// the process-wide registry: it creates tasks from an image prefix or a
// library video, hands them to the engine on their own goroutine, stops
// them cooperatively, and serves lookups for the API layer. Registry
// mutations happen under the manager's lock; task content is mutated only
// by the engine goroutine that owns the run.
package task
