// Package domain contains the core entities and value objects of the
// annotation pipeline: tasks, frame results, detections, review issues
// and per-task statistics. It is independent of any transport, storage
// or model-provider concern.
package domain
