// Package events defines the pipeline's event vocabulary and the in-process
// bus that fans events out to dashboard subscribers. Subscribers own private
// buffered queues; a publisher never blocks on a slow consumer, it drops the
// event for that subscriber instead.
package events
