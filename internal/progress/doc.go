// Package progress carries per-item progress events from the work pools to
// pluggable sinks. Emitters never block: events are buffered by a Hub and
// flushed in batches on a background goroutine.
package progress
