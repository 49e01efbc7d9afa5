// Package progress carries archive-run milestones from the book manager to
// pluggable sinks. The Hub buffers events on a background goroutine, groups them
// into batches, and hands each batch to every sink (logs, Prometheus, progress
// bars, the archive catalog, and the notification publisher).
package progress
