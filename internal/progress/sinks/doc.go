// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, terminal progress bars, the Postgres archive catalog, and
// chapter-archived notifications.
package sinks
