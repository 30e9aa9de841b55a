// Package sinks implements journal consumers: structured logging, Prometheus
// counters and document-store persistence. Each sink satisfies progress.Sink.
package sinks
