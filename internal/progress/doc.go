// Package progress records the timestamped, leveled entries a batch run emits
// and fans each entry out to pluggable sinks such as structured logs,
// Prometheus metrics or the document store.
package progress
