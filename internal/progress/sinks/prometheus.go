package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/story-crawler/internal/progress"
)

// PrometheusSink counts journal entries by level and tracks when the last
// entry of each level was emitted.
type PrometheusSink struct {
	entries   *prometheus.CounterVec
	lastEntry *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storycrawler_journal_entries_total",
			Help: "Batch journal entries emitted, labeled by level.",
		}, []string{"level"}),
		lastEntry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storycrawler_journal_last_entry_timestamp_seconds",
			Help: "Unix time of the most recent journal entry, labeled by level.",
		}, []string{"level"}),
	}
	for _, collector := range []prometheus.Collector{s.entries, s.lastEntry} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register journal collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Entry) error {
	for _, e := range batch {
		level := string(e.Level)
		s.entries.WithLabelValues(level).Inc()
		s.lastEntry.WithLabelValues(level).Set(float64(e.Time.Unix()))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
