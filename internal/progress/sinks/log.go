package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/progress"
)

// LogSink mirrors journal entries into the service log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("journal")}
}

// Consume logs each entry; error entries are logged at error level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Entry) error {
	for _, e := range batch {
		fields := []zap.Field{
			zap.String("run_id", e.RunID.String()),
			zap.String("level", string(e.Level)),
			zap.Time("at", e.Time),
		}
		if e.URL != "" {
			fields = append(fields, zap.String("url", e.URL))
		}
		if e.Level == progress.LevelError {
			s.logger.Error(e.Message, fields...)
			continue
		}
		s.logger.Info(e.Message, fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
