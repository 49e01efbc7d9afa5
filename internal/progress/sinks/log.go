package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Chapter failures are logged at Warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("book", evt.Book),
		}
		switch evt.Stage {
		case progress.StageChapterDone, progress.StageChapterError:
			fields = append(fields,
				zap.Uint16("chapter", evt.Chapter),
				zap.String("url", evt.URL),
				zap.Int("contents", evt.Contents),
			)
		case progress.StageBookStart, progress.StageBookDone:
			fields = append(fields, zap.Int("total", evt.Total))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageChapterError {
			s.logger.Warn("Chapter failed", fields...)
			continue
		}
		s.logger.Info("Progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
