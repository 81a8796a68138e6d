package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/a11ycrawl/internal/progress"
)

// LogSink writes one structured log line per progress event. Page failures
// log at warn level; everything else at info.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("crawl_id", evt.CrawlUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageAnalyzed:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("depth", evt.Depth),
				zap.Int("errors", evt.Errors),
				zap.Int("warnings", evt.Warnings),
				zap.Int("notices", evt.Notices),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StagePageFailed, progress.StageRenderFailed:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("depth", evt.Depth),
				zap.String("note", evt.Note),
			)
		case progress.StageCrawlDone, progress.StageCrawlError:
			fields = append(fields,
				zap.Int64("pages", evt.Pages),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		default:
			fields = append(fields, zap.String("url", evt.URL))
		}
		s.logger.Log(levelFor(evt.Stage), "progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StagePageFailed, progress.StageRenderFailed:
		return zapcore.WarnLevel
	case progress.StageCrawlError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
