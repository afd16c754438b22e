package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/progress"
)

// LogSink writes settled items as structured log lines. Start events are
// logged at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("pool", evt.Pool),
			zap.String("key", evt.Key),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Stage.Terminal() {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageItemStart:
			s.logger.Debug("item progress", fields...)
		case progress.StageItemError:
			s.logger.Warn("item progress", fields...)
		default:
			s.logger.Info("item progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
