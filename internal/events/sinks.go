package events

import (
	"context"

	"go.uber.org/zap"
)

// LogSink mirrors every event into the structured log. Used on its own in
// dry runs and alongside the redis publisher in production.
type LogSink struct{ log *zap.Logger }

func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	fields := make([]zap.Field, 0, len(ev.Fields)+1)
	fields = append(fields, zap.Time("at", ev.At))
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	s.log.Info(ev.Kind, fields...)
	return nil
}

// MultiSink fans out to several sinks; the first failure wins but later
// sinks still run.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
