package service

import "log/slog"

// LogSink is the diagnostic sink: a progress channel and an error channel.
type LogSink struct {
	out *slog.Logger
	err *slog.Logger
}

// NewLogSink creates a LogSink writing progress to out and failures to errLog.
func NewLogSink(out, errLog *slog.Logger) *LogSink {
	return &LogSink{
		out: out.With("component", "orchestrator"),
		err: errLog.With("component", "orchestrator"),
	}
}

// Info writes to the progress channel.
func (s *LogSink) Info(msg string, args ...any) {
	s.out.Info(msg, args...)
}

// Error writes to the error channel.
func (s *LogSink) Error(msg string, args ...any) {
	s.err.Error(msg, args...)
}
