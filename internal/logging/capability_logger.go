package logging

import "log/slog"

// SlogAdapter wraps a *slog.Logger to satisfy capability.Logger, so the
// dispatcher can inject the same structured logger it uses for its own
// operational logs into Logged callables, without the capability package
// depending on log/slog directly.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. A nil logger falls back to Op().
func NewSlogAdapter(logger *slog.Logger) SlogAdapter {
	if logger == nil {
		logger = Op()
	}
	return SlogAdapter{logger: logger}
}

func (a SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
