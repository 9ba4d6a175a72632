package dispatcher

import (
	"context"

	"github.com/oriys/callmq/internal/capability"
)

type contextKey int

const (
	loggerKey contextKey = iota
	serviceLocatorKey
)

// WithLogger attaches a capability.Logger to ctx for the logging-init stage
// to pick up when the decoded callable implements capability.Logged.
func WithLogger(ctx context.Context, logger capability.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger attached by WithLogger, if any.
func LoggerFromContext(ctx context.Context) (capability.Logger, bool) {
	l, ok := ctx.Value(loggerKey).(capability.Logger)
	return l, ok
}

// WithServiceLocator attaches a capability.ServiceLocator to ctx for the
// dependency-init stage to pick up when the decoded callable implements
// capability.DependencyBound.
func WithServiceLocator(ctx context.Context, locator capability.ServiceLocator) context.Context {
	return context.WithValue(ctx, serviceLocatorKey, locator)
}

// ServiceLocatorFromContext returns the locator attached by
// WithServiceLocator, if any.
func ServiceLocatorFromContext(ctx context.Context) (capability.ServiceLocator, bool) {
	l, ok := ctx.Value(serviceLocatorKey).(capability.ServiceLocator)
	return l, ok
}
