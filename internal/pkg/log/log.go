// Package log provides the context-aware structured Logger used by all components of the node.
//
// The implementation wraps zap. Attributes are OpenTelemetry attributes, they come from
// Logger.With calls and from the context, see the ctxattr package.
// A message may contain an <attribute.key> placeholder, it is replaced by the attribute value.
package log

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

const (
	componentKey = "component"
	durationKey  = "duration"
)

type Logger interface {
	Debug(ctx context.Context, message string)
	Info(ctx context.Context, message string)
	Warn(ctx context.Context, message string)
	Error(ctx context.Context, message string)
	// Log writes the message with a level name, for example "warn", unknown names are logged as info.
	Log(ctx context.Context, level string, message string)

	Debugf(ctx context.Context, template string, args ...any)
	Infof(ctx context.Context, template string, args ...any)
	Warnf(ctx context.Context, template string, args ...any)
	Errorf(ctx context.Context, template string, args ...any)
	Logf(ctx context.Context, level string, template string, args ...any)

	// With returns a child logger, the attributes are added to each record.
	With(attrs ...attribute.KeyValue) Logger
	// WithComponent returns a child logger, nested components are joined by a dot.
	WithComponent(component string) Logger
	WithDuration(v time.Duration) Logger

	Sync() error
}
