// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/go-cluster-filesync/internal/pkg/ctxattr"
)

// zapLogger is the default implementation of the Logger interface.
type zapLogger struct {
	logger    *zap.Logger
	component string
	attrs     []attribute.KeyValue
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{logger: zap.New(core)}
}

func (l *zapLogger) ZapCore() zapcore.Core {
	return l.logger.Core()
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	clone := *l
	clone.attrs = append(append(make([]attribute.KeyValue, 0, len(l.attrs)+len(attrs)), l.attrs...), attrs...)
	return &clone
}

func (l *zapLogger) WithComponent(component string) Logger {
	clone := *l
	if clone.component == "" {
		clone.component = component
	} else {
		clone.component += "." + component
	}
	return &clone
}

func (l *zapLogger) WithDuration(v time.Duration) Logger {
	return l.With(attribute.String(durationKey, v.String()))
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.log(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.log(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.log(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.log(ctx, ErrorLevel, message)
}

func (l *zapLogger) Log(ctx context.Context, level string, message string) {
	l.log(ctx, parseLevel(level), message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.log(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.log(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.log(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.log(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Logf(ctx context.Context, level string, template string, args ...any) {
	l.log(ctx, parseLevel(level), fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, message string) {
	entry := l.logger.Check(level, "")
	if entry == nil {
		return
	}

	// Logger attributes first, context attributes can override them
	attrs := l.attrs
	if ctx != nil {
		attrs = slices.Concat(attrs, ctxattr.Attributes(ctx).ToSlice())
	}
	set := attribute.NewSet(attrs...)

	fields := make([]zap.Field, 0, set.Len()+1)
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		fields = append(fields, attributeToField(kv))
		message = strings.ReplaceAll(message, "<"+string(kv.Key)+">", kv.Value.Emit())
	}
	if l.component != "" {
		fields = append(fields, zap.String(componentKey, l.component))
	}

	entry.Message = message
	entry.Write(fields...)
}

func attributeToField(kv attribute.KeyValue) zap.Field {
	key := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return zap.Bool(key, kv.Value.AsBool())
	case attribute.INT64:
		return zap.Int64(key, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return zap.Float64(key, kv.Value.AsFloat64())
	default:
		return zap.String(key, kv.Value.Emit())
	}
}

func parseLevel(level string) zapcore.Level {
	if l, err := zapcore.ParseLevel(level); err == nil {
		return l
	}
	return InfoLevel
}
