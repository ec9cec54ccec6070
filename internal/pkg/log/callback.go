// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/zapcore"
)

type CallbackFn func(entry zapcore.Entry, fields []zapcore.Field)

// callbackCore calls the callback for each log record, it is used to bridge 3rd party zap loggers.
type callbackCore struct {
	zapcore.LevelEnabler
	fields   []zapcore.Field
	callback CallbackFn
}

// NewCallbackCore creates a zap core, which calls the callback for each record.
func NewCallbackCore(fn CallbackFn) zapcore.Core {
	return &callbackCore{LevelEnabler: DebugLevel, callback: fn}
}

// NewCallbackLogger creates a Logger, which calls the callback for each record.
func NewCallbackLogger(fn CallbackFn) Logger {
	return loggerFromZapCore(NewCallbackCore(fn))
}

func (c *callbackCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *callbackCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *callbackCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := fields
	if len(c.fields) > 0 {
		all = append(append([]zapcore.Field{}, c.fields...), fields...)
	}
	c.callback(entry, all)
	return nil
}

func (c *callbackCore) Sync() error {
	return nil
}
