package log

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
)

// Logger is the main logging interface. Child loggers created with With
// share the parent's buffer and level.
type Logger struct {
	level      *atomic.Int32
	buffer     *Buffer
	baseFields map[string]any
}

// New creates a logger with the given minimum level, delivering through a
// buffer with default batching.
func New(level Level, transporters ...Transporter) *Logger {
	return NewWithConfig(level, BufferConfig{}, transporters...)
}

// NewWithConfig creates a logger whose buffer batches according to cfg.
func NewWithConfig(level Level, cfg BufferConfig, transporters ...Transporter) *Logger {
	lvl := new(atomic.Int32)
	lvl.Store(int32(level))
	return &Logger{
		level:      lvl,
		buffer:     NewBuffer(cfg, transporters...),
		baseFields: make(map[string]any),
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// SetLevel changes the minimum log level for this logger and its children.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// With creates a child logger with additional base fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	fields := make(map[string]any, len(l.baseFields)+len(keysAndValues)/2)
	for k, v := range l.baseFields {
		fields[k] = v
	}
	mergeFields(fields, keysAndValues)

	return &Logger{
		level:      l.level,
		buffer:     l.buffer,
		baseFields: fields,
	}
}

// Dropped reports how many entries the underlying buffer has discarded.
func (l *Logger) Dropped() int64 {
	return l.buffer.DroppedCount()
}

// Close flushes remaining entries and closes the transporters.
func (l *Logger) Close() error {
	return l.buffer.Close()
}

func (l *Logger) log(ctx context.Context, level Level, msg string, keysAndValues []any) {
	if !l.Level().Enables(level) {
		return
	}

	entry := NewEntry(level, msg)
	entry.Caller = caller(3)

	for k, v := range l.baseFields {
		entry.Fields[k] = v
	}
	if ctx != nil {
		entry.RequestID = RequestIDFromContext(ctx)
		for k, v := range FieldsFromContext(ctx) {
			entry.Fields[k] = v
		}
	}
	mergeFields(entry.Fields, keysAndValues)

	l.buffer.Send(*entry)
}

// caller returns file:line of the frame skip levels up.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Trace logs at Trace level.
func (l *Logger) Trace(msg string, keysAndValues ...any) { l.log(nil, Trace, msg, keysAndValues) }

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) { l.log(nil, Debug, msg, keysAndValues) }

// Info logs at Info level.
func (l *Logger) Info(msg string, keysAndValues ...any) { l.log(nil, Info, msg, keysAndValues) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) { l.log(nil, Warn, msg, keysAndValues) }

// Error logs at Error level.
func (l *Logger) Error(msg string, keysAndValues ...any) { l.log(nil, Error, msg, keysAndValues) }

// Fatal logs at Fatal level. It does not exit.
func (l *Logger) Fatal(msg string, keysAndValues ...any) { l.log(nil, Fatal, msg, keysAndValues) }

// DebugCtx logs at Debug level with request id and fields from ctx.
func (l *Logger) DebugCtx(ctx context.Context, msg string, keysAndValues ...any) {
	l.log(ctx, Debug, msg, keysAndValues)
}

// InfoCtx logs at Info level with request id and fields from ctx.
func (l *Logger) InfoCtx(ctx context.Context, msg string, keysAndValues ...any) {
	l.log(ctx, Info, msg, keysAndValues)
}

// WarnCtx logs at Warn level with request id and fields from ctx.
func (l *Logger) WarnCtx(ctx context.Context, msg string, keysAndValues ...any) {
	l.log(ctx, Warn, msg, keysAndValues)
}

// ErrorCtx logs at Error level with request id and fields from ctx.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, keysAndValues ...any) {
	l.log(ctx, Error, msg, keysAndValues)
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex

	noopOnce   sync.Once
	noopLogger *Logger
)

// SetDefault sets the global default logger.
func SetDefault(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Default returns the global logger, or a shared logger that discards
// everything when none is set.
func Default() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	noopOnce.Do(func() {
		noopLogger = New(Fatal+1, noopTransporter{})
	})
	return noopLogger
}

type noopTransporter struct{}

func (noopTransporter) Name() string      { return "noop" }
func (noopTransporter) Write(Entry) error { return nil }
func (noopTransporter) Close() error      { return nil }
