// Package log provides structured logging with merge target context.
//
// Every entry is a JSON object carrying the target fields, so logs from
// the merge engine and the CLI can be correlated per output.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Target identifies the artifact a logger reports on.
// Every log entry carries these fields.
type Target struct {
	// Path is the output file or directory.
	Path string
	// Mode is "file" or "directory".
	Mode string
	// Total is the fixed segment count, zero when not yet known.
	Total uint64
}

// Logger provides structured logging with target context.
type Logger struct {
	zap    *zap.Logger
	level  zap.AtomicLevel
	target Target
}

// NewLogger creates a new logger with target context.
// Output defaults to os.Stderr at info level.
func NewLogger(target Target) *Logger {
	return newLoggerWithWriter(target, os.Stderr, zap.NewAtomicLevelAt(zapcore.InfoLevel))
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with the same target writing to w.
// The level is shared with the receiver.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newLoggerWithWriter(l.target, w, l.level)
}

// SetLevel changes the minimum level ("debug", "info", "warn", "error").
func (l *Logger) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.level.SetLevel(lvl)
	return nil
}

func newLoggerWithWriter(target Target, w io.Writer, level zap.AtomicLevel) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	contextFields := []zap.Field{
		zap.String("target", target.Path),
	}
	if target.Mode != "" {
		contextFields = append(contextFields, zap.String("mode", target.Mode))
	}
	if target.Total > 0 {
		contextFields = append(contextFields, zap.Uint64("total", target.Total))
	}

	return &Logger{zap: zap.New(core).With(contextFields...), level: level, target: target}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
