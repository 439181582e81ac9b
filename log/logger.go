// Package log provides structured logging with run context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for containers, the server client and
//     the registrator (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/canv/types"
)

// Level is a logging severity.
type Level = zapcore.Level

// Severities accepted by ParseLevel.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Logger provides structured logging with run context.
// A nil *Logger discards everything, so library code can take an optional
// logger without nil checks at each call site.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
	ctx   []zap.Field
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger carrying the run's identity fields.
// Output defaults to os.Stderr at info level.
func NewLogger(runMeta *types.RunMeta) *Logger {
	return newLoggerWithWriter(runMeta, os.Stderr, InfoLevel)
}

// NewLoggerWithLevel is NewLogger with a minimum level other than info.
func NewLoggerWithLevel(runMeta *types.RunMeta, lvl Level) *Logger {
	return newLoggerWithWriter(runMeta, os.Stderr, lvl)
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(InfoLevel)}
}

// ParseLevel maps a severity name to a Level. "warning" and "warn" are
// equivalent.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q (want debug, info, warning or error)", s)
	}
}

// LevelName is the inverse of ParseLevel, using "warning" for WarnLevel.
func LevelName(l Level) string {
	if l == WarnLevel {
		return "warning"
	}
	return l.String()
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

func newLoggerWithWriter(runMeta *types.RunMeta, w io.Writer, lvl Level) *Logger {
	var fields []zap.Field
	if runMeta != nil {
		fields = append(fields, zap.String("run_id", runMeta.RunID))
		if runMeta.Input != "" {
			fields = append(fields, zap.String("input", runMeta.Input))
		}
		if runMeta.Output != "" {
			fields = append(fields, zap.String("output", runMeta.Output))
		}
	}
	return build(w, zap.NewAtomicLevelAt(lvl), fields)
}

func build(w io.Writer, level zap.AtomicLevel, fields []zap.Field) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return &Logger{zap: zap.New(core).With(fields...), level: level, ctx: fields}
}

// WithOutput returns a new logger with the same context and level writing
// to w.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		l = Nop()
	}
	return build(w, zap.NewAtomicLevelAt(l.level.Level()), l.ctx)
}

// WithLevel returns a new logger with the same context and output that
// drops entries below lvl.
func (l *Logger) WithLevel(lvl Level) *Logger {
	if l == nil {
		return Nop()
	}
	level := zap.NewAtomicLevelAt(lvl)
	return &Logger{
		zap:   l.zap.WithOptions(zap.IncreaseLevel(level)),
		level: level,
		ctx:   l.ctx,
	}
}

// With returns a logger with an extra context field on every entry.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	f := zap.Any(key, value)
	ctx := append(append([]zap.Field(nil), l.ctx...), f)
	return &Logger{zap: l.zap.With(f), level: l.level, ctx: ctx}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	if l == nil {
		l = Nop()
	}
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
