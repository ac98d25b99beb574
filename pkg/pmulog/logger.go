package pmulog

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger      // info
var traceLogger *zap.Logger // per-frame trace
var errorLogger *zap.Logger
var warnLogger *zap.Logger
var panicLogger *zap.Logger
var atom = zap.NewAtomicLevel()

var opts *Options
var configureOnce sync.Once

func Configure(op *Options) {
	atom.SetLevel(op.Level)
	opts = op

	loggerOpts := make([]zap.Option, 0)
	if opts.LineNum {
		loggerOpts = append(loggerOpts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	writers := make([]zapcore.WriteSyncer, 0)
	if !opts.NoStdout {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}

	logger = newLogger("info.log", writers, atom, loggerOpts...)
	traceLogger = newLogger("trace.log", writers, atom, loggerOpts...)
	errorLogger = newLogger("error.log", writers, zap.ErrorLevel, loggerOpts...)
	warnLogger = newLogger("warn.log", writers, zap.WarnLevel, loggerOpts...)
	panicLogger = newLogger("panic.log", writers, zap.PanicLevel, append(loggerOpts, zap.AddStacktrace(zapcore.PanicLevel))...)
}

func newLogger(file string, writers []zapcore.WriteSyncer, level zapcore.LevelEnabler, options ...zap.Option) *zap.Logger {
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path.Join(opts.LogDir, file),
		MaxSize:    500, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	})
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(newEncoderConfig()),
		zapcore.NewMultiWriteSyncer(append(append([]zapcore.WriteSyncer{}, writers...), fileWriter)...),
		level,
	)
	return zap.New(core, options...)
}

func ensureConfigured() {
	configureOnce.Do(func() {
		if logger == nil {
			Configure(NewOptions())
		}
	})
}

func Level() zapcore.Level {
	ensureConfigured()
	return opts.Level
}

// SetLevel changes the level of the info and trace loggers at runtime.
func SetLevel(l zapcore.Level) {
	ensureConfigured()
	atom.SetLevel(l)
	opts.Level = l
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "time",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "linenum",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeCaller:  zapcore.FullCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02T15:04:05.999999999-07:00"))
		},
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendInt64(int64(d) / 1000000)
		},
	}
}

// Info Info
func Info(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Info(msg, fields...)
}

// Trace Trace
func Trace(msg string, fields ...zap.Field) {
	ensureConfigured()
	traceLogger.Info(msg, fields...)
}

// Debug Debug
func Debug(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Debug(msg, fields...)
}

// Error Error
func Error(msg string, fields ...zap.Field) {
	ensureConfigured()
	errorLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	ensureConfigured()
	panicLogger.Fatal(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {
	ensureConfigured()
	panicLogger.Panic(msg, fields...)
}

// Warn Warn
func Warn(msg string, fields ...zap.Field) {
	ensureConfigured()
	warnLogger.Warn(msg, fields...)
}

func Sync() error {
	ensureConfigured()
	for name, l := range map[string]*zap.Logger{
		"panicLogger": panicLogger,
		"errorLogger": errorLogger,
		"warnLogger":  warnLogger,
		"traceLogger": traceLogger,
		"logger":      logger,
	} {
		if err := l.Sync(); err != nil {
			fmt.Println(name, "sync error", err)
		}
	}
	return nil
}

// Log is embedded by codec and service components.
type Log interface {
	Info(msg string, fields ...zap.Field)
	Trace(msg string, action string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	Panic(msg string, fields ...zap.Field)
}

// PmuLog prefixes every message with the owning component name.
type PmuLog struct {
	prefix string
}

// NewPmuLog NewPmuLog
func NewPmuLog(prefix string) *PmuLog {

	return &PmuLog{prefix: prefix}
}

func (t *PmuLog) withPrefix(msg string) string {
	var b strings.Builder
	b.Grow(len(t.prefix) + len(msg) + 2)
	b.WriteString("[")
	b.WriteString(t.prefix)
	b.WriteString("]")
	b.WriteString(msg)
	return b.String()
}

// Info Info
func (t *PmuLog) Info(msg string, fields ...zap.Field) {
	Info(t.withPrefix(msg), fields...)
}

// Trace logs a frame-level event to trace.log when tracing is on.
func (t *PmuLog) Trace(msg string, action string, fields ...zap.Field) {
	ensureConfigured()
	if !opts.TraceOn {
		return
	}
	fields = append(fields, zap.Int("trace", 1), zap.String("action", action))
	Trace(t.withPrefix(msg), fields...)
}

// Debug Debug
func (t *PmuLog) Debug(msg string, fields ...zap.Field) {
	Debug(t.withPrefix(msg), fields...)
}

// Error Error
func (t *PmuLog) Error(msg string, fields ...zap.Field) {
	Error(t.withPrefix(msg), fields...)
}

// Warn Warn
func (t *PmuLog) Warn(msg string, fields ...zap.Field) {
	Warn(t.withPrefix(msg), fields...)
}

func (t *PmuLog) Fatal(msg string, fields ...zap.Field) {
	Fatal(t.withPrefix(msg), fields...)
}

func (t *PmuLog) Panic(msg string, fields ...zap.Field) {
	Panic(t.withPrefix(msg), fields...)
}
