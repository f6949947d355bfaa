// Package logging provides structured logging with zap.
//
// The console encoder is compact (HH:MM:SS timestamps, single-letter
// levels) so log lines sit comfortably above the floating terminal
// display. The sink is injectable for the same reason: the display
// interleaves log output with its own repaints.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI codes used by the console encoder.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"

	ansiRed          = "\033[31m"
	ansiGray         = "\033[90m"
	ansiBrightYellow = "\033[93m"
	ansiBrightRed    = "\033[91m"
	ansiBrightWhite  = "\033[97m"
)

var (
	globalLogger *zap.Logger
	globalLevel  zap.AtomicLevel
)

// Config holds logging configuration.
type Config struct {
	Level    string    // debug, info, warn, error
	Sink     io.Writer // console destination, defaults to stdout
	Colors   bool      // ANSI colors on the console sink
	FilePath string    // optional file receiving JSON-encoded entries
}

func levelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return ansiGray
	case zapcore.InfoLevel:
		return ansiBrightWhite
	case zapcore.WarnLevel:
		return ansiBrightYellow
	case zapcore.ErrorLevel:
		return ansiBrightRed
	default:
		return ansiRed
	}
}

// consoleEncoder builds the compact terminal encoder: dimmed HH:MM:SS
// time and a single bold level letter (D, I, W, E).
func consoleEncoder(colors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()

	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("15:04:05")
		if colors {
			enc.AppendString(ansiDim + timeStr + ansiReset)
		} else {
			enc.AppendString(timeStr)
		}
	}

	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var letter string
		switch level {
		case zapcore.DebugLevel:
			letter = "D"
		case zapcore.InfoLevel:
			letter = "I"
		case zapcore.WarnLevel:
			letter = "W"
		case zapcore.ErrorLevel:
			letter = "E"
		default:
			letter = "?"
		}
		if colors {
			enc.AppendString(levelColor(level) + ansiBold + letter + ansiReset)
		} else {
			enc.AppendString(letter)
		}
	}

	return zapcore.NewConsoleEncoder(config)
}

// Init initializes the global logger.
func Init(cfg Config) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	globalLevel = zap.NewAtomicLevelAt(level)

	sink := cfg.Sink
	if sink == nil {
		sink = os.Stdout
	}

	core := zapcore.NewCore(consoleEncoder(cfg.Colors), zapcore.AddSync(sink), globalLevel)

	if cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.FilePath, err)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(file),
			globalLevel,
		)
		core = zapcore.NewTee(core, fileCore)
	}

	globalLogger = zap.New(core)
	return nil
}

// InitDefault initializes with plain stdout console settings.
func InitDefault() {
	globalLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(consoleEncoder(false), zapcore.AddSync(os.Stdout), globalLevel)
	globalLogger = zap.New(core)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return
	}
	globalLevel.SetLevel(l)
}

// L returns the global logger.
func L() *zap.Logger {
	if globalLogger == nil {
		InitDefault()
	}
	return globalLogger
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Debug logs a debug message.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs an info message.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a warning message.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs an error message.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// Field helpers for common fields.
func String(key, val string) zap.Field {
	return zap.String(key, val)
}

func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) zap.Field {
	return zap.Int64(key, val)
}

func Uint16(key string, val uint16) zap.Field {
	return zap.Uint16(key, val)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}

func Any(key string, val interface{}) zap.Field {
	return zap.Any(key, val)
}
