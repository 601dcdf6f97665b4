// Package logging provides the small level-gated logger bqlog uses for its
// own internal diagnostics (buffer lifecycle, recovery, dropped entries).
// It is intentionally not a general-purpose logging facade: callers that
// want structured or sink-routed logging plug in through bqlog's own
// Sink/Observer interfaces, not through this package.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger wraps the standard library log.Logger with level support and
// key/value field formatting.
type Logger struct {
	logger *log.Logger
	level  Level
	mu     sync.Mutex
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Level represents the available log levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger construction options.
type Config struct {
	Level  Level
	Output io.Writer
}

// DefaultConfig returns the configuration used when NewLogger is called
// with nil: Info level, writing to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// NewLogger builds a Logger from config, falling back to DefaultConfig
// for a nil config or a nil Output.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		logger: log.New(output, "", log.LstdFlags),
		level:  config.Level,
	}
}

// Default returns the package-level default logger, lazily creating one
// at Info level writing to stderr.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the package-level default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// formatFields renders key/value pairs as "k=v k2=v2", used to attach
// structured context (category, sequence, dropped count) to a log line.
func formatFields(fields []any) string {
	if len(fields) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", fields[i], fields[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) log(level Level, prefix, msg string, fields ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("%s %s%s", prefix, msg, formatFields(fields))
}

func (l *Logger) Debug(msg string, fields ...any) { l.log(LevelDebug, "[DEBUG]", msg, fields...) }
func (l *Logger) Info(msg string, fields ...any)  { l.log(LevelInfo, "[INFO]", msg, fields...) }
func (l *Logger) Warn(msg string, fields ...any)  { l.log(LevelWarn, "[WARN]", msg, fields...) }
func (l *Logger) Error(msg string, fields ...any) { l.log(LevelError, "[ERROR]", msg, fields...) }

func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf logs at Info level, matching the interfaces.Logger contract used
// by internal packages that only need a narrow logging surface.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Package-level convenience functions operating on Default().

func Debug(msg string, fields ...any) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...any)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...any)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...any) { Default().Error(msg, fields...) }
