package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write human-readable lines to
// stderr with microsecond timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = newLogger(consoleWriter(os.Stderr), zerolog.InfoLevel)
	})
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02T15:04:05.000000Z07:00",
		NoColor:    true,
	}
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Configure switches output format ("json" or "console") and destination.
func Configure(w io.Writer, format string, l Level) {
	initLogger()
	if w == nil {
		w = os.Stderr
	}
	if !strings.EqualFold(format, "json") {
		w = consoleWriter(w)
	}
	mu.Lock()
	logger = newLogger(w, toZerolog(l))
	mu.Unlock()
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	current().Debug().Fields(kvFields(kv)).Msg(msg)
}

func Info(msg string, kv ...any) {
	current().Info().Fields(kvFields(kv)).Msg(msg)
}

func Warn(msg string, kv ...any) {
	current().Warn().Fields(kvFields(kv)).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	current().Error().Err(err).Fields(kvFields(kv)).Msg(msg)
}

func current() *zerolog.Logger {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// kvFields keeps only well-formed key/value pairs; a trailing odd value is
// ignored.
func kvFields(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		if _, ok := kv[i].(string); !ok {
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

// CronLogger adapts the package logger to the cron.Logger interface.
func CronLogger() cronLogger {
	return cronLogger{}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	Error("cron: "+msg, err, keysAndValues...)
}
