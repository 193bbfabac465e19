package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes structured lines through zerolog and, when a collector is
// attached, folds warn/error lines into aggregated batches.
type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

// frames between zerolog's caller lookup and the code that logged
const callerSkip = 4

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(callerSkip).
		Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", target, err)
	}
	return f, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) log(level zerolog.Level, msg string, fields []Field) {
	if ev := l.zl.WithLevel(level); ev != nil {
		for _, f := range fields {
			f.write(ev)
		}
		ev.Msg(msg)
	}

	name := level.String()
	if l.collector == nil || !l.collector.Collects(name) {
		return
	}
	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		values[f.Key] = f.value
	}
	l.collector.AddLog(name, msg, values, callerOf(2))
}

// callerOf returns "dir/file.go:line" for the frame skip levels up.
func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)) + ":" + strconv.Itoa(line)
}

// AddCollector attaches a collector, closing any previous one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// Field is one structured key/value. value is what the collector records.
type Field struct {
	Key   string
	value interface{}
	write func(*zerolog.Event)
}

func String(key, v string) Field {
	return Field{Key: key, value: v, write: func(e *zerolog.Event) { e.Str(key, v) }}
}

func Strings(key string, v []string) Field {
	return Field{Key: key, value: strings.Join(v, ","), write: func(e *zerolog.Event) { e.Strs(key, v) }}
}

func Int(key string, v int) Field {
	return Field{Key: key, value: v, write: func(e *zerolog.Event) { e.Int(key, v) }}
}

func Int64(key string, v int64) Field {
	return Field{Key: key, value: v, write: func(e *zerolog.Event) { e.Int64(key, v) }}
}

func Float64(key string, v float64) Field {
	return Field{Key: key, value: v, write: func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return Field{Key: key, value: v, write: func(e *zerolog.Event) { e.Bool(key, v) }}
}

// Duration logs d in milliseconds.
func Duration(key string, d time.Duration) Field {
	ms := d.Milliseconds()
	return Field{Key: key, value: ms, write: func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Time(key string, t time.Time) Field {
	return Field{Key: key, value: t.Format(time.RFC3339), write: func(e *zerolog.Event) { e.Time(key, t) }}
}

// Date logs t as YYYY-MM-DD in UTC.
func Date(key string, t time.Time) Field {
	return String(key, t.UTC().Format("2006-01-02"))
}

// Error logs err under "error". A nil err is recorded as null.
func Error(err error) Field {
	var v interface{}
	if err != nil {
		v = err.Error()
	}
	return Field{Key: zerolog.ErrorFieldName, value: v, write: func(e *zerolog.Event) { e.Err(err) }}
}
