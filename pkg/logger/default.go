package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	mu     *sync.Mutex
	base   *zerolog.Logger
	fields []Field
	format string
}

// New creates a logger writing to stdout. format is "json" or "text".
func New(level LogLevel, format string) *ZerologLogger {
	l := &ZerologLogger{
		mu:     &sync.Mutex{},
		format: format,
	}
	zl := zerolog.New(l.writer(os.Stdout)).Level(toZerolog(level)).With().Timestamp().Logger()
	l.base = &zl
	return l
}

// NewNop returns a logger that discards everything.
func NewNop() *ZerologLogger {
	zl := zerolog.Nop()
	return &ZerologLogger{
		mu:     &sync.Mutex{},
		base:   &zl,
		format: "json",
	}
}

func (l *ZerologLogger) writer(w io.Writer) io.Writer {
	if l.format == "text" {
		return zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}
	}
	return w
}

// Debug logs a debug message
func (l *ZerologLogger) Debug(msg string, fields ...Field) {
	l.emit(l.current().Debug(), msg, fields)
}

// Info logs an info message
func (l *ZerologLogger) Info(msg string, fields ...Field) {
	l.emit(l.current().Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZerologLogger) Warn(msg string, fields ...Field) {
	l.emit(l.current().Warn(), msg, fields)
}

// Error logs an error message
func (l *ZerologLogger) Error(msg string, fields ...Field) {
	l.emit(l.current().Error(), msg, fields)
}

// With creates a child logger with additional fields
func (l *ZerologLogger) With(fields ...Field) Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	return &ZerologLogger{
		mu:     l.mu,
		base:   l.base,
		fields: newFields,
		format: l.format,
	}
}

// SetLevel sets the minimum log level. Children created with With share the change.
func (l *ZerologLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.base = l.base.Level(toZerolog(level))
}

// SetOutput sets the output writer
func (l *ZerologLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.base = l.base.Output(l.writer(w))
}

func (l *ZerologLogger) current() *zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	zl := *l.base
	return &zl
}

func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range l.fields {
		ev = addField(ev, f)
	}
	for _, f := range fields {
		ev = addField(ev, f)
	}
	ev.Msg(msg)
}

func addField(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case nil:
		return ev
	case error:
		return ev.AnErr(f.Key, v)
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Dur(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}
