// Package logger is the structured logger shared by every client component.
// Channels, stores and players receive a Logger and scope it with With.
package logger

import (
	"io"
	"strings"
	"time"
)

// LogLevel is the minimum severity a logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel

	// Disabled suppresses all output
	Disabled
)

var levelNames = map[LogLevel]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
	Disabled:   "disabled",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLevel maps a config or env value to a level. Unrecognised values
// fall back to InfoLevel.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "off", "disabled", "none":
		return Disabled
	default:
		return InfoLevel
	}
}

// Field is one key/value pair attached to an entry
type Field struct {
	Key   string
	Value interface{}
}

// Logger is implemented by ZerologLogger
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child that prefixes every entry with fields
	With(fields ...Field) Logger

	SetLevel(level LogLevel)
	SetOutput(w io.Writer)
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err attaches err under the "error" key; a nil error adds nothing
func Err(err error) Field { return Field{Key: "error", Value: err} }
