package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"off", Disabled},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestZerologLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(DebugLevel, "json")
	log.SetOutput(&buf)

	child := log.With(String("channel", "public"))
	child.Warn("reconnect scheduled",
		Int("attempt", 2),
		Duration("delay", 2*time.Second),
		Err(errors.New("dial refused")),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}

	if entry["message"] != "reconnect scheduled" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
	if entry["level"] != "warn" {
		t.Errorf("unexpected level: %v", entry["level"])
	}
	if entry["channel"] != "public" {
		t.Errorf("child field missing: %v", entry)
	}
	if entry["error"] != "dial refused" {
		t.Errorf("error field missing: %v", entry)
	}
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(WarnLevel, "text")
	log.SetOutput(&buf)

	log.Info("hidden")
	log.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestNilErrorFieldOmitted(t *testing.T) {
	var buf bytes.Buffer
	log := New(InfoLevel, "json")
	log.SetOutput(&buf)

	log.Info("connected", Err(nil))

	if strings.Contains(buf.String(), `"error"`) {
		t.Errorf("nil error should not be logged: %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.With(String("k", "v")).Error("nothing")
}
