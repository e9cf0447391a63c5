package logging_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/etsangsplk/metadata-agent/internal/logging"
)

func TestDiscardDropsEverything(t *testing.T) {
	logger := logging.Discard()
	logger.Error("should vanish")
	// No output destination exists; reaching here without a panic is the test.
}

func TestDefaultPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	logging.Default(base).Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q, want it to contain hello", buf.String())
	}
}

func TestDefaultNilIsDiscard(t *testing.T) {
	logger := logging.Default(nil)
	logger.Info("nothing")
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	logging.New(&buf, "json", "info").Info("msg")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("json format produced %q", buf.String())
	}

	buf.Reset()
	logging.New(&buf, "text", "info").Info("msg")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("text format produced %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := logging.ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
