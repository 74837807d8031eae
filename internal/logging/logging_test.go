package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"quotesearch/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	logger.Warn("shown", "namespace", "simpsons")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["namespace"] != "simpsons" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LoggingConfig{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("retrieved", "matches", 3)
	if !strings.Contains(buf.String(), "matches=3") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNewWithWriter_Invalid(t *testing.T) {
	if _, err := NewWithWriter(&bytes.Buffer{}, config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected level error")
	}
	if _, err := NewWithWriter(&bytes.Buffer{}, config.LoggingConfig{Format: "xml"}); err == nil {
		t.Error("expected format error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
