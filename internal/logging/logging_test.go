package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_HasComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	logger := New("coverage")
	logger.Info("hello")

	output := buf.String()
	if !strings.Contains(output, "component=coverage") {
		t.Errorf("expected component=coverage in output, got: %s", output)
	}
	if !strings.Contains(output, "hello") {
		t.Errorf("expected 'hello' in output, got: %s", output)
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	New("pages").Info("json check")

	output := buf.String()
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Errorf("expected JSON level in output, got: %s", output)
	}
	if !strings.Contains(output, `"component":"pages"`) {
		t.Errorf("expected JSON component in output, got: %s", output)
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelWarn, "text", &buf)

	New("match").Info("dropped")
	New("match").Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("info line should be filtered at warn level: %s", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("warn line missing: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOrDefault(t *testing.T) {
	l := Discard()
	if OrDefault(l, "x") != l {
		t.Error("OrDefault should return the given logger")
	}
	if OrDefault(nil, "x") == nil {
		t.Error("OrDefault(nil) should return a logger")
	}
}
