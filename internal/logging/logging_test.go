package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewAppliesLevel(t *testing.T) {
	logger := New(config.Config{Env: "prod", LogLevel: "warn"}, "test")
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %v, want warn", logger.GetLevel())
	}
}

func TestBootstrapTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := bootstrap(&buf, "noshow-worker")
	logger.Error().Msg("config load error")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["component"] != "noshow-worker" || entry["level"] != "error" || entry["message"] != "config load error" {
		t.Fatalf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing timestamp")
	}
}
