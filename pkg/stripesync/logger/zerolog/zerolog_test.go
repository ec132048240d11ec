package zerolog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger)
		want string
	}{
		{"debug", func(l *Logger) { l.Debug("m") }, "debug"},
		{"info", func(l *Logger) { l.Info("m") }, "info"},
		{"warn", func(l *Logger) { l.Warn("m") }, "warn"},
		{"error", func(l *Logger) { l.Error("m") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := bytes.Buffer{}
			logger := NewLogger(zerolog.New(&output))

			tt.log(logger)

			var entry map[string]interface{}
			if err := json.Unmarshal(output.Bytes(), &entry); err != nil {
				t.Fatalf("invalid log output %q: %v", output.String(), err)
			}
			if entry["level"] != tt.want {
				t.Errorf("level mismatch: got %v, want %v", entry["level"], tt.want)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("processed new invoices",
		stripesync.Field{Key: "count", Value: 3},
		stripesync.Field{Key: "cursor", Value: "in_1"})

	var entry map[string]interface{}
	if err := json.Unmarshal(output.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output %q: %v", output.String(), err)
	}
	if entry["message"] != "processed new invoices" {
		t.Errorf("message mismatch: got %v", entry["message"])
	}
	if entry["count"] != 3.0 {
		t.Errorf("count field mismatch: got %v", entry["count"])
	}
	if entry["cursor"] != "in_1" {
		t.Errorf("cursor field mismatch: got %v", entry["cursor"])
	}
}

func TestLogger_With(t *testing.T) {
	output := bytes.Buffer{}
	base := NewLogger(zerolog.New(&output))
	derived := base.With(stripesync.Field{Key: "component", Value: "sync"})

	derived.Info("tick")

	var entry map[string]interface{}
	if err := json.Unmarshal(output.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output %q: %v", output.String(), err)
	}
	if entry["component"] != "sync" {
		t.Errorf("derived field missing: got %v", entry)
	}

	output.Reset()
	base.Info("tick")
	var baseEntry map[string]interface{}
	if err := json.Unmarshal(output.Bytes(), &baseEntry); err != nil {
		t.Fatalf("invalid log output %q: %v", output.String(), err)
	}
	if _, ok := baseEntry["component"]; ok {
		t.Error("base logger must not carry the derived field")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("suppressed")
	logger.Info("suppressed")

	if output.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", output.String())
	}

	logger.Warn("kept")
	if output.Len() == 0 {
		t.Error("expected warn log to be written")
	}
}
