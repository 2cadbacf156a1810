package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "debug level", level: "debug", wantErr: false},
		{name: "info level", level: "info", wantErr: false},
		{name: "warn level", level: "warn", wantErr: false},
		{name: "error level", level: "error", wantErr: false},
		{name: "mixed case level", level: "WARN", wantErr: false},
		{name: "invalid level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(tt.level, &buf)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewLogger() expected error for level %q, got nil", tt.level)
				}
				return
			}

			if err != nil {
				t.Errorf("NewLogger() unexpected error: %v", err)
				return
			}
			if logger == nil {
				t.Error("NewLogger() returned nil logger")
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFunc   func(*slog.Logger)
		shouldLog bool
	}{
		{
			name:      "debug logs at debug level",
			level:     "debug",
			logFunc:   func(l *slog.Logger) { l.Debug("test message") },
			shouldLog: true,
		},
		{
			name:      "debug does not log at info level",
			level:     "info",
			logFunc:   func(l *slog.Logger) { l.Debug("test message") },
			shouldLog: false,
		},
		{
			name:      "info logs at info level",
			level:     "info",
			logFunc:   func(l *slog.Logger) { l.Info("test message") },
			shouldLog: true,
		},
		{
			name:      "info does not log at error level",
			level:     "error",
			logFunc:   func(l *slog.Logger) { l.Info("test message") },
			shouldLog: false,
		},
		{
			name:      "error logs at error level",
			level:     "error",
			logFunc:   func(l *slog.Logger) { l.Error("test message") },
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(tt.level, &buf)
			if err != nil {
				t.Fatalf("NewLogger() error: %v", err)
			}

			tt.logFunc(logger)

			output := buf.String()
			hasOutput := strings.Contains(output, "test message")

			if tt.shouldLog && !hasOutput {
				t.Errorf("Expected log output but got none. Buffer: %q", output)
			}
			if !tt.shouldLog && hasOutput {
				t.Errorf("Expected no log output but got: %q", output)
			}
		})
	}
}

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", &buf)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.Info("structured", "repo", "blog", "entries", 12)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "structured" {
		t.Errorf("msg: got %v", record["msg"])
	}
	if record["repo"] != "blog" {
		t.Errorf("repo attr: got %v", record["repo"])
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Error("Default() returned nil logger")
	}
}
