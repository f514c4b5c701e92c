package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"upper case", LogLevel("DEBUG"), slog.LevelDebug},
		{"unknown defaults to info", LogLevel("verbose"), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level %s, got %s", LevelInfo, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got '%s'", cfg.Output)
	}
	if cfg.Rotation.Enabled {
		t.Error("Expected rotation to be disabled by default")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout text logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stdout"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if logger.config.Level != LevelInfo {
			t.Errorf("Expected level %s, got %s", LevelInfo, logger.config.Level)
		}
	})

	t.Run("file logger", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "portstrom.log")

		logger, err := New(Config{Level: LevelDebug, Format: FormatText, Output: logFile})
		if err != nil {
			t.Fatalf("Failed to create file logger: %v", err)
		}
		logger.Info("hello")

		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			t.Error("Log file should have been created")
		}
	})

	t.Run("rotated file logger", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "rotated.log")

		logger, err := New(Config{
			Level:  LevelInfo,
			Format: FormatJSON,
			Output: logFile,
			Rotation: RotationConfig{
				Enabled:    true,
				MaxSizeMB:  1,
				MaxBackups: 2,
			},
		})
		if err != nil {
			t.Fatalf("Failed to create rotated logger: %v", err)
		}
		logger.Info("rotated entry", "port", 80)

		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("Failed to read rotated log: %v", err)
		}
		if !strings.Contains(string(data), "rotated entry") {
			t.Errorf("Expected entry in rotated log, got %q", string(data))
		}
	})
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithScanID("abc").WithStage("port-scan").Info("stage finished", "ports", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "stage finished" {
		t.Errorf("Unexpected msg: %v", entry["msg"])
	}
	if entry["scan_id"] != "abc" {
		t.Errorf("Expected scan_id field, got %v", entry["scan_id"])
	}
	if entry["stage"] != "port-scan" {
		t.Errorf("Expected stage field, got %v", entry["stage"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("Warn message should be logged")
	}
}

func TestStageHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf)

	logger.WithComponent("pipeline").WithTarget("10.0.0.1").InfoStage("stage started", "fingerprint")
	logger.WithStage("web-probe").WithError(errors.New("exit status 1")).Error("stage failed", "port", 443)

	output := buf.String()
	for _, want := range []string{
		"component=pipeline",
		"target=10.0.0.1",
		"stage=fingerprint",
		"stage=web-probe",
		`error="exit status 1"`,
		"port=443",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output %q", want, output)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	lines := strings.Count(buf.String(), "\n")
	if lines != 4 {
		t.Errorf("Expected 4 log lines, got %d", lines)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.WithError(errors.New("x")).Error("nothing to see")
}
