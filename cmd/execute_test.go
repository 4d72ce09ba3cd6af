package cmd

import (
	"log/slog"
	"testing"
)

func TestLogLevel(t *testing.T) {
	t.Setenv("DEBUG", "")
	if got := logLevel(); got != slog.LevelInfo {
		t.Errorf("logLevel() = %v, want info", got)
	}

	t.Setenv("DEBUG", "1")
	if got := logLevel(); got != slog.LevelDebug {
		t.Errorf("logLevel() = %v, want debug", got)
	}
}

func TestPrintVersionInfo(t *testing.T) {
	if err := printVersionInfo(); err != nil {
		t.Fatalf("printVersionInfo() error: %v", err)
	}
}
