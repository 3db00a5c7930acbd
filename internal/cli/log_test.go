package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)

	if logger == nil {
		t.Fatal("newLogger() returned nil")
	}

	// Test that it can log
	logger.Info("test message")

	if buf.Len() == 0 {
		t.Error("logger should have written output")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{
			name:    "info at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Info("test") },
			wantLog: true,
		},
		{
			name:    "debug at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: false,
		},
		{
			name:    "debug at debug level",
			level:   log.DebugLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level)
			tt.logFunc(logger)

			gotLog := buf.Len() > 0
			if gotLog != tt.wantLog {
				t.Errorf("got log output = %v, want %v", gotLog, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)

	prog := newProgress(logger)
	if prog == nil {
		t.Fatal("newProgress() returned nil")
	}

	// Small delay to ensure measurable duration
	time.Sleep(10 * time.Millisecond)

	prog.done("test completed")

	output := buf.String()
	if output == "" {
		t.Error("progress.done() should produce output")
	}

	// Should contain the message
	if !bytes.Contains(buf.Bytes(), []byte("test completed")) {
		t.Error("progress.done() output should contain message")
	}
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	logger := log.Default()

	ctxWithLogger := withLogger(ctx, logger)

	// Should be able to retrieve the logger
	retrieved := loggerFromContext(ctxWithLogger)
	if retrieved != logger {
		t.Error("loggerFromContext should return the same logger")
	}
}

func TestLoggerFromContextDefault(t *testing.T) {
	ctx := context.Background()

	// Without logger in context, should return default
	logger := loggerFromContext(ctx)
	if logger == nil {
		t.Error("loggerFromContext should return default logger when none set")
	}
}

func TestLoggerFromContextWithValue(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	customLogger := newLogger(&buf, log.InfoLevel)

	ctx = withLogger(ctx, customLogger)
	retrieved := loggerFromContext(ctx)

	if retrieved != customLogger {
		t.Error("loggerFromContext should return the custom logger")
	}

	// Verify it works by logging
	retrieved.Info("test")
	if buf.Len() == 0 {
		t.Error("custom logger should write to buffer")
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		want      log.Level
	}{
		{0, log.InfoLevel},
		{1, log.DebugLevel},
		{2, log.DebugLevel},
		{3, log.DebugLevel},
	}

	for _, tt := range tests {
		if got := levelFor(tt.verbosity); got != tt.want {
			t.Errorf("levelFor(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestApplyLoggingConfig(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "hab.log")
	cfgPath := filepath.Join(dir, "logging.toml")
	doc := fmt.Sprintf("level = %q\ntime_format = %q\nfile = %q\n", "debug", "15:04:05", logFile)
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)
	if err := applyLoggingConfig(logger, cfgPath); err != nil {
		t.Fatalf("applyLoggingConfig() error = %v", err)
	}

	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want %v", logger.GetLevel(), log.DebugLevel)
	}

	// Output moved to the configured file.
	logger.Debug("through the file")
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("through the file")) {
		t.Error("log file should contain the message")
	}
	if buf.Len() != 0 {
		t.Error("original writer should no longer receive output")
	}
}

func TestApplyLoggingConfigPartial(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "logging.toml")
	if err := os.WriteFile(cfgPath, []byte("level = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)
	if err := applyLoggingConfig(logger, cfgPath); err != nil {
		t.Fatalf("applyLoggingConfig() error = %v", err)
	}

	if logger.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v, want %v", logger.GetLevel(), log.WarnLevel)
	}

	// Unset keys leave the writer alone.
	logger.Warn("still here")
	if buf.Len() == 0 {
		t.Error("logger should still write to the original writer")
	}
}

func TestApplyLoggingConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if err := applyLoggingConfig(log.Default(), filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing config file should error")
	}

	badLevel := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(badLevel, []byte("level = \"shouting\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := applyLoggingConfig(log.Default(), badLevel); err == nil {
		t.Error("unknown level should error")
	}
}
