// Package cli implements the hab command-line interface.
//
// This package provides commands for resolving URIs against a site's
// config and distro forests, writing or launching the resulting
// environment scripts, and inspecting resolved state. The CLI is built
// using cobra and supports verbose logging via the charmbracelet/log
// library.
//
// # Commands
//
// The main commands are:
//   - env: Configure the current shell for a URI, optionally launching aliases
//   - activate: Configure a shell without exposing launchable aliases
//   - launch: Run a single alias directly and forward its exit code
//   - dump: Inspect the resolved config, site, forest or a freeze string
//   - cache: Write or remove a habcache sidecar for a site file
//   - set-uri: Save a URI to the user prefs file
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, and
// --logging-config for file-based overrides. Loggers are passed
// through context.Context to allow structured progress tracking.
//
// # Example
//
//	import "github.com/talusfx/hab/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// levelFor maps the -v count onto a log level. One -v turns on debug
// logging; further repeats keep debug and instead raise the content
// verbosity commands read from the flag count directly.
func levelFor(verbosity int) log.Level {
	if verbosity > 0 {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// loggingConfig mirrors the --logging-config TOML file.
type loggingConfig struct {
	Level      string `toml:"level"`
	TimeFormat string `toml:"time_format"`
	File       string `toml:"file"`
}

// applyLoggingConfig overrides logger settings from a TOML file. An
// empty key leaves the matching setting alone. The log file is opened
// in append mode and stays open for the life of the process.
func applyLoggingConfig(logger *log.Logger, path string) error {
	var cfg loggingConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "unable to read logging config %q", path)
	}
	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "bad level in logging config %q", path)
		}
		logger.SetLevel(level)
	}
	if cfg.TimeFormat != "" {
		logger.SetTimeFormat(cfg.TimeFormat)
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "unable to open log file %q", cfg.File)
		}
		logger.SetOutput(f)
	}
	return nil
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
// The returned progress should call done when the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Resolved project/Sc001 (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type for context keys used in this package.
// Using a distinct type prevents collisions with other packages.
type ctxKey int

// loggerKey is the context key for storing a logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
// The logger can be retrieved later with loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
// This ensures commands always have a valid logger even if context setup fails.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
