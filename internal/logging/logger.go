// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// VerboseEnv turns on debug logging when set to "1".
const VerboseEnv = "WAYFARE_VERBOSE"

// Config controls the CLI logger.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Verbose forces debug level regardless of Level.
	Verbose bool
	// JSON switches the pterm formatter to JSON lines.
	JSON bool
	// Writer defaults to stderr so command output on stdout stays clean.
	Writer io.Writer
}

// New builds a slog.Logger rendered by pterm's logger.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	level := parseLevel(cfg.Level)
	if cfg.Verbose || os.Getenv(VerboseEnv) == "1" {
		level = pterm.LogLevelDebug
	}
	pl := pterm.DefaultLogger.WithLevel(level).WithWriter(w)
	if cfg.JSON {
		pl = pl.WithFormatter(pterm.LogFormatterJSON)
	}
	return slog.New(pterm.NewSlogHandler(pl))
}

// Discard returns a logger that drops everything. Library packages default to it.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(s string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}
