// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"io"
	"log/slog"
	"os"
)

// DebugEnvVar enables debug logging when set to a non-empty value.
const DebugEnvVar = "ICSIGN_DEBUG"

var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// InitLogger initializes the global logger with appropriate log level.
// Set ICSIGN_DEBUG=1 to enable debug logging.
func InitLogger() {
	InitLoggerTo(os.Stderr, os.Getenv(DebugEnvVar) != "")
}

// InitLoggerTo initializes the global logger writing to w.
// Output goes to stderr by default so stdout stays machine-readable.
func InitLoggerTo(w io.Writer, debug bool) {
	level := slog.LevelInfo // Default: only show Info, Warn, Error
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		// Remove timestamp and level for cleaner CLI output
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	})

	Logger = slog.New(handler)
}

// Debug logs a debug message (only shown when ICSIGN_DEBUG is set)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an informational message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}
