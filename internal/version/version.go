// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package version provides build version information for the icsign binary.
// Values are injected at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via -ldflags.
// Example: go build -ldflags "-X github.com/aplane-algo/icsign/internal/version.Version=1.0.0"
var (
	// Version is the semantic version (e.g., "0.4.0" or "0.4.0-dev")
	Version = "dev"

	// GitCommit is the git commit hash (short form)
	GitCommit = "unknown"

	// BuildTime is the build timestamp in RFC3339 format
	BuildTime = "unknown"
)

// MessageFormat is the version of the signed message files this build writes.
const MessageFormat = 1

// String returns a formatted version string suitable for version output.
func String() string {
	return fmt.Sprintf("icsign %s (commit: %s, built: %s, message format v%d, %s/%s)",
		Version, GitCommit, BuildTime, MessageFormat, runtime.GOOS, runtime.GOARCH)
}
