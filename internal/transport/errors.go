// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import "errors"

// Sentinel errors for call signing.
var (
	// ErrMethodKindMismatch is returned when a query is requested for a method
	// the interface declares as an update.
	ErrMethodKindMismatch = errors.New("method is an update and cannot be called as a query")

	// ErrConflictingCallKind is returned when both --query and --update are given.
	ErrConflictingCallKind = errors.New("a call cannot be both a query and an update")

	// ErrInvalidDuration is returned for an unparseable or non-positive expiry duration.
	ErrInvalidDuration = errors.New("invalid expiry duration")

	// ErrDurationOverflow is returned when creation time plus the expiry duration overflows.
	ErrDurationOverflow = errors.New("expiry duration overflows the clock")

	// ErrNoIdentity is returned when a transport is built without a signing identity.
	ErrNoIdentity = errors.New("no signing identity")
)
