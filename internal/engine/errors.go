// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"errors"
)

var (
	// ErrNoTransport indicates an engine built without a signing transport
	ErrNoTransport = errors.New("no signing transport")

	// ErrAmbiguousAmount indicates both --amount and --icp/--e8s were given
	ErrAmbiguousAmount = errors.New("specify either an amount or an icp/e8s pair, not both")

	// ErrMissingAmount indicates a transfer without any amount
	ErrMissingAmount = errors.New("no amount specified")

	// ErrInvalidCanister indicates a canister id that is not a principal
	ErrInvalidCanister = errors.New("invalid canister id")

	// ErrInvalidPrincipal indicates principal text that does not parse
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrInvalidArgType indicates an argument type other than idl or raw
	ErrInvalidArgType = errors.New("argument type must be idl or raw")

	// ErrConflictingArgument indicates both an argument and --random were given
	ErrConflictingArgument = errors.New("an argument and --random cannot be combined")

	// ErrArgTypeWithoutArgument indicates --type without an argument
	ErrArgTypeWithoutArgument = errors.New("--type requires an argument")

	// ErrNoSignature indicates --random for a method without a known signature
	ErrNoSignature = errors.New("method signature unknown")

	// ErrMissingRequestID indicates a signed update without a request id
	ErrMissingRequestID = errors.New("signed update carries no request id")

	// ErrInvalidBundle indicates a transfer bundle whose parts disagree
	ErrInvalidBundle = errors.New("invalid transfer bundle")
)
