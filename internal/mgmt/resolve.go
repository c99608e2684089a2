// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package mgmt resolves the effective canister of calls addressed to the
// management canister. Calls to aaaaa-aa are routed to the subnet of the
// canister they act on, which is named inside the call's argument.
package mgmt

import (
	"errors"
	"fmt"

	"github.com/aplane-algo/icsign/internal/candid"
	"github.com/aplane-algo/icsign/internal/principal"
)

var (
	// ErrUnsupportedManagementMethod indicates a management method with no routing rule
	ErrUnsupportedManagementMethod = errors.New("unsupported management canister method")

	// ErrRequiresInterCanisterContext indicates a method only callable from another canister
	ErrRequiresInterCanisterContext = errors.New("method can only be called via an inter-canister call")

	// ErrArgumentDecode indicates an argument that does not carry a canister_id
	ErrArgumentDecode = errors.New("failed to decode management call argument")
)

type target int

const (
	targetArgument target = iota
	targetManagement
	targetInterCanister
)

// methods maps each routable management method to where its effective
// canister comes from.
var methods = map[string]target{
	"install_code":                            targetArgument,
	"update_settings":                         targetArgument,
	"start_canister":                          targetArgument,
	"stop_canister":                           targetArgument,
	"canister_status":                         targetArgument,
	"delete_canister":                         targetArgument,
	"deposit_cycles":                          targetArgument,
	"uninstall_code":                          targetArgument,
	"provisional_top_up_canister":             targetArgument,
	"provisional_create_canister_with_cycles": targetManagement,
	"create_canister":                         targetInterCanister,
	"raw_rand":                                targetInterCanister,
}

// Resolver implements effective canister resolution.
type Resolver struct{}

// Resolve returns the effective canister id of a call.
func (Resolver) Resolve(canister principal.Principal, method string, arg []byte) (principal.Principal, error) {
	return Resolve(canister, method, arg)
}

// Resolve returns the effective canister id of a call. Calls to any
// canister other than the management canister resolve to that canister.
func Resolve(canister principal.Principal, method string, arg []byte) (principal.Principal, error) {
	if !canister.IsManagementCanister() {
		return canister, nil
	}

	t, ok := methods[method]
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w: %s", ErrUnsupportedManagementMethod, method)
	}
	switch t {
	case targetManagement:
		return principal.ManagementCanister, nil
	case targetInterCanister:
		return principal.Principal{}, fmt.Errorf("%w: %s", ErrRequiresInterCanisterContext, method)
	}
	return canisterIDArgument(method, arg)
}

// canisterIDArgument extracts the canister_id field of the first argument record.
func canisterIDArgument(method string, arg []byte) (principal.Principal, error) {
	_, values, err := candid.Decode(arg)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("%w for %s: %w", ErrArgumentDecode, method, err)
	}
	if len(values) == 0 {
		return principal.Principal{}, fmt.Errorf("%w for %s: no arguments", ErrArgumentDecode, method)
	}
	rec, ok := values[0].(candid.Record)
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w for %s: argument is not a record", ErrArgumentDecode, method)
	}
	v, ok := rec.Get("canister_id")
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w for %s: missing canister_id", ErrArgumentDecode, method)
	}
	id, ok := v.(principal.Principal)
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w for %s: canister_id is %T, not a principal", ErrArgumentDecode, method, v)
	}
	return id, nil
}

