// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import "github.com/aplane-algo/icsign/internal/candid"

// ResolveCallKind decides whether a call is signed as a query. sig is the
// method's declared signature, or nil when unknown.
//
// A declared query is signed as a query unless update is forced. A
// declared update can never be forced into a query. Without a signature
// the flags decide, defaulting to update.
func ResolveCallKind(sig *candid.FuncType, query, update bool) (bool, error) {
	if query && update {
		return false, ErrConflictingCallKind
	}
	if sig == nil {
		return query, nil
	}
	if sig.IsQuery() {
		return !update, nil
	}
	if query {
		return false, ErrMethodKindMismatch
	}
	return false, nil
}
