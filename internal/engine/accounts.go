// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"fmt"

	"github.com/aplane-algo/icsign/internal/ledger"
	"github.com/aplane-algo/icsign/internal/principal"
)

// AccountID returns the account identifier of owner text and optional hex
// subaccount. Neither requires an identity.
func AccountID(owner, subaccount string) (*AccountIDResult, error) {
	p, err := principal.FromText(owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrincipal, owner, err)
	}
	return accountID(p, subaccount)
}

// AccountID returns the account identifier of the signing identity, or of
// ofPrincipal when given.
func (e *Engine) AccountID(ofPrincipal, subaccount string) (*AccountIDResult, error) {
	if ofPrincipal != "" {
		return AccountID(ofPrincipal, subaccount)
	}
	return accountID(e.Principal(), subaccount)
}

func accountID(owner principal.Principal, subaccount string) (*AccountIDResult, error) {
	var sub *ledger.Subaccount
	if subaccount != "" {
		s, err := ledger.ParseSubaccount(subaccount)
		if err != nil {
			return nil, fmt.Errorf("invalid subaccount: %w", err)
		}
		sub = &s
	}
	return &AccountIDResult{
		Principal:         owner,
		Subaccount:        sub,
		AccountIdentifier: ledger.NewAccountIdentifier(owner, sub),
	}, nil
}
