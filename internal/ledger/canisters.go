// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package ledger

import "github.com/aplane-algo/icsign/internal/principal"

// Well-known NNS canisters on mainnet.
var (
	// CanisterID is the ICP ledger canister
	CanisterID = principal.MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")

	// GovernanceCanisterID is the NNS governance canister, owner of neuron accounts
	GovernanceCanisterID = principal.MustFromText("rrkah-fqaaa-aaaaa-aaaaq-cai")
)
