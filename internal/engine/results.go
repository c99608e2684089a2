// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/ledger"
	"github.com/aplane-algo/icsign/internal/principal"
)

// AccountIDResult holds data for the account-id command
type AccountIDResult struct {
	Principal         principal.Principal
	Subaccount        *ledger.Subaccount // nil for the default subaccount
	AccountIdentifier ledger.AccountIdentifier
}

// SignSummary describes a signed message for human-readable output
type SignSummary struct {
	CallType   string
	Canister   string
	Method     string
	RequestID  string // empty for queries
	Validity   string // e.g. "5 minutes"
	Expiration string // RFC3339
}

// Summarize describes a signed call.
func Summarize(m *envelope.SignedMessage) SignSummary {
	s := SignSummary{
		CallType:   m.CallType,
		Canister:   m.CanisterID,
		Method:     m.MethodName,
		Validity:   strings.TrimSpace(humanize.RelTime(m.Creation, m.Expiration, "", "")),
		Expiration: m.Expiration.Format("2006-01-02T15:04:05Z07:00"),
	}
	if m.RequestID != nil {
		s.RequestID = m.RequestID.String()
	}
	return s
}
