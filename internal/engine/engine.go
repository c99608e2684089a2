// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package engine provides the signing operations behind the icsign CLI,
// independent of any UI. It composes argument encoding, the signing
// transport and the ledger address codec into the user-level commands:
// generic calls, ICP transfers and neuron staking.
package engine

import (
	"fmt"
	"time"

	"github.com/aplane-algo/icsign/internal/ledger"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/transport"
)

// Engine contains the signing state, independent of any UI.
type Engine struct {
	Transport *transport.Transport

	// Canisters
	LedgerCanister     principal.Principal
	GovernanceCanister principal.Principal

	// ExpireAfter overrides the transport's validity window when positive
	ExpireAfter time.Duration
}

// EngineOption is a functional option for configuring the Engine
type EngineOption func(*Engine) error

// NewEngine creates a new Engine signing through t.
func NewEngine(t *transport.Transport, opts ...EngineOption) (*Engine, error) {
	if t == nil {
		return nil, ErrNoTransport
	}
	e := &Engine{
		Transport:          t,
		LedgerCanister:     ledger.CanisterID,
		GovernanceCanister: ledger.GovernanceCanisterID,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// WithLedgerCanister sets the ledger canister transfers are sent to
func WithLedgerCanister(text string) EngineOption {
	return func(e *Engine) error {
		if text == "" {
			return nil
		}
		p, err := principal.FromText(text)
		if err != nil {
			return fmt.Errorf("invalid ledger canister id: %w", err)
		}
		e.LedgerCanister = p
		return nil
	}
}

// WithGovernanceCanister sets the governance canister owning neuron accounts
func WithGovernanceCanister(text string) EngineOption {
	return func(e *Engine) error {
		if text == "" {
			return nil
		}
		p, err := principal.FromText(text)
		if err != nil {
			return fmt.Errorf("invalid governance canister id: %w", err)
		}
		e.GovernanceCanister = p
		return nil
	}
}

// WithExpireAfter sets the validity window of signed messages
func WithExpireAfter(d time.Duration) EngineOption {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("%w: %s", transport.ErrInvalidDuration, d)
		}
		e.ExpireAfter = d
		return nil
	}
}

// Principal returns the principal of the signing identity.
func (e *Engine) Principal() principal.Principal {
	return e.Transport.Sender()
}

// expireAfter picks the per-call override, then the engine default.
func (e *Engine) expireAfter(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return e.ExpireAfter
}
