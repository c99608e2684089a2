// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/aplane-algo/icsign/internal/ledger"
)

// StakeNeuronParams contains parameters for staking a new neuron.
type StakeNeuronParams struct {
	Amount string // Decimal ICP to stake
	Name   string // Neuron name, up to 8 bytes; selects the staking subaccount
	Fee    string // Optional fee, default 0.0001 ICP

	ExpireAfter time.Duration
}

// NeuronStakeAccount returns the governance account that stakes the
// neuron named name for the signing identity, and the memo the transfer
// into it must carry.
func (e *Engine) NeuronStakeAccount(name string) (ledger.AccountIdentifier, uint64, error) {
	sub, nonce, err := ledger.NeuronStakeSubaccountForName(e.Principal(), name)
	if err != nil {
		return ledger.AccountIdentifier{}, 0, err
	}
	return ledger.NewAccountIdentifier(e.GovernanceCanister, &sub), nonce, nil
}

// StakeNeuron signs a transfer of Amount into the neuron's staking
// account, with the neuron nonce as memo.
func (e *Engine) StakeNeuron(ctx context.Context, p StakeNeuronParams) (*TransferBundle, error) {
	to, nonce, err := e.NeuronStakeAccount(p.Name)
	if err != nil {
		return nil, &TransferError{State: StateInit, Err: err}
	}
	return e.Transfer(ctx, TransferParams{
		To:          to.String(),
		Amount:      p.Amount,
		Memo:        strconv.FormatUint(nonce, 10),
		Fee:         p.Fee,
		ExpireAfter: p.ExpireAfter,
	})
}
