// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

// ICP transfer: a signed send_dfx call plus its request status poll

import (
	"context"
	"fmt"
	"time"

	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/ledger"
	"github.com/aplane-algo/icsign/internal/transport"
)

// TransferState is a step of the transfer pipeline.
type TransferState int

const (
	StateInit TransferState = iota
	StateAmountResolved
	StateArgsEncoded
	StateTransferSigned
	StateStatusPollSigned
	StateBundleAssembled
)

var transferStateNames = [...]string{
	StateInit:             "init",
	StateAmountResolved:   "amount resolved",
	StateArgsEncoded:      "arguments encoded",
	StateTransferSigned:   "transfer signed",
	StateStatusPollSigned: "status poll signed",
	StateBundleAssembled:  "bundle assembled",
}

func (s TransferState) String() string {
	if s < 0 || int(s) >= len(transferStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return transferStateNames[s]
}

// TransferError reports the last state a failed transfer reached.
type TransferError struct {
	State TransferState
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer aborted at %s: %v", e.State, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TransferParams contains parameters for an ICP transfer. Amount is
// exclusive with the ICP/E8s pair; either half of the pair may be omitted.
type TransferParams struct {
	To     string // Destination account identifier (hex)
	Amount string // Decimal ICP, up to 8 fractional digits
	ICP    string // Whole ICP
	E8s    string // Whole e8s
	Memo   string // Default 0
	Fee    string // Decimal ICP, default 0.0001

	ExpireAfter time.Duration
}

// ResolveAmount turns the amount arguments into tokens.
func ResolveAmount(amount, icp, e8s string) (ledger.Tokens, error) {
	pair := icp != "" || e8s != ""
	switch {
	case amount != "" && pair:
		return ledger.Tokens{}, ErrAmbiguousAmount
	case amount != "":
		return ledger.ParseTokens(amount)
	case !pair:
		return ledger.Tokens{}, ErrMissingAmount
	}

	var whole, frac uint64
	var err error
	if icp != "" {
		if whole, err = ledger.ParseWholeNumber(icp); err != nil {
			return ledger.Tokens{}, err
		}
	}
	if e8s != "" {
		if frac, err = ledger.ParseWholeNumber(e8s); err != nil {
			return ledger.Tokens{}, err
		}
	}
	return ledger.TokensFromParts(whole, frac)
}

// transferRun carries one transfer through its states.
type transferRun struct {
	engine *Engine
	params TransferParams
	state  TransferState

	amount  ledger.Tokens
	args    ledger.SendArgs
	arg     []byte
	ingress *envelope.SignedMessage
	status  *envelope.RequestStatusMessage
	bundle  *TransferBundle
}

// Transfer signs a ledger transfer and the status poll for it, returning
// both as one bundle. A failure reports the state reached.
func (e *Engine) Transfer(ctx context.Context, p TransferParams) (*TransferBundle, error) {
	run := &transferRun{engine: e, params: p, state: StateInit}
	steps := []func(context.Context) error{
		run.resolveAmount,
		run.encodeArgs,
		run.signTransfer,
		run.signStatusPoll,
		run.assemble,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &TransferError{State: run.state, Err: err}
		}
		if err := step(ctx); err != nil {
			return nil, &TransferError{State: run.state, Err: err}
		}
		run.state++
	}
	return run.bundle, nil
}

func (r *transferRun) resolveAmount(context.Context) error {
	amount, err := ResolveAmount(r.params.Amount, r.params.ICP, r.params.E8s)
	if err != nil {
		return err
	}
	r.amount = amount
	return nil
}

func (r *transferRun) encodeArgs(context.Context) error {
	to, err := ledger.ParseAccountIdentifier(r.params.To)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	memo, err := ledger.ParseMemo(r.params.Memo)
	if err != nil {
		return err
	}
	fee := ledger.DefaultTransactionFee
	if r.params.Fee != "" {
		if fee, err = ledger.ParseTokens(r.params.Fee); err != nil {
			return fmt.Errorf("invalid fee: %w", err)
		}
	}

	r.args = ledger.SendArgs{Memo: memo, Amount: r.amount, Fee: fee, To: to}
	r.arg, err = r.args.Encode()
	return err
}

func (r *transferRun) signTransfer(ctx context.Context) error {
	msg, err := r.engine.Transport.Sign(ctx, transport.CallRequest{
		CanisterID:  r.engine.LedgerCanister,
		Method:      ledger.SendMethod,
		Arg:         r.arg,
		Update:      true,
		ExpireAfter: r.engine.expireAfter(r.params.ExpireAfter),
	})
	if err != nil {
		return err
	}
	if msg.RequestID == nil {
		return ErrMissingRequestID
	}
	r.ingress = msg
	return nil
}

func (r *transferRun) signStatusPoll(context.Context) error {
	msg, err := r.engine.Transport.SignRequestStatus(r.engine.LedgerCanister, *r.ingress.RequestID, r.engine.expireAfter(r.params.ExpireAfter))
	if err != nil {
		return err
	}
	r.status = msg
	return nil
}

func (r *transferRun) assemble(context.Context) error {
	bundle, err := NewTransferBundle(r.ingress, r.status)
	if err != nil {
		return err
	}
	bundle.Args = r.args
	r.bundle = bundle
	return nil
}
