// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package ledger

import (
	"fmt"

	"github.com/aplane-algo/icsign/internal/candid"
)

// SendMethod is the ledger method that takes SendArgs.
const SendMethod = "send_dfx"

// SendArgs is the argument of the ledger's send_dfx method.
type SendArgs struct {
	Memo           uint64
	Amount         Tokens
	Fee            Tokens
	FromSubaccount *Subaccount
	To             AccountIdentifier
	CreatedAtTime  *uint64 // nanoseconds since the epoch
}

var (
	tokensType    = candid.RecordOf(candid.NewField("e8s", candid.Nat64()))
	timestampType = candid.RecordOf(candid.NewField("timestamp_nanos", candid.Nat64()))

	// SendArgsType is the Candid type of SendArgs.
	SendArgsType = candid.RecordOf(
		candid.NewField("memo", candid.Nat64()),
		candid.NewField("amount", tokensType),
		candid.NewField("fee", tokensType),
		candid.NewField("from_subaccount", candid.Opt(candid.Blob())),
		candid.NewField("to", candid.Text()),
		candid.NewField("created_at_time", candid.Opt(timestampType)),
	)
)

// Value returns the Candid value of the arguments.
func (a SendArgs) Value() candid.Record {
	from := candid.None
	if a.FromSubaccount != nil {
		from = candid.Some(a.FromSubaccount[:])
	}
	created := candid.None
	if a.CreatedAtTime != nil {
		created = candid.Some(candid.Record{candid.F("timestamp_nanos", *a.CreatedAtTime)})
	}
	return candid.Record{
		candid.F("memo", a.Memo),
		candid.F("amount", candid.Record{candid.F("e8s", a.Amount.E8s)}),
		candid.F("fee", candid.Record{candid.F("e8s", a.Fee.E8s)}),
		candid.F("from_subaccount", from),
		candid.F("to", a.To.String()),
		candid.F("created_at_time", created),
	}
}

// Encode returns the Candid encoding of (SendArgs).
func (a SendArgs) Encode() ([]byte, error) {
	arg, err := candid.Encode([]*candid.Type{SendArgsType}, []any{a.Value()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode send args: %w", err)
	}
	return arg, nil
}

// DecodeSendArgs parses a Candid-encoded (SendArgs), as found in a signed
// transfer message.
func DecodeSendArgs(arg []byte) (SendArgs, error) {
	var out SendArgs
	_, values, err := candid.Decode(arg)
	if err != nil {
		return out, err
	}
	if len(values) != 1 {
		return out, fmt.Errorf("%w: expected one argument, got %d", candid.ErrDecode, len(values))
	}
	rec, ok := values[0].(candid.Record)
	if !ok {
		return out, fmt.Errorf("%w: send args are not a record", candid.ErrDecode)
	}

	fail := func(field string) error {
		return fmt.Errorf("%w: send args field %s is missing or mistyped", candid.ErrDecode, field)
	}

	if out.Memo, ok = fieldNat64(rec, "memo"); !ok {
		return out, fail("memo")
	}
	if out.Amount.E8s, ok = e8sField(rec, "amount"); !ok {
		return out, fail("amount")
	}
	if out.Fee.E8s, ok = e8sField(rec, "fee"); !ok {
		return out, fail("fee")
	}

	to, _ := rec.Get("to")
	toText, ok := to.(string)
	if !ok {
		return out, fail("to")
	}
	if out.To, err = ParseAccountIdentifier(toText); err != nil {
		return out, err
	}

	if v, _ := rec.Get("from_subaccount"); v != nil {
		opt, ok := v.(candid.OptValue)
		if !ok {
			return out, fail("from_subaccount")
		}
		if opt.Some {
			raw, ok := opt.Value.([]byte)
			if !ok || len(raw) != SubaccountLength {
				return out, fail("from_subaccount")
			}
			var sub Subaccount
			copy(sub[:], raw)
			out.FromSubaccount = &sub
		}
	}

	if v, _ := rec.Get("created_at_time"); v != nil {
		opt, ok := v.(candid.OptValue)
		if !ok {
			return out, fail("created_at_time")
		}
		if opt.Some {
			ts, isRec := opt.Value.(candid.Record)
			if !isRec {
				return out, fail("created_at_time")
			}
			nanos, ok := fieldNat64(ts, "timestamp_nanos")
			if !ok {
				return out, fail("created_at_time")
			}
			out.CreatedAtTime = &nanos
		}
	}
	return out, nil
}

func fieldNat64(rec candid.Record, name string) (uint64, bool) {
	v, _ := rec.Get(name)
	n, ok := v.(uint64)
	return n, ok
}

func e8sField(rec candid.Record, name string) (uint64, bool) {
	v, _ := rec.Get(name)
	inner, ok := v.(candid.Record)
	if !ok {
		return 0, false
	}
	return fieldNat64(inner, "e8s")
}
