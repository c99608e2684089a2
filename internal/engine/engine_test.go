// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/tidwall/gjson"

	"github.com/aplane-algo/icsign/internal/candid"
	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/identity"
	"github.com/aplane-algo/icsign/internal/ledger"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/transport"
)

const testDID = `
type Tokens = record { e8s : nat64 };
service : {
  account_balance_dfx : (record { account : text }) -> (Tokens) query;
  send_dfx : (record { memo : nat64; amount : Tokens; fee : Tokens; to : text }) -> (nat64);
  notify : (nat64) -> ();
}
`

var testNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

// newTestEngine returns an engine whose candid directory knows the ledger.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ledger.CanisterID.String()+".did"), []byte(testDID), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	id, err := identity.Generate(identity.SchemeSecp256k1)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	mock := clock.NewMock()
	mock.Set(testNow)
	tr, err := transport.New(id, transport.WithClock(mock), transport.WithLookup(candid.NewDirLookup(dir)))
	if err != nil {
		t.Fatalf("transport.New() error: %v", err)
	}
	eng, err := NewEngine(tr)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return eng
}

func testDestination() string {
	return ledger.NewAccountIdentifier(principal.MustFromText("2vxsx-fae"), nil).String()
}

func TestResolveAmount(t *testing.T) {
	tests := []struct {
		name             string
		amount, icp, e8s string
		want             uint64
		err              error
	}{
		{"decimal", "1.5", "", "", 150_000_000, nil},
		{"pair", "", "1", "50000000", 150_000_000, nil},
		{"icp only", "", "2", "", 200_000_000, nil},
		{"e8s only", "", "", "7", 7, nil},
		{"both", "1", "1", "", 0, ErrAmbiguousAmount},
		{"both with e8s", "1", "", "1", 0, ErrAmbiguousAmount},
		{"neither", "", "", "", 0, ErrMissingAmount},
		{"bad decimal", "1.000000001", "", "", 0, ledger.ErrInvalidAmount},
		{"negative icp", "", "-1", "", 0, ledger.ErrInvalidAmount},
		{"pair overflow", "", "184467440738", "", 0, ledger.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAmount(tt.amount, tt.icp, tt.e8s)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ResolveAmount() error = %v, want %v", err, tt.err)
			}
			if err == nil && got.E8s != tt.want {
				t.Errorf("ResolveAmount() = %d, want %d", got.E8s, tt.want)
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	eng := newTestEngine(t)

	bundle, err := eng.Transfer(context.Background(), TransferParams{To: testDestination(), Amount: "1.5", Memo: "42"})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	data, err := bundle.JSON()
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	doc := gjson.ParseBytes(data)
	if doc.Get("ingress.method_name").String() != ledger.SendMethod {
		t.Errorf("ingress.method_name = %s", doc.Get("ingress.method_name"))
	}
	if doc.Get("ingress.call_type").String() != envelope.CallTypeUpdate {
		t.Errorf("ingress.call_type = %s", doc.Get("ingress.call_type"))
	}
	if doc.Get("ingress.canister_id").String() != ledger.CanisterID.String() {
		t.Errorf("ingress.canister_id = %s", doc.Get("ingress.canister_id"))
	}
	if got, want := doc.Get("request_status.request_id").String(), doc.Get("ingress.request_id").String(); got == "" || got != want {
		t.Errorf("request_status.request_id = %q, ingress.request_id = %q", got, want)
	}

	parsed, err := ParseTransferBundle(data)
	if err != nil {
		t.Fatalf("ParseTransferBundle() error: %v", err)
	}
	args := parsed.Args
	if args.Amount.E8s != 150_000_000 || args.Memo != 42 || args.Fee != ledger.DefaultTransactionFee {
		t.Errorf("args = %+v", args)
	}
	if args.FromSubaccount != nil || args.CreatedAtTime != nil {
		t.Errorf("from_subaccount = %v, created_at_time = %v; want both absent", args.FromSubaccount, args.CreatedAtTime)
	}
	if args.To.String() != testDestination() {
		t.Errorf("to = %s", args.To)
	}
}

func TestTransferPairAndFee(t *testing.T) {
	eng := newTestEngine(t)
	bundle, err := eng.Transfer(context.Background(), TransferParams{To: testDestination(), ICP: "1", E8s: "50000000", Fee: "0.001"})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if bundle.Args.Amount.E8s != 150_000_000 || bundle.Args.Fee.E8s != 100_000 || bundle.Args.Memo != 0 {
		t.Errorf("args = %+v", bundle.Args)
	}
}

func TestTransferFailureStates(t *testing.T) {
	eng := newTestEngine(t)
	tests := []struct {
		name   string
		params TransferParams
		state  TransferState
		err    error
	}{
		{"ambiguous", TransferParams{To: testDestination(), Amount: "1", ICP: "1"}, StateInit, ErrAmbiguousAmount},
		{"missing", TransferParams{To: testDestination()}, StateInit, ErrMissingAmount},
		{"bad destination", TransferParams{To: "nope", Amount: "1"}, StateAmountResolved, ledger.ErrInvalidHex},
		{"bad memo", TransferParams{To: testDestination(), Amount: "1", Memo: "x"}, StateAmountResolved, ledger.ErrInvalidMemo},
		{"bad fee", TransferParams{To: testDestination(), Amount: "1", Fee: "-1"}, StateAmountResolved, ledger.ErrInvalidAmount},
		{"bad expiry", TransferParams{To: testDestination(), Amount: "1", ExpireAfter: time.Duration(math.MaxInt64)}, StateArgsEncoded, transport.ErrDurationOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Transfer(context.Background(), tt.params)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Transfer() error = %v, want %v", err, tt.err)
			}
			var te *TransferError
			if !errors.As(err, &te) || te.State != tt.state {
				t.Errorf("Transfer() failed at %v, want %s", err, tt.state)
			}
		})
	}
}

func TestTransferCancelled(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Transfer(ctx, TransferParams{To: testDestination(), Amount: "1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Transfer() error = %v, want context.Canceled", err)
	}
}

func TestTransferStateString(t *testing.T) {
	if StateStatusPollSigned.String() != "status poll signed" {
		t.Errorf("String() = %q", StateStatusPollSigned.String())
	}
	if TransferState(42).String() != "state(42)" {
		t.Errorf("String() = %q", TransferState(42).String())
	}
}

func TestStakeNeuron(t *testing.T) {
	eng := newTestEngine(t)

	bundle, err := eng.StakeNeuron(context.Background(), StakeNeuronParams{Amount: "10", Name: "alice"})
	if err != nil {
		t.Fatalf("StakeNeuron() error: %v", err)
	}
	nonce, _ := ledger.NeuronNonce("alice")
	sub := ledger.NeuronStakeSubaccount(eng.Principal(), nonce)
	want := ledger.NewAccountIdentifier(ledger.GovernanceCanisterID, &sub)

	if bundle.Args.To != want {
		t.Errorf("to = %s, want %s", bundle.Args.To, want)
	}
	if bundle.Args.Memo != nonce || bundle.Args.Amount.E8s != 1_000_000_000 {
		t.Errorf("args = %+v", bundle.Args)
	}

	_, err = eng.StakeNeuron(context.Background(), StakeNeuronParams{Amount: "10", Name: "too-long-name"})
	if !errors.Is(err, ledger.ErrNameTooLong) {
		t.Errorf("StakeNeuron() error = %v, want ErrNameTooLong", err)
	}
}

func TestSignTypedArgument(t *testing.T) {
	eng := newTestEngine(t)

	// the did declares nat64 for memo, so the literal is typed as nat64
	msg, err := eng.Sign(context.Background(), SignParams{
		Canister:    ledger.CanisterID.String(),
		Method:      "send_dfx",
		Argument:    `(record { memo = 1; amount = record { e8s = 5 }; fee = record { e8s = 10000 }; to = "abc" })`,
		HasArgument: true,
	})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	types, _, err := candid.Decode(msg.Arg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	memo, _, ok := types[0].FieldByID(candid.Hash("memo"))
	if !ok || memo.Type.Kind != candid.KindNat64 {
		t.Errorf("memo type = %v", memo.Type)
	}
	if msg.CallType != envelope.CallTypeUpdate {
		t.Errorf("call_type = %s", msg.CallType)
	}
}

func TestSignQueryFromSignature(t *testing.T) {
	eng := newTestEngine(t)
	msg, err := eng.Sign(context.Background(), SignParams{
		Canister:    ledger.CanisterID.String(),
		Method:      "account_balance_dfx",
		Argument:    `(record { account = "abc" })`,
		HasArgument: true,
	})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if msg.CallType != envelope.CallTypeQuery || msg.RequestID != nil {
		t.Errorf("call_type = %s, request_id = %v", msg.CallType, msg.RequestID)
	}
}

// flakyLookup knows the method on its first call only.
type flakyLookup struct {
	sig   *candid.FuncType
	calls int
}

func (l *flakyLookup) LookupMethod(context.Context, principal.Principal, string) (*candid.FuncType, error) {
	l.calls++
	if l.calls > 1 {
		return nil, errors.New("lookup unavailable")
	}
	return l.sig, nil
}

func TestSignLooksUpMethodOnce(t *testing.T) {
	svc, err := candid.ParseDID(testDID)
	if err != nil {
		t.Fatalf("ParseDID() error: %v", err)
	}
	sig, _ := svc.Method("account_balance_dfx")
	lookup := &flakyLookup{sig: sig}

	id, err := identity.Generate(identity.SchemeEd25519)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	tr, err := transport.New(id, transport.WithLookup(lookup))
	if err != nil {
		t.Fatalf("transport.New() error: %v", err)
	}
	eng, err := NewEngine(tr)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	msg, err := eng.Sign(context.Background(), SignParams{
		Canister:    ledger.CanisterID.String(),
		Method:      "account_balance_dfx",
		Argument:    `(record { account = "abc" })`,
		HasArgument: true,
	})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if lookup.calls != 1 {
		t.Errorf("lookup called %d times, want 1", lookup.calls)
	}
	// typed and kinded from the same answer
	if msg.CallType != envelope.CallTypeQuery {
		t.Errorf("call_type = %s, want query", msg.CallType)
	}
}

func TestSignArgumentSources(t *testing.T) {
	eng := newTestEngine(t)
	ledgerID := ledger.CanisterID.String()

	raw, err := eng.Sign(context.Background(), SignParams{Canister: ledgerID, Method: "notify", Argument: "4449444c0001780500000000000000", HasArgument: true, ArgType: "raw"})
	if err != nil {
		t.Fatalf("raw Sign() error: %v", err)
	}
	if hex.EncodeToString(raw.Arg) != "4449444c0001780500000000000000" {
		t.Errorf("raw arg = %s", raw.Arg)
	}

	empty, err := eng.Sign(context.Background(), SignParams{Canister: ledgerID, Method: "unknown_method"})
	if err != nil {
		t.Fatalf("empty Sign() error: %v", err)
	}
	if string(empty.Arg) != string(candid.EmptyArgs()) {
		t.Errorf("empty arg = %x", empty.Arg)
	}

	random, err := eng.Sign(context.Background(), SignParams{Canister: ledgerID, Method: "send_dfx", UseRandom: true, Random: "{seed: 1}"})
	if err != nil {
		t.Fatalf("random Sign() error: %v", err)
	}
	types, _, err := candid.Decode(random.Arg)
	if err != nil || len(types) != 1 || types[0].Kind != candid.KindRecord {
		t.Errorf("random arg decodes to %v, %v", types, err)
	}
}

func TestSignArgumentErrors(t *testing.T) {
	eng := newTestEngine(t)
	ledgerID := ledger.CanisterID.String()
	tests := []struct {
		name   string
		params SignParams
		err    error
	}{
		{"bad canister", SignParams{Canister: "nope", Method: "m"}, ErrInvalidCanister},
		{"both kinds", SignParams{Canister: ledgerID, Method: "m", Query: true, Update: true}, transport.ErrConflictingCallKind},
		{"argument and random", SignParams{Canister: ledgerID, Method: "send_dfx", HasArgument: true, Argument: "()", UseRandom: true}, ErrConflictingArgument},
		{"type without argument", SignParams{Canister: ledgerID, Method: "m", ArgType: "raw"}, ErrArgTypeWithoutArgument},
		{"unknown type", SignParams{Canister: ledgerID, Method: "m", HasArgument: true, Argument: "()", ArgType: "json"}, ErrInvalidArgType},
		{"random without signature", SignParams{Canister: ledgerID, Method: "unknown_method", UseRandom: true}, ErrNoSignature},
		{"query of update", SignParams{Canister: ledgerID, Method: "notify", Query: true, HasArgument: true, Argument: "(1 : nat64)"}, transport.ErrMethodKindMismatch},
		{"mistyped argument", SignParams{Canister: ledgerID, Method: "notify", HasArgument: true, Argument: `("text")`}, candid.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.Sign(context.Background(), tt.params); !errors.Is(err, tt.err) {
				t.Errorf("Sign() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	eng := newTestEngine(t)
	msg, err := eng.Sign(context.Background(), SignParams{Canister: ledger.CanisterID.String(), Method: "notify", HasArgument: true, Argument: "(1 : nat64)"})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	s := Summarize(msg)
	if s.Validity != "5 minutes" || s.RequestID == "" || s.Method != "notify" {
		t.Errorf("Summarize() = %+v", s)
	}
}

func TestParseTransferBundleErrors(t *testing.T) {
	eng := newTestEngine(t)
	bundle, err := eng.Transfer(context.Background(), TransferParams{To: testDestination(), Amount: "1"})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	other, err := eng.Transfer(context.Background(), TransferParams{To: testDestination(), Amount: "2"})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	for _, bad := range [][]byte{
		[]byte("not json"),
		[]byte(`{"ingress": {}}`),
		[]byte(`{"ingress": 1, "request_status": 2}`),
	} {
		if _, err := ParseTransferBundle(bad); !errors.Is(err, ErrInvalidBundle) {
			t.Errorf("ParseTransferBundle(%s) error = %v", bad, err)
		}
	}

	if _, err := NewTransferBundle(bundle.Ingress, other.RequestStatus); !errors.Is(err, ErrInvalidBundle) {
		t.Errorf("mismatched bundle error = %v", err)
	}
}
