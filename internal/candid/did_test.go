// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aplane-algo/icsign/internal/principal"
)

const ledgerDID = `
// ICP ledger, trimmed
type ICPTs = record { e8s : nat64 };
type Memo = nat64;
type SubAccount = blob;
type AccountIdentifier = text;
type TimeStamp = record { timestamp_nanos : nat64 };
type BlockHeight = nat64;

type SendArgs = record {
    memo : Memo;
    amount : ICPTs;
    fee : ICPTs;
    from_subaccount : opt SubAccount;
    to : AccountIdentifier;
    created_at_time : opt TimeStamp;
};

type AccountBalanceArgs = record { account : AccountIdentifier };

/* forward and recursive references */
type Tree = variant { Leaf : Label; Node : record { Tree; Tree } };
type Label = Alias;
type Alias = text;

service : (record { minting_account : AccountIdentifier }) -> {
    send_dfx : (SendArgs) -> (BlockHeight);
    account_balance_dfx : (AccountBalanceArgs) -> (ICPTs) query;
    "total supply" : () -> (ICPTs) composite_query;
    notify : (args : Tree) -> () oneway;
}
`

func TestParseDIDLedger(t *testing.T) {
	svc, err := ParseDID(ledgerDID)
	if err != nil {
		t.Fatalf("ParseDID() error: %v", err)
	}

	if len(svc.Init) != 1 || svc.Init[0].Kind != KindRecord {
		t.Errorf("Init = %v", svc.Init)
	}

	send, ok := svc.Method("send_dfx")
	if !ok {
		t.Fatal("send_dfx not found")
	}
	if send.IsQuery() {
		t.Error("send_dfx should be an update")
	}
	if len(send.Args) != 1 {
		t.Fatalf("send_dfx args = %d, want 1", len(send.Args))
	}
	args := send.Args[0]
	if args.Kind != KindRecord || len(args.Fields) != 6 {
		t.Fatalf("SendArgs = %s", args)
	}
	if f, _, ok := args.FieldByID(Hash("from_subaccount")); !ok || f.Type.Kind != KindOpt || !f.Type.Elem.IsBlob() {
		t.Errorf("from_subaccount field = %+v", f)
	}
	if f, _, ok := args.FieldByID(Hash("memo")); !ok || f.Type.Kind != KindNat64 {
		t.Errorf("memo field = %+v", f)
	}

	balance, ok := svc.Method("account_balance_dfx")
	if !ok || !balance.IsQuery() {
		t.Errorf("account_balance_dfx query = %v", ok && balance.IsQuery())
	}
	supply, ok := svc.Method("total supply")
	if !ok || !supply.IsQuery() {
		t.Error("composite_query method should count as a query")
	}
	if notify, ok := svc.Method("notify"); !ok || notify.IsQuery() || notify.Annotations[0] != "oneway" {
		t.Error("notify should be a oneway update")
	}

	label := svc.Types["Label"]
	if label == nil || label.Kind != KindText {
		t.Errorf("Label = %v, want text through alias chain", label)
	}
	tree := svc.Types["Tree"]
	node, _, ok := tree.FieldByID(Hash("Node"))
	if !ok || node.Type.Fields[0].Type != tree {
		t.Error("Tree is not recursive through Node")
	}
}

func TestParseDIDEncodesWithDefinedTypes(t *testing.T) {
	svc, err := ParseDID(ledgerDID)
	if err != nil {
		t.Fatalf("ParseDID() error: %v", err)
	}
	send, _ := svc.Method("send_dfx")

	data, err := EncodeText(`(record {
		memo = 0;
		amount = record { e8s = 100 };
		fee = record { e8s = 10_000 };
		to = "abc";
	})`, send.Args)
	if err != nil {
		t.Fatalf("EncodeText() error: %v", err)
	}
	if _, _, err := Decode(data); err != nil {
		t.Errorf("Decode() error: %v", err)
	}
}

func TestParseDIDErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"undefined type", "type A = B;"},
		{"alias cycle", "type A = B; type B = A;"},
		{"duplicate type", "type A = nat; type A = text;"},
		{"import", `import "other.did";`},
		{"two services", "service : {}; service : {};"},
		{"duplicate method", "service : { a : () -> (); a : () -> () }"},
		{"non function method", "type T = nat; service : { a : T }"},
		{"missing arrow", "service : { a : () () }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDID(tt.src); !errors.Is(err, ErrSyntax) {
				t.Errorf("ParseDID() error = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestParseDIDServiceReference(t *testing.T) {
	svc, err := ParseDID(`
		type Counter = service { get : () -> (nat) query; inc : () -> () };
		service : Counter
	`)
	if err != nil {
		t.Fatalf("ParseDID() error: %v", err)
	}
	if get, ok := svc.Method("get"); !ok || !get.IsQuery() {
		t.Error("get should be a query")
	}
	if _, ok := svc.Method("inc"); !ok {
		t.Error("inc not found")
	}
}

func TestDirLookup(t *testing.T) {
	dir := t.TempDir()
	ledger := principal.MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")
	if err := os.WriteFile(filepath.Join(dir, ledger.String()+".did"), []byte(ledgerDID), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	lookup := NewDirLookup(dir)
	ctx := context.Background()

	sig, err := lookup.LookupMethod(ctx, ledger, "account_balance_dfx")
	if err != nil || sig == nil || !sig.IsQuery() {
		t.Fatalf("LookupMethod(account_balance_dfx) = %v, %v", sig, err)
	}

	if sig, err := lookup.LookupMethod(ctx, ledger, "no_such_method"); sig != nil || err != nil {
		t.Errorf("unknown method = %v, %v; want nil, nil", sig, err)
	}

	other := principal.MustFromText("rrkah-fqaaa-aaaaa-aaaaq-cai")
	if sig, err := lookup.LookupMethod(ctx, other, "anything"); sig != nil || err != nil {
		t.Errorf("unknown canister = %v, %v; want nil, nil", sig, err)
	}

	// cached after first read
	if err := os.Remove(filepath.Join(dir, ledger.String()+".did")); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if sig, _ := lookup.LookupMethod(ctx, ledger, "send_dfx"); sig == nil {
		t.Error("cached service was not used")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := lookup.LookupMethod(cancelled, ledger, "send_dfx"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled lookup error = %v", err)
	}
}

func TestDirLookupConcurrent(t *testing.T) {
	dir := t.TempDir()
	ledger := principal.MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")
	if err := os.WriteFile(filepath.Join(dir, ledger.String()+".did"), []byte(ledgerDID), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	lookup := NewDirLookup(dir)

	const workers = 16
	services := make([]*Service, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc, err := lookup.Service(ledger)
			if err != nil {
				t.Errorf("Service() error: %v", err)
			}
			services[i] = svc
		}(i)
	}
	wg.Wait()

	for i, svc := range services {
		if svc == nil || svc != services[0] {
			t.Fatalf("worker %d got %p, want the single cached %p", i, svc, services[0])
		}
	}
}

func TestDirLookupNoDirectory(t *testing.T) {
	svc, err := NewDirLookup("").Service(principal.ManagementCanister)
	if svc != nil || err != nil {
		t.Errorf("Service() = %v, %v; want nil, nil", svc, err)
	}
}

func TestDirLookupMalformedFile(t *testing.T) {
	dir := t.TempDir()
	canister := principal.MustFromText("rrkah-fqaaa-aaaaa-aaaaq-cai")
	if err := os.WriteFile(filepath.Join(dir, canister.String()+".did"), []byte("service : {"), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, err := NewDirLookup(dir).LookupMethod(context.Background(), canister, "x"); !errors.Is(err, ErrSyntax) {
		t.Errorf("LookupMethod() error = %v, want ErrSyntax", err)
	}
}
