// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/aplane-algo/icsign/internal/principal"
)

func TestEncodeTextInferred(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"()", "4449444c0000"},
		{"(true)", "4449444c00017e01"},
		{`("hello")`, "4449444c0001710568656c6c6f"},
		{`"hello"`, "4449444c0001710568656c6c6f"},
		{"(42 : nat)", "4449444c00017d2a"},
		{"(624_485 : nat)", "4449444c00017de58e26"},
		{"(-123456)", "4449444c00017cc0bb78"},
		{"(opt (42 : nat))", "4449444c016e7d0100012a"},
		{"(record { a = (1 : nat) })", "4449444c016c01617d010001"},
		{`(principal "aaaaa-aa")`, "4449444c0001680100"},
		{`(blob "\ca\fe")`, "4449444c016d7b010002cafe"},
		{"(0xff : nat8)", "4449444c00017bff"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := EncodeText(tt.text, nil)
			if err != nil {
				t.Fatalf("EncodeText(%q) error: %v", tt.text, err)
			}
			if hex.EncodeToString(got) != tt.want {
				t.Errorf("EncodeText(%q) = %x, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// The same text encodes differently once the method's declared argument
// types are known; the canister rejects the inferred form.
func TestEncodeTextAgainstDeclaredTypes(t *testing.T) {
	tests := []struct {
		text  string
		types []*Type
		want  string
	}{
		{"(1000)", nil, "4449444c00017ce807"},
		{"(1000)", []*Type{Nat64()}, "4449444c000178e803000000000000"},
		{"(vec { 1; 2 })", nil, "4449444c016d7c0100020102"},
		{"(vec { 1; 2 })", []*Type{Blob()}, "4449444c016d7b0100020102"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := EncodeText(tt.text, tt.types)
			if err != nil {
				t.Fatalf("EncodeText(%q) error: %v", tt.text, err)
			}
			if hex.EncodeToString(got) != tt.want {
				t.Errorf("EncodeText(%q) = %x, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestBindTyped(t *testing.T) {
	typ := RecordOf(
		NewField("to", Text()),
		NewField("amount", RecordOf(NewField("e8s", Nat64()))),
		NewField("memo", Nat64()),
		NewField("from_subaccount", Opt(Blob())),
		NewField("kind", VariantOf(NewField("Fast", Null()), NewField("Slow", Nat8()))),
	)
	args, err := ParseArgs(`(record {
		to = "abc";           // destination
		amount = record { e8s = 100_000 };
		memo = 7;
		kind = variant { Fast };
	})`)
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}
	if args.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", args.Len())
	}

	_, values, err := args.Bind([]*Type{typ})
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	rec := values[0].(Record)

	if v, _ := rec.Get("memo"); v != uint64(7) {
		t.Errorf("memo = %#v, want uint64(7)", v)
	}
	if v, _ := rec.Get("from_subaccount"); v != any(None) {
		t.Errorf("from_subaccount = %#v, want None", v)
	}
	amount, _ := rec.Get("amount")
	if e8s, _ := amount.(Record).Get("e8s"); e8s != uint64(100_000) {
		t.Errorf("amount.e8s = %#v", e8s)
	}
	kind, _ := rec.Get("kind")
	if kind.(Variant).Name != "Fast" {
		t.Errorf("kind = %#v", kind)
	}
}

func TestBindCoercions(t *testing.T) {
	tests := []struct {
		name string
		text string
		typ  *Type
		want any
	}{
		{"bare value for opt", "(5)", Opt(Nat8()), Some(uint8(5))},
		{"null for opt", "(null)", Opt(Nat8()), None},
		{"number for nat", "(5)", Nat(), big.NewInt(5)},
		{"number for float", "(1.5)", &Type{Kind: KindFloat64}, 1.5},
		{"anything for reserved", `("x")`, Reserved(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := ParseArgs(tt.text)
			if err != nil {
				t.Fatalf("ParseArgs() error: %v", err)
			}
			_, values, err := args.Bind([]*Type{tt.typ})
			if err != nil {
				t.Fatalf("Bind() error: %v", err)
			}
			if n, ok := tt.want.(*big.Int); ok {
				if values[0].(*big.Int).Cmp(n) != 0 {
					t.Errorf("value = %v, want %v", values[0], n)
				}
				return
			}
			if values[0] != tt.want {
				t.Errorf("value = %#v, want %#v", values[0], tt.want)
			}
		})
	}
}

func TestBlobFromVec(t *testing.T) {
	args, err := ParseArgs("(vec { 1; 2; 255 })")
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}
	_, values, err := args.Bind([]*Type{Blob()})
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if !bytes.Equal(values[0].([]byte), []byte{1, 2, 255}) {
		t.Errorf("value = %v", values[0])
	}
}

func TestPositionalRecordFields(t *testing.T) {
	args, err := ParseArgs(`(record { "a"; (5 : nat8) })`)
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}
	types, values, err := args.Bind(nil)
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	rt := types[0]
	if len(rt.Fields) != 2 || rt.Fields[0].ID != 0 || rt.Fields[1].ID != 1 {
		t.Fatalf("fields = %+v", rt.Fields)
	}
	if v, _ := values[0].(Record).GetID(1); v != uint8(5) {
		t.Errorf("field 1 = %#v", v)
	}
}

func TestInferredPrincipal(t *testing.T) {
	_, values, err := mustParse(t, `(principal "ryjl3-tyaaa-aaaaa-aaaba-cai")`).Bind(nil)
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if values[0] != principal.MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai") {
		t.Errorf("value = %v", values[0])
	}
}

func TestTextSyntaxErrors(t *testing.T) {
	tests := []string{
		"",
		"(",
		"(1, )x",
		`("unterminated)`,
		"(record { a = 1; a = 2 })",
		"(variant { a = 1; b = 2 })",
		"(1 : notatype)",
		"(@)",
		`("\u{zz}")`,
	}
	for _, text := range tests {
		if _, err := ParseArgs(text); !errors.Is(err, ErrSyntax) {
			t.Errorf("ParseArgs(%q) error = %v, want ErrSyntax", text, err)
		}
	}
}

func TestBindErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		typ  *Type
	}{
		{"out of range", "(256)", Nat8()},
		{"negative nat", "(-1)", Nat()},
		{"float for int", "(1.5)", Int()},
		{"text for nat", `("1")`, Nat()},
		{"unknown field", "(record { b = 1 })", RecordOf(NewField("a", Nat()))},
		{"missing field", "(record {})", RecordOf(NewField("a", Nat()))},
		{"bad principal", `(principal "not-a-principal")`, Principal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := mustParse(t, tt.text).Bind([]*Type{tt.typ}); !errors.Is(err, ErrSyntax) {
				t.Errorf("Bind() error = %v, want ErrSyntax", err)
			}
		})
	}

	if _, _, err := mustParse(t, "(1, 2)").Bind([]*Type{Nat()}); !errors.Is(err, ErrSyntax) {
		t.Errorf("arity mismatch error = %v, want ErrSyntax", err)
	}
}

func mustParse(t *testing.T, text string) *Args {
	t.Helper()
	args, err := ParseArgs(text)
	if err != nil {
		t.Fatalf("ParseArgs(%q) error: %v", text, err)
	}
	return args
}
