// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func sampleTypes() []*Type {
	list := &Type{Kind: KindOpt}
	list.Elem = RecordOf(NewField("head", Nat()), NewField("tail", list))
	return []*Type{
		RecordOf(
			NewField("memo", Nat64()),
			NewField("to", Text()),
			NewField("sub", Opt(Blob())),
			NewField("flag", Bool()),
			NewField("delta", Int()),
		),
		VariantOf(NewField("A", Null()), NewField("B", Vec(Primitive(KindInt16))), NewField("C", Principal())),
		list,
	}
}

func TestRandomDeterministicWithSeed(t *testing.T) {
	cfg, err := ParseRandomConfig("{seed: 42}")
	if err != nil {
		t.Fatalf("ParseRandomConfig() error: %v", err)
	}
	a, err := RandomArgs(sampleTypes(), cfg)
	if err != nil {
		t.Fatalf("RandomArgs() error: %v", err)
	}
	b, err := RandomArgs(sampleTypes(), cfg)
	if err != nil {
		t.Fatalf("RandomArgs() error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different arguments")
	}
}

func TestRandomArgsDecodeAndReencode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		cfg := DefaultRandomConfig()
		cfg.Seed = &seed

		data, err := RandomArgs(sampleTypes(), cfg)
		if err != nil {
			t.Fatalf("RandomArgs() error: %v", err)
		}
		types, values, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		again, err := Encode(types, values)
		if err != nil {
			t.Fatalf("Encode() error: %v", err)
		}
		if !bytes.Equal(again, data) {
			t.Fatalf("re-encoding changed bytes:\n%x\n%x", data, again)
		}
	})
}

func TestRandomRespectsLimits(t *testing.T) {
	seed := uint64(7)
	cfg := RandomConfig{Seed: &seed, MaxVecLen: 2, MaxTextLen: 3, MaxDepth: 1}

	for i := 0; i < 50; i++ {
		*cfg.Seed = uint64(i)
		values, err := RandomValues([]*Type{Vec(Text()), Opt(Opt(Nat()))}, cfg)
		if err != nil {
			t.Fatalf("RandomValues() error: %v", err)
		}
		items := values[0].([]any)
		if len(items) > 2 {
			t.Errorf("vec length %d exceeds max_vec_len", len(items))
		}
		for _, item := range items {
			if len(item.(string)) > 3 {
				t.Errorf("text %q exceeds max_text_len", item)
			}
		}
		if o := values[1].(OptValue); o.Some && o.Value.(OptValue).Some {
			t.Error("opt nested beyond max_depth")
		}
	}
}

func TestRandomRejectsUnproductiveType(t *testing.T) {
	loop := &Type{Kind: KindRecord}
	loop.Fields = []Field{NewField("self", loop)}
	_, err := RandomValues([]*Type{loop}, DefaultRandomConfig())
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("RandomValues() error = %v, want ErrEncode", err)
	}
	if !strings.Contains(err.Error(), "record { self : <recursive> }") {
		t.Errorf("error should name the type: %v", err)
	}
}

func TestParseRandomConfig(t *testing.T) {
	cfg, err := ParseRandomConfig("")
	if err != nil || cfg != DefaultRandomConfig() {
		t.Errorf("empty config = %+v, %v", cfg, err)
	}

	cfg, err = ParseRandomConfig("max_vec_len: 10\nmax_depth: 2\n")
	if err != nil {
		t.Fatalf("ParseRandomConfig() error: %v", err)
	}
	if cfg.MaxVecLen != 10 || cfg.MaxDepth != 2 || cfg.MaxTextLen != DefaultRandomConfig().MaxTextLen {
		t.Errorf("config = %+v", cfg)
	}

	for _, bad := range []string{"max_vec_len: -1", "seed: [1, 2]", "{"} {
		if _, err := ParseRandomConfig(bad); err == nil {
			t.Errorf("ParseRandomConfig(%q) should fail", bad)
		}
	}
}
