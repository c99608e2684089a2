// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"math/big"
	"math/rand/v2"

	"gopkg.in/yaml.v3"

	"github.com/aplane-algo/icsign/internal/principal"
)

// RandomConfig bounds random argument generation. It is read from YAML,
// e.g. `{seed: 42, max_vec_len: 3}`.
type RandomConfig struct {
	Seed       *uint64 `yaml:"seed"` // nil picks a fresh seed
	MaxVecLen  int     `yaml:"max_vec_len"`
	MaxTextLen int     `yaml:"max_text_len"`
	MaxDepth   int     `yaml:"max_depth"` // beyond this, opt is null, vec is empty, variants take their first case
}

// recursion through records cannot be cut short, so it is capped here
const randomDepthLimit = 64

const textAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "

// DefaultRandomConfig returns the bounds used when no config is given.
func DefaultRandomConfig() RandomConfig {
	return RandomConfig{
		MaxVecLen:  4,
		MaxTextLen: 16,
		MaxDepth:   8,
	}
}

// ParseRandomConfig reads a YAML config over the defaults. Empty input
// yields the defaults.
func ParseRandomConfig(text string) (RandomConfig, error) {
	cfg := DefaultRandomConfig()
	if text == "" {
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return cfg, fmt.Errorf("invalid random config: %w", err)
	}
	if cfg.MaxVecLen < 0 || cfg.MaxTextLen < 0 || cfg.MaxDepth < 0 {
		return cfg, fmt.Errorf("invalid random config: limits must not be negative")
	}
	return cfg, nil
}

type generator struct {
	cfg RandomConfig
	rng *rand.Rand
}

// RandomValues generates one value per type.
func RandomValues(types []*Type, cfg RandomConfig) ([]any, error) {
	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	g := &generator{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}

	values := make([]any, len(types))
	for i, t := range types {
		v, err := g.value(t, 0)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// RandomArgs generates and encodes random arguments for types.
func RandomArgs(types []*Type, cfg RandomConfig) ([]byte, error) {
	values, err := RandomValues(types, cfg)
	if err != nil {
		return nil, err
	}
	return Encode(types, values)
}

func (g *generator) value(t *Type, depth int) (any, error) {
	if depth > randomDepthLimit {
		return nil, fmt.Errorf("%w: type %s is too deeply recursive to generate", ErrEncode, t)
	}
	bounded := depth >= g.cfg.MaxDepth

	switch t.Kind {
	case KindNull, KindReserved:
		return nil, nil
	case KindBool:
		return g.rng.IntN(2) == 1, nil
	case KindNat:
		return new(big.Int).SetUint64(g.rng.Uint64()), nil
	case KindInt:
		return big.NewInt(int64(g.rng.Uint64())), nil
	case KindNat8:
		return uint8(g.rng.Uint32()), nil
	case KindNat16:
		return uint16(g.rng.Uint32()), nil
	case KindNat32:
		return g.rng.Uint32(), nil
	case KindNat64:
		return g.rng.Uint64(), nil
	case KindInt8:
		return int8(g.rng.Uint32()), nil
	case KindInt16:
		return int16(g.rng.Uint32()), nil
	case KindInt32:
		return int32(g.rng.Uint32()), nil
	case KindInt64:
		return int64(g.rng.Uint64()), nil
	case KindFloat32:
		return float32(g.rng.NormFloat64()), nil
	case KindFloat64:
		return g.rng.NormFloat64() * 1e6, nil
	case KindText:
		n := g.rng.IntN(g.cfg.MaxTextLen + 1)
		b := make([]byte, n)
		for i := range b {
			b[i] = textAlphabet[g.rng.IntN(len(textAlphabet))]
		}
		return string(b), nil
	case KindPrincipal:
		raw := make([]byte, 10)
		for i := range raw {
			raw[i] = byte(g.rng.Uint32())
		}
		return principal.FromBytes(raw)

	case KindOpt:
		if bounded || g.rng.IntN(2) == 0 {
			return None, nil
		}
		v, err := g.value(t.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		return Some(v), nil

	case KindVec:
		n := 0
		if !bounded {
			n = g.rng.IntN(g.cfg.MaxVecLen + 1)
		}
		if t.Elem.Kind == KindNat8 {
			b := make([]byte, n)
			for i := range b {
				b[i] = byte(g.rng.Uint32())
			}
			return b, nil
		}
		items := make([]any, n)
		for i := range items {
			v, err := g.value(t.Elem, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil

	case KindRecord:
		rec := make(Record, len(t.Fields))
		for i, f := range t.Fields {
			v, err := g.value(f.Type, depth+1)
			if err != nil {
				return nil, err
			}
			rec[i] = FieldValue{ID: f.ID, Name: f.Name, Value: v}
		}
		return rec, nil

	case KindVariant:
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("%w: variant with no cases has no values", ErrEncode)
		}
		idx := 0
		if !bounded {
			idx = g.rng.IntN(len(t.Fields))
		}
		f := t.Fields[idx]
		v, err := g.value(f.Type, depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{ID: f.ID, Name: f.Name, Value: v}, nil
	}
	return nil, fmt.Errorf("%w: cannot generate %s values", ErrEncode, t.Kind)
}
