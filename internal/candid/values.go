// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"math/big"
)

// OptValue is a value of type opt T. The zero value is none.
type OptValue struct {
	Some  bool
	Value any
}

// Some wraps v as a present optional.
func Some(v any) OptValue {
	return OptValue{Some: true, Value: v}
}

// None is the absent optional.
var None = OptValue{}

// FieldValue is one labelled member of a record value.
type FieldValue struct {
	ID    uint32
	Name  string
	Value any
}

// Record is a record value. Fields may appear in any order; they are
// matched to the record type by label hash.
type Record []FieldValue

// Variant is a variant value: one selected case.
type Variant struct {
	ID    uint32
	Name  string
	Value any
}

// F builds a named record field.
func F(name string, v any) FieldValue {
	return FieldValue{ID: Hash(name), Name: name, Value: v}
}

// V builds a named variant case.
func V(name string, v any) Variant {
	return Variant{ID: Hash(name), Name: name, Value: v}
}

// Get returns the value of the field with the given name.
func (r Record) Get(name string) (any, bool) {
	return r.GetID(Hash(name))
}

// GetID returns the value of the field with the given label hash.
func (r Record) GetID(id uint32) (any, bool) {
	for _, f := range r {
		if f.ID == id {
			return f.Value, true
		}
	}
	return nil, false
}

// toBig converts any Go integer or *big.Int to a *big.Int.
func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return n, true
	case big.Int:
		return &n, true
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	}
	return nil, false
}

// integer bounds per fixed-width kind, as [min, max]
var intBounds = map[Kind][2]*big.Int{
	KindNat8:  {big.NewInt(0), big.NewInt(1<<8 - 1)},
	KindNat16: {big.NewInt(0), big.NewInt(1<<16 - 1)},
	KindNat32: {big.NewInt(0), big.NewInt(1<<32 - 1)},
	KindNat64: {big.NewInt(0), new(big.Int).SetUint64(1<<64 - 1)},
	KindInt8:  {big.NewInt(-1 << 7), big.NewInt(1<<7 - 1)},
	KindInt16: {big.NewInt(-1 << 15), big.NewInt(1<<15 - 1)},
	KindInt32: {big.NewInt(-1 << 31), big.NewInt(1<<31 - 1)},
	KindInt64: {big.NewInt(-1 << 63), big.NewInt(1<<63 - 1)},
}

// checkIntRange verifies n fits kind k.
func checkIntRange(k Kind, n *big.Int) error {
	switch k {
	case KindInt:
		return nil
	case KindNat:
		if n.Sign() < 0 {
			return fmt.Errorf("%w: %s is negative for nat", ErrEncode, n)
		}
		return nil
	}
	b, ok := intBounds[k]
	if !ok {
		return fmt.Errorf("%w: %s is not an integer type", ErrEncode, k)
	}
	if n.Cmp(b[0]) < 0 || n.Cmp(b[1]) > 0 {
		return fmt.Errorf("%w: %s out of range for %s", ErrEncode, n, k)
	}
	return nil
}

// isInteger reports whether k is one of the integer kinds.
func isInteger(k Kind) bool {
	return k >= KindNat && k <= KindInt64
}

// fixedValue converts an in-range big.Int to the Go type used for kind k.
func fixedValue(k Kind, n *big.Int) any {
	switch k {
	case KindNat8:
		return uint8(n.Uint64())
	case KindNat16:
		return uint16(n.Uint64())
	case KindNat32:
		return uint32(n.Uint64())
	case KindNat64:
		return n.Uint64()
	case KindInt8:
		return int8(n.Int64())
	case KindInt16:
		return int16(n.Int64())
	case KindInt32:
		return int32(n.Int64())
	case KindInt64:
		return n.Int64()
	}
	return new(big.Int).Set(n)
}
