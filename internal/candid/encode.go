// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/aplane-algo/icsign/internal/principal"
)

// Magic prefixes every Candid message.
const Magic = "DIDL"

var annotationCodes = map[string]byte{
	"query":           1,
	"oneway":          2,
	"composite_query": 3,
}

// Encode serializes values as a Candid message with the given argument types.
func Encode(types []*Type, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: %d types for %d values", ErrEncode, len(types), len(values))
	}

	table := &typeTable{index: make(map[*Type]int64)}
	refs := make([]int64, len(types))
	for i, t := range types {
		ref, err := table.ref(t)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}

	buf := []byte(Magic)
	buf = AppendUleb128(buf, uint64(len(table.entries)))
	for _, e := range table.entries {
		buf = append(buf, e...)
	}
	buf = AppendUleb128(buf, uint64(len(refs)))
	for _, ref := range refs {
		buf = AppendSleb128(buf, ref)
	}

	var err error
	for i, v := range values {
		buf, err = encodeValue(buf, types[i], v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return buf, nil
}

// EmptyArgs is the encoding of the empty argument tuple, "()".
func EmptyArgs() []byte {
	b, _ := Encode(nil, nil)
	return b
}

// typeTable assigns table indices to composite types. A type is
// registered before its children so recursive types terminate.
type typeTable struct {
	index   map[*Type]int64
	entries [][]byte
}

func (tt *typeTable) ref(t *Type) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: nil type", ErrEncode)
	}
	if op, ok := kindOpcodes[t.Kind]; ok {
		return op, nil
	}
	if i, ok := tt.index[t]; ok {
		return i, nil
	}

	i := int64(len(tt.entries))
	tt.index[t] = i
	tt.entries = append(tt.entries, nil)

	var e []byte
	switch t.Kind {
	case KindOpt, KindVec:
		op := opOpt
		if t.Kind == KindVec {
			op = opVec
		}
		elem, err := tt.ref(t.Elem)
		if err != nil {
			return 0, err
		}
		e = AppendSleb128(e, op)
		e = AppendSleb128(e, elem)

	case KindRecord, KindVariant:
		op := opRecord
		if t.Kind == KindVariant {
			op = opVariant
		}
		e = AppendSleb128(e, op)
		e = AppendUleb128(e, uint64(len(t.Fields)))
		for j, f := range t.Fields {
			if j > 0 && f.ID <= t.Fields[j-1].ID {
				return 0, fmt.Errorf("%w: %s fields are not in strictly increasing label order", ErrEncode, t.Kind)
			}
			fref, err := tt.ref(f.Type)
			if err != nil {
				return 0, err
			}
			e = AppendUleb128(e, uint64(f.ID))
			e = AppendSleb128(e, fref)
		}

	case KindFunc:
		e = AppendSleb128(e, opFunc)
		var err error
		if e, err = tt.appendRefs(e, t.Func.Args); err != nil {
			return 0, err
		}
		if e, err = tt.appendRefs(e, t.Func.Rets); err != nil {
			return 0, err
		}
		e = AppendUleb128(e, uint64(len(t.Func.Annotations)))
		for _, a := range t.Func.Annotations {
			code, ok := annotationCodes[a]
			if !ok {
				return 0, fmt.Errorf("%w: unknown function annotation %q", ErrEncode, a)
			}
			e = append(e, code)
		}

	case KindService:
		e = AppendSleb128(e, opService)
		e = AppendUleb128(e, uint64(len(t.Methods)))
		for _, m := range t.Methods {
			mref, err := tt.ref(m.Type)
			if err != nil {
				return 0, err
			}
			e = AppendUleb128(e, uint64(len(m.Name)))
			e = append(e, m.Name...)
			e = AppendSleb128(e, mref)
		}

	default:
		return 0, fmt.Errorf("%w: unknown type kind %s", ErrEncode, t.Kind)
	}

	tt.entries[i] = e
	return i, nil
}

func (tt *typeTable) appendRefs(e []byte, types []*Type) ([]byte, error) {
	e = AppendUleb128(e, uint64(len(types)))
	for _, t := range types {
		ref, err := tt.ref(t)
		if err != nil {
			return nil, err
		}
		e = AppendSleb128(e, ref)
	}
	return e, nil
}

func mismatch(t *Type, v any) error {
	return fmt.Errorf("%w: cannot encode %T as %s", ErrEncode, v, t.Kind)
}

func encodeValue(buf []byte, t *Type, v any) ([]byte, error) {
	switch t.Kind {
	case KindNull:
		if v != nil {
			return nil, mismatch(t, v)
		}
		return buf, nil

	case KindReserved:
		return buf, nil

	case KindEmpty:
		return nil, fmt.Errorf("%w: type empty has no values", ErrEncode)

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case KindNat, KindInt, KindNat8, KindNat16, KindNat32, KindNat64,
		KindInt8, KindInt16, KindInt32, KindInt64:
		n, ok := toBig(v)
		if !ok {
			return nil, mismatch(t, v)
		}
		if err := checkIntRange(t.Kind, n); err != nil {
			return nil, err
		}
		return appendInteger(buf, t.Kind, n), nil

	case KindFloat32:
		var f float32
		switch x := v.(type) {
		case float32:
			f = x
		case float64:
			f = float32(x)
		default:
			return nil, mismatch(t, v)
		}
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(f)), nil

	case KindFloat64:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			return nil, mismatch(t, v)
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f)), nil

	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(t, v)
		}
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrEncode)
		}
		buf = AppendUleb128(buf, uint64(len(s)))
		return append(buf, s...), nil

	case KindPrincipal:
		p, ok := v.(principal.Principal)
		if !ok {
			return nil, mismatch(t, v)
		}
		buf = append(buf, 1)
		buf = AppendUleb128(buf, uint64(p.Len()))
		return append(buf, p.Bytes()...), nil

	case KindOpt:
		var o OptValue
		switch x := v.(type) {
		case nil:
		case OptValue:
			o = x
		default:
			return nil, mismatch(t, v)
		}
		if !o.Some {
			return append(buf, 0), nil
		}
		return encodeValue(append(buf, 1), t.Elem, o.Value)

	case KindVec:
		if b, ok := v.([]byte); ok && t.Elem.Kind == KindNat8 {
			buf = AppendUleb128(buf, uint64(len(b)))
			return append(buf, b...), nil
		}
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(t, v)
		}
		buf = AppendUleb128(buf, uint64(len(items)))
		var err error
		for i, item := range items {
			if buf, err = encodeValue(buf, t.Elem, item); err != nil {
				return nil, fmt.Errorf("vec element %d: %w", i, err)
			}
		}
		return buf, nil

	case KindRecord:
		r, ok := v.(Record)
		if !ok {
			return nil, mismatch(t, v)
		}
		for _, fv := range r {
			if _, _, ok := t.FieldByID(fv.ID); !ok {
				return nil, fmt.Errorf("%w: record has no field %s", ErrEncode, label(fv.Name, fv.ID))
			}
		}
		var err error
		for _, f := range t.Fields {
			fv, present := r.GetID(f.ID)
			if !present {
				switch f.Type.Kind {
				case KindOpt, KindNull, KindReserved:
					fv = nil
				default:
					return nil, fmt.Errorf("%w: missing record field %s", ErrEncode, label(f.Name, f.ID))
				}
			}
			if buf, err = encodeValue(buf, f.Type, fv); err != nil {
				return nil, fmt.Errorf("field %s: %w", label(f.Name, f.ID), err)
			}
		}
		return buf, nil

	case KindVariant:
		vv, ok := v.(Variant)
		if !ok {
			return nil, mismatch(t, v)
		}
		f, idx, ok := t.FieldByID(vv.ID)
		if !ok {
			return nil, fmt.Errorf("%w: variant has no case %s", ErrEncode, label(vv.Name, vv.ID))
		}
		buf = AppendUleb128(buf, uint64(idx))
		return encodeValue(buf, f.Type, vv.Value)

	case KindFunc, KindService:
		return nil, fmt.Errorf("%w: %s values are not supported", ErrEncode, t.Kind)
	}
	return nil, fmt.Errorf("%w: unknown type kind %s", ErrEncode, t.Kind)
}

func label(name string, id uint32) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%d", id)
}

// appendInteger writes an in-range integer of kind k.
func appendInteger(buf []byte, k Kind, n *big.Int) []byte {
	switch k {
	case KindNat:
		return appendBigUleb128(buf, n)
	case KindInt:
		return appendBigSleb128(buf, n)
	case KindNat8:
		return append(buf, byte(n.Uint64()))
	case KindNat16:
		return binary.LittleEndian.AppendUint16(buf, uint16(n.Uint64()))
	case KindNat32:
		return binary.LittleEndian.AppendUint32(buf, uint32(n.Uint64()))
	case KindNat64:
		return binary.LittleEndian.AppendUint64(buf, n.Uint64())
	case KindInt8:
		return append(buf, byte(int8(n.Int64())))
	case KindInt16:
		return binary.LittleEndian.AppendUint16(buf, uint16(int16(n.Int64())))
	case KindInt32:
		return binary.LittleEndian.AppendUint32(buf, uint32(int32(n.Int64())))
	default: // KindInt64
		return binary.LittleEndian.AppendUint64(buf, uint64(n.Int64()))
	}
}
