// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/aplane-algo/icsign/internal/principal"
)

const (
	maxDecodeDepth = 256

	// vec elements that occupy no bytes are capped separately, since the
	// input length does not bound them
	maxZeroSizedVec = 1 << 16
)

var opcodeAnnotations = map[byte]string{
	1: "query",
	2: "oneway",
	3: "composite_query",
}

// Decode parses a Candid message, returning its argument types and values.
// Values follow the Go representation documented on the package.
func Decode(data []byte) ([]*Type, []any, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, nil, fmt.Errorf("%w: missing %q magic", ErrDecode, Magic)
	}
	r := &reader{data: data, pos: len(Magic)}

	table, err := readTypeTable(r)
	if err != nil {
		return nil, nil, err
	}

	n, err := r.length(1)
	if err != nil {
		return nil, nil, err
	}
	types := make([]*Type, n)
	for i := range types {
		ref, err := r.sleb()
		if err != nil {
			return nil, nil, err
		}
		if types[i], err = table.resolve(ref); err != nil {
			return nil, nil, err
		}
	}

	values := make([]any, n)
	for i, t := range types {
		if values[i], err = decodeValue(r, t, 0); err != nil {
			return nil, nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	if r.remaining() != 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrDecode, r.remaining())
	}
	return types, values, nil
}

type wireTable struct {
	types []*Type
}

func (wt *wireTable) resolve(ref int64) (*Type, error) {
	if ref >= 0 {
		if ref >= int64(len(wt.types)) {
			return nil, fmt.Errorf("%w: type index %d out of range", ErrDecode, ref)
		}
		return wt.types[ref], nil
	}
	k, ok := opcodeKinds[ref]
	if !ok {
		return nil, fmt.Errorf("%w: unknown primitive type opcode %d", ErrDecode, ref)
	}
	return Primitive(k), nil
}

// readTypeTable reads the type table. Placeholders are allocated up front
// so entries may reference each other in any order.
func readTypeTable(r *reader) (*wireTable, error) {
	n, err := r.length(2)
	if err != nil {
		return nil, err
	}
	wt := &wireTable{types: make([]*Type, n)}
	for i := range wt.types {
		wt.types[i] = &Type{}
	}

	for i := 0; i < n; i++ {
		t := wt.types[i]
		op, err := r.sleb()
		if err != nil {
			return nil, err
		}
		switch op {
		case opOpt, opVec:
			t.Kind = KindOpt
			if op == opVec {
				t.Kind = KindVec
			}
			ref, err := r.sleb()
			if err != nil {
				return nil, err
			}
			if t.Elem, err = wt.resolve(ref); err != nil {
				return nil, err
			}

		case opRecord, opVariant:
			t.Kind = KindRecord
			if op == opVariant {
				t.Kind = KindVariant
			}
			count, err := r.length(2)
			if err != nil {
				return nil, err
			}
			t.Fields = make([]Field, count)
			for j := range t.Fields {
				id, err := r.uleb()
				if err != nil {
					return nil, err
				}
				if id > math.MaxUint32 {
					return nil, fmt.Errorf("%w: field label %d exceeds 32 bits", ErrDecode, id)
				}
				if j > 0 && uint32(id) <= t.Fields[j-1].ID {
					return nil, fmt.Errorf("%w: %s labels not strictly increasing", ErrDecode, t.Kind)
				}
				ref, err := r.sleb()
				if err != nil {
					return nil, err
				}
				ft, err := wt.resolve(ref)
				if err != nil {
					return nil, err
				}
				t.Fields[j] = Field{ID: uint32(id), Type: ft}
			}

		case opFunc:
			t.Kind = KindFunc
			t.Func = &FuncType{}
			if t.Func.Args, err = readRefs(r, wt); err != nil {
				return nil, err
			}
			if t.Func.Rets, err = readRefs(r, wt); err != nil {
				return nil, err
			}
			count, err := r.length(1)
			if err != nil {
				return nil, err
			}
			for j := 0; j < count; j++ {
				b, err := r.byte()
				if err != nil {
					return nil, err
				}
				a, ok := opcodeAnnotations[b]
				if !ok {
					return nil, fmt.Errorf("%w: unknown function annotation %d", ErrDecode, b)
				}
				t.Func.Annotations = append(t.Func.Annotations, a)
			}

		case opService:
			t.Kind = KindService
			count, err := r.length(2)
			if err != nil {
				return nil, err
			}
			for j := 0; j < count; j++ {
				nameLen, err := r.length(1)
				if err != nil {
					return nil, err
				}
				name, err := r.bytes(nameLen)
				if err != nil {
					return nil, err
				}
				if !utf8.Valid(name) {
					return nil, fmt.Errorf("%w: method name is not valid UTF-8", ErrDecode)
				}
				if j > 0 && string(name) <= t.Methods[j-1].Name {
					return nil, fmt.Errorf("%w: service methods not strictly increasing", ErrDecode)
				}
				ref, err := r.sleb()
				if err != nil {
					return nil, err
				}
				mt, err := wt.resolve(ref)
				if err != nil {
					return nil, err
				}
				t.Methods = append(t.Methods, Method{Name: string(name), Type: mt})
			}

		default:
			return nil, fmt.Errorf("%w: invalid type table opcode %d", ErrDecode, op)
		}
	}

	// method references must name function types
	for _, t := range wt.types {
		for _, m := range t.Methods {
			if m.Type.Kind != KindFunc {
				return nil, fmt.Errorf("%w: service method %q is not a function", ErrDecode, m.Name)
			}
		}
	}
	return wt, nil
}

func readRefs(r *reader, wt *wireTable) ([]*Type, error) {
	n, err := r.length(1)
	if err != nil {
		return nil, err
	}
	out := make([]*Type, n)
	for i := range out {
		ref, err := r.sleb()
		if err != nil {
			return nil, err
		}
		if out[i], err = wt.resolve(ref); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeValue(r *reader, t *Type, depth int) (any, error) {
	if depth > maxDecodeDepth {
		return nil, fmt.Errorf("%w: value nesting exceeds %d", ErrDecode, maxDecodeDepth)
	}

	switch t.Kind {
	case KindNull, KindReserved:
		return nil, nil

	case KindEmpty:
		return nil, fmt.Errorf("%w: type empty has no values", ErrDecode)

	case KindBool:
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("%w: invalid bool byte %d", ErrDecode, b)

	case KindNat:
		return r.bigUleb()

	case KindInt:
		return r.bigSleb()

	case KindNat8, KindInt8:
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		if t.Kind == KindInt8 {
			return int8(b), nil
		}
		return b, nil

	case KindNat16, KindInt16:
		b, err := r.bytes(2)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint16(b)
		if t.Kind == KindInt16 {
			return int16(v), nil
		}
		return v, nil

	case KindNat32, KindInt32, KindFloat32:
		b, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32(b)
		switch t.Kind {
		case KindInt32:
			return int32(v), nil
		case KindFloat32:
			return math.Float32frombits(v), nil
		}
		return v, nil

	case KindNat64, KindInt64, KindFloat64:
		b, err := r.bytes(8)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint64(b)
		switch t.Kind {
		case KindInt64:
			return int64(v), nil
		case KindFloat64:
			return math.Float64frombits(v), nil
		}
		return v, nil

	case KindText:
		n, err := r.length(1)
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrDecode)
		}
		return string(b), nil

	case KindPrincipal:
		flag, err := r.byte()
		if err != nil {
			return nil, err
		}
		if flag != 1 {
			return nil, fmt.Errorf("%w: opaque principal references are not supported", ErrDecode)
		}
		n, err := r.length(1)
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		p, err := principal.FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return p, nil

	case KindOpt:
		flag, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch flag {
		case 0:
			return None, nil
		case 1:
			v, err := decodeValue(r, t.Elem, depth+1)
			if err != nil {
				return nil, err
			}
			return Some(v), nil
		}
		return nil, fmt.Errorf("%w: invalid opt flag %d", ErrDecode, flag)

	case KindVec:
		minSize := 1
		if k := t.Elem.Kind; k == KindNull || k == KindReserved {
			minSize = 0
		}
		n, err := r.length(minSize)
		if err != nil {
			return nil, err
		}
		if minSize == 0 && n > maxZeroSizedVec {
			return nil, fmt.Errorf("%w: vec of %d zero-sized elements", ErrDecode, n)
		}
		if t.Elem.Kind == KindNat8 {
			b, err := r.bytes(n)
			if err != nil {
				return nil, err
			}
			return bytes.Clone(b), nil
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = decodeValue(r, t.Elem, depth+1); err != nil {
				return nil, err
			}
		}
		return items, nil

	case KindRecord:
		rec := make(Record, len(t.Fields))
		for i, f := range t.Fields {
			v, err := decodeValue(r, f.Type, depth+1)
			if err != nil {
				return nil, err
			}
			rec[i] = FieldValue{ID: f.ID, Name: f.Name, Value: v}
		}
		return rec, nil

	case KindVariant:
		idx, err := r.uleb()
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(t.Fields)) {
			return nil, fmt.Errorf("%w: variant index %d out of range", ErrDecode, idx)
		}
		f := t.Fields[idx]
		v, err := decodeValue(r, f.Type, depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{ID: f.ID, Name: f.Name, Value: v}, nil

	case KindFunc, KindService:
		return nil, fmt.Errorf("%w: %s values are not supported", ErrDecode, t.Kind)
	}
	return nil, fmt.Errorf("%w: unknown type kind %s", ErrDecode, t.Kind)
}
