// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package candid implements the Candid interface description language:
// the binary argument format, the textual value syntax, .did service
// definitions, and random value generation for testing calls.
//
// Go representation of values:
//
//	null, reserved        nil
//	bool                  bool
//	nat, int              *big.Int
//	nat8 … nat64          uint8 … uint64
//	int8 … int64          int8 … int64
//	float32, float64      float32, float64
//	text                  string
//	principal             principal.Principal
//	opt T                 Opt
//	vec nat8              []byte
//	vec T                 []any
//	record                Record
//	variant               Variant
//
// The encoder also accepts any Go integer or *big.Int for every integer
// type, range-checked against the target type.
package candid

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEncode indicates a value that does not fit its type
	ErrEncode = errors.New("candid encode error")

	// ErrDecode indicates malformed Candid binary data
	ErrDecode = errors.New("candid decode error")

	// ErrSyntax indicates malformed Candid text
	ErrSyntax = errors.New("candid syntax error")
)

// Kind enumerates Candid types.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNat
	KindInt
	KindNat8
	KindNat16
	KindNat32
	KindNat64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindText
	KindReserved
	KindEmpty
	KindPrincipal
	KindOpt
	KindVec
	KindRecord
	KindVariant
	KindFunc
	KindService
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindNat:       "nat",
	KindInt:       "int",
	KindNat8:      "nat8",
	KindNat16:     "nat16",
	KindNat32:     "nat32",
	KindNat64:     "nat64",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindText:      "text",
	KindReserved:  "reserved",
	KindEmpty:     "empty",
	KindPrincipal: "principal",
	KindOpt:       "opt",
	KindVec:       "vec",
	KindRecord:    "record",
	KindVariant:   "variant",
	KindFunc:      "func",
	KindService:   "service",
}

// primitive type opcodes on the wire
var kindOpcodes = map[Kind]int64{
	KindNull:      -1,
	KindBool:      -2,
	KindNat:       -3,
	KindInt:       -4,
	KindNat8:      -5,
	KindNat16:     -6,
	KindNat32:     -7,
	KindNat64:     -8,
	KindInt8:      -9,
	KindInt16:     -10,
	KindInt32:     -11,
	KindInt64:     -12,
	KindFloat32:   -13,
	KindFloat64:   -14,
	KindText:      -15,
	KindReserved:  -16,
	KindEmpty:     -17,
	KindPrincipal: -24,
}

const (
	opOpt     int64 = -18
	opVec     int64 = -19
	opRecord  int64 = -20
	opVariant int64 = -21
	opFunc    int64 = -22
	opService int64 = -23
)

var opcodeKinds = func() map[int64]Kind {
	m := make(map[int64]Kind, len(kindOpcodes))
	for k, op := range kindOpcodes {
		m[op] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsPrimitive reports whether k is encoded inline rather than in the type table.
func (k Kind) IsPrimitive() bool {
	_, ok := kindOpcodes[k]
	return ok
}

// Type is a Candid type. Named types from .did files may be recursive,
// so Type graphs can contain cycles.
type Type struct {
	Kind    Kind
	Elem    *Type     // opt, vec
	Fields  []Field   // record, variant; sorted by ID
	Func    *FuncType // func
	Methods []Method  // service; sorted by name
	Name    string    // name of the .did definition this type came from, if any
}

// Field is a record or variant member.
type Field struct {
	Name string // empty for numeric labels
	ID   uint32
	Type *Type
}

// FuncType is the signature of a func reference or service method.
type FuncType struct {
	Args        []*Type
	Rets        []*Type
	Annotations []string // "query", "composite_query", "oneway"
}

// Method is a service member.
type Method struct {
	Name string
	Type *Type // KindFunc
}

// IsQuery reports whether the function is annotated query or composite_query.
func (f *FuncType) IsQuery() bool {
	for _, a := range f.Annotations {
		if a == "query" || a == "composite_query" {
			return true
		}
	}
	return false
}

// Hash computes the Candid label hash of a field name.
func Hash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*223 + uint32(name[i])
	}
	return h
}

var (
	nullType      = &Type{Kind: KindNull}
	boolType      = &Type{Kind: KindBool}
	natType       = &Type{Kind: KindNat}
	intType       = &Type{Kind: KindInt}
	nat8Type      = &Type{Kind: KindNat8}
	nat16Type     = &Type{Kind: KindNat16}
	nat32Type     = &Type{Kind: KindNat32}
	nat64Type     = &Type{Kind: KindNat64}
	int8Type      = &Type{Kind: KindInt8}
	int16Type     = &Type{Kind: KindInt16}
	int32Type     = &Type{Kind: KindInt32}
	int64Type     = &Type{Kind: KindInt64}
	float32Type   = &Type{Kind: KindFloat32}
	float64Type   = &Type{Kind: KindFloat64}
	textType      = &Type{Kind: KindText}
	reservedType  = &Type{Kind: KindReserved}
	emptyType     = &Type{Kind: KindEmpty}
	principalType = &Type{Kind: KindPrincipal}
)

// Primitive returns the shared type for a primitive kind.
func Primitive(k Kind) *Type {
	switch k {
	case KindNull:
		return nullType
	case KindBool:
		return boolType
	case KindNat:
		return natType
	case KindInt:
		return intType
	case KindNat8:
		return nat8Type
	case KindNat16:
		return nat16Type
	case KindNat32:
		return nat32Type
	case KindNat64:
		return nat64Type
	case KindInt8:
		return int8Type
	case KindInt16:
		return int16Type
	case KindInt32:
		return int32Type
	case KindInt64:
		return int64Type
	case KindFloat32:
		return float32Type
	case KindFloat64:
		return float64Type
	case KindText:
		return textType
	case KindReserved:
		return reservedType
	case KindEmpty:
		return emptyType
	case KindPrincipal:
		return principalType
	}
	panic(fmt.Sprintf("candid: %s is not a primitive kind", k))
}

// Null, Bool, … are shorthands for the primitive types.
func Null() *Type      { return nullType }
func Bool() *Type      { return boolType }
func Nat() *Type       { return natType }
func Int() *Type       { return intType }
func Nat8() *Type      { return nat8Type }
func Nat64() *Type     { return nat64Type }
func Text() *Type      { return textType }
func Reserved() *Type  { return reservedType }
func Principal() *Type { return principalType }

// Opt returns opt elem.
func Opt(elem *Type) *Type {
	return &Type{Kind: KindOpt, Elem: elem}
}

// Vec returns vec elem.
func Vec(elem *Type) *Type {
	return &Type{Kind: KindVec, Elem: elem}
}

// Blob returns vec nat8.
func Blob() *Type {
	return Vec(nat8Type)
}

// NewField returns a field labelled by name.
func NewField(name string, t *Type) Field {
	return Field{Name: name, ID: Hash(name), Type: t}
}

// RecordOf returns a record type with fields sorted by label hash.
func RecordOf(fields ...Field) *Type {
	return &Type{Kind: KindRecord, Fields: sortFields(fields)}
}

// VariantOf returns a variant type with fields sorted by label hash.
func VariantOf(fields ...Field) *Type {
	return &Type{Kind: KindVariant, Fields: sortFields(fields)}
}

func sortFields(fields []Field) []Field {
	out := append([]Field(nil), fields...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FieldByID returns the field with the given label hash.
func (t *Type) FieldByID(id uint32) (Field, int, bool) {
	i := sort.Search(len(t.Fields), func(i int) bool { return t.Fields[i].ID >= id })
	if i < len(t.Fields) && t.Fields[i].ID == id {
		return t.Fields[i], i, true
	}
	return Field{}, -1, false
}

// IsBlob reports whether t is vec nat8.
func (t *Type) IsBlob() bool {
	return t.Kind == KindVec && t.Elem != nil && t.Elem.Kind == KindNat8
}

// String renders t in .did syntax. Named types print by name below the top level;
// an anonymous type reached again inside itself prints as <recursive>.
func (t *Type) String() string {
	var sb strings.Builder
	t.write(&sb, true, map[*Type]bool{})
	return sb.String()
}

func (t *Type) write(sb *strings.Builder, top bool, open map[*Type]bool) {
	if !top && t.Name != "" {
		sb.WriteString(t.Name)
		return
	}
	if open[t] {
		sb.WriteString("<recursive>")
		return
	}
	open[t] = true
	defer delete(open, t)

	switch t.Kind {
	case KindOpt:
		sb.WriteString("opt ")
		t.Elem.write(sb, false, open)
	case KindVec:
		if t.IsBlob() {
			sb.WriteString("blob")
			return
		}
		sb.WriteString("vec ")
		t.Elem.write(sb, false, open)
	case KindRecord, KindVariant:
		sb.WriteString(t.Kind.String())
		sb.WriteString(" {")
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(";")
			}
			sb.WriteString(" ")
			if f.Name != "" {
				sb.WriteString(f.Name)
			} else {
				fmt.Fprintf(sb, "%d", f.ID)
			}
			if t.Kind == KindVariant && f.Type.Kind == KindNull {
				continue
			}
			sb.WriteString(" : ")
			f.Type.write(sb, false, open)
		}
		sb.WriteString(" }")
	case KindFunc:
		sb.WriteString("func ")
		t.Func.write(sb, open)
	case KindService:
		sb.WriteString("service {")
		for _, m := range t.Methods {
			sb.WriteString(" ")
			sb.WriteString(m.Name)
			sb.WriteString(" : ")
			m.Type.Func.write(sb, open)
			sb.WriteString(";")
		}
		sb.WriteString(" }")
	default:
		sb.WriteString(t.Kind.String())
	}
}

func (f *FuncType) write(sb *strings.Builder, open map[*Type]bool) {
	writeTuple(sb, f.Args, open)
	sb.WriteString(" -> ")
	writeTuple(sb, f.Rets, open)
	for _, a := range f.Annotations {
		sb.WriteString(" ")
		sb.WriteString(a)
	}
}

func writeTuple(sb *strings.Builder, types []*Type, open map[*Type]bool) {
	sb.WriteString("(")
	for i, t := range types {
		if i > 0 {
			sb.WriteString(", ")
		}
		t.write(sb, false, open)
	}
	sb.WriteString(")")
}
