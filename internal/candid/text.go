// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aplane-algo/icsign/internal/principal"
)

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeText
	nodeBool
	nodeNull
	nodeOpt
	nodeVec
	nodeBlob
	nodeRecord
	nodeVariant
	nodePrincipal
	nodeAnnotated
)

var nodeNames = [...]string{"number", "text", "bool", "null", "opt", "vec", "blob", "record", "variant", "principal", "annotated value"}

// node is a parsed textual value before it is bound to a type.
type node struct {
	kind   nodeKind
	text   string // number literal, text bytes, principal text
	b      bool
	elems  []*node
	fields []nodeField // sorted by id
	typ    *Type       // annotation
	pos    int
}

type nodeField struct {
	id    uint32
	name  string
	value *node
}

// Args is a parsed textual argument tuple such as
// `(record { to = "abc"; amount = 5 : nat64 }, opt 1)`.
type Args struct {
	values []*node
}

// ParseArgs parses a textual argument tuple. A bare value without
// surrounding parentheses is accepted as a one-element tuple.
func ParseArgs(text string) (*Args, error) {
	p := &parser{ts: newTokenStream(text)}

	var values []*node
	t, err := p.ts.Peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokEOF {
		return nil, p.ts.errorf(t, "empty argument text")
	}

	if t.kind == tokPunct && t.text == "(" {
		values, err = p.parseTuple()
	} else {
		var v *node
		v, err = p.parseValue()
		values = []*node{v}
	}
	if err != nil {
		return nil, err
	}

	if t, err = p.ts.Next(); err != nil {
		return nil, err
	} else if t.kind != tokEOF {
		return nil, p.ts.errorf(t, "unexpected %s after arguments", t)
	}
	return &Args{values: values}, nil
}

// Len is the number of arguments.
func (a *Args) Len() int {
	return len(a.values)
}

// Bind converts the arguments to values of the given types. With nil
// types, each argument's type is inferred from its literal form.
func (a *Args) Bind(types []*Type) ([]*Type, []any, error) {
	values := make([]any, len(a.values))

	if types == nil {
		types = make([]*Type, len(a.values))
		for i, n := range a.values {
			t, v, err := infer(n)
			if err != nil {
				return nil, nil, fmt.Errorf("argument %d: %w", i, err)
			}
			types[i], values[i] = t, v
		}
		return types, values, nil
	}

	if len(types) != len(a.values) {
		return nil, nil, fmt.Errorf("%w: method takes %d arguments, got %d", ErrSyntax, len(types), len(a.values))
	}
	for i, n := range a.values {
		v, err := elaborate(n, types[i])
		if err != nil {
			return nil, nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return types, values, nil
}

// Encode binds the arguments and encodes them as a Candid message.
func (a *Args) Encode(types []*Type) ([]byte, error) {
	types, values, err := a.Bind(types)
	if err != nil {
		return nil, err
	}
	return Encode(types, values)
}

// EncodeText parses and encodes textual arguments in one step.
func EncodeText(text string, types []*Type) ([]byte, error) {
	args, err := ParseArgs(text)
	if err != nil {
		return nil, err
	}
	return args.Encode(types)
}

// parser reads values and types. env and defs are only set when parsing
// a .did file, where types may be referenced by name.
type parser struct {
	ts   *tokenStream
	env  map[string]*Type // placeholders for referenced names
	defs map[string]*Type // definitions as written
}

func (p *parser) parseTuple() ([]*node, error) {
	if err := p.ts.Expect("("); err != nil {
		return nil, err
	}
	var values []*node
	for {
		if ok, err := p.ts.Accept(")"); err != nil {
			return nil, err
		} else if ok {
			return values, nil
		}
		v, err := p.parseAnnotatedValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if ok, err := p.ts.Accept(","); err != nil {
			return nil, err
		} else if !ok {
			if err := p.ts.Expect(")"); err != nil {
				return nil, err
			}
			return values, nil
		}
	}
}

func (p *parser) parseValue() (*node, error) {
	t, err := p.ts.Next()
	if err != nil {
		return nil, err
	}

	switch t.kind {
	case tokNumber:
		return &node{kind: nodeNumber, text: t.text, pos: t.pos}, nil
	case tokText:
		return &node{kind: nodeText, text: t.text, pos: t.pos}, nil
	case tokPunct:
		if t.text != "(" {
			break
		}
		inner, err := p.parseAnnotatedValue()
		if err != nil {
			return nil, err
		}
		if err := p.ts.Expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.parseKeywordValue(t)
	}
	return nil, p.ts.errorf(t, "expected a value, found %s", t)
}

// parseAnnotatedValue reads `value` or `value : type`.
func (p *parser) parseAnnotatedValue() (*node, error) {
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if ok, err := p.ts.Accept(":"); err != nil {
		return nil, err
	} else if ok {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		v = &node{kind: nodeAnnotated, elems: []*node{v}, typ: typ, pos: v.pos}
	}
	return v, nil
}

func (p *parser) parseKeywordValue(t token) (*node, error) {
	switch t.text {
	case "true", "false":
		return &node{kind: nodeBool, b: t.text == "true", pos: t.pos}, nil
	case "null":
		return &node{kind: nodeNull, pos: t.pos}, nil
	case "opt":
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeOpt, elems: []*node{v}, pos: t.pos}, nil
	case "vec":
		return p.parseVec(t)
	case "blob":
		s, err := p.ts.Next()
		if err != nil {
			return nil, err
		}
		if s.kind != tokText {
			return nil, p.ts.errorf(s, "blob expects a text literal")
		}
		return &node{kind: nodeBlob, text: s.text, pos: t.pos}, nil
	case "principal":
		s, err := p.ts.Next()
		if err != nil {
			return nil, err
		}
		if s.kind != tokText {
			return nil, p.ts.errorf(s, "principal expects a text literal")
		}
		return &node{kind: nodePrincipal, text: s.text, pos: t.pos}, nil
	case "record":
		fields, err := p.parseFields(true)
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeRecord, fields: fields, pos: t.pos}, nil
	case "variant":
		fields, err := p.parseFields(false)
		if err != nil {
			return nil, err
		}
		if len(fields) != 1 {
			return nil, p.ts.errorf(t, "variant value must have exactly one case")
		}
		return &node{kind: nodeVariant, fields: fields, pos: t.pos}, nil
	}
	return nil, p.ts.errorf(t, "unexpected keyword %s", t)
}

func (p *parser) parseVec(t token) (*node, error) {
	if err := p.ts.Expect("{"); err != nil {
		return nil, err
	}
	n := &node{kind: nodeVec, pos: t.pos}
	for {
		if ok, err := p.ts.Accept("}"); err != nil {
			return nil, err
		} else if ok {
			return n, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		n.elems = append(n.elems, v)
		if ok, err := p.ts.Accept(";"); err != nil {
			return nil, err
		} else if !ok {
			if err := p.ts.Expect("}"); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
}

// parseFields reads `{ label = value; ... }`. Records allow unlabelled
// fields, numbered one past the previous field. Variant cases may omit
// "= value", meaning null.
func (p *parser) parseFields(record bool) ([]nodeField, error) {
	if err := p.ts.Expect("{"); err != nil {
		return nil, err
	}
	var fields []nodeField
	var next uint32
	seen := make(map[uint32]bool)

	for {
		if ok, err := p.ts.Accept("}"); err != nil {
			return nil, err
		} else if ok {
			break
		}

		t, err := p.ts.Peek()
		if err != nil {
			return nil, err
		}
		var f nodeField
		labelled := false

		if t.kind == tokIdent || t.kind == tokText || t.kind == tokNumber {
			// look past the label for "="
			saveLex := p.ts.lex
			lt, _ := p.ts.Next()
			if ok, err := p.ts.Accept("="); err != nil {
				return nil, err
			} else if ok {
				if f.id, f.name, err = fieldLabel(lt); err != nil {
					return nil, p.ts.errorf(lt, "%v", err)
				}
				labelled = true
			} else if !record && (t.kind == tokIdent || t.kind == tokText) {
				// bare variant case
				if f.id, f.name, err = fieldLabel(lt); err != nil {
					return nil, p.ts.errorf(lt, "%v", err)
				}
				f.value = &node{kind: nodeNull, pos: lt.pos}
				labelled = true
			} else {
				p.ts.lex = saveLex
				p.ts.peek = &t
			}
		}

		if !labelled {
			if !record {
				return nil, p.ts.errorf(t, "variant case needs a label")
			}
			f.id = next
		}
		if f.value == nil {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			f.value = v
		}
		if seen[f.id] {
			return nil, p.ts.errorf(t, "duplicate field %s", label(f.name, f.id))
		}
		seen[f.id] = true
		next = f.id + 1
		fields = append(fields, f)

		if ok, err := p.ts.Accept(";"); err != nil {
			return nil, err
		} else if !ok {
			if err := p.ts.Expect("}"); err != nil {
				return nil, err
			}
			break
		}
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].id < fields[j].id })
	return fields, nil
}

// fieldLabel interprets an identifier, quoted name or number as a label.
func fieldLabel(t token) (uint32, string, error) {
	switch t.kind {
	case tokIdent, tokText:
		return Hash(t.text), t.text, nil
	case tokNumber:
		n, err := strconv.ParseUint(strings.ReplaceAll(t.text, "_", ""), 0, 32)
		if err != nil {
			return 0, "", fmt.Errorf("invalid field id %q", t.text)
		}
		return uint32(n), "", nil
	}
	return 0, "", fmt.Errorf("invalid field label %s", t)
}

func (n *node) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, n.pos, fmt.Sprintf(format, args...))
}

func (n *node) mismatch(t *Type) error {
	return n.errorf("%s literal does not match type %s", nodeNames[n.kind], t)
}

// parseInteger reads an integer literal with optional sign, 0x prefix and
// underscores.
func parseInteger(lit string) (*big.Int, bool) {
	s := strings.ReplaceAll(lit, "_", "")
	neg := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, false
	}
	if neg {
		n.Neg(n)
	}
	return n, true
}

func isFloatLiteral(lit string) bool {
	s := strings.ToLower(lit)
	if strings.Contains(s, "0x") {
		return false
	}
	return strings.ContainsAny(s, ".e")
}

// elaborate binds n to type t.
func elaborate(n *node, t *Type) (any, error) {
	if t.Kind == KindReserved {
		return nil, nil
	}

	switch n.kind {
	case nodeAnnotated:
		if n.typ.Kind != t.Kind {
			return nil, n.errorf("annotation %s does not match expected type %s", n.typ, t)
		}
		return elaborate(n.elems[0], t)
	case nodeNull:
		switch t.Kind {
		case KindNull:
			return nil, nil
		case KindOpt:
			return None, nil
		}
		return nil, n.mismatch(t)
	case nodeOpt:
		if t.Kind != KindOpt {
			return nil, n.mismatch(t)
		}
		v, err := elaborate(n.elems[0], t.Elem)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	}

	// a bare value where an optional is expected is taken as present
	if t.Kind == KindOpt {
		v, err := elaborate(n, t.Elem)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	}

	switch n.kind {
	case nodeNumber:
		if isInteger(t.Kind) {
			if isFloatLiteral(n.text) {
				return nil, n.errorf("%s is not an integer", n.text)
			}
			v, ok := parseInteger(n.text)
			if !ok {
				return nil, n.errorf("invalid number %q", n.text)
			}
			if err := checkIntRange(t.Kind, v); err != nil {
				return nil, n.errorf("%v", err)
			}
			return fixedValue(t.Kind, v), nil
		}
		if t.Kind == KindFloat32 || t.Kind == KindFloat64 {
			bits := 64
			if t.Kind == KindFloat32 {
				bits = 32
			}
			f, err := strconv.ParseFloat(strings.ReplaceAll(n.text, "_", ""), bits)
			if err != nil {
				return nil, n.errorf("invalid float %q", n.text)
			}
			if bits == 32 {
				return float32(f), nil
			}
			return f, nil
		}

	case nodeText:
		if t.Kind == KindText {
			if !utf8.ValidString(n.text) {
				return nil, n.errorf("text is not valid UTF-8")
			}
			return n.text, nil
		}

	case nodeBool:
		if t.Kind == KindBool {
			return n.b, nil
		}

	case nodeBlob:
		if t.IsBlob() {
			return []byte(n.text), nil
		}

	case nodePrincipal:
		if t.Kind == KindPrincipal {
			pr, err := principal.FromText(n.text)
			if err != nil {
				return nil, n.errorf("%v", err)
			}
			return pr, nil
		}

	case nodeVec:
		if t.Kind != KindVec {
			break
		}
		if t.IsBlob() {
			out := make([]byte, len(n.elems))
			for i, e := range n.elems {
				v, err := elaborate(e, t.Elem)
				if err != nil {
					return nil, err
				}
				out[i] = v.(uint8)
			}
			return out, nil
		}
		out := make([]any, len(n.elems))
		for i, e := range n.elems {
			v, err := elaborate(e, t.Elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case nodeRecord:
		if t.Kind != KindRecord {
			break
		}
		return elaborateRecord(n, t)

	case nodeVariant:
		if t.Kind != KindVariant {
			break
		}
		nf := n.fields[0]
		f, _, ok := t.FieldByID(nf.id)
		if !ok {
			return nil, n.errorf("variant has no case %s", label(nf.name, nf.id))
		}
		v, err := elaborate(nf.value, f.Type)
		if err != nil {
			return nil, err
		}
		return Variant{ID: f.ID, Name: f.Name, Value: v}, nil
	}
	return nil, n.mismatch(t)
}

func elaborateRecord(n *node, t *Type) (any, error) {
	byID := make(map[uint32]nodeField, len(n.fields))
	for _, nf := range n.fields {
		if _, _, ok := t.FieldByID(nf.id); !ok {
			return nil, n.errorf("record has no field %s", label(nf.name, nf.id))
		}
		byID[nf.id] = nf
	}

	rec := make(Record, 0, len(t.Fields))
	for _, f := range t.Fields {
		nf, ok := byID[f.ID]
		if !ok {
			switch f.Type.Kind {
			case KindOpt:
				rec = append(rec, FieldValue{ID: f.ID, Name: f.Name, Value: None})
				continue
			case KindNull, KindReserved:
				rec = append(rec, FieldValue{ID: f.ID, Name: f.Name})
				continue
			}
			return nil, n.errorf("missing record field %s", label(f.Name, f.ID))
		}
		v, err := elaborate(nf.value, f.Type)
		if err != nil {
			return nil, err
		}
		rec = append(rec, FieldValue{ID: f.ID, Name: f.Name, Value: v})
	}
	return rec, nil
}

// infer derives a type for n from its literal form.
func infer(n *node) (*Type, any, error) {
	switch n.kind {
	case nodeAnnotated:
		v, err := elaborate(n.elems[0], n.typ)
		return n.typ, v, err

	case nodeNumber:
		if isFloatLiteral(n.text) {
			f, err := strconv.ParseFloat(strings.ReplaceAll(n.text, "_", ""), 64)
			if err != nil {
				return nil, nil, n.errorf("invalid float %q", n.text)
			}
			return float64Type, f, nil
		}
		v, ok := parseInteger(n.text)
		if !ok {
			return nil, nil, n.errorf("invalid number %q", n.text)
		}
		return intType, v, nil

	case nodeText:
		if !utf8.ValidString(n.text) {
			return nil, nil, n.errorf("text is not valid UTF-8")
		}
		return textType, n.text, nil

	case nodeBool:
		return boolType, n.b, nil

	case nodeNull:
		return nullType, nil, nil

	case nodeBlob:
		return Blob(), []byte(n.text), nil

	case nodePrincipal:
		pr, err := principal.FromText(n.text)
		if err != nil {
			return nil, nil, n.errorf("%v", err)
		}
		return principalType, pr, nil

	case nodeOpt:
		t, v, err := infer(n.elems[0])
		if err != nil {
			return nil, nil, err
		}
		return Opt(t), Some(v), nil

	case nodeVec:
		if len(n.elems) == 0 {
			return Vec(reservedType), []any{}, nil
		}
		elem, first, err := infer(n.elems[0])
		if err != nil {
			return nil, nil, err
		}
		out := []any{first}
		for _, e := range n.elems[1:] {
			v, err := elaborate(e, elem)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, v)
		}
		return Vec(elem), out, nil

	case nodeRecord, nodeVariant:
		fields := make([]Field, len(n.fields))
		values := make([]FieldValue, len(n.fields))
		for i, nf := range n.fields {
			ft, v, err := infer(nf.value)
			if err != nil {
				return nil, nil, err
			}
			fields[i] = Field{Name: nf.name, ID: nf.id, Type: ft}
			values[i] = FieldValue{ID: nf.id, Name: nf.name, Value: v}
		}
		if n.kind == nodeVariant {
			return VariantOf(fields...), Variant(values[0]), nil
		}
		return RecordOf(fields...), Record(values), nil
	}
	return nil, nil, n.errorf("cannot infer a type for %s", nodeNames[n.kind])
}
