// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"sort"
)

// Service is a parsed .did file.
type Service struct {
	Types   map[string]*Type     // named type definitions
	Methods map[string]*FuncType // the service's methods
	Init    []*Type              // class arguments, if the service is a class
}

// Method returns the signature of a method.
func (s *Service) Method(name string) (*FuncType, bool) {
	f, ok := s.Methods[name]
	return f, ok
}

var primitiveNames = map[string]Kind{
	"null":      KindNull,
	"bool":      KindBool,
	"nat":       KindNat,
	"int":       KindInt,
	"nat8":      KindNat8,
	"nat16":     KindNat16,
	"nat32":     KindNat32,
	"nat64":     KindNat64,
	"int8":      KindInt8,
	"int16":     KindInt16,
	"int32":     KindInt32,
	"int64":     KindInt64,
	"float32":   KindFloat32,
	"float64":   KindFloat64,
	"text":      KindText,
	"reserved":  KindReserved,
	"empty":     KindEmpty,
	"principal": KindPrincipal,
}

// ParseDID parses a Candid service description.
func ParseDID(src string) (*Service, error) {
	p := &parser{
		ts:   newTokenStream(src),
		env:  make(map[string]*Type),
		defs: make(map[string]*Type),
	}

	var actor *Type
	for {
		t, err := p.ts.Next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			break
		}
		if t.kind != tokIdent {
			return nil, p.ts.errorf(t, "expected a definition, found %s", t)
		}

		switch t.text {
		case "type":
			name, err := p.ts.Next()
			if err != nil {
				return nil, err
			}
			if name.kind != tokIdent {
				return nil, p.ts.errorf(name, "expected a type name, found %s", name)
			}
			if _, dup := p.defs[name.text]; dup {
				return nil, p.ts.errorf(name, "type %s defined twice", name.text)
			}
			if err := p.ts.Expect("="); err != nil {
				return nil, err
			}
			def, err := p.parseType()
			if err != nil {
				return nil, err
			}
			p.defs[name.text] = def

		case "import":
			return nil, p.ts.errorf(t, "imports are not supported")

		case "service":
			if actor != nil {
				return nil, p.ts.errorf(t, "more than one service definition")
			}
			if actor, err = p.parseActor(); err != nil {
				return nil, err
			}

		default:
			return nil, p.ts.errorf(t, "unexpected %s", t)
		}

		if _, err := p.ts.Accept(";"); err != nil {
			return nil, err
		}
	}

	if err := p.resolveNames(); err != nil {
		return nil, err
	}

	svc := &Service{Types: p.defs, Methods: make(map[string]*FuncType)}
	if actor == nil {
		return svc, nil
	}
	if actor.Kind == KindFunc {
		// service class: init args -> service
		svc.Init = actor.Func.Args
		actor = actor.Func.Rets[0]
	}
	if actor.Kind != KindService {
		return nil, fmt.Errorf("%w: service definition does not name a service type", ErrSyntax)
	}
	for _, m := range actor.Methods {
		if m.Type.Kind != KindFunc {
			return nil, fmt.Errorf("%w: method %s is not a function", ErrSyntax, m.Name)
		}
		svc.Methods[m.Name] = m.Type.Func
	}
	return svc, nil
}

// parseActor reads `[name] : [(args) ->] (service-body | type-name)`.
// A class is returned as a func type whose single result is the service.
func (p *parser) parseActor() (*Type, error) {
	t, err := p.ts.Peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokIdent {
		p.ts.Next()
	}
	if err := p.ts.Expect(":"); err != nil {
		return nil, err
	}

	var init []*Type
	isClass := false
	if t, err = p.ts.Peek(); err != nil {
		return nil, err
	}
	if t.kind == tokPunct && t.text == "(" {
		if init, err = p.parseTypeTuple(); err != nil {
			return nil, err
		}
		if err := p.ts.Expect("->"); err != nil {
			return nil, err
		}
		isClass = true
	}

	var svc *Type
	if t, err = p.ts.Peek(); err != nil {
		return nil, err
	}
	if t.kind == tokPunct && t.text == "{" {
		svc, err = p.parseServiceBody()
	} else {
		svc, err = p.parseType()
	}
	if err != nil {
		return nil, err
	}

	if isClass {
		return &Type{Kind: KindFunc, Func: &FuncType{Args: init, Rets: []*Type{svc}}}, nil
	}
	return svc, nil
}

func (p *parser) parseType() (*Type, error) {
	t, err := p.ts.Next()
	if err != nil {
		return nil, err
	}
	if t.kind != tokIdent {
		return nil, p.ts.errorf(t, "expected a type, found %s", t)
	}

	if k, ok := primitiveNames[t.text]; ok {
		return Primitive(k), nil
	}

	switch t.text {
	case "opt", "vec":
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if t.text == "opt" {
			return Opt(elem), nil
		}
		return Vec(elem), nil
	case "blob":
		return Blob(), nil
	case "record", "variant":
		return p.parseTypeFields(t.text == "record")
	case "func":
		f, err := p.parseFuncType()
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindFunc, Func: f}, nil
	case "service":
		return p.parseServiceBody()
	}

	if p.env == nil {
		return nil, p.ts.errorf(t, "unknown type %s", t.text)
	}
	return p.reference(t.text), nil
}

// reference returns the placeholder for a named type. Placeholders are
// filled once every definition has been read, which allows forward and
// recursive references.
func (p *parser) reference(name string) *Type {
	if ph, ok := p.env[name]; ok {
		return ph
	}
	ph := &Type{Name: name}
	p.env[name] = ph
	return ph
}

func (p *parser) resolveNames() error {
	placeholders := make(map[*Type]string, len(p.env))
	for name, ph := range p.env {
		placeholders[ph] = name
	}

	for name, ph := range p.env {
		def, ok := p.defs[name]
		if !ok {
			return fmt.Errorf("%w: undefined type %s", ErrSyntax, name)
		}
		// follow alias chains such as `type a = b; type b = nat`
		seen := map[string]bool{name: true}
		for {
			target, isRef := placeholders[def]
			if !isRef {
				break
			}
			if seen[target] {
				return fmt.Errorf("%w: type %s is an alias cycle", ErrSyntax, name)
			}
			seen[target] = true
			if def, ok = p.defs[target]; !ok {
				return fmt.Errorf("%w: undefined type %s", ErrSyntax, target)
			}
		}
		*ph = *def
		ph.Name = name
	}

	// expose every definition under its name; shared primitives are copied
	for name, def := range p.defs {
		if ph, ok := p.env[name]; ok {
			p.defs[name] = ph
			continue
		}
		named := *def
		named.Name = name
		p.defs[name] = &named
	}
	return nil
}

func (p *parser) parseTypeFields(record bool) (*Type, error) {
	if err := p.ts.Expect("{"); err != nil {
		return nil, err
	}
	var fields []Field
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
		var f Field
		labelled := false

		if t.kind == tokIdent || t.kind == tokText || t.kind == tokNumber {
			saveLex := p.ts.lex
			lt, _ := p.ts.Next()
			if ok, err := p.ts.Accept(":"); err != nil {
				return nil, err
			} else if ok {
				if f.ID, f.Name, err = fieldLabel(lt); err != nil {
					return nil, p.ts.errorf(lt, "%v", err)
				}
				if f.Type, err = p.parseType(); err != nil {
					return nil, err
				}
				labelled = true
			} else if !record && lt.kind != tokNumber {
				if f.ID, f.Name, err = fieldLabel(lt); err != nil {
					return nil, p.ts.errorf(lt, "%v", err)
				}
				f.Type = nullType
				labelled = true
			} else {
				p.ts.lex = saveLex
				p.ts.peek = &t
			}
		}

		if !labelled {
			f.ID = next
			if f.Type, err = p.parseType(); err != nil {
				return nil, err
			}
		}
		if seen[f.ID] {
			return nil, p.ts.errorf(t, "duplicate field %s", label(f.Name, f.ID))
		}
		seen[f.ID] = true
		next = f.ID + 1
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

	if record {
		return RecordOf(fields...), nil
	}
	return VariantOf(fields...), nil
}

func (p *parser) parseFuncType() (*FuncType, error) {
	args, err := p.parseTypeTuple()
	if err != nil {
		return nil, err
	}
	if err := p.ts.Expect("->"); err != nil {
		return nil, err
	}
	rets, err := p.parseTypeTuple()
	if err != nil {
		return nil, err
	}

	f := &FuncType{Args: args, Rets: rets}
	for {
		t, err := p.ts.Peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent {
			return f, nil
		}
		if _, ok := annotationCodes[t.text]; !ok {
			return f, nil
		}
		p.ts.Next()
		f.Annotations = append(f.Annotations, t.text)
	}
}

// parseTypeTuple reads `(T, name : T, ...)`. Argument names are documentation only.
func (p *parser) parseTypeTuple() ([]*Type, error) {
	if err := p.ts.Expect("("); err != nil {
		return nil, err
	}
	var types []*Type
	for {
		if ok, err := p.ts.Accept(")"); err != nil {
			return nil, err
		} else if ok {
			return types, nil
		}

		t, err := p.ts.Peek()
		if err != nil {
			return nil, err
		}
		if t.kind == tokIdent || t.kind == tokText {
			saveLex := p.ts.lex
			p.ts.Next()
			if ok, err := p.ts.Accept(":"); err != nil {
				return nil, err
			} else if !ok {
				p.ts.lex = saveLex
				p.ts.peek = &t
			}
		}

		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, typ)

		if ok, err := p.ts.Accept(","); err != nil {
			return nil, err
		} else if !ok {
			if err := p.ts.Expect(")"); err != nil {
				return nil, err
			}
			return types, nil
		}
	}
}

func (p *parser) parseServiceBody() (*Type, error) {
	if err := p.ts.Expect("{"); err != nil {
		return nil, err
	}
	svc := &Type{Kind: KindService}
	seen := make(map[string]bool)
	for {
		if ok, err := p.ts.Accept("}"); err != nil {
			return nil, err
		} else if ok {
			break
		}

		name, err := p.ts.Next()
		if err != nil {
			return nil, err
		}
		if name.kind != tokIdent && name.kind != tokText {
			return nil, p.ts.errorf(name, "expected a method name, found %s", name)
		}
		if seen[name.text] {
			return nil, p.ts.errorf(name, "method %s defined twice", name.text)
		}
		seen[name.text] = true
		if err := p.ts.Expect(":"); err != nil {
			return nil, err
		}

		var mt *Type
		if t, err := p.ts.Peek(); err != nil {
			return nil, err
		} else if t.kind == tokPunct && t.text == "(" {
			f, err := p.parseFuncType()
			if err != nil {
				return nil, err
			}
			mt = &Type{Kind: KindFunc, Func: f}
		} else if mt, err = p.parseType(); err != nil {
			return nil, err
		}
		svc.Methods = append(svc.Methods, Method{Name: name.text, Type: mt})

		if ok, err := p.ts.Accept(";"); err != nil {
			return nil, err
		} else if !ok {
			if err := p.ts.Expect("}"); err != nil {
				return nil, err
			}
			break
		}
	}
	sort.Slice(svc.Methods, func(i, j int) bool { return svc.Methods[i].Name < svc.Methods[j].Name })
	return svc, nil
}
