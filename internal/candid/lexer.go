// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokText
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier, number literal, decoded text, or punctuation
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokText:
		return strconv.Quote(t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

type lexer struct {
	src string
	pos int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

func (l *lexer) skipSpace() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 1
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			start := l.pos
			depth := 0
			for {
				if l.pos >= len(l.src) {
					return l.errorf(start, "unterminated comment")
				}
				if strings.HasPrefix(l.src[l.pos:], "/*") {
					depth++
					l.pos += 2
				} else if strings.HasPrefix(l.src[l.pos:], "*/") {
					depth--
					l.pos += 2
					if depth == 0 {
						break
					}
				} else {
					l.pos++
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpace(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil

	case isDigit(c) || ((c == '-' || c == '+') && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		l.pos++
		for l.pos < len(l.src) {
			c := l.src[l.pos]
			if isIdentChar(c) || c == '.' {
				l.pos++
				continue
			}
			// exponent sign
			lit := strings.ToLower(strings.TrimLeft(l.src[start:l.pos], "+-"))
			if (c == '-' || c == '+') && strings.HasSuffix(lit, "e") && !strings.HasPrefix(lit, "0x") {
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil

	case c == '"':
		s, err := l.text()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokText, text: s, pos: start}, nil

	case c == '-' && strings.HasPrefix(l.src[l.pos:], "->"):
		l.pos += 2
		return token{kind: tokPunct, text: "->", pos: start}, nil

	case strings.IndexByte("(){};,:=.", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q", c)
}

// text reads a quoted literal. Escapes may produce arbitrary bytes, so the
// result is not necessarily valid UTF-8.
func (l *lexer) text() (string, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf(start, "unterminated text literal")
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			return sb.String(), nil
		}
		if c != '\\' {
			sb.WriteByte(c)
			l.pos++
			continue
		}

		l.pos++
		if l.pos >= len(l.src) {
			return "", l.errorf(start, "unterminated escape")
		}
		e := l.src[l.pos]
		l.pos++
		switch e {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '"', '\'':
			sb.WriteByte(e)
		case 'u':
			if l.pos >= len(l.src) || l.src[l.pos] != '{' {
				return "", l.errorf(l.pos, `expected "{" after \u`)
			}
			end := strings.IndexByte(l.src[l.pos:], '}')
			if end < 0 {
				return "", l.errorf(l.pos, "unterminated unicode escape")
			}
			hexDigits := strings.ReplaceAll(l.src[l.pos+1:l.pos+end], "_", "")
			r, err := strconv.ParseUint(hexDigits, 16, 32)
			if err != nil || !utf8.ValidRune(rune(r)) {
				return "", l.errorf(l.pos, "invalid unicode escape %q", hexDigits)
			}
			sb.WriteRune(rune(r))
			l.pos += end + 1
		default:
			if l.pos >= len(l.src) {
				return "", l.errorf(l.pos, "truncated byte escape")
			}
			b, err := strconv.ParseUint(l.src[l.pos-1:l.pos+1], 16, 8)
			if err != nil {
				return "", l.errorf(l.pos-1, "invalid escape \\%c", e)
			}
			sb.WriteByte(byte(b))
			l.pos++
		}
	}
}

// tokenStream buffers one token of lookahead.
type tokenStream struct {
	lex  lexer
	peek *token
}

func newTokenStream(src string) *tokenStream {
	return &tokenStream{lex: lexer{src: src}}
}

func (s *tokenStream) Peek() (token, error) {
	if s.peek == nil {
		t, err := s.lex.next()
		if err != nil {
			return token{}, err
		}
		s.peek = &t
	}
	return *s.peek, nil
}

func (s *tokenStream) Next() (token, error) {
	t, err := s.Peek()
	s.peek = nil
	return t, err
}

// Accept consumes the next token if it is the given punctuation or keyword.
func (s *tokenStream) Accept(text string) (bool, error) {
	t, err := s.Peek()
	if err != nil {
		return false, err
	}
	if (t.kind == tokPunct || t.kind == tokIdent) && t.text == text {
		s.peek = nil
		return true, nil
	}
	return false, nil
}

// Expect consumes the given punctuation or keyword or fails.
func (s *tokenStream) Expect(text string) error {
	t, err := s.Next()
	if err != nil {
		return err
	}
	if (t.kind == tokPunct || t.kind == tokIdent) && t.text == text {
		return nil
	}
	return s.lex.errorf(t.pos, "expected %q, found %s", text, t)
}

func (s *tokenStream) errorf(t token, format string, args ...any) error {
	return s.lex.errorf(t.pos, format, args...)
}
