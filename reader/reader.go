// Package reader turns source text into store expressions and prints
// expressions back as text.
package reader

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/lurk/store"
)

// Position is a location in source text. Line and Column are 1-based.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SyntaxError reports malformed source.
type SyntaxError struct {
	Pos Position
	Msg string
	// Incomplete is set when the input ended inside a list or string.
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg)
}

// ---------------------------------------------------------------------------
// Reader: source text to expressions
// ---------------------------------------------------------------------------

// Reader reads successive expressions from source text into a store.
// Symbol names are upper-cased; nil reads as the Nil pointer.
type Reader struct {
	s *store.Store

	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int
	col     int
}

// New creates a reader over input.
func New(s *store.Store, input string) *Reader {
	r := &Reader{s: s, input: input, line: 1}
	r.readChar()
	return r
}

func (r *Reader) readChar() {
	if r.ch == '\n' {
		r.line++
		r.col = 0
	}
	if r.readPos >= len(r.input) {
		if r.readPos == len(r.input) {
			r.col++
		}
		r.ch = 0
		r.pos = len(r.input)
		r.readPos = len(r.input) + 1
		return
	}
	c, size := utf8.DecodeRuneInString(r.input[r.readPos:])
	r.ch = c
	r.pos = r.readPos
	r.readPos += size
	r.col++
}

func (r *Reader) atEOF() bool { return r.pos >= len(r.input) }

func (r *Reader) position() Position {
	return Position{Offset: r.pos, Line: r.line, Column: r.col}
}

func (r *Reader) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) unterminated(open Position, what string) error {
	return &SyntaxError{Pos: open, Msg: "unterminated " + what, Incomplete: true}
}

func (r *Reader) skipWhitespaceAndComments() {
	for !r.atEOF() {
		switch {
		case unicode.IsSpace(r.ch):
			r.readChar()
		case r.ch == ';':
			for !r.atEOF() && r.ch != '\n' {
				r.readChar()
			}
		default:
			return
		}
	}
}

// Next reads the next expression. It returns io.EOF when only whitespace
// and comments remain.
func (r *Reader) Next() (store.Ptr, error) {
	r.skipWhitespaceAndComments()
	if r.atEOF() {
		return store.Ptr{}, io.EOF
	}
	return r.readExpr()
}

// NextMaybeMeta reads the next expression and reports whether it was
// marked as a meta command with a leading '!'.
func (r *Reader) NextMaybeMeta() (store.Ptr, bool, error) {
	r.skipWhitespaceAndComments()
	if r.atEOF() {
		return store.Ptr{}, false, io.EOF
	}
	if r.ch != '!' {
		p, err := r.readExpr()
		return p, false, err
	}
	pos := r.position()
	r.readChar()
	r.skipWhitespaceAndComments()
	if r.atEOF() {
		return store.Ptr{}, false, r.errorf(pos, "meta marker without command")
	}
	p, err := r.readExpr()
	return p, true, err
}

func (r *Reader) readExpr() (store.Ptr, error) {
	pos := r.position()
	switch {
	case r.ch == '(':
		r.readChar()
		return r.readTail(pos)
	case r.ch == ')':
		return store.Ptr{}, r.errorf(pos, "unexpected ')'")
	case r.ch == '\'':
		r.readChar()
		r.skipWhitespaceAndComments()
		if r.atEOF() {
			return store.Ptr{}, r.errorf(pos, "quote without expression")
		}
		quoted, err := r.readExpr()
		if err != nil {
			return store.Ptr{}, err
		}
		return r.s.List(r.s.Sym("QUOTE"), quoted), nil
	case r.ch == '"':
		return r.readString(pos)
	case isDigit(r.ch):
		return r.readNumber(), nil
	case isSymbolChar(r.ch, true):
		return r.readSymbol(), nil
	}
	return store.Ptr{}, r.errorf(pos, "bad input character %q", r.ch)
}

// readTail reads list elements up to the closing paren, including an
// optional dotted tail.
func (r *Reader) readTail(open Position) (store.Ptr, error) {
	var elems []store.Ptr
	tail := r.s.Nil()
	for {
		r.skipWhitespaceAndComments()
		if r.atEOF() {
			return store.Ptr{}, r.unterminated(open, "list")
		}
		if r.ch == ')' {
			r.readChar()
			return r.s.ImproperList(elems, tail), nil
		}
		if r.ch == '.' {
			dot := r.position()
			if len(elems) == 0 {
				return store.Ptr{}, r.errorf(dot, "dot without preceding element")
			}
			r.readChar()
			r.skipWhitespaceAndComments()
			if r.atEOF() || r.ch == ')' {
				return store.Ptr{}, r.errorf(dot, "dot without following element")
			}
			var err error
			if tail, err = r.readExpr(); err != nil {
				return store.Ptr{}, err
			}
			r.skipWhitespaceAndComments()
			if r.ch != ')' || r.atEOF() {
				return store.Ptr{}, r.errorf(dot, "expected ')' after dotted tail")
			}
			r.readChar()
			return r.s.ImproperList(elems, tail), nil
		}
		e, err := r.readExpr()
		if err != nil {
			return store.Ptr{}, err
		}
		elems = append(elems, e)
	}
}

func (r *Reader) readNumber() store.Ptr {
	start := r.pos
	for !r.atEOF() && isDigit(r.ch) {
		r.readChar()
	}
	n, _ := new(big.Int).SetString(r.input[start:r.pos], 10)
	return r.s.Num(r.s.Field().FromBigInt(n))
}

func (r *Reader) readSymbol() store.Ptr {
	start := r.pos
	for initial := true; !r.atEOF() && isSymbolChar(r.ch, initial); initial = false {
		r.readChar()
	}
	return r.s.Sym(strings.ToUpper(r.input[start:r.pos]))
}

func (r *Reader) readString(open Position) (store.Ptr, error) {
	r.readChar() // opening quote
	var sb strings.Builder
	for {
		if r.atEOF() {
			return store.Ptr{}, r.unterminated(open, "string")
		}
		switch r.ch {
		case '"':
			r.readChar()
			return r.s.Str(sb.String()), nil
		case '\\':
			esc := r.position()
			r.readChar()
			switch r.ch {
			case '"', '\\':
				sb.WriteRune(r.ch)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				if r.atEOF() {
					return store.Ptr{}, r.unterminated(open, "string")
				}
				return store.Ptr{}, r.errorf(esc, "unknown escape \\%c", r.ch)
			}
		default:
			sb.WriteRune(r.ch)
		}
		r.readChar()
	}
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }

func isSymbolChar(c rune, initial bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case strings.ContainsRune("+-*/=:_<>!?&", c):
		return true
	}
	return !initial && isDigit(c)
}

// ---------------------------------------------------------------------------
// Convenience
// ---------------------------------------------------------------------------

// Read reads exactly one expression from src.
func Read(s *store.Store, src string) (store.Ptr, error) {
	r := New(s, src)
	p, err := r.Next()
	if err == io.EOF {
		return store.Ptr{}, r.errorf(r.position(), "no expression")
	}
	if err != nil {
		return store.Ptr{}, err
	}
	r.skipWhitespaceAndComments()
	if !r.atEOF() {
		return store.Ptr{}, r.errorf(r.position(), "unexpected input after expression")
	}
	return p, nil
}

// IsIncomplete reports whether err means more input could complete the
// expression being read.
func IsIncomplete(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se) && se.Incomplete
}

// ReadAll reads every expression in src.
func ReadAll(s *store.Store, src string) ([]store.Ptr, error) {
	r := New(s, src)
	var out []store.Ptr
	for {
		p, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}
