package reader

import (
	"errors"
	"io"
	"testing"

	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
)

func newStore() *store.Store {
	return store.New(field.Default())
}

func TestRead_Atoms(t *testing.T) {
	s := newStore()
	tests := []struct {
		src  string
		want store.Ptr
	}{
		{"42", s.Uint(42)},
		{"  007 ", s.Uint(7)},
		{"foo", s.Sym("FOO")},
		{"let*", s.Sym("LET*")},
		{"current-env", s.Sym("CURRENT-ENV")},
		{"x1", s.Sym("X1")},
		{"nil", s.Nil()},
		{"NIL", s.Nil()},
		{"t", s.T()},
		{`"hi there"`, s.Str("hi there")},
		{`"a\"b\\c"`, s.Str(`a"b\c`)},
		{`"line\n"`, s.Str("line\n")},
		{"; comment\n 5", s.Uint(5)},
	}
	for _, tt := range tests {
		got, err := Read(s, tt.src)
		if err != nil {
			t.Errorf("Read(%q): %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Read(%q): got %s, want %s", tt.src, Print(s, got), Print(s, tt.want))
		}
	}
}

func TestRead_BigNumberReduces(t *testing.T) {
	s := newStore()
	// The BLS12-381 scalar modulus reads as zero.
	p, err := Read(s, "52435875175126190479447740508185965837690552500527637822603658699938581184513")
	if err != nil {
		t.Fatal(err)
	}
	if p != s.Uint(0) {
		t.Errorf("modulus: got %s, want 0", Print(s, p))
	}
}

func TestRead_Lists(t *testing.T) {
	s := newStore()
	tests := []struct {
		src  string
		want store.Ptr
	}{
		{"()", s.Nil()},
		{"(1 2 3)", s.List(s.Uint(1), s.Uint(2), s.Uint(3))},
		{"(1 . 2)", s.Cons(s.Uint(1), s.Uint(2))},
		{"(1 2 . 3)", s.ImproperList([]store.Ptr{s.Uint(1), s.Uint(2)}, s.Uint(3))},
		{"(a (b) c)", s.List(s.Sym("A"), s.List(s.Sym("B")), s.Sym("C"))},
		{"'x", s.List(s.Sym("QUOTE"), s.Sym("X"))},
		{"'(1 2)", s.List(s.Sym("QUOTE"), s.List(s.Uint(1), s.Uint(2)))},
		{"(+ 1\n ; inner comment\n 2)", s.List(s.Sym("+"), s.Uint(1), s.Uint(2))},
	}
	for _, tt := range tests {
		got, err := Read(s, tt.src)
		if err != nil {
			t.Errorf("Read(%q): %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Read(%q): got %s, want %s", tt.src, Print(s, got), Print(s, tt.want))
		}
	}
}

func TestRead_SyntaxErrors(t *testing.T) {
	s := newStore()
	tests := []struct {
		src       string
		line, col int
	}{
		{"(1 2", 1, 1},
		{")", 1, 1},
		{"\n  #", 2, 3},
		{`"abc`, 1, 1},
		{"(. 1)", 1, 2},
		{"(1 . 2 3)", 1, 4},
		{`"\q"`, 1, 2},
		{"", 1, 1},
		{"1 2", 1, 3},
	}
	for _, tt := range tests {
		_, err := Read(s, tt.src)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Read(%q): got %v, want *SyntaxError", tt.src, err)
			continue
		}
		if se.Pos.Line != tt.line || se.Pos.Column != tt.col {
			t.Errorf("Read(%q): error at %s, want %d:%d", tt.src, se.Pos, tt.line, tt.col)
		}
	}
}

func TestIsIncomplete(t *testing.T) {
	s := newStore()
	for src, want := range map[string]bool{
		"(1 (2":     true,
		`"abc`:      true,
		`("a\`:      true,
		")":         false,
		"(1 . 2 3)": false,
	} {
		_, err := Read(s, src)
		if got := IsIncomplete(err); got != want {
			t.Errorf("IsIncomplete(Read(%q)) = %v, want %v (err %v)", src, got, want, err)
		}
	}
	if IsIncomplete(nil) {
		t.Error("IsIncomplete(nil)")
	}
}

func TestReadAll(t *testing.T) {
	s := newStore()
	got, err := ReadAll(s, "1 (a) ; trailing\n\"s\"")
	if err != nil {
		t.Fatal(err)
	}
	want := []store.Ptr{s.Uint(1), s.List(s.Sym("A")), s.Str("s")}
	if len(got) != len(want) {
		t.Fatalf("ReadAll: got %d expressions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expr %d: got %s, want %s", i, Print(s, got[i]), Print(s, want[i]))
		}
	}
}

func TestReader_NextMaybeMeta(t *testing.T) {
	s := newStore()
	r := New(s, `!(:load "f.lurk") (+ 1 2) !:quit`)

	p, meta, err := r.NextMaybeMeta()
	if err != nil || !meta {
		t.Fatalf("first: meta=%v err=%v", meta, err)
	}
	if want := s.List(s.Sym(":LOAD"), s.Str("f.lurk")); p != want {
		t.Errorf("first: got %s", Print(s, p))
	}

	p, meta, err = r.NextMaybeMeta()
	if err != nil || meta {
		t.Fatalf("second: meta=%v err=%v", meta, err)
	}
	if want := s.List(s.Sym("+"), s.Uint(1), s.Uint(2)); p != want {
		t.Errorf("second: got %s", Print(s, p))
	}

	p, meta, err = r.NextMaybeMeta()
	if err != nil || !meta || p != s.Sym(":QUIT") {
		t.Errorf("third: got %s meta=%v err=%v", Print(s, p), meta, err)
	}

	if _, _, err := r.NextMaybeMeta(); err != io.EOF {
		t.Errorf("end: got %v, want io.EOF", err)
	}
}
