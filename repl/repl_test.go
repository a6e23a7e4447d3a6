package repl

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/reader"
	"github.com/chazu/lurk/store"
)

func newSession(limit int) (*Session, *bytes.Buffer) {
	var out bytes.Buffer
	return New(store.New(field.Default()), limit, &out), &out
}

func TestHandleSource_PrintsResults(t *testing.T) {
	se, out := newSession(1000)
	if err := se.HandleSource("(+ 1 2) (car 5)"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	if lines[0] != "[3 iterations] => 3" {
		t.Errorf("first: got %q", lines[0])
	}
	if !strings.Contains(lines[1], "error: TypeMismatch") {
		t.Errorf("second: got %q", lines[1])
	}
}

func TestHandleSource_Exhaustion(t *testing.T) {
	se, out := newSession(5)
	err := se.HandleSource("(letrec ((f (lambda (x) (f x)))) (f 1))")
	if !errors.Is(err, eval.ErrResourceExhausted) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(out.String(), "[5 iterations] => limit reached") {
		t.Errorf("got %q", out.String())
	}
}

func TestMeta_Quit(t *testing.T) {
	se, out := newSession(1000)
	err := se.HandleSource("1 !(:quit) 2")
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("got %v", err)
	}
	if strings.Count(out.String(), "=>") != 1 {
		t.Errorf("evaluation continued after quit: %q", out.String())
	}
	if err := se.HandleSource("!:quit"); !errors.Is(err, ErrQuit) {
		t.Errorf("bare symbol: got %v", err)
	}
}

func TestMeta_Asserts(t *testing.T) {
	tests := []struct {
		src  string
		fail bool
	}{
		{"!(:assert (eq 1 1))", false},
		{"!(:assert (eq 1 2))", true},
		{"!(:assert (car 1))", true},
		{"!(:assert-eq (+ 1 2) 3)", false},
		{"!(:assert-eq (+ 1 2) 4)", true},
		{"!(:assert-eq '(1 2) (cons 1 (cons 2 nil)))", false},
		{"!(:assert-error (undefined))", false},
		{"!(:assert-error (/ 1 0))", false},
		{"!(:assert-error 1)", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			se, _ := newSession(1000)
			err := se.HandleSource(tt.src)
			if tt.fail && !errors.Is(err, ErrAssertion) {
				t.Errorf("got %v, want ErrAssertion", err)
			}
			if !tt.fail && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMeta_Errors(t *testing.T) {
	se, _ := newSession(1000)
	if err := se.HandleSource("!(:frobnicate)"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown: got %v", err)
	}
	if err := se.HandleSource("!(1 2)"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("non-symbol: got %v", err)
	}
	if err := se.HandleSource("!(:assert)"); err == nil {
		t.Error("expected arity error")
	}
	if err := se.HandleSource("!(:load 5)"); err == nil {
		t.Error("expected path type error")
	}
	if err := se.HandleSource("(1 2"); !reader.IsIncomplete(err) {
		t.Errorf("incomplete input: got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("inner.lurk", "!(:assert-eq (* 8 8) 64)\n(+ 40 2)\n")
	write("outer.lurk", "; loads a sibling\n!(:load \"inner.lurk\")\n(if t 5 6)\n")

	se, out := newSession(1000)
	var runs int
	se.OnRun = func(*eval.Trace) { runs++ }
	se.SetDir(dir)
	if err := se.HandleSource(`!(:load "outer.lurk")`); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "=> 42") || !strings.Contains(out.String(), "=> 5") {
		t.Errorf("got %q", out.String())
	}
	// assert-eq runs twice, then two plain evaluations.
	if runs != 4 {
		t.Errorf("OnRun called %d times, want 4", runs)
	}

	write("bad.lurk", "!(:assert (eq 1 2))\n")
	err := se.LoadFile("bad.lurk")
	if !errors.Is(err, ErrAssertion) || !strings.Contains(err.Error(), "bad.lurk") {
		t.Errorf("got %v", err)
	}
	if err := se.LoadFile("missing.lurk"); err == nil {
		t.Error("expected error for missing file")
	}
}
