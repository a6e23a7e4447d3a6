package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/lurk/field"
)

func newStore() *Store {
	return New(field.Default())
}

func TestStore_NilIsSymbolNIL(t *testing.T) {
	s := newStore()
	if s.Sym("NIL") != s.Nil() {
		t.Error("Sym(NIL) should be the Nil pointer")
	}
	if s.Nil().Tag != TagNil {
		t.Errorf("Nil tag: got %s", s.Nil().Tag)
	}
	name, err := s.FetchSym(s.Nil())
	if err != nil || name != "NIL" {
		t.Errorf("FetchSym(Nil): got %q, %v", name, err)
	}
	if s.Sym("nil") == s.Nil() {
		t.Error("symbols are case sensitive in the store")
	}
	if s.Bool(true) != s.T() || s.Bool(false) != s.Nil() {
		t.Error("Bool should map to T and Nil")
	}
}

func TestStore_HashConsing(t *testing.T) {
	s := newStore()
	a := s.List(s.Sym("A"), s.Uint(1), s.Str("x"))
	b := s.List(s.Sym("A"), s.Uint(1), s.Str("x"))
	if a != b {
		t.Errorf("structurally equal lists differ: %s vs %s", a, b)
	}
	n := s.Len()
	s.List(s.Sym("A"), s.Uint(1), s.Str("x"))
	if s.Len() != n {
		t.Errorf("re-interning grew the store from %d to %d", n, s.Len())
	}
	if s.Sym("X") == s.Str("X") {
		t.Error("symbol and string with the same text share a pointer")
	}
	if s.Cons(s.Uint(1), s.Uint(2)) == s.Cons(s.Uint(2), s.Uint(1)) {
		t.Error("cons is not order sensitive")
	}
}

func TestStore_DeterministicAcrossStores(t *testing.T) {
	build := func(s *Store) []Ptr {
		env := s.List(s.Cons(s.Sym("X"), s.Uint(9)))
		fun := s.Fun(s.Sym("X"), s.List(s.Sym("+"), s.Sym("X"), s.Uint(1)), env)
		return []Ptr{
			env,
			fun,
			s.Thunk(s.Uint(3), s.Cont(Dummy{})),
			s.Cont(Call{Arg: s.Uint(1), SavedEnv: env, Cont: s.Cont(Outermost{})}),
			s.Cont(Error{Kind: TypeMismatch, Irritant: s.Str("oops")}),
			s.Str(strings.Repeat("long string ", 10)),
		}
	}
	a, b := build(newStore()), build(newStore())
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("pointer %d differs across stores: %s vs %s", i, a[i], b[i])
		}
	}

	other := New(mustField(t, field.BN254))
	c := build(other)
	if a[0] == c[0] {
		t.Error("different fields produced the same pointer")
	}
}

func mustField(t *testing.T, name string) field.Field {
	t.Helper()
	f, err := field.New(name, field.DefaultHashParams)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestStore_NumIsSelfDigest(t *testing.T) {
	s := newStore()
	p := s.Uint(42)
	if p.Tag != TagNum || p.Digest != field.FromUint64(42) {
		t.Errorf("Uint(42): got %s", p)
	}
	v, err := s.FetchNum(p)
	if err != nil || v != field.FromUint64(42) {
		t.Errorf("FetchNum: got %s, %v", v, err)
	}
}

func TestStore_TextChunking(t *testing.T) {
	s := newStore()
	// Strings straddling the 31-byte chunk boundary must stay distinct.
	seen := make(map[Ptr]string)
	for n := 29; n <= 64; n++ {
		v := strings.Repeat("a", n)
		p := s.Str(v)
		if prev, dup := seen[p]; dup {
			t.Fatalf("Str(%d a's) collides with %q", n, prev)
		}
		seen[p] = v
		got, err := s.FetchStr(p)
		if err != nil || got != v {
			t.Errorf("FetchStr: got %q, %v", got, err)
		}
	}
	if s.Str("\x00") == s.Str("") {
		t.Error("leading zero byte lost in chunking")
	}
}

func TestStore_FetchErrors(t *testing.T) {
	s := newStore()
	foreign := New(field.Default()).Sym("ONLY-THERE")

	if _, err := s.FetchSym(foreign); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign pointer: got %v, want ErrNotFound", err)
	}
	if _, err := s.Resolve(Ptr{Tag: TagCons}); !errors.Is(err, ErrNotFound) {
		t.Errorf("zero cons: got %v, want ErrNotFound", err)
	}
	if _, err := s.FetchCons(s.Uint(1)); !errors.Is(err, ErrWrongTag) {
		t.Errorf("FetchCons(num): got %v, want ErrWrongTag", err)
	}
	if _, err := s.FetchCont(s.Nil()); !errors.Is(err, ErrWrongTag) {
		t.Errorf("FetchCont(nil): got %v, want ErrWrongTag", err)
	}
	if s.Contains(foreign) {
		t.Error("Contains reported a foreign pointer")
	}
}

func TestStore_CarCdrAndListElems(t *testing.T) {
	s := newStore()
	car, cdr, err := s.CarCdr(s.Nil())
	if err != nil || car != s.Nil() || cdr != s.Nil() {
		t.Errorf("CarCdr(nil): got %s %s %v", car, cdr, err)
	}

	dotted := s.ImproperList([]Ptr{s.Uint(1), s.Uint(2)}, s.Uint(3))
	elems, tail, err := s.ListElems(dotted)
	if err != nil {
		t.Fatal(err)
	}
	if len(elems) != 2 || elems[0] != s.Uint(1) || elems[1] != s.Uint(2) {
		t.Errorf("elems: got %v", elems)
	}
	if tail != s.Uint(3) {
		t.Errorf("tail: got %s", tail)
	}
	if _, _, err := s.CarCdr(s.Uint(1)); !errors.Is(err, ErrWrongTag) {
		t.Errorf("CarCdr(num): got %v", err)
	}
}

func TestStore_ContinuationRoundTrip(t *testing.T) {
	s := newStore()
	env := s.List(s.Cons(s.Sym("A"), s.Uint(1)))
	k := s.Cont(Outermost{})
	conts := []Continuation{
		Outermost{}, Terminal{}, Dummy{},
		Call{Arg: s.Uint(1), SavedEnv: env, Cont: k},
		Call0{SavedEnv: env, Cont: k},
		Call2{Fun: s.Fun(s.Sym("A"), s.Sym("A"), env), SavedEnv: env, Cont: k},
		Tail{SavedEnv: env, Cont: k},
		Lookup{SavedEnv: env, Cont: k},
		Unop{Op: s.Sym("CAR"), Cont: k},
		Binop{Op: s.Sym("+"), SavedEnv: env, Args: s.List(s.Uint(2)), Cont: k},
		Binop2{Op: s.Sym("+"), Arg: s.Uint(1), Cont: k},
		If{Branches: s.List(s.Uint(1), s.Uint(2)), Cont: k},
		Let{Var: s.Sym("A"), Body: s.Sym("A"), SavedEnv: env, Cont: k},
		LetRec{Var: s.Sym("A"), Body: s.Sym("A"), SavedEnv: env, Cont: k},
		Error{Kind: UnboundVariable, Irritant: s.Sym("Q")},
	}
	seen := make(map[Ptr]bool)
	for _, c := range conts {
		p := s.Cont(c)
		if p.Tag != c.Tag() {
			t.Errorf("%T: tag %s", c, p.Tag)
		}
		if seen[p] {
			t.Errorf("%T: pointer reused", c)
		}
		seen[p] = true

		got, err := s.FetchCont(p)
		if err != nil || got != c {
			t.Errorf("FetchCont(%T): got %v, %v", c, got, err)
		}
		back, err := contFromComponents(c.Tag(), c.components())
		if err != nil || back != c {
			t.Errorf("contFromComponents(%T): got %v, %v", c, back, err)
		}
	}
}

func TestContFromComponents_RejectsGarbage(t *testing.T) {
	s := newStore()
	if _, err := contFromComponents(TagTerminal, [4]Ptr{s.Uint(1)}); err == nil {
		t.Error("non-zero unused slot accepted")
	}
	if _, err := contFromComponents(TagError, [4]Ptr{s.Uint(99), s.Nil()}); err == nil {
		t.Error("unknown error kind accepted")
	}
	if _, err := contFromComponents(TagCons, [4]Ptr{}); !errors.Is(err, ErrWrongTag) {
		t.Errorf("expression tag: got %v", err)
	}
}

func TestNext(t *testing.T) {
	s := newStore()
	k := s.Cont(Outermost{})
	if p, ok := Next(Tail{SavedEnv: s.Nil(), Cont: k}); !ok || p != k {
		t.Errorf("Next(Tail): got %s, %v", p, ok)
	}
	if _, ok := Next(Terminal{}); ok {
		t.Error("Terminal has no enclosing continuation")
	}
}

func TestStore_StatsAndPointers(t *testing.T) {
	s := newStore()
	s.List(s.Uint(1), s.Uint(2))
	stats := s.Stats()
	if stats[TagCons] != 2 || stats[TagNum] != 2 {
		t.Errorf("Stats: got %v", stats)
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	if total != s.Len() {
		t.Errorf("Stats total %d != Len %d", total, s.Len())
	}
	ps := s.Pointers()
	if len(ps) != s.Len() {
		t.Fatalf("Pointers: got %d, want %d", len(ps), s.Len())
	}
	for i := 1; i < len(ps); i++ {
		if !ps[i-1].Less(ps[i]) {
			t.Errorf("Pointers not sorted at %d", i)
		}
	}
}

func TestStore_Closure(t *testing.T) {
	s := newStore()
	s.Sym("UNRELATED")
	inner := s.List(s.Uint(1))
	root := s.Cont(Error{Kind: TypeMismatch, Irritant: s.Cons(s.Str("s"), inner)})

	got, err := s.Closure(root)
	if err != nil {
		t.Fatal(err)
	}
	want := map[Ptr]bool{
		root: true, s.Cons(s.Str("s"), inner): true, s.Str("s"): true,
		inner: true, s.Uint(1): true, s.Nil(): true,
	}
	if len(got) != len(want) {
		t.Errorf("Closure: got %d pointers, want %d: %v", len(got), len(want), got)
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected pointer %s in closure", p)
		}
	}

	if _, err := s.Closure(Ptr{Tag: TagCons}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Closure of foreign root: got %v", err)
	}
}

func TestStore_ConcurrentInterning(t *testing.T) {
	s := newStore()
	var wg sync.WaitGroup
	results := make([]Ptr, 8)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var p Ptr = s.Nil()
			for i := range 50 {
				p = s.Cons(s.Sym(fmt.Sprintf("S%d", i)), p)
			}
			results[g] = p
		}()
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d built a different list", i)
		}
	}
	// 50 symbols + 50 conses + NIL + T
	if s.Len() != 102 {
		t.Errorf("Len: got %d, want 102", s.Len())
	}
}
