package reader

import (
	"testing"

	"github.com/chazu/lurk/store"
)

func TestPrint_RoundTrip(t *testing.T) {
	s := newStore()
	srcs := []string{
		"NIL",
		"T",
		"42",
		"FOO",
		`"a \"quoted\" string"`,
		"(1 2 3)",
		"(1 . 2)",
		"(1 2 . 3)",
		"((A . 1) (B . 2))",
		"(LAMBDA (X) (+ X 1))",
		"(QUOTE (A B))",
	}
	for _, src := range srcs {
		p, err := Read(s, src)
		if err != nil {
			t.Fatalf("Read(%q): %v", src, err)
		}
		if got := Print(s, p); got != src {
			t.Errorf("Print(Read(%q)) = %q", src, got)
		}
	}
}

func TestPrint_Values(t *testing.T) {
	s := newStore()
	env := s.List(s.Cons(s.Sym("Y"), s.Uint(2)))
	fn := s.Fun(s.Sym("X"), s.List(s.Sym("*"), s.Sym("X"), s.Sym("Y")), env)
	outermost := s.Cont(store.Outermost{})

	tests := []struct {
		p    store.Ptr
		want string
	}{
		{fn, "<FUNCTION (X) (* X Y)>"},
		{s.Thunk(s.Uint(3), outermost), "<THUNK 3>"},
		{outermost, "<CONTINUATION OUTERMOST>"},
		{s.Cont(store.Tail{SavedEnv: env, Cont: outermost}), "<CONTINUATION TAIL>"},
		{s.Cont(store.Error{Kind: store.UnboundVariable, Irritant: s.Sym("Q")}), "<ERROR UnboundVariable Q>"},
		{store.Ptr{Tag: store.TagCons}, "<MISSING Cons:000000000000>"},
	}
	for _, tt := range tests {
		if got := Print(s, tt.p); got != tt.want {
			t.Errorf("Print(%s): got %q, want %q", tt.p, got, tt.want)
		}
	}
}
