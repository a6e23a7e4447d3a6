// Package eval implements the continuation machine and the frame sequencer.
//
// The machine state is an IO triple (expression, environment, continuation)
// of store pointers. Step performs exactly one reduction: it evaluates the
// expression as far as one rule allows, optionally hands the value to the
// continuation, and optionally suspends the result in a thunk. Every rule is
// a closed case split on tags so that each step maps onto a fixed circuit.
package eval

import (
	"errors"
	"fmt"

	"github.com/chazu/lurk/store"
)

// control says what Step does next with an intermediate state.
type control int

const (
	ctrlReturn control = iota // done; the state is the output
	ctrlApply                 // apply the continuation to the expression
	ctrlThunk                 // suspend the expression for the continuation
)

type symbols struct {
	lambda, quote, current                store.Ptr
	let, letStar, letrec, letrecStar, ifx store.Ptr
	car, cdr, atom                        store.Ptr
	add, sub, mul, div, numEq, eq, cons   store.Ptr
	dummyArg, t                           store.Ptr
}

// Machine performs reduction steps over a store.
type Machine struct {
	s    *store.Store
	syms symbols

	terminal store.Ptr
	dummy    store.Ptr
}

// NewMachine interns the machine's reserved symbols in s.
func NewMachine(s *store.Store) *Machine {
	return &Machine{
		s: s,
		syms: symbols{
			lambda:     s.Sym("LAMBDA"),
			quote:      s.Sym("QUOTE"),
			current:    s.Sym("CURRENT-ENV"),
			let:        s.Sym("LET"),
			letStar:    s.Sym("LET*"),
			letrec:     s.Sym("LETREC"),
			letrecStar: s.Sym("LETREC*"),
			ifx:        s.Sym("IF"),
			car:        s.Sym("CAR"),
			cdr:        s.Sym("CDR"),
			atom:       s.Sym("ATOM"),
			add:        s.Sym("+"),
			sub:        s.Sym("-"),
			mul:        s.Sym("*"),
			div:        s.Sym("/"),
			numEq:      s.Sym("="),
			eq:         s.Sym("EQ"),
			cons:       s.Sym("CONS"),
			dummyArg:   s.Sym("_"),
			t:          s.T(),
		},
		terminal: s.Cont(store.Terminal{}),
		dummy:    s.Cont(store.Dummy{}),
	}
}

// Store returns the store the machine reads and interns into.
func (m *Machine) Store() *store.Store { return m.s }

// Step computes the successor of in. Terminal and Error states are fixed
// points. Evaluation errors are reported as an Error continuation in the
// output; the returned error is non-nil only when in refers to content the
// store does not hold.
func (m *Machine) Step(in IO) (IO, error) {
	if in.IsComplete() {
		return in, nil
	}
	out, ctrl, err := m.evalExpr(in)
	if err != nil {
		return IO{}, fmt.Errorf("eval: step: %w", err)
	}
	if ctrl == ctrlApply {
		if out, ctrl, err = m.applyCont(out); err != nil {
			return IO{}, fmt.Errorf("eval: apply continuation: %w", err)
		}
	}
	if ctrl == ctrlThunk {
		if out, err = m.makeThunk(out); err != nil {
			return IO{}, fmt.Errorf("eval: make thunk: %w", err)
		}
	}
	return out, nil
}

// Step performs one reduction of in over s.
func Step(s *store.Store, in IO) (IO, error) {
	return NewMachine(s).Step(in)
}

// fail moves to the Error continuation, keeping the expression and
// environment of io for inspection.
func (m *Machine) fail(io IO, kind store.ErrorKind, irritant store.Ptr) (IO, control, error) {
	errCont := m.s.Cont(store.Error{Kind: kind, Irritant: irritant})
	return IO{Expr: io.Expr, Env: io.Env, Cont: errCont}, ctrlReturn, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (m *Machine) evalExpr(in IO) (IO, control, error) {
	switch in.Expr.Tag {
	case store.TagNil, store.TagNum, store.TagStr, store.TagFun:
		return in, ctrlApply, nil

	case store.TagThunk:
		if in.Cont.Tag != store.TagDummy {
			return m.fail(in, store.InvalidContinuation, in.Cont)
		}
		th, err := m.s.FetchThunk(in.Expr)
		if err != nil {
			return IO{}, 0, err
		}
		return IO{Expr: th.Value, Env: in.Env, Cont: th.Cont}, ctrlApply, nil

	case store.TagSym:
		if in.Expr == m.syms.t {
			return in, ctrlApply, nil
		}
		return m.lookup(in)

	case store.TagCons:
		return m.evalCons(in)
	}
	// Continuations are not expressions.
	return m.fail(in, store.MalformedForm, in.Expr)
}

// lookup examines one binding of the environment per step. A miss
// continues with the rest of the environment under a Lookup continuation
// that restores the full environment once the value is found.
func (m *Machine) lookup(in IO) (IO, control, error) {
	expr, env, cont := in.Expr, in.Env, in.Cont
	if env.IsNil() {
		return m.fail(in, store.UnboundVariable, expr)
	}
	if env.Tag != store.TagCons {
		return m.fail(in, store.MalformedForm, env)
	}
	binding, smaller, err := m.s.CarCdr(env)
	if err != nil {
		return IO{}, 0, err
	}
	if binding.Tag != store.TagCons {
		return m.fail(in, store.MalformedForm, binding)
	}
	v, val, err := m.s.CarCdr(binding)
	if err != nil {
		return IO{}, 0, err
	}

	if v.Tag == store.TagCons {
		// Recursive frame: searched as a unit in one step.
		fn, ok, err := lookupFrame(m.s, binding, expr)
		if errors.Is(err, errMalformedFrame) {
			return m.fail(in, store.MalformedForm, binding)
		}
		if err != nil {
			return IO{}, 0, err
		}
		if ok {
			return IO{Expr: fn, Env: env, Cont: cont}, ctrlApply, nil
		}
	} else if v == expr {
		return IO{Expr: val, Env: env, Cont: cont}, ctrlApply, nil
	}

	k := cont
	if cont.Tag != store.TagLookup {
		k = m.s.Cont(store.Lookup{SavedEnv: env, Cont: cont})
	}
	return IO{Expr: expr, Env: smaller, Cont: k}, ctrlReturn, nil
}

func (m *Machine) evalCons(in IO) (IO, control, error) {
	s := m.s
	expr, env, cont := in.Expr, in.Env, in.Cont
	head, rest, err := s.CarCdr(expr)
	if err != nil {
		return IO{}, 0, err
	}
	args, tail, err := s.ListElems(rest)
	if err != nil {
		return IO{}, 0, err
	}
	if !tail.IsNil() {
		return m.fail(in, store.MalformedForm, expr)
	}
	var more store.Ptr // arguments after the first
	if len(args) > 0 {
		if _, more, err = s.CarCdr(rest); err != nil {
			return IO{}, 0, err
		}
	}

	switch head {
	case m.syms.lambda:
		return m.evalLambda(in, args)

	case m.syms.quote:
		if len(args) != 1 {
			return m.fail(in, store.MalformedForm, expr)
		}
		return IO{Expr: args[0], Env: env, Cont: cont}, ctrlApply, nil

	case m.syms.let, m.syms.letStar:
		return m.evalLet(in, head, args, false)

	case m.syms.letrec, m.syms.letrecStar:
		return m.evalLet(in, head, args, true)

	case m.syms.ifx:
		if len(args) < 2 || len(args) > 3 {
			return m.fail(in, store.MalformedForm, expr)
		}
		k := s.Cont(store.If{Branches: more, Cont: cont})
		return IO{Expr: args[0], Env: env, Cont: k}, ctrlReturn, nil

	case m.syms.current:
		if len(args) != 0 {
			return m.fail(in, store.MalformedForm, expr)
		}
		return IO{Expr: env, Env: env, Cont: cont}, ctrlApply, nil

	case m.syms.car, m.syms.cdr, m.syms.atom:
		if len(args) != 1 {
			return m.fail(in, store.ArityMismatch, expr)
		}
		k := s.Cont(store.Unop{Op: head, Cont: cont})
		return IO{Expr: args[0], Env: env, Cont: k}, ctrlReturn, nil

	case m.syms.add, m.syms.sub, m.syms.mul, m.syms.div,
		m.syms.numEq, m.syms.eq, m.syms.cons:
		if len(args) != 2 {
			return m.fail(in, store.ArityMismatch, expr)
		}
		k := s.Cont(store.Binop{Op: head, SavedEnv: env, Args: more, Cont: cont})
		return IO{Expr: args[0], Env: env, Cont: k}, ctrlReturn, nil
	}

	// Application.
	switch len(args) {
	case 0:
		k := s.Cont(store.Call0{SavedEnv: env, Cont: cont})
		return IO{Expr: head, Env: env, Cont: k}, ctrlReturn, nil
	case 1:
		k := s.Cont(store.Call{Arg: args[0], SavedEnv: env, Cont: cont})
		return IO{Expr: head, Env: env, Cont: k}, ctrlReturn, nil
	default:
		// (f a b ...) => ((f a) b ...)
		expanded := s.Cons(s.List(head, args[0]), more)
		return IO{Expr: expanded, Env: env, Cont: cont}, ctrlReturn, nil
	}
}

// evalLambda builds a closure. Multi-parameter lambdas curry into nested
// one-parameter closures; a lambda without parameters binds the dummy
// parameter _ and can only be called with no arguments.
func (m *Machine) evalLambda(in IO, args []store.Ptr) (IO, control, error) {
	s := m.s
	if len(args) != 2 {
		return m.fail(in, store.MalformedForm, in.Expr)
	}
	params, tail, err := s.ListElems(args[0])
	if err != nil {
		return IO{}, 0, err
	}
	if !tail.IsNil() {
		return m.fail(in, store.MalformedForm, args[0])
	}
	for _, p := range params {
		if p.Tag != store.TagSym {
			return m.fail(in, store.MalformedForm, p)
		}
	}

	arg, body := m.syms.dummyArg, args[1]
	if len(params) > 0 {
		arg = params[0]
	}
	if len(params) > 1 {
		body = s.List(m.syms.lambda, s.List(params[1:]...), body)
	}
	fn := s.Fun(arg, body, in.Env)
	return IO{Expr: fn, Env: in.Env, Cont: in.Cont}, ctrlApply, nil
}

// evalLet evaluates the first binding's value under a Let or LetRec
// continuation. Remaining bindings become a nested form with the same head.
func (m *Machine) evalLet(in IO, head store.Ptr, args []store.Ptr, rec bool) (IO, control, error) {
	s := m.s
	if len(args) != 2 {
		return m.fail(in, store.MalformedForm, in.Expr)
	}
	bindings, body := args[0], args[1]
	if bindings.IsNil() {
		return IO{Expr: body, Env: in.Env, Cont: in.Cont}, ctrlReturn, nil
	}
	bs, tail, err := s.ListElems(bindings)
	if err != nil {
		return IO{}, 0, err
	}
	if !tail.IsNil() {
		return m.fail(in, store.MalformedForm, bindings)
	}
	parts, ptail, err := s.ListElems(bs[0])
	if err != nil {
		return IO{}, 0, err
	}
	if !ptail.IsNil() || len(parts) != 2 || parts[0].Tag != store.TagSym {
		return m.fail(in, store.MalformedForm, bs[0])
	}
	_, restBindings, err := s.CarCdr(bindings)
	if err != nil {
		return IO{}, 0, err
	}

	expanded := body
	if !restBindings.IsNil() {
		expanded = s.List(head, restBindings, body)
	}
	var k store.Continuation = store.Let{Var: parts[0], Body: expanded, SavedEnv: in.Env, Cont: in.Cont}
	if rec {
		k = store.LetRec{Var: parts[0], Body: expanded, SavedEnv: in.Env, Cont: in.Cont}
	}
	return IO{Expr: parts[1], Env: in.Env, Cont: s.Cont(k)}, ctrlReturn, nil
}

// ---------------------------------------------------------------------------
// Continuations
// ---------------------------------------------------------------------------

// applyCont delivers the value io.Expr to io.Cont.
func (m *Machine) applyCont(io IO) (IO, control, error) {
	s := m.s
	result, env := io.Expr, io.Env
	c, err := s.FetchCont(io.Cont)
	if err != nil {
		return IO{}, 0, err
	}

	switch c := c.(type) {
	case store.Terminal, store.Error:
		return io, ctrlReturn, nil

	case store.Outermost, store.Tail:
		return io, ctrlThunk, nil

	case store.Dummy:
		return m.fail(io, store.InvalidContinuation, result)

	case store.Lookup:
		return IO{Expr: result, Env: c.SavedEnv, Cont: c.Cont}, ctrlThunk, nil

	case store.Call:
		if result.Tag != store.TagFun {
			return m.fail(io, store.InvalidApplication, result)
		}
		k := s.Cont(store.Call2{Fun: result, SavedEnv: c.SavedEnv, Cont: c.Cont})
		return IO{Expr: c.Arg, Env: c.SavedEnv, Cont: k}, ctrlReturn, nil

	case store.Call0:
		if result.Tag != store.TagFun {
			return m.fail(io, store.InvalidApplication, result)
		}
		fn, err := s.FetchFun(result)
		if err != nil {
			return IO{}, 0, err
		}
		if fn.Arg != m.syms.dummyArg {
			return m.fail(io, store.ArityMismatch, result)
		}
		return IO{Expr: fn.Body, Env: fn.Env, Cont: m.makeTail(c.SavedEnv, c.Cont)}, ctrlReturn, nil

	case store.Call2:
		fn, err := s.FetchFun(c.Fun)
		if err != nil {
			return IO{}, 0, err
		}
		if fn.Arg == m.syms.dummyArg {
			return m.fail(io, store.ArityMismatch, c.Fun)
		}
		extended := Extend(s, fn.Env, fn.Arg, result)
		return IO{Expr: fn.Body, Env: extended, Cont: m.makeTail(c.SavedEnv, c.Cont)}, ctrlReturn, nil

	case store.Unop:
		val, kind := m.unop(c.Op, result)
		if kind != 0 {
			return m.fail(io, kind, result)
		}
		return IO{Expr: val, Env: env, Cont: c.Cont}, ctrlThunk, nil

	case store.Binop:
		arg2, _, err := s.CarCdr(c.Args)
		if err != nil {
			return IO{}, 0, err
		}
		k := s.Cont(store.Binop2{Op: c.Op, Arg: result, Cont: c.Cont})
		return IO{Expr: arg2, Env: c.SavedEnv, Cont: k}, ctrlReturn, nil

	case store.Binop2:
		val, kind, irritant := m.binop(c.Op, c.Arg, result)
		if kind != 0 {
			return m.fail(io, kind, irritant)
		}
		return IO{Expr: val, Env: env, Cont: c.Cont}, ctrlThunk, nil

	case store.If:
		then, more, err := s.CarCdr(c.Branches)
		if err != nil {
			return IO{}, 0, err
		}
		branch := then
		if result.IsNil() {
			if branch, _, err = s.CarCdr(more); err != nil {
				return IO{}, 0, err
			}
		}
		return IO{Expr: branch, Env: env, Cont: c.Cont}, ctrlReturn, nil

	case store.Let:
		extended := Extend(s, c.SavedEnv, c.Var, result)
		return IO{Expr: c.Body, Env: extended, Cont: m.makeTail(c.SavedEnv, c.Cont)}, ctrlReturn, nil

	case store.LetRec:
		extended, err := ExtendRec(s, c.SavedEnv, c.Var, result)
		if err != nil {
			return IO{}, 0, err
		}
		return IO{Expr: c.Body, Env: extended, Cont: m.makeTail(c.SavedEnv, c.Cont)}, ctrlReturn, nil
	}
	return IO{}, 0, fmt.Errorf("unhandled continuation %T", c)
}

// makeTail wraps k in a Tail unless it already is one, so tail calls do
// not grow the continuation.
func (m *Machine) makeTail(savedEnv, k store.Ptr) store.Ptr {
	if k.Tag == store.TagTail {
		return k
	}
	return m.s.Cont(store.Tail{SavedEnv: savedEnv, Cont: k})
}

// makeThunk suspends a finished value. Under Outermost the machine is done;
// under Tail the saved environment is restored and the value waits for the
// Tail's continuation.
func (m *Machine) makeThunk(io IO) (IO, error) {
	switch io.Cont.Tag {
	case store.TagOutermost:
		return IO{Expr: io.Expr, Env: io.Env, Cont: m.terminal}, nil
	case store.TagTail:
		c, err := m.s.FetchCont(io.Cont)
		if err != nil {
			return IO{}, err
		}
		tail := c.(store.Tail)
		return IO{Expr: m.s.Thunk(io.Expr, tail.Cont), Env: tail.SavedEnv, Cont: m.dummy}, nil
	}
	return IO{Expr: m.s.Thunk(io.Expr, io.Cont), Env: io.Env, Cont: m.dummy}, nil
}

// ---------------------------------------------------------------------------
// Primitive operators
// ---------------------------------------------------------------------------

func (m *Machine) unop(op, arg store.Ptr) (store.Ptr, store.ErrorKind) {
	switch op {
	case m.syms.car, m.syms.cdr:
		if arg.IsNil() {
			return m.s.Nil(), 0
		}
		if arg.Tag != store.TagCons {
			return store.Ptr{}, store.TypeMismatch
		}
		c, err := m.s.FetchCons(arg)
		if err != nil {
			return store.Ptr{}, store.TypeMismatch
		}
		if op == m.syms.car {
			return c.Car, 0
		}
		return c.Cdr, 0
	case m.syms.atom:
		return m.s.Bool(arg.Tag != store.TagCons), 0
	}
	return store.Ptr{}, store.InvalidContinuation
}

// binop applies a binary operator. On failure it returns the error kind and
// the offending operand.
func (m *Machine) binop(op, a, b store.Ptr) (store.Ptr, store.ErrorKind, store.Ptr) {
	s, f := m.s, m.s.Field()
	switch op {
	case m.syms.eq:
		return s.Bool(a == b), 0, store.Ptr{}
	case m.syms.cons:
		return s.Cons(a, b), 0, store.Ptr{}
	}

	if a.Tag != store.TagNum {
		return store.Ptr{}, store.TypeMismatch, a
	}
	if b.Tag != store.TagNum {
		return store.Ptr{}, store.TypeMismatch, b
	}
	x, y := a.Digest, b.Digest
	switch op {
	case m.syms.add:
		return s.Num(f.Add(x, y)), 0, store.Ptr{}
	case m.syms.sub:
		return s.Num(f.Sub(x, y)), 0, store.Ptr{}
	case m.syms.mul:
		return s.Num(f.Mul(x, y)), 0, store.Ptr{}
	case m.syms.div:
		q, ok := f.Div(x, y)
		if !ok {
			return store.Ptr{}, store.DivisionByZero, b
		}
		return s.Num(q), 0, store.Ptr{}
	case m.syms.numEq:
		return s.Bool(x == y), 0, store.Ptr{}
	}
	return store.Ptr{}, store.InvalidContinuation, op
}
