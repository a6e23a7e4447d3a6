package store

import (
	"fmt"

	"github.com/chazu/lurk/field"
)

// ---------------------------------------------------------------------------
// Continuations
//
// A continuation is stored as exactly four (tag, digest) component slots.
// Unused slots hold the zero Ptr. The slot layout of each variant is part of
// the digest and therefore frozen.
// ---------------------------------------------------------------------------

// Continuation is the closed set of continuation variants. The set is sealed:
// only types in this package implement it.
type Continuation interface {
	Tag() Tag
	components() [4]Ptr
}

// Outermost is the continuation of the initial state.
type Outermost struct{}

// Terminal marks successful completion.
type Terminal struct{}

// Dummy is the continuation under which thunks are unwrapped.
type Dummy struct{}

// Call waits for the function of a one-argument application.
type Call struct {
	Arg      Ptr // unevaluated argument
	SavedEnv Ptr
	Cont     Ptr
}

// Call0 waits for the function of a zero-argument application.
type Call0 struct {
	SavedEnv Ptr
	Cont     Ptr
}

// Call2 waits for the argument of a one-argument application.
type Call2 struct {
	Fun      Ptr // evaluated function
	SavedEnv Ptr
	Cont     Ptr
}

// Tail restores SavedEnv when a function body returns.
type Tail struct {
	SavedEnv Ptr
	Cont     Ptr
}

// Lookup restores SavedEnv after a variable lookup walked down the
// environment.
type Lookup struct {
	SavedEnv Ptr
	Cont     Ptr
}

// Unop waits for the operand of a unary operator.
type Unop struct {
	Op   Ptr
	Cont Ptr
}

// Binop waits for the first operand of a binary operator. Args holds the
// remaining unevaluated arguments.
type Binop struct {
	Op       Ptr
	SavedEnv Ptr
	Args     Ptr
	Cont     Ptr
}

// Binop2 waits for the second operand of a binary operator.
type Binop2 struct {
	Op   Ptr
	Arg  Ptr // evaluated first operand
	Cont Ptr
}

// If waits for the condition. Branches is the list (then [else]).
type If struct {
	Branches Ptr
	Cont     Ptr
}

// Let waits for the value of a let binding.
type Let struct {
	Var      Ptr
	Body     Ptr
	SavedEnv Ptr
	Cont     Ptr
}

// LetRec waits for the value of a letrec binding.
type LetRec struct {
	Var      Ptr
	Body     Ptr
	SavedEnv Ptr
	Cont     Ptr
}

// Error is the terminal continuation of a failed evaluation.
type Error struct {
	Kind     ErrorKind
	Irritant Ptr
}

func (Outermost) Tag() Tag { return TagOutermost }
func (Terminal) Tag() Tag  { return TagTerminal }
func (Dummy) Tag() Tag     { return TagDummy }
func (Call) Tag() Tag      { return TagCall }
func (Call0) Tag() Tag     { return TagCall0 }
func (Call2) Tag() Tag     { return TagCall2 }
func (Tail) Tag() Tag      { return TagTail }
func (Lookup) Tag() Tag    { return TagLookup }
func (Unop) Tag() Tag      { return TagUnop }
func (Binop) Tag() Tag     { return TagBinop }
func (Binop2) Tag() Tag    { return TagBinop2 }
func (If) Tag() Tag        { return TagIf }
func (Let) Tag() Tag       { return TagLet }
func (LetRec) Tag() Tag    { return TagLetRec }
func (Error) Tag() Tag     { return TagError }

func (Outermost) components() [4]Ptr { return [4]Ptr{} }
func (Terminal) components() [4]Ptr  { return [4]Ptr{} }
func (Dummy) components() [4]Ptr     { return [4]Ptr{} }
func (c Call) components() [4]Ptr    { return [4]Ptr{c.Arg, c.SavedEnv, c.Cont} }
func (c Call0) components() [4]Ptr   { return [4]Ptr{c.SavedEnv, c.Cont} }
func (c Call2) components() [4]Ptr   { return [4]Ptr{c.Fun, c.SavedEnv, c.Cont} }
func (c Tail) components() [4]Ptr    { return [4]Ptr{c.SavedEnv, c.Cont} }
func (c Lookup) components() [4]Ptr  { return [4]Ptr{c.SavedEnv, c.Cont} }
func (c Unop) components() [4]Ptr    { return [4]Ptr{c.Op, c.Cont} }
func (c Binop) components() [4]Ptr   { return [4]Ptr{c.Op, c.SavedEnv, c.Args, c.Cont} }
func (c Binop2) components() [4]Ptr  { return [4]Ptr{c.Op, c.Arg, c.Cont} }
func (c If) components() [4]Ptr      { return [4]Ptr{c.Branches, c.Cont} }
func (c Let) components() [4]Ptr     { return [4]Ptr{c.Var, c.Body, c.SavedEnv, c.Cont} }
func (c LetRec) components() [4]Ptr  { return [4]Ptr{c.Var, c.Body, c.SavedEnv, c.Cont} }
func (c Error) components() [4]Ptr   { return [4]Ptr{c.Kind.ptr(), c.Irritant} }

// contFromComponents rebuilds a continuation from its tag and slots. It is
// the inverse of components and rejects slots that a variant leaves unused
// but which are not zero.
func contFromComponents(tag Tag, s [4]Ptr) (Continuation, error) {
	var c Continuation
	switch tag {
	case TagOutermost:
		c = Outermost{}
	case TagTerminal:
		c = Terminal{}
	case TagDummy:
		c = Dummy{}
	case TagCall:
		c = Call{Arg: s[0], SavedEnv: s[1], Cont: s[2]}
	case TagCall0:
		c = Call0{SavedEnv: s[0], Cont: s[1]}
	case TagCall2:
		c = Call2{Fun: s[0], SavedEnv: s[1], Cont: s[2]}
	case TagTail:
		c = Tail{SavedEnv: s[0], Cont: s[1]}
	case TagLookup:
		c = Lookup{SavedEnv: s[0], Cont: s[1]}
	case TagUnop:
		c = Unop{Op: s[0], Cont: s[1]}
	case TagBinop:
		c = Binop{Op: s[0], SavedEnv: s[1], Args: s[2], Cont: s[3]}
	case TagBinop2:
		c = Binop2{Op: s[0], Arg: s[1], Cont: s[2]}
	case TagIf:
		c = If{Branches: s[0], Cont: s[1]}
	case TagLet:
		c = Let{Var: s[0], Body: s[1], SavedEnv: s[2], Cont: s[3]}
	case TagLetRec:
		c = LetRec{Var: s[0], Body: s[1], SavedEnv: s[2], Cont: s[3]}
	case TagError:
		if s[0].Tag != TagNum {
			return nil, fmt.Errorf("store: error kind slot has tag %s", s[0].Tag)
		}
		k, ok := s[0].Digest.Uint64()
		if !ok || !ErrorKind(k).Valid() {
			return nil, fmt.Errorf("store: unknown error kind %s", s[0].Digest)
		}
		c = Error{Kind: ErrorKind(k), Irritant: s[1]}
	default:
		return nil, fmt.Errorf("%w: %s is not a continuation", ErrWrongTag, tag)
	}
	if c.components() != s {
		return nil, fmt.Errorf("store: %s continuation has non-zero unused slots", tag)
	}
	return c, nil
}

// Next returns the continuation that c resumes once it is done, and false
// for variants that do not wrap another continuation.
func Next(c Continuation) (Ptr, bool) {
	switch c := c.(type) {
	case Call:
		return c.Cont, true
	case Call0:
		return c.Cont, true
	case Call2:
		return c.Cont, true
	case Tail:
		return c.Cont, true
	case Lookup:
		return c.Cont, true
	case Unop:
		return c.Cont, true
	case Binop:
		return c.Cont, true
	case Binop2:
		return c.Cont, true
	case If:
		return c.Cont, true
	case Let:
		return c.Cont, true
	case LetRec:
		return c.Cont, true
	}
	return Ptr{}, false
}

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies evaluation errors. Kinds are stored as Num
// components of the Error continuation, so their values are frozen.
type ErrorKind uint64

const (
	UnboundVariable ErrorKind = iota + 1
	InvalidApplication
	ArityMismatch
	TypeMismatch
	MalformedForm
	DivisionByZero
	InvalidContinuation
)

var errorKindNames = map[ErrorKind]string{
	UnboundVariable:     "UnboundVariable",
	InvalidApplication:  "InvalidApplication",
	ArityMismatch:       "ArityMismatch",
	TypeMismatch:        "TypeMismatch",
	MalformedForm:       "MalformedForm",
	DivisionByZero:      "DivisionByZero",
	InvalidContinuation: "InvalidContinuation",
}

func (k ErrorKind) String() string {
	if n, ok := errorKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ErrorKind(%d)", uint64(k))
}

// Valid reports whether k is a defined kind.
func (k ErrorKind) Valid() bool {
	_, ok := errorKindNames[k]
	return ok
}

// ParseErrorKind returns the kind with the given name.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for k, n := range errorKindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

func (k ErrorKind) ptr() Ptr {
	return Ptr{Tag: TagNum, Digest: field.FromUint64(uint64(k))}
}
