// Package store implements the content-addressed, hash-consing store that
// owns every expression, environment and continuation the evaluator touches.
//
// Values are interned: building a value that already exists returns the
// existing pointer, and structurally equal values always share a pointer.
// Entries are never mutated or removed, so pointers stay valid for the life
// of the Store.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/lurk/field"
	"github.com/google/btree"
)

var (
	// ErrNotFound is returned for a pointer the store never produced.
	ErrNotFound = errors.New("store: pointer not found")
	// ErrWrongTag is returned when a pointer's tag does not match the
	// requested content.
	ErrWrongTag = errors.New("store: wrong tag")
)

// ConsCell is the content of a Cons pointer.
type ConsCell struct {
	Car Ptr
	Cdr Ptr
}

// FunCell is the content of a Fun pointer: a one-parameter closure.
type FunCell struct {
	Arg  Ptr
	Body Ptr
	Env  Ptr
}

// ThunkCell is the content of a Thunk pointer: a value suspended together
// with the continuation it is to be delivered to.
type ThunkCell struct {
	Value Ptr
	Cont  Ptr
}

type (
	symKey string
	strKey string
)

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store interns values under their content pointers. It is safe for
// concurrent use.
type Store struct {
	f field.Field

	mu      sync.RWMutex
	memo    map[any]Ptr // content key -> pointer
	entries map[Ptr]any // pointer -> content
	index   *btree.BTreeG[Ptr]
	counts  map[Tag]int

	nilPtr Ptr
	tPtr   Ptr
}

// New creates an empty store over f.
func New(f field.Field) *Store {
	s := &Store{
		f:       f,
		memo:    make(map[any]Ptr),
		entries: make(map[Ptr]any),
		index:   btree.NewG[Ptr](32, Ptr.Less),
		counts:  make(map[Tag]int),
	}
	s.nilPtr = s.Sym("NIL")
	s.tPtr = s.Sym("T")
	return s
}

// Field returns the field the store hashes with.
func (s *Store) Field() field.Field { return s.f }

// intern returns the pointer recorded for key, computing and recording it
// with build on first use.
func (s *Store) intern(key any, build func() (Ptr, any)) Ptr {
	// Fast path: read-only lookup
	s.mu.RLock()
	if p, ok := s.memo[key]; ok {
		s.mu.RUnlock()
		return p
	}
	s.mu.RUnlock()

	// Hash outside the lock.
	p, content := build()

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.memo[key]; ok {
		return q
	}
	s.memo[key] = p
	if _, ok := s.entries[p]; !ok {
		s.entries[p] = content
		s.index.ReplaceOrInsert(p)
		s.counts[p.Tag]++
	}
	return p
}

// ---------------------------------------------------------------------------
// Interning
// ---------------------------------------------------------------------------

// Nil returns the Nil pointer, which is the symbol NIL.
func (s *Store) Nil() Ptr { return s.nilPtr }

// T returns the symbol T, the canonical true value.
func (s *Store) T() Ptr { return s.tPtr }

// Bool returns T or Nil.
func (s *Store) Bool(b bool) Ptr {
	if b {
		return s.tPtr
	}
	return s.nilPtr
}

// Sym interns a symbol. Names are taken verbatim; the symbol NIL is tagged
// Nil.
func (s *Store) Sym(name string) Ptr {
	tag := TagSym
	if name == "NIL" {
		tag = TagNil
	}
	return s.intern(symKey(name), func() (Ptr, any) {
		return Ptr{Tag: tag, Digest: s.textDigest(name)}, name
	})
}

// Str interns a string.
func (s *Store) Str(v string) Ptr {
	return s.intern(strKey(v), func() (Ptr, any) {
		return Ptr{Tag: TagStr, Digest: s.textDigest(v)}, v
	})
}

// textDigest hashes the byte length followed by the UTF-8 bytes in 31-byte
// big-endian chunks, each of which is a canonical field element.
func (s *Store) textDigest(v string) field.Scalar {
	b := []byte(v)
	elems := make([]field.Scalar, 0, 1+(len(b)+30)/31)
	elems = append(elems, field.FromUint64(uint64(len(b))))
	for off := 0; off < len(b); off += 31 {
		end := min(off+31, len(b))
		var chunk field.Scalar
		copy(chunk[32-(end-off):], b[off:end])
		elems = append(elems, chunk)
	}
	return s.f.Hash(elems...)
}

// Num interns a number. v is reduced into the field first.
func (s *Store) Num(v field.Scalar) Ptr {
	p := Ptr{Tag: TagNum, Digest: s.f.Reduce(v[:])}
	return s.intern(p, func() (Ptr, any) { return p, p.Digest })
}

// Uint interns a small non-negative number.
func (s *Store) Uint(v uint64) Ptr {
	return s.Num(field.FromUint64(v))
}

func (s *Store) hashPtrs(ps ...Ptr) field.Scalar {
	elems := make([]field.Scalar, 0, 2*len(ps))
	for _, p := range ps {
		elems = append(elems, p.Tag.Scalar(), p.Digest)
	}
	return s.f.Hash(elems...)
}

// Cons interns a pair.
func (s *Store) Cons(car, cdr Ptr) Ptr {
	c := ConsCell{Car: car, Cdr: cdr}
	return s.intern(c, func() (Ptr, any) {
		return Ptr{Tag: TagCons, Digest: s.hashPtrs(car, cdr)}, c
	})
}

// List interns a proper list of elems.
func (s *Store) List(elems ...Ptr) Ptr {
	return s.ImproperList(elems, s.nilPtr)
}

// ImproperList interns a list of elems ending in tail.
func (s *Store) ImproperList(elems []Ptr, tail Ptr) Ptr {
	p := tail
	for i := len(elems) - 1; i >= 0; i-- {
		p = s.Cons(elems[i], p)
	}
	return p
}

// Fun interns a closure of one parameter.
func (s *Store) Fun(arg, body, env Ptr) Ptr {
	c := FunCell{Arg: arg, Body: body, Env: env}
	return s.intern(c, func() (Ptr, any) {
		return Ptr{Tag: TagFun, Digest: s.hashPtrs(arg, body, env)}, c
	})
}

// Thunk interns a suspended value.
func (s *Store) Thunk(value, cont Ptr) Ptr {
	c := ThunkCell{Value: value, Cont: cont}
	return s.intern(c, func() (Ptr, any) {
		return Ptr{Tag: TagThunk, Digest: s.hashPtrs(value, cont)}, c
	})
}

// Cont interns a continuation.
func (s *Store) Cont(c Continuation) Ptr {
	return s.intern(c, func() (Ptr, any) {
		slots := c.components()
		return Ptr{Tag: c.Tag(), Digest: s.hashPtrs(slots[:]...)}, c
	})
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// Resolve returns the content recorded for p: a string for symbols and
// strings, a field.Scalar for numbers, ConsCell, FunCell, ThunkCell, or a
// Continuation.
func (s *Store) Resolve(p Ptr) (any, error) {
	s.mu.RLock()
	v, ok := s.entries[p]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return v, nil
}

// Contains reports whether the store produced p.
func (s *Store) Contains(p Ptr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[p]
	return ok
}

func wrongTag(p Ptr, want string) error {
	return fmt.Errorf("%w: %s is not %s", ErrWrongTag, p, want)
}

// FetchSym returns the name of a symbol (including NIL).
func (s *Store) FetchSym(p Ptr) (string, error) {
	if p.Tag != TagSym && p.Tag != TagNil {
		return "", wrongTag(p, "a symbol")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchStr returns the contents of a string.
func (s *Store) FetchStr(p Ptr) (string, error) {
	if p.Tag != TagStr {
		return "", wrongTag(p, "a string")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchNum returns the value of a number.
func (s *Store) FetchNum(p Ptr) (field.Scalar, error) {
	if p.Tag != TagNum {
		return field.Scalar{}, wrongTag(p, "a number")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return field.Scalar{}, err
	}
	return v.(field.Scalar), nil
}

// FetchCons returns the car and cdr of a pair.
func (s *Store) FetchCons(p Ptr) (ConsCell, error) {
	if p.Tag != TagCons {
		return ConsCell{}, wrongTag(p, "a cons")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return ConsCell{}, err
	}
	return v.(ConsCell), nil
}

// CarCdr destructures a list: Nil yields (Nil, Nil), a pair yields its car
// and cdr, anything else is ErrWrongTag.
func (s *Store) CarCdr(p Ptr) (car, cdr Ptr, err error) {
	if p.Tag == TagNil {
		return s.nilPtr, s.nilPtr, nil
	}
	c, err := s.FetchCons(p)
	if err != nil {
		return Ptr{}, Ptr{}, err
	}
	return c.Car, c.Cdr, nil
}

// FetchFun returns the parts of a closure.
func (s *Store) FetchFun(p Ptr) (FunCell, error) {
	if p.Tag != TagFun {
		return FunCell{}, wrongTag(p, "a function")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return FunCell{}, err
	}
	return v.(FunCell), nil
}

// FetchThunk returns the parts of a thunk.
func (s *Store) FetchThunk(p Ptr) (ThunkCell, error) {
	if p.Tag != TagThunk {
		return ThunkCell{}, wrongTag(p, "a thunk")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return ThunkCell{}, err
	}
	return v.(ThunkCell), nil
}

// FetchCont returns the continuation behind p.
func (s *Store) FetchCont(p Ptr) (Continuation, error) {
	if !p.Tag.IsCont() {
		return nil, wrongTag(p, "a continuation")
	}
	v, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	return v.(Continuation), nil
}

// ListElems walks a list and returns its elements and final tail, which is
// Nil for a proper list.
func (s *Store) ListElems(p Ptr) (elems []Ptr, tail Ptr, err error) {
	for p.Tag == TagCons {
		c, err := s.FetchCons(p)
		if err != nil {
			return nil, Ptr{}, err
		}
		elems = append(elems, c.Car)
		p = c.Cdr
	}
	return elems, p, nil
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns the number of entries per tag.
func (s *Store) Stats() map[Tag]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Tag]int, len(s.counts))
	for t, n := range s.counts {
		out[t] = n
	}
	return out
}

// Pointers returns every pointer in the store in Ptr.Less order.
func (s *Store) Pointers() []Ptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ptr, 0, s.index.Len())
	s.index.Ascend(func(p Ptr) bool {
		out = append(out, p)
		return true
	})
	return out
}

// children returns the pointers a content value refers to.
func children(content any) []Ptr {
	switch c := content.(type) {
	case ConsCell:
		return []Ptr{c.Car, c.Cdr}
	case FunCell:
		return []Ptr{c.Arg, c.Body, c.Env}
	case ThunkCell:
		return []Ptr{c.Value, c.Cont}
	case Error:
		return []Ptr{c.Irritant}
	case Continuation:
		var out []Ptr
		for _, p := range c.components() {
			if p != (Ptr{}) {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Closure returns every pointer reachable from roots, in Ptr.Less order.
func (s *Store) Closure(roots ...Ptr) ([]Ptr, error) {
	seen := make(map[Ptr]bool)
	stack := append([]Ptr(nil), roots...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] {
			continue
		}
		content, err := s.Resolve(p)
		if err != nil {
			return nil, err
		}
		seen[p] = true
		stack = append(stack, children(content)...)
	}
	out := make([]Ptr, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}
