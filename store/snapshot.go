package store

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/lurk/field"
	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

// ---------------------------------------------------------------------------
// Snapshots: portable store contents
//
// A snapshot is an lz4-compressed stream of canonical CBOR items: one header
// followed by Count entries. Entries carry only content; every pointer is
// recomputed on import, so a snapshot cannot smuggle in a mismatched digest.
// ---------------------------------------------------------------------------

// SnapshotVersion is the snapshot stream format version.
const SnapshotVersion = 1

var (
	// ErrDigestMismatch is returned when imported content does not hash to
	// the pointer it claims.
	ErrDigestMismatch = errors.New("store: digest mismatch")
	// ErrFieldMismatch is returned when a snapshot was written by a store
	// with a different field or hash parameters.
	ErrFieldMismatch = errors.New("store: field mismatch")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Entry is the transferable form of one store entry. Text holds the name of
// a symbol or string; Slots holds the component pointers of pairs,
// closures, thunks and continuations. Numbers carry no content beyond their
// pointer.
type Entry struct {
	Ptr   Ptr    `cbor:"1,keyasint"`
	Text  string `cbor:"2,keyasint,omitempty"`
	Slots []Ptr  `cbor:"3,keyasint,omitempty"`
}

type snapshotHeader struct {
	Version int              `cbor:"1,keyasint"`
	Field   string           `cbor:"2,keyasint"`
	Params  field.HashParams `cbor:"3,keyasint"`
	Count   int              `cbor:"4,keyasint"`
}

// Entries returns the entries for ptrs, in the given order.
func (s *Store) Entries(ptrs []Ptr) ([]Entry, error) {
	out := make([]Entry, 0, len(ptrs))
	for _, p := range ptrs {
		content, err := s.Resolve(p)
		if err != nil {
			return nil, err
		}
		e := Entry{Ptr: p}
		switch c := content.(type) {
		case string:
			e.Text = c
		case field.Scalar:
		case ConsCell:
			e.Slots = []Ptr{c.Car, c.Cdr}
		case FunCell:
			e.Slots = []Ptr{c.Arg, c.Body, c.Env}
		case ThunkCell:
			e.Slots = []Ptr{c.Value, c.Cont}
		case Continuation:
			slots := c.components()
			e.Slots = slots[:]
		}
		out = append(out, e)
	}
	return out, nil
}

// Import interns every entry and checks that each hashes to its recorded
// pointer and that every pointer it refers to is either imported alongside
// it or already present. Entries may arrive in any order. Nothing is
// interned unless the whole batch is accepted.
func (s *Store) Import(entries []Entry) error {
	staged := New(s.f)
	for _, e := range entries {
		got, err := staged.importEntry(e)
		if err != nil {
			return fmt.Errorf("store: import %s: %w", e.Ptr, err)
		}
		if got != e.Ptr {
			return fmt.Errorf("%w: entry claims %s, content hashes to %s", ErrDigestMismatch, e.Ptr, got)
		}
	}
	for _, e := range entries {
		content, err := staged.Resolve(e.Ptr)
		if err != nil {
			return err
		}
		for _, c := range children(content) {
			if !staged.Contains(c) && !s.Contains(c) {
				return fmt.Errorf("store: import %s: %w: missing child %s", e.Ptr, ErrNotFound, c)
			}
		}
	}
	for _, e := range entries {
		if _, err := s.importEntry(e); err != nil {
			return fmt.Errorf("store: import %s: %w", e.Ptr, err)
		}
	}
	return nil
}

func (s *Store) importEntry(e Entry) (Ptr, error) {
	slots := func(n int) error {
		if len(e.Slots) != n {
			return fmt.Errorf("%s entry has %d slots, want %d", e.Ptr.Tag, len(e.Slots), n)
		}
		return nil
	}
	switch tag := e.Ptr.Tag; {
	case tag == TagNil || tag == TagSym:
		return s.Sym(e.Text), nil
	case tag == TagStr:
		return s.Str(e.Text), nil
	case tag == TagNum:
		return s.Num(e.Ptr.Digest), nil
	case tag == TagCons:
		if err := slots(2); err != nil {
			return Ptr{}, err
		}
		return s.Cons(e.Slots[0], e.Slots[1]), nil
	case tag == TagFun:
		if err := slots(3); err != nil {
			return Ptr{}, err
		}
		return s.Fun(e.Slots[0], e.Slots[1], e.Slots[2]), nil
	case tag == TagThunk:
		if err := slots(2); err != nil {
			return Ptr{}, err
		}
		return s.Thunk(e.Slots[0], e.Slots[1]), nil
	case tag.IsCont():
		if err := slots(4); err != nil {
			return Ptr{}, err
		}
		c, err := contFromComponents(tag, [4]Ptr(e.Slots))
		if err != nil {
			return Ptr{}, err
		}
		return s.Cont(c), nil
	default:
		return Ptr{}, fmt.Errorf("%w: unknown tag %s", ErrWrongTag, tag)
	}
}

// WriteSnapshot writes the closure of roots to w, or the whole store when
// no roots are given.
func (s *Store) WriteSnapshot(w io.Writer, roots ...Ptr) error {
	ptrs := s.Pointers()
	if len(roots) > 0 {
		var err error
		if ptrs, err = s.Closure(roots...); err != nil {
			return err
		}
	}
	entries, err := s.Entries(ptrs)
	if err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	enc := cborEncMode.NewEncoder(zw)
	h := snapshotHeader{
		Version: SnapshotVersion,
		Field:   s.f.Name(),
		Params:  s.f.HashParams(),
		Count:   len(entries),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("store: write snapshot header: %w", err)
	}
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("store: write snapshot entry: %w", err)
		}
	}
	return zw.Close()
}

// ReadSnapshot imports a snapshot written by WriteSnapshot and returns the
// number of entries it contained.
func (s *Store) ReadSnapshot(r io.Reader) (int, error) {
	dec := cbor.NewDecoder(lz4.NewReader(r))
	var h snapshotHeader
	if err := dec.Decode(&h); err != nil {
		return 0, fmt.Errorf("store: read snapshot header: %w", err)
	}
	if h.Version != SnapshotVersion {
		return 0, fmt.Errorf("store: unsupported snapshot version %d", h.Version)
	}
	if h.Field != s.f.Name() || h.Params != s.f.HashParams() {
		return 0, fmt.Errorf("%w: snapshot uses %s %+v", ErrFieldMismatch, h.Field, h.Params)
	}
	if h.Count < 0 {
		return 0, fmt.Errorf("store: snapshot has negative entry count %d", h.Count)
	}
	entries := make([]Entry, 0, min(h.Count, 1<<16))
	for range h.Count {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return 0, fmt.Errorf("store: read snapshot entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := s.Import(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
