package store

import (
	"bytes"
	"fmt"

	"github.com/chazu/lurk/field"
)

// Ptr is a content-addressed reference to a value in a Store. Two pointers
// produced by stores sharing a field and hash parameters are equal exactly
// when the values they refer to are structurally equal.
type Ptr struct {
	Tag    Tag          `cbor:"1,keyasint"`
	Digest field.Scalar `cbor:"2,keyasint"`
}

// IsNil reports whether p is tagged Nil.
func (p Ptr) IsNil() bool { return p.Tag == TagNil }

// IsCont reports whether p refers to a continuation.
func (p Ptr) IsCont() bool { return p.Tag.IsCont() }

// Less orders pointers by digest, then tag. It is the order used by
// Store.Pointers and by snapshots.
func (p Ptr) Less(q Ptr) bool {
	if c := bytes.Compare(p.Digest[:], q.Digest[:]); c != 0 {
		return c < 0
	}
	return p.Tag < q.Tag
}

// Scalars returns the pointer as the two field elements (tag, digest).
func (p Ptr) Scalars() [2]field.Scalar {
	return [2]field.Scalar{p.Tag.Scalar(), p.Digest}
}

func (p Ptr) String() string {
	return fmt.Sprintf("%s:%x", p.Tag, p.Digest[:6])
}
