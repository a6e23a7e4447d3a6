package store

import (
	"fmt"

	"github.com/chazu/lurk/field"
)

// ---------------------------------------------------------------------------
// Frozen pointer tags.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag code must never
// change meaning. Adding new tags is fine; changing existing ones changes
// every digest that embeds them and breaks agreement with other backends.
// ---------------------------------------------------------------------------

// Tag identifies the kind of value a pointer refers to.
type Tag uint16

// Expression tags.
const (
	TagNil   Tag = 0x0000
	TagCons  Tag = 0x0001
	TagSym   Tag = 0x0002
	TagFun   Tag = 0x0003
	TagNum   Tag = 0x0004
	TagThunk Tag = 0x0005
	TagStr   Tag = 0x0006
)

// Continuation tags. Every continuation tag has contTagBit set.
const (
	TagOutermost Tag = 0x1000
	TagCall      Tag = 0x1001
	TagCall2     Tag = 0x1002
	TagTail      Tag = 0x1003
	TagError     Tag = 0x1004
	TagLookup    Tag = 0x1005
	TagUnop      Tag = 0x1006
	TagBinop     Tag = 0x1007
	TagBinop2    Tag = 0x1008
	TagIf        Tag = 0x1009
	TagLet       Tag = 0x100A
	TagLetRec    Tag = 0x100B
	TagDummy     Tag = 0x100C
	TagTerminal  Tag = 0x100D
	TagCall0     Tag = 0x100E
)

const contTagBit Tag = 0x1000

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []Tag{
	TagNil, TagCons, TagSym, TagFun, TagNum, TagThunk, TagStr,
	TagOutermost, TagCall, TagCall2, TagTail, TagError, TagLookup,
	TagUnop, TagBinop, TagBinop2, TagIf, TagLet, TagLetRec,
	TagDummy, TagTerminal, TagCall0,
}

var tagNames = map[Tag]string{
	TagNil:       "Nil",
	TagCons:      "Cons",
	TagSym:       "Sym",
	TagFun:       "Fun",
	TagNum:       "Num",
	TagThunk:     "Thunk",
	TagStr:       "Str",
	TagOutermost: "Outermost",
	TagCall:      "Call",
	TagCall2:     "Call2",
	TagTail:      "Tail",
	TagError:     "Error",
	TagLookup:    "Lookup",
	TagUnop:      "Unop",
	TagBinop:     "Binop",
	TagBinop2:    "Binop2",
	TagIf:        "If",
	TagLet:       "Let",
	TagLetRec:    "LetRec",
	TagDummy:     "Dummy",
	TagTerminal:  "Terminal",
	TagCall0:     "Call0",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tag(%#04x)", uint16(t))
}

// Valid reports whether t is one of the defined tags.
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

// IsCont reports whether t tags a continuation.
func (t Tag) IsCont() bool {
	return t&contTagBit != 0
}

// Scalar returns the tag as a field element, as it appears in digests.
func (t Tag) Scalar() field.Scalar {
	return field.FromUint64(uint64(t))
}
