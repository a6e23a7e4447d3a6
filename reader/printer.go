package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/lurk/store"
)

// maxPrintDepth bounds nesting so printing a cyclic-looking environment
// chain cannot run away.
const maxPrintDepth = 64

// Print renders p as source-like text. Content missing from the store is
// rendered as <MISSING ptr> rather than failing.
func Print(s *store.Store, p store.Ptr) string {
	var sb strings.Builder
	printer{s: s, sb: &sb}.print(p, 0)
	return sb.String()
}

type printer struct {
	s  *store.Store
	sb *strings.Builder
}

func (pr printer) missing(p store.Ptr) {
	fmt.Fprintf(pr.sb, "<MISSING %s>", p)
}

func (pr printer) print(p store.Ptr, depth int) {
	if depth > maxPrintDepth {
		pr.sb.WriteString("...")
		return
	}
	s, sb := pr.s, pr.sb
	switch p.Tag {
	case store.TagNil, store.TagSym:
		name, err := s.FetchSym(p)
		if err != nil {
			pr.missing(p)
			return
		}
		sb.WriteString(name)

	case store.TagNum:
		sb.WriteString(s.Field().BigInt(p.Digest).String())

	case store.TagStr:
		v, err := s.FetchStr(p)
		if err != nil {
			pr.missing(p)
			return
		}
		sb.WriteString(strconv.Quote(v))

	case store.TagCons:
		if !s.Contains(p) {
			pr.missing(p)
			return
		}
		sb.WriteByte('(')
		for i := 0; p.Tag == store.TagCons; i++ {
			c, err := s.FetchCons(p)
			if err != nil {
				pr.missing(p)
				break
			}
			if i > 0 {
				sb.WriteByte(' ')
			}
			pr.print(c.Car, depth+1)
			p = c.Cdr
		}
		if !p.IsNil() && p.Tag != store.TagCons {
			sb.WriteString(" . ")
			pr.print(p, depth+1)
		}
		sb.WriteByte(')')

	case store.TagFun:
		fn, err := s.FetchFun(p)
		if err != nil {
			pr.missing(p)
			return
		}
		sb.WriteString("<FUNCTION (")
		pr.print(fn.Arg, depth+1)
		sb.WriteString(") ")
		pr.print(fn.Body, depth+1)
		sb.WriteByte('>')

	case store.TagThunk:
		th, err := s.FetchThunk(p)
		if err != nil {
			pr.missing(p)
			return
		}
		sb.WriteString("<THUNK ")
		pr.print(th.Value, depth+1)
		sb.WriteByte('>')

	default:
		if !p.Tag.IsCont() {
			fmt.Fprintf(sb, "<UNKNOWN %s>", p)
			return
		}
		c, err := s.FetchCont(p)
		if err != nil {
			pr.missing(p)
			return
		}
		if e, ok := c.(store.Error); ok {
			fmt.Fprintf(sb, "<ERROR %s ", e.Kind)
			pr.print(e.Irritant, depth+1)
			sb.WriteByte('>')
			return
		}
		fmt.Fprintf(sb, "<CONTINUATION %s>", strings.ToUpper(c.Tag().String()))
	}
}
