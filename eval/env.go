package eval

import (
	"errors"
	"fmt"

	"github.com/chazu/lurk/store"
)

// ---------------------------------------------------------------------------
// Environments
//
// An environment is a list of bindings, most recent first. A plain binding
// is (var . val). A recursive frame is a binding whose car is itself a list
// of bindings: (((f . fun) (g . fun2)) . rest). Functions found in a
// recursive frame are returned with the whole frame prepended to their
// closed environment, which is what lets them call themselves and each
// other.
// ---------------------------------------------------------------------------

// Extend returns env with var bound to val.
func Extend(s *store.Store, env, v, val store.Ptr) store.Ptr {
	return s.Cons(s.Cons(v, val), env)
}

// ExtendRec adds a recursive binding of var to val. If env already begins
// with a recursive frame the binding joins that frame.
func ExtendRec(s *store.Store, env, v, val store.Ptr) (store.Ptr, error) {
	binding := s.Cons(v, val)
	first, rest, err := s.CarCdr(env)
	if err != nil {
		return store.Ptr{}, err
	}
	head := s.Nil()
	if first.Tag == store.TagCons {
		if head, _, err = s.CarCdr(first); err != nil {
			return store.Ptr{}, err
		}
	}
	if head.Tag == store.TagCons {
		return s.Cons(s.Cons(binding, first), rest), nil
	}
	return s.Cons(s.List(binding), env), nil
}

// extendClosure prepends a recursive frame to a function's closed
// environment. Values other than functions are returned unchanged.
func extendClosure(s *store.Store, val, recFrame store.Ptr) (store.Ptr, error) {
	if val.Tag != store.TagFun {
		return val, nil
	}
	fn, err := s.FetchFun(val)
	if err != nil {
		return store.Ptr{}, err
	}
	return s.Fun(fn.Arg, fn.Body, s.Cons(recFrame, fn.Env)), nil
}

// errMalformedFrame reports a recursive frame entry that is not a binding.
var errMalformedFrame = errors.New("eval: malformed recursive frame")

// lookupFrame searches a recursive frame for sym. A function found there is
// closed over the whole frame, so every function in the frame can reach its
// siblings.
func lookupFrame(s *store.Store, frame, sym store.Ptr) (store.Ptr, bool, error) {
	for p := frame; p.Tag == store.TagCons; {
		binding, rest, err := s.CarCdr(p)
		if err != nil {
			return store.Ptr{}, false, err
		}
		if binding.Tag != store.TagCons {
			return store.Ptr{}, false, fmt.Errorf("%w: %s", errMalformedFrame, binding)
		}
		v, val, err := s.CarCdr(binding)
		if err != nil {
			return store.Ptr{}, false, err
		}
		if v == sym {
			fn, err := extendClosure(s, val, frame)
			return fn, err == nil, err
		}
		p = rest
	}
	return store.Ptr{}, false, nil
}

// Lookup finds the value bound to sym in env, walking the whole environment
// at once. It agrees with the value the machine produces for a variable
// reference, but records no frames.
func Lookup(s *store.Store, env, sym store.Ptr) (store.Ptr, bool, error) {
	for env.Tag == store.TagCons {
		binding, smaller, err := s.CarCdr(env)
		if err != nil {
			return store.Ptr{}, false, err
		}
		if binding.Tag != store.TagCons {
			return store.Ptr{}, false, fmt.Errorf("eval: malformed binding %s", binding)
		}
		v, val, err := s.CarCdr(binding)
		if err != nil {
			return store.Ptr{}, false, err
		}
		if v.Tag == store.TagCons {
			if fn, ok, err := lookupFrame(s, binding, sym); ok || err != nil {
				return fn, ok, err
			}
		} else if v == sym {
			return val, true, nil
		}
		env = smaller
	}
	return store.Ptr{}, false, nil
}
