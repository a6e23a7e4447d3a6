package eval

import "github.com/chazu/lurk/store"

// IO is one machine state: the expression under evaluation, the
// environment it is evaluated in, and the continuation awaiting its value.
type IO struct {
	Expr store.Ptr `cbor:"1,keyasint"`
	Env  store.Ptr `cbor:"2,keyasint"`
	Cont store.Ptr `cbor:"3,keyasint"`
}

// InitialIO returns the starting state for evaluating expr in env.
func InitialIO(s *store.Store, expr, env store.Ptr) IO {
	return IO{Expr: expr, Env: env, Cont: s.Cont(store.Outermost{})}
}

// IsTerminal reports whether the state completed successfully.
func (io IO) IsTerminal() bool { return io.Cont.Tag == store.TagTerminal }

// IsError reports whether the state is an evaluation error.
func (io IO) IsError() bool { return io.Cont.Tag == store.TagError }

// IsComplete reports whether Step leaves the state unchanged.
func (io IO) IsComplete() bool { return io.IsTerminal() || io.IsError() }

// Frame records one reduction step.
type Frame struct {
	Input  IO  `cbor:"1,keyasint"`
	Output IO  `cbor:"2,keyasint"`
	Index  int `cbor:"3,keyasint"`
}

// Precedes reports whether next directly follows f in a trace.
func (f Frame) Precedes(next Frame) bool {
	return f.Output == next.Input && f.Index+1 == next.Index
}

// IsPadding reports whether f is a fixed-point frame of a completed state.
func (f Frame) IsPadding() bool {
	return f.Input == f.Output && f.Input.IsComplete()
}
