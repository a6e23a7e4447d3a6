package trace

import (
	"errors"
	"fmt"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
)

var (
	// ErrBrokenChain is returned when a frame does not follow its
	// predecessor.
	ErrBrokenChain = errors.New("trace: broken frame chain")
	// ErrStepMismatch is returned when a frame's output is not the step of
	// its input.
	ErrStepMismatch = errors.New("trace: step mismatch")
	// ErrIncompleteTrace is returned when a trace does not end in a
	// Terminal or Error state.
	ErrIncompleteTrace = errors.New("trace: incomplete trace")
)

// Verify checks that frames are indexed consecutively from the first
// frame's index and that each frame's input is its predecessor's output.
func Verify(frames []eval.Frame) error {
	for i := 1; i < len(frames); i++ {
		if !frames[i-1].Precedes(frames[i]) {
			return fmt.Errorf("%w: frame %d does not follow frame %d",
				ErrBrokenChain, frames[i].Index, frames[i-1].Index)
		}
	}
	return nil
}

// VerifyComplete is Verify plus a check that the trace starts at index 0
// and ends in a completed state.
func VerifyComplete(frames []eval.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrIncompleteTrace)
	}
	if frames[0].Index != 0 {
		return fmt.Errorf("%w: first frame has index %d", ErrBrokenChain, frames[0].Index)
	}
	if err := Verify(frames); err != nil {
		return err
	}
	if last := frames[len(frames)-1]; !last.Output.IsComplete() {
		return fmt.Errorf("%w: final continuation is %s", ErrIncompleteTrace, last.Output.Cont.Tag)
	}
	return nil
}

// Replay re-executes every frame against s and checks that each output is
// exactly the step of its input. It is the reference check a proof of the
// trace stands in for.
func Replay(s *store.Store, frames []eval.Frame) error {
	if err := Verify(frames); err != nil {
		return err
	}
	m := eval.NewMachine(s)
	for _, f := range frames {
		out, err := m.Step(f.Input)
		if err != nil {
			return fmt.Errorf("trace: replay frame %d: %w", f.Index, err)
		}
		if out != f.Output {
			return fmt.Errorf("%w: frame %d", ErrStepMismatch, f.Index)
		}
	}
	return nil
}

// PublicInputs returns the six scalars that expose io to a circuit:
// tag and digest of the expression, environment and continuation.
func PublicInputs(io eval.IO) []field.Scalar {
	out := make([]field.Scalar, 0, 6)
	for _, p := range []store.Ptr{io.Expr, io.Env, io.Cont} {
		sc := p.Scalars()
		out = append(out, sc[0], sc[1])
	}
	return out
}

// FramePublicInputs returns the public inputs of f's input followed by
// those of its output.
func FramePublicInputs(f eval.Frame) []field.Scalar {
	return append(PublicInputs(f.Input), PublicInputs(f.Output)...)
}
