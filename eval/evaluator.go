package eval

import (
	"fmt"

	"github.com/chazu/lurk/store"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lurk.eval")

// ---------------------------------------------------------------------------
// Evaluator: frame sequencing
// ---------------------------------------------------------------------------

// Evaluator runs the machine from an initial state for at most Limit steps.
type Evaluator struct {
	m       *Machine
	initial IO
	limit   int
}

// NewEvaluator prepares evaluation of expr in env with an iteration limit.
func NewEvaluator(s *store.Store, expr, env store.Ptr, limit int) *Evaluator {
	return &Evaluator{
		m:       NewMachine(s),
		initial: InitialIO(s, expr, env),
		limit:   limit,
	}
}

// Initial returns the state evaluation starts from.
func (e *Evaluator) Initial() IO { return e.initial }

// Iter returns a fresh iterator over the evaluation's frames.
func (e *Evaluator) Iter() *FrameIterator {
	return &FrameIterator{m: e.m, state: e.initial, limit: e.limit}
}

// FrameIterator yields frames lazily. It cannot be restarted; call
// Evaluator.Iter again for a new pass.
type FrameIterator struct {
	m     *Machine
	state IO
	index int
	limit int
	done  bool
	err   error
}

// Next computes the next frame. It returns false once the previous frame
// reached Terminal or Error, after Limit frames, or on a store failure;
// Err distinguishes these.
func (it *FrameIterator) Next() (Frame, bool) {
	if it.done {
		return Frame{}, false
	}
	if it.index >= it.limit {
		it.done = true
		it.err = &ExhaustedError{Limit: it.limit}
		return Frame{}, false
	}
	out, err := it.m.Step(it.state)
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("eval: frame %d: %w", it.index, err)
		return Frame{}, false
	}
	f := Frame{Input: it.state, Output: out, Index: it.index}
	it.state = out
	it.index++
	if out.IsComplete() {
		it.done = true
	}
	return f, true
}

// Err returns the error that stopped iteration: nil after normal
// completion, an *ExhaustedError at the limit, or a store failure.
func (it *FrameIterator) Err() error { return it.err }

// State returns the most recent output state.
func (it *FrameIterator) State() IO { return it.state }

// ---------------------------------------------------------------------------
// Traces
// ---------------------------------------------------------------------------

// Status classifies how a run ended.
type Status int

const (
	StatusTerminal Status = iota
	StatusError
	StatusExhausted
)

func (st Status) String() string {
	switch st {
	case StatusTerminal:
		return "terminal"
	case StatusError:
		return "error"
	case StatusExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("Status(%d)", int(st))
}

// Outcome summarizes the end of a run.
type Outcome struct {
	Status Status
	// Kind is set when Status is StatusError.
	Kind store.ErrorKind
	// Irritant is the value the error was raised on.
	Irritant store.Ptr
	// Index is the index of the last frame, or -1 for an empty trace.
	Index int
}

// Trace is the result of a run.
type Trace struct {
	Frames  []Frame
	Final   IO
	outcome Outcome
}

// Outcome reports how the run ended.
func (t *Trace) Outcome() Outcome { return t.outcome }

// Iterations returns the number of frames.
func (t *Trace) Iterations() int { return len(t.Frames) }

// Run evaluates to completion. On exhaustion the partial trace of exactly
// Limit frames is returned together with an *ExhaustedError.
func (e *Evaluator) Run() (*Trace, error) {
	log.Debugf("run: limit %d, expr %s", e.limit, e.initial.Expr)
	it := e.Iter()
	t := &Trace{Final: e.initial}
	for {
		f, ok := it.Next()
		if !ok {
			break
		}
		t.Frames = append(t.Frames, f)
		t.Final = f.Output
	}
	err := it.Err()
	if err != nil && !isExhausted(err) {
		return nil, err
	}

	t.outcome = Outcome{Index: len(t.Frames) - 1}
	switch {
	case err != nil:
		t.outcome.Status = StatusExhausted
	case t.Final.IsError():
		c, ferr := e.m.s.FetchCont(t.Final.Cont)
		if ferr != nil {
			return nil, fmt.Errorf("eval: final continuation: %w", ferr)
		}
		ec := c.(store.Error)
		t.outcome.Status = StatusError
		t.outcome.Kind = ec.Kind
		t.outcome.Irritant = ec.Irritant
	default:
		t.outcome.Status = StatusTerminal
	}
	log.Debugf("run: %s after %d frames", t.outcome.Status, len(t.Frames))
	return t, err
}

// GenerateFrames runs to completion and then appends fixed-point frames of
// the final state while pad reports true for the current frame count.
// Padding only applies to completed runs; exhaustion returns the partial
// frames and the error.
func (e *Evaluator) GenerateFrames(pad func(n int) bool) ([]Frame, error) {
	t, err := e.Run()
	if err != nil {
		if t != nil {
			return t.Frames, err
		}
		return nil, err
	}
	frames := t.Frames
	for pad != nil && pad(len(frames)) {
		frames = append(frames, Frame{Input: t.Final, Output: t.Final, Index: len(frames)})
	}
	return frames, nil
}

// Eval runs expr in env and returns the final state and the number of
// frames taken.
func Eval(s *store.Store, expr, env store.Ptr, limit int) (IO, int, error) {
	t, err := NewEvaluator(s, expr, env, limit).Run()
	if t == nil {
		return IO{}, 0, err
	}
	return t.Final, len(t.Frames), err
}

// Depth returns the number of continuations nested in cont, counting cont
// itself.
func Depth(s *store.Store, cont store.Ptr) (int, error) {
	n := 0
	for {
		c, err := s.FetchCont(cont)
		if err != nil {
			return n, err
		}
		n++
		next, ok := store.Next(c)
		if !ok {
			return n, nil
		}
		cont = next
	}
}
