// Package repl evaluates source text interactively or from files, with
// meta commands for loading files and checking results.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/reader"
	"github.com/chazu/lurk/store"
	"github.com/chzyer/readline"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lurk.repl")

var (
	// ErrQuit is returned when the :quit meta command is read.
	ErrQuit = errors.New("repl: quit")
	// ErrAssertion is returned when an :assert meta command fails.
	ErrAssertion = errors.New("repl: assertion failed")
	// ErrUnknownCommand is returned for an unrecognized meta command.
	ErrUnknownCommand = errors.New("repl: unknown meta command")
)

const (
	newPrompt    = "\033[32m>\033[0m "
	contPrompt   = "\033[32m.\033[0m "
	resultPrompt = "\033[31m=\033[0m "
)

// Session evaluates expressions against one store and environment.
type Session struct {
	s     *store.Store
	env   store.Ptr
	limit int
	out   io.Writer
	dir   string

	// OnRun, if set, is called with every completed or exhausted trace.
	OnRun func(*eval.Trace)
}

// New returns a session over s with the empty environment.
func New(s *store.Store, limit int, out io.Writer) *Session {
	return &Session{s: s, env: s.Nil(), limit: limit, out: out, dir: "."}
}

// Store returns the session's store.
func (se *Session) Store() *store.Store { return se.s }

// SetDir sets the directory :load resolves relative paths against.
func (se *Session) SetDir(dir string) { se.dir = dir }

// Eval runs expr in the session environment. An exhausted run returns the
// partial trace together with the error.
func (se *Session) Eval(expr store.Ptr) (*eval.Trace, error) {
	t, err := eval.NewEvaluator(se.s, expr, se.env, se.limit).Run()
	if t != nil && se.OnRun != nil {
		se.OnRun(t)
	}
	return t, err
}

// Describe renders the result of a run the way the REPL prints it.
func (se *Session) Describe(t *eval.Trace) string {
	o := t.Outcome()
	switch o.Status {
	case eval.StatusTerminal:
		return fmt.Sprintf("[%d iterations] => %s", t.Iterations(), reader.Print(se.s, t.Final.Expr))
	case eval.StatusError:
		return fmt.Sprintf("[%d iterations] => error: %s %s", t.Iterations(), o.Kind, reader.Print(se.s, o.Irritant))
	default:
		return fmt.Sprintf("[%d iterations] => limit reached", t.Iterations())
	}
}

// HandleSource evaluates every expression in src, running meta commands
// as they are read.
func (se *Session) HandleSource(src string) error {
	r := reader.New(se.s, src)
	for {
		p, meta, err := r.NextMaybeMeta()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if meta {
			err = se.handleMeta(p)
		} else {
			err = se.evalAndPrint(p)
		}
		if err != nil {
			return err
		}
	}
}

// LoadFile evaluates the file at path. Relative paths resolve against the
// session directory; nested loads resolve against the loading file.
func (se *Session) LoadFile(path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(se.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("repl: load: %w", err)
	}
	log.Debugf("loading %s", path)

	saved := se.dir
	se.dir = filepath.Dir(path)
	defer func() { se.dir = saved }()
	if err := se.HandleSource(string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (se *Session) evalAndPrint(expr store.Ptr) error {
	t, err := se.Eval(expr)
	if t != nil {
		fmt.Fprintln(se.out, se.Describe(t))
	}
	return err
}

// ---------------------------------------------------------------------------
// Meta commands
// ---------------------------------------------------------------------------

func (se *Session) handleMeta(p store.Ptr) error {
	cmd, args := p, []store.Ptr(nil)
	if p.Tag == store.TagCons {
		elems, tail, err := se.s.ListElems(p)
		if err != nil {
			return err
		}
		if !tail.IsNil() || len(elems) == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, reader.Print(se.s, p))
		}
		cmd, args = elems[0], elems[1:]
	}
	name, err := se.s.FetchSym(cmd)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, reader.Print(se.s, p))
	}

	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("repl: %s takes %d argument(s), got %d", strings.ToLower(name), n, len(args))
		}
		return nil
	}

	switch name {
	case ":QUIT":
		return ErrQuit

	case ":LOAD":
		if err := arity(1); err != nil {
			return err
		}
		path, err := se.s.FetchStr(args[0])
		if err != nil {
			return fmt.Errorf("repl: :load wants a string path: %w", err)
		}
		return se.LoadFile(path)

	case ":ASSERT":
		if err := arity(1); err != nil {
			return err
		}
		t, err := se.Eval(args[0])
		if err != nil {
			return err
		}
		if t.Outcome().Status != eval.StatusTerminal || t.Final.Expr.IsNil() {
			return fmt.Errorf("%w: %s: %s", ErrAssertion, reader.Print(se.s, args[0]), se.Describe(t))
		}
		return nil

	case ":ASSERT-EQ":
		if err := arity(2); err != nil {
			return err
		}
		a, err := se.Eval(args[0])
		if err != nil {
			return err
		}
		b, err := se.Eval(args[1])
		if err != nil {
			return err
		}
		if a.Outcome().Status != eval.StatusTerminal || b.Outcome().Status != eval.StatusTerminal ||
			a.Final.Expr != b.Final.Expr {
			return fmt.Errorf("%w: %s != %s", ErrAssertion, se.Describe(a), se.Describe(b))
		}
		return nil

	case ":ASSERT-ERROR":
		if err := arity(1); err != nil {
			return err
		}
		t, err := se.Eval(args[0])
		if err != nil {
			return err
		}
		if t.Outcome().Status != eval.StatusError {
			return fmt.Errorf("%w: expected error from %s: %s", ErrAssertion, reader.Print(se.s, args[0]), se.Describe(t))
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, strings.ToLower(name))
}

// ---------------------------------------------------------------------------
// Interactive loop
// ---------------------------------------------------------------------------

// Interactive reads lines with readline until EOF or :quit. Errors are
// printed and the loop continues; incomplete input is continued on the next
// line.
func (se *Session) Interactive(historyFile string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("repl: %w", err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	saved := se.out
	se.out = &prefixWriter{w: l.Stdout()}
	defer func() { se.out = saved }()

	pending := ""
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if pending == "" && line == "" {
				return nil
			}
			pending = ""
			l.SetPrompt(newPrompt)
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("repl: %w", err)
		}

		src := pending + line
		if strings.TrimSpace(src) == "" {
			continue
		}
		err = se.HandleSource(src)
		if reader.IsIncomplete(err) {
			pending = src + "\n"
			l.SetPrompt(contPrompt)
			continue
		}
		pending = ""
		l.SetPrompt(newPrompt)
		switch {
		case errors.Is(err, ErrQuit):
			return nil
		case err != nil:
			fmt.Fprintln(l.Stderr(), err)
		}
	}
}

type prefixWriter struct {
	w io.Writer
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if _, err := io.WriteString(p.w, resultPrompt); err != nil {
		return 0, err
	}
	return p.w.Write(b)
}
