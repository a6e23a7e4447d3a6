package trace

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/reader"
	"github.com/chazu/lurk/store"
)

func frames(t *testing.T, s *store.Store, src string) []eval.Frame {
	t.Helper()
	expr, err := reader.Read(s, src)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := eval.NewEvaluator(s, expr, s.Nil(), 1000).Run()
	if err != nil {
		t.Fatal(err)
	}
	return tr.Frames
}

func TestBundle_RoundTrip(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(let ((x 2)) (* x x))")

	data, err := Marshal(NewBundle(s.Field(), fs))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Field != s.Field().Name() || b.Params != s.Field().HashParams() {
		t.Errorf("header: got %s %+v", b.Field, b.Params)
	}
	if len(b.Frames) != len(fs) {
		t.Fatalf("frames: got %d, want %d", len(b.Frames), len(fs))
	}
	for i := range fs {
		if b.Frames[i] != fs[i] {
			t.Errorf("frame %d differs after round trip", i)
		}
	}

	again, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("encoding is not canonical")
	}
}

func TestBundle_StreamRoundTrip(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(+ 1 2)")

	var buf bytes.Buffer
	if err := Write(&buf, NewBundle(s.Field(), fs)); err != nil {
		t.Fatal(err)
	}
	b, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Frames) != 3 || b.Frames[2] != fs[2] {
		t.Errorf("got %d frames", len(b.Frames))
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}
	data, err := cborEncMode.Marshal(Bundle{Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("expected error for unknown version")
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	s := store.New(field.Default())
	f := frames(t, s, "(if t 5 6)")[1]
	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Errorf("got %+v, want %+v", got, f)
	}
}

func TestVerify(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(if t (+ 5 5) 6)")
	if err := VerifyComplete(fs); err != nil {
		t.Fatalf("valid trace rejected: %v", err)
	}
	if err := Replay(s, fs); err != nil {
		t.Fatalf("replay: %v", err)
	}

	swapped := append([]eval.Frame(nil), fs...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	if err := Verify(swapped); !errors.Is(err, ErrBrokenChain) {
		t.Errorf("swapped frames: got %v", err)
	}

	if err := VerifyComplete(fs[1:]); !errors.Is(err, ErrBrokenChain) {
		t.Errorf("trace not starting at 0: got %v", err)
	}
	if err := VerifyComplete(fs[:len(fs)-1]); !errors.Is(err, ErrIncompleteTrace) {
		t.Errorf("truncated trace: got %v", err)
	}
	if err := VerifyComplete(nil); !errors.Is(err, ErrIncompleteTrace) {
		t.Errorf("empty trace: got %v", err)
	}
}

func TestReplay_DetectsForgedOutput(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(+ 1 2)")

	// Forge the final value and keep the chain consistent.
	forged := append([]eval.Frame(nil), fs...)
	forged[len(forged)-1].Output.Expr = s.Uint(4)
	if err := Verify(forged); err != nil {
		t.Fatalf("forged chain should still link: %v", err)
	}
	if err := Replay(s, forged); !errors.Is(err, ErrStepMismatch) {
		t.Errorf("got %v, want ErrStepMismatch", err)
	}
}

func TestPublicInputs(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(+ 1 2)")
	final := fs[len(fs)-1].Output

	in := PublicInputs(final)
	if len(in) != 6 {
		t.Fatalf("got %d inputs", len(in))
	}
	if in[0] != store.TagNum.Scalar() || in[1] != field.FromUint64(3) {
		t.Errorf("expr inputs: got %s %s", in[0], in[1])
	}
	if in[4] != store.TagTerminal.Scalar() {
		t.Errorf("cont tag: got %s", in[4])
	}

	both := FramePublicInputs(fs[0])
	if len(both) != 12 {
		t.Fatalf("frame inputs: got %d", len(both))
	}
	for i, sc := range PublicInputs(fs[0].Output) {
		if both[6+i] != sc {
			t.Errorf("output input %d mismatch", i)
		}
	}
}

func TestPaddingCount(t *testing.T) {
	tests := []struct {
		total, n, want int
	}{
		{3, 1, 0},
		{3, 2, 1},
		{3, 3, 0},
		{3, 4, 1},
		{3, 10, 7},
		{18, 5, 2},
		{0, 4, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := PaddingCount(tt.total, tt.n); got != tt.want {
			t.Errorf("PaddingCount(%d, %d) = %d, want %d", tt.total, tt.n, got, tt.want)
		}
	}
}

func TestChunk(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(let ((x 2)) (* x x))")
	n := 4

	chunks, err := Chunk(fs, n)
	if err != nil {
		t.Fatal(err)
	}
	wantChunks := (len(fs) + PaddingCount(len(fs), n)) / n
	if len(chunks) != wantChunks {
		t.Fatalf("chunks: got %d, want %d", len(chunks), wantChunks)
	}

	var flat []eval.Frame
	for i, c := range chunks {
		if len(c) != n {
			t.Errorf("chunk %d has %d frames", i, len(c))
		}
		flat = append(flat, c...)
	}
	if err := VerifyComplete(flat); err != nil {
		t.Errorf("chunks do not chain: %v", err)
	}
	if got := SignificantFrames(flat); got != len(fs) {
		t.Errorf("significant frames: got %d, want %d", got, len(fs))
	}
	for _, f := range flat[len(fs):] {
		if !f.IsPadding() {
			t.Errorf("frame %d is not padding", f.Index)
		}
	}
	if err := Replay(s, flat); err != nil {
		t.Errorf("padded trace does not replay: %v", err)
	}
}

func TestChunk_Errors(t *testing.T) {
	s := store.New(field.Default())
	fs := frames(t, s, "(+ 1 2)")
	if _, err := Chunk(fs, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := Chunk(fs[:2], 2); !errors.Is(err, ErrIncompleteTrace) {
		t.Errorf("incomplete trace: got %v", err)
	}
}
