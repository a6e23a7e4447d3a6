package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/lurk/config"
	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/reader"
	"github.com/chazu/lurk/store"
	"github.com/chazu/lurk/trace"
)

func runSource(t *testing.T, s *store.Store, src string) *eval.Trace {
	t.Helper()
	expr, err := reader.Read(s, src)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := eval.NewEvaluator(s, expr, s.Nil(), 1000).Run()
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("[eval]\niteration-limit = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(dir, &options{chunk: -1})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Eval.IterationLimit != 7 || cfg.Trace.ChunkSize != 10 {
		t.Errorf("file values: got %d, %d", cfg.Eval.IterationLimit, cfg.Trace.ChunkSize)
	}

	cfg, err = loadConfig(dir, &options{limit: 99, chunk: 0, fieldName: field.BN254, verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Eval.IterationLimit != 99 || cfg.Trace.ChunkSize != 0 || cfg.Field.Name != field.BN254 || cfg.Log.Verbosity != 5 {
		t.Errorf("overrides: got %+v", cfg)
	}

	if _, err := loadConfig(dir, &options{chunk: -1, fieldName: "nope"}); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestWriteTrace_Pads(t *testing.T) {
	s := store.New(field.Default())
	tr := runSource(t, s, "(+ 1 2)")
	path := filepath.Join(t.TempDir(), "out.cbor")
	if err := writeTrace(path, s, tr, 4); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	b, err := trace.Read(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Frames) != 4 || trace.SignificantFrames(b.Frames) != 3 {
		t.Errorf("got %d frames, %d significant", len(b.Frames), trace.SignificantFrames(b.Frames))
	}
}

func TestPrintStats(t *testing.T) {
	s := store.New(field.Default())
	runSource(t, s, "(cons 1 2)")
	var buf bytes.Buffer
	if err := printStats(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "store: ") || !strings.Contains(out, "Cons") || !strings.Contains(out, "B") {
		t.Errorf("got %q", out)
	}
}
