package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/docker/go-units"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/store"
	"github.com/chazu/lurk/trace"
)

// writeTrace writes t as a trace bundle. Completed runs are padded to a
// multiple of chunk frames when chunk is positive.
func writeTrace(path string, s *store.Store, t *eval.Trace, chunk int) error {
	frames := t.Frames
	if chunk > 0 && t.Final.IsComplete() && len(frames) > 0 {
		padded, err := trace.Pad(frames, chunk)
		if err != nil {
			return err
		}
		frames = padded
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := trace.Write(f, trace.NewBundle(s.Field(), frames)); err != nil {
		f.Close()
		return err
	}
	log.Infof("wrote %d frames to %s", len(frames), path)
	return f.Close()
}

func writeSnapshot(path string, s *store.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := s.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// printStats prints entry counts per tag and the compressed snapshot size.
func printStats(w io.Writer, s *store.Store) error {
	var cw countingWriter
	if err := s.WriteSnapshot(&cw); err != nil {
		return err
	}

	stats := s.Stats()
	tags := make([]store.Tag, 0, len(stats))
	for tag := range stats {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	fmt.Fprintf(w, "store: %d entries, snapshot %s (field %s)\n",
		s.Len(), units.HumanSize(float64(cw.n)), s.Field().Name())
	for _, tag := range tags {
		fmt.Fprintf(w, "  %-12s %d\n", tag, stats[tag])
	}
	return nil
}
