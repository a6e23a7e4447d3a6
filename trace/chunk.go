package trace

import (
	"fmt"

	"github.com/chazu/lurk/eval"
)

// PaddingCount returns how many frames must be added to total so that it
// divides evenly into chunks of size n.
func PaddingCount(total, n int) int {
	if n <= 0 {
		return 0
	}
	return (n - total%n) % n
}

// Pad appends fixed-point frames of the final state until len(frames) is a
// multiple of n. The trace must be complete.
func Pad(frames []eval.Frame, n int) ([]eval.Frame, error) {
	if n <= 0 {
		return nil, fmt.Errorf("trace: chunk size %d must be positive", n)
	}
	if err := VerifyComplete(frames); err != nil {
		return nil, err
	}
	final := frames[len(frames)-1].Output
	out := append([]eval.Frame(nil), frames...)
	for range PaddingCount(len(frames), n) {
		out = append(out, eval.Frame{Input: final, Output: final, Index: len(out)})
	}
	return out, nil
}

// Chunk splits a complete trace into chunks of exactly n frames, padding the
// last chunk with fixed-point frames.
func Chunk(frames []eval.Frame, n int) ([][]eval.Frame, error) {
	padded, err := Pad(frames, n)
	if err != nil {
		return nil, err
	}
	chunks := make([][]eval.Frame, 0, len(padded)/n)
	for i := 0; i < len(padded); i += n {
		chunks = append(chunks, padded[i:i+n:i+n])
	}
	return chunks, nil
}

// SignificantFrames returns the number of frames before padding begins.
func SignificantFrames(frames []eval.Frame) int {
	n := len(frames)
	for n > 0 && frames[n-1].IsPadding() {
		n--
	}
	return n
}
