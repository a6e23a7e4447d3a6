// Package trace encodes, checks and partitions evaluation traces for
// consumption by a proving backend.
package trace

import (
	"fmt"
	"io"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the version of the trace bundle encoding.
const WireVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Bundle is a trace together with the parameters needed to interpret its
// pointers.
type Bundle struct {
	Version int              `cbor:"1,keyasint"`
	Field   string           `cbor:"2,keyasint"`
	Params  field.HashParams `cbor:"3,keyasint"`
	Frames  []eval.Frame     `cbor:"4,keyasint"`
}

// NewBundle wraps frames produced over f.
func NewBundle(f field.Field, frames []eval.Frame) *Bundle {
	return &Bundle{
		Version: WireVersion,
		Field:   f.Name(),
		Params:  f.HashParams(),
		Frames:  frames,
	}
}

// Marshal serializes a Bundle to canonical CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Unmarshal deserializes a Bundle from CBOR bytes.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("trace: unmarshal bundle: %w", err)
	}
	if b.Version != WireVersion {
		return nil, fmt.Errorf("trace: unsupported bundle version %d", b.Version)
	}
	return &b, nil
}

// Write encodes b to w.
func Write(w io.Writer, b *Bundle) error {
	if err := cborEncMode.NewEncoder(w).Encode(b); err != nil {
		return fmt.Errorf("trace: write bundle: %w", err)
	}
	return nil
}

// Read decodes one Bundle from r.
func Read(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := cbor.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("trace: read bundle: %w", err)
	}
	if b.Version != WireVersion {
		return nil, fmt.Errorf("trace: unsupported bundle version %d", b.Version)
	}
	return &b, nil
}

// MarshalFrame serializes a single frame.
func MarshalFrame(f eval.Frame) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// UnmarshalFrame deserializes a single frame.
func UnmarshalFrame(data []byte) (eval.Frame, error) {
	var f eval.Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return eval.Frame{}, fmt.Errorf("trace: unmarshal frame: %w", err)
	}
	return f, nil
}
