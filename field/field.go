// Package field provides the scalar fields that back every digest and number
// in the store, and the content hash used to address store entries.
//
// A Field is fixed for the lifetime of a store. Changing the field or the hash
// parameters changes every pointer, so two stores only agree on pointers when
// they were built from the same Field name and HashParams.
package field

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// Scalar is a canonical field element: 32 bytes, big-endian, always reduced
// modulo the field's order.
type Scalar [32]byte

// FromUint64 returns the scalar for a small non-negative integer. The result
// is canonical in every supported field.
func FromUint64(v uint64) Scalar {
	var s Scalar
	binary.BigEndian.PutUint64(s[24:], v)
	return s
}

// IsZero reports whether s is the zero element.
func (s Scalar) IsZero() bool {
	return s == Scalar{}
}

// Uint64 returns the low 64 bits of s and whether s fits in them.
func (s Scalar) Uint64() (uint64, bool) {
	for _, b := range s[:24] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(s[24:]), true
}

func (s Scalar) String() string {
	return hex.EncodeToString(s[:])
}

// Field is a prime field together with its content hash.
type Field interface {
	// Name identifies the field, e.g. "bls12-381".
	Name() string
	Modulus() *big.Int
	HashParams() HashParams

	FromBigInt(v *big.Int) Scalar
	Reduce(b []byte) Scalar
	BigInt(a Scalar) *big.Int

	Add(a, b Scalar) Scalar
	Sub(a, b Scalar) Scalar
	Mul(a, b Scalar) Scalar
	// Div returns a/b and false when b is zero.
	Div(a, b Scalar) (Scalar, bool)

	// Hash absorbs elems into a sponge and squeezes one element. Inputs of
	// different lengths never share a sponge state.
	Hash(elems ...Scalar) Scalar
}

// Supported field names.
const (
	BLS12_381 = "bls12-381"
	BN254     = "bn254"
)

// ErrUnknownField is returned by New for an unsupported field name.
var ErrUnknownField = errors.New("field: unknown field")

// HashParams configures the Poseidon-style permutation behind Field.Hash.
type HashParams struct {
	Width         int    `toml:"width" json:"width"`
	FullRounds    int    `toml:"full-rounds" json:"full-rounds"`
	PartialRounds int    `toml:"partial-rounds" json:"partial-rounds"`
	Seed          string `toml:"seed" json:"seed"`
}

// DefaultHashParams are the parameters used when none are configured.
var DefaultHashParams = HashParams{
	Width:         5,
	FullRounds:    8,
	PartialRounds: 56,
	Seed:          "lurk-poseidon-v1",
}

// Validate checks that p describes a usable permutation.
func (p HashParams) Validate() error {
	switch {
	case p.Width < 2:
		return fmt.Errorf("field: hash width %d must be at least 2", p.Width)
	case p.FullRounds < 2 || p.FullRounds%2 != 0:
		return fmt.Errorf("field: full rounds %d must be even and at least 2", p.FullRounds)
	case p.PartialRounds < 0:
		return fmt.Errorf("field: partial rounds %d must not be negative", p.PartialRounds)
	case p.Seed == "":
		return errors.New("field: hash seed must not be empty")
	}
	return nil
}

var constructors = map[string]func(HashParams) Field{
	BLS12_381: newBLS12381,
	BN254:     newBN254,
}

// New returns the named field using the given hash parameters.
func New(name string, params HashParams) (Field, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return ctor(params), nil
}

// Default returns BLS12-381 with DefaultHashParams.
func Default() Field {
	return newBLS12381(DefaultHashParams)
}

// Names lists the supported field names in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
