package field

import (
	"crypto/sha256"
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Poseidon-style permutation
//
// Round structure: FullRounds/2 full rounds, PartialRounds partial rounds,
// FullRounds/2 full rounds. Each round adds constants, applies x^5 (to every
// lane in full rounds, to lane 0 in partial rounds) and multiplies by a
// Cauchy MDS matrix.
//
// Round constants are SHA-256(seed || 0 || field || 0 || label || round ||
// lane) reduced into the field, so every (field, params) pair yields one
// fixed permutation.
// ---------------------------------------------------------------------------

type permutation[E any, P element[E]] struct {
	width   int
	full    int
	partial int
	rc      [][]E
	mds     [][]E
}

func newPermutation[E any, P element[E]](fieldName string, params HashParams) *permutation[E, P] {
	p := &permutation[E, P]{
		width:   params.Width,
		full:    params.FullRounds,
		partial: params.PartialRounds,
	}

	rounds := p.full + p.partial
	p.rc = make([][]E, rounds)
	for r := range rounds {
		p.rc[r] = make([]E, p.width)
		for i := range p.width {
			d := deriveConstant(params.Seed, fieldName, "rc", r, i)
			P(&p.rc[r][i]).SetBytes(d[:])
		}
	}

	// Cauchy matrix 1/(x_i + y_j) with x_i = i and y_j = width + j.
	p.mds = make([][]E, p.width)
	for i := range p.width {
		p.mds[i] = make([]E, p.width)
		for j := range p.width {
			P(&p.mds[i][j]).SetUint64(uint64(i + p.width + j))
			P(&p.mds[i][j]).Inverse(&p.mds[i][j])
		}
	}
	return p
}

func deriveConstant(seed, fieldName, label string, round, lane int) [32]byte {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write([]byte{0})
	h.Write([]byte(fieldName))
	h.Write([]byte{0})
	h.Write([]byte(label))
	var idx [8]byte
	binary.BigEndian.PutUint32(idx[:4], uint32(round))
	binary.BigEndian.PutUint32(idx[4:], uint32(lane))
	h.Write(idx[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (p *permutation[E, P]) permute(state []E) {
	half := p.full / 2
	rounds := p.full + p.partial
	for r := range rounds {
		for i := range state {
			P(&state[i]).Add(&state[i], &p.rc[r][i])
		}
		if r < half || r >= half+p.partial {
			for i := range state {
				sbox[E, P](&state[i])
			}
		} else {
			sbox[E, P](&state[0])
		}
		p.mix(state)
	}
}

// sbox raises x to the fifth power in place.
func sbox[E any, P element[E]](x *E) {
	var t E
	P(&t).Square(x)
	P(&t).Square(&t)
	P(x).Mul(x, &t)
}

func (p *permutation[E, P]) mix(state []E) {
	out := make([]E, p.width)
	var t E
	for i := range p.width {
		for j := range p.width {
			P(&t).Mul(&p.mds[i][j], &state[j])
			P(&out[i]).Add(&out[i], &t)
		}
	}
	copy(state, out)
}
