package field

import (
	"math/big"

	blsfr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	bnfr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// element is the method set shared by gnark-crypto's fr.Element types.
type element[E any] interface {
	*E
	SetUint64(v uint64) *E
	SetBytes(b []byte) *E
	SetBigInt(v *big.Int) *E
	Bytes() [32]byte
	BigInt(res *big.Int) *big.Int
	Add(x, y *E) *E
	Sub(x, y *E) *E
	Mul(x, y *E) *E
	Square(x *E) *E
	Inverse(x *E) *E
	IsZero() bool
}

// gnarkField adapts a gnark-crypto scalar field to Field.
type gnarkField[E any, P element[E]] struct {
	name    string
	modulus *big.Int
	params  HashParams
	perm    *permutation[E, P]
}

func newBLS12381(params HashParams) Field {
	return newGnarkField[blsfr.Element, *blsfr.Element](BLS12_381, blsfr.Modulus(), params)
}

func newBN254(params HashParams) Field {
	return newGnarkField[bnfr.Element, *bnfr.Element](BN254, bnfr.Modulus(), params)
}

func newGnarkField[E any, P element[E]](name string, modulus *big.Int, params HashParams) *gnarkField[E, P] {
	return &gnarkField[E, P]{
		name:    name,
		modulus: modulus,
		params:  params,
		perm:    newPermutation[E, P](name, params),
	}
}

func (f *gnarkField[E, P]) Name() string           { return f.name }
func (f *gnarkField[E, P]) HashParams() HashParams { return f.params }

func (f *gnarkField[E, P]) Modulus() *big.Int {
	return new(big.Int).Set(f.modulus)
}

func (f *gnarkField[E, P]) load(s Scalar) E {
	var e E
	P(&e).SetBytes(s[:])
	return e
}

func (f *gnarkField[E, P]) scalar(e *E) Scalar {
	return Scalar(P(e).Bytes())
}

func (f *gnarkField[E, P]) FromBigInt(v *big.Int) Scalar {
	var e E
	P(&e).SetBigInt(v)
	return f.scalar(&e)
}

func (f *gnarkField[E, P]) Reduce(b []byte) Scalar {
	var e E
	P(&e).SetBytes(b)
	return f.scalar(&e)
}

func (f *gnarkField[E, P]) BigInt(a Scalar) *big.Int {
	e := f.load(a)
	return P(&e).BigInt(new(big.Int))
}

func (f *gnarkField[E, P]) Add(a, b Scalar) Scalar {
	x, y := f.load(a), f.load(b)
	P(&x).Add(&x, &y)
	return f.scalar(&x)
}

func (f *gnarkField[E, P]) Sub(a, b Scalar) Scalar {
	x, y := f.load(a), f.load(b)
	P(&x).Sub(&x, &y)
	return f.scalar(&x)
}

func (f *gnarkField[E, P]) Mul(a, b Scalar) Scalar {
	x, y := f.load(a), f.load(b)
	P(&x).Mul(&x, &y)
	return f.scalar(&x)
}

func (f *gnarkField[E, P]) Div(a, b Scalar) (Scalar, bool) {
	y := f.load(b)
	if P(&y).IsZero() {
		return Scalar{}, false
	}
	x := f.load(a)
	P(&y).Inverse(&y)
	P(&x).Mul(&x, &y)
	return f.scalar(&x), true
}

func (f *gnarkField[E, P]) Hash(elems ...Scalar) Scalar {
	width := f.params.Width
	rate := width - 1
	state := make([]E, width)
	P(&state[0]).SetUint64(uint64(len(elems)))

	if len(elems) == 0 {
		f.perm.permute(state)
		return f.scalar(&state[1])
	}
	for off := 0; off < len(elems); off += rate {
		for i := 0; i < rate && off+i < len(elems); i++ {
			e := f.load(elems[off+i])
			P(&state[1+i]).Add(&state[1+i], &e)
		}
		f.perm.permute(state)
	}
	return f.scalar(&state[1])
}
