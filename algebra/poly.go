package algebra

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
)

// fftDomains caches fft.Domain instances per size; domain construction
// precomputes twiddles and is worth sharing across the whole proof session.
var fftDomains sync.Map // uint64 -> *fft.Domain

func fftDomain(size uint64) *fft.Domain {
	if d, ok := fftDomains.Load(size); ok {
		return d.(*fft.Domain)
	}
	d := fft.NewDomain(size)
	actual, _ := fftDomains.LoadOrStore(size, d)
	return actual.(*fft.Domain)
}

// GroupGenerator returns the canonical generator of the multiplicative
// subgroup of the given power-of-two size. Generators of nested sizes are
// consistent: GroupGenerator(n/2) == GroupGenerator(n)^2.
func GroupGenerator(size uint64) fr.Element {
	return fftDomain(size).Generator
}

// scaleByPowers writes dst[i] = src[i] * s^i.
func scaleByPowers(dst, src []fr.Element, s fr.Element) {
	var p fr.Element
	p.SetOne()
	for i := range src {
		dst[i].Mul(&src[i], &p)
		p.Mul(&p, &s)
	}
}

// InterpolateBitReversed returns the natural-order coefficients of the
// polynomial whose evaluations over the coset shift*<g> are given in
// bit-reversed order. The input slice is not modified.
func InterpolateBitReversed(evals []fr.Element, shift fr.Element) []fr.Element {
	coeffs := make([]fr.Element, len(evals))
	copy(coeffs, evals)
	d := fftDomain(uint64(len(evals)))
	d.FFTInverse(coeffs, fft.DIT)
	if !shift.IsOne() {
		var shiftInv fr.Element
		shiftInv.Inverse(&shift)
		scaleByPowers(coeffs, coeffs, shiftInv)
	}
	return coeffs
}

// EvalOnCosetBitReversed writes into out the evaluations of the polynomial
// with the given natural-order coefficients over the coset shift*<g>, in
// bit-reversed order. len(out) must be a power of two >= len(coeffs).
func EvalOnCosetBitReversed(coeffs []fr.Element, shift fr.Element, out []fr.Element) {
	n := copy(out, coeffs)
	for i := n; i < len(out); i++ {
		out[i].SetZero()
	}
	if !shift.IsOne() {
		scaleByPowers(out, out, shift)
	}
	d := fftDomain(uint64(len(out)))
	d.FFT(out, fft.DIF)
}

// EvalAt evaluates the polynomial with natural-order coefficients at point,
// by Horner's rule.
func EvalAt(coeffs []fr.Element, point fr.Element) fr.Element {
	var acc fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc.Mul(&acc, &point)
		acc.Add(&acc, &coeffs[i])
	}
	return acc
}

// Degree returns the degree of the polynomial with the given natural-order
// coefficients, or -1 for the zero polynomial.
func Degree(coeffs []fr.Element) int {
	for i := len(coeffs) - 1; i >= 0; i-- {
		if !coeffs[i].IsZero() {
			return i
		}
	}
	return -1
}

// Pow returns base^exp.
func Pow(base fr.Element, exp uint64) fr.Element {
	var out fr.Element
	out.Exp(base, new(big.Int).SetUint64(exp))
	return out
}
