package algebra

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"
)

func randomPoly(n int) []fr.Element {
	coeffs := make([]fr.Element, n)
	for i := range coeffs {
		coeffs[i].SetRandom()
	}
	return coeffs
}

func TestBitReverse(t *testing.T) {
	qt.Assert(t, BitReverse(0, 3), qt.Equals, uint64(0))
	qt.Assert(t, BitReverse(1, 3), qt.Equals, uint64(4))
	qt.Assert(t, BitReverse(6, 3), qt.Equals, uint64(3))
	qt.Assert(t, BitReverse(5, 0), qt.Equals, uint64(0))
	for i := uint64(0); i < 16; i++ {
		qt.Assert(t, BitReverse(BitReverse(i, 4), 4), qt.Equals, i)
	}
}

func TestBasesAdjacentPairsAreNegations(t *testing.T) {
	var offset fr.Element
	offset.SetUint64(3)
	b := NewBases(5, offset)
	for i := uint64(0); i < b.Size(0); i += 2 {
		x := b.ElementAt(0, i)
		y := b.ElementAt(0, i+1)
		var neg fr.Element
		neg.Neg(&x)
		qt.Assert(t, y.Equal(&neg), qt.IsTrue)
	}
}

func TestBasesSquaringTransform(t *testing.T) {
	var offset fr.Element
	offset.SetUint64(7)
	b := NewBases(4, offset)
	for layer := 0; layer < b.NumLayers()-1; layer++ {
		for i := uint64(0); i < b.Size(layer+1); i++ {
			x := b.ElementAt(layer, 2*i)
			want := b.ElementAt(layer+1, i)
			got := ApplyBasisTransform(x)
			qt.Assert(t, got.Equal(&want), qt.IsTrue)
		}
	}
}

func TestSplitToCosets(t *testing.T) {
	var offset fr.Element
	offset.SetUint64(11)
	b := NewBases(6, offset)
	cosetBases, offsets := b.SplitToCosets(2)
	qt.Assert(t, offsets, qt.HasLen, 4)
	cosetSize := cosetBases.Size(0)
	for j := uint64(0); j < 4; j++ {
		for o := uint64(0); o < cosetSize; o++ {
			want := b.ElementAt(0, j*cosetSize+o)
			// Chunk j is offsets[j] * <cosetGen> in bit-reversed order.
			gen := cosetBases.Generator(0)
			p := Pow(gen, BitReverse(o, cosetBases.LogSize(0)))
			p.Mul(&p, &offsets[j])
			qt.Assert(t, p.Equal(&want), qt.IsTrue)
		}
	}
}

func TestInterpolateEvalRoundTrip(t *testing.T) {
	const logN = 4
	var shift fr.Element
	shift.SetUint64(9)
	coeffs := randomPoly(1 << logN)
	evals := make([]fr.Element, 1<<logN)
	EvalOnCosetBitReversed(coeffs, shift, evals)

	// Spot-check against direct evaluation over the bit-reversed coset.
	b := NewBases(logN, shift)
	for _, idx := range []uint64{0, 1, 7, 15} {
		x := b.ElementAt(0, idx)
		want := EvalAt(coeffs, x)
		qt.Assert(t, evals[idx].Equal(&want), qt.IsTrue)
	}

	back := InterpolateBitReversed(evals, shift)
	for i := range coeffs {
		qt.Assert(t, back[i].Equal(&coeffs[i]), qt.IsTrue)
	}
}

func TestEvalOnCosetZeroPadsCoefficients(t *testing.T) {
	coeffs := randomPoly(4)
	var shift fr.Element
	shift.SetOne()
	evals := make([]fr.Element, 16)
	EvalOnCosetBitReversed(coeffs, shift, evals)
	back := InterpolateBitReversed(evals, shift)
	qt.Assert(t, Degree(back), qt.Equals, Degree(coeffs))
}

func TestDegree(t *testing.T) {
	var zero, one fr.Element
	one.SetOne()
	qt.Assert(t, Degree([]fr.Element{zero, zero}), qt.Equals, -1)
	qt.Assert(t, Degree([]fr.Element{one, zero}), qt.Equals, 0)
	qt.Assert(t, Degree([]fr.Element{zero, one, zero}), qt.Equals, 1)
}

func TestEvaluationDomain(t *testing.T) {
	d, err := NewEvaluationDomain(8, 4)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, d.Size(), qt.Equals, uint64(32))

	// The trace generator has exact order traceLength.
	g := d.TraceGenerator()
	p := Pow(g, 4)
	var one fr.Element
	one.SetOne()
	qt.Assert(t, p.Equal(&one), qt.IsFalse)
	p = Pow(g, 8)
	qt.Assert(t, p.Equal(&one), qt.IsTrue)

	// ElementByIndex matches the full-domain bases under the split
	// convention: global index q = c*traceLength + o addresses coset
	// bitrev(c) at bit-reversed offset o.
	for q := uint64(0); q < d.Size(); q++ {
		c, o := q/8, q%8
		want := d.Bases().ElementAt(0, q)
		got := d.ElementByIndex(BitReverse(c, d.LogNumCosets()), o)
		qt.Assert(t, got.Equal(&want), qt.IsTrue)
	}

	_, err = NewEvaluationDomain(7, 4)
	qt.Assert(t, err, qt.IsNotNil)
}
