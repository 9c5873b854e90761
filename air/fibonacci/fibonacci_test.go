package fibonacci

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
)

// evalCompositionCoeffs mirrors the prover's coset evaluation of the
// composition polynomial over nCosets cosets and interpolates the result.
func evalCompositionCoeffs(t *testing.T, a air.AIR, cp air.CompositionPolynomial,
	trace [][]fr.Element, nCosets uint64) []fr.Element {
	t.Helper()
	n := a.TraceLength()
	d, err := algebra.NewEvaluationDomain(n, nCosets)
	qt.Assert(t, err, qt.IsNil)

	var one fr.Element
	one.SetOne()
	colCoeffs := make([][]fr.Element, len(trace))
	for c := range trace {
		br := make([]fr.Element, n)
		algebra.BitReversedCopy(br, trace[c])
		colCoeffs[c] = algebra.InterpolateBitReversed(br, one)
	}

	out := make([]fr.Element, n*nCosets)
	for c := uint64(0); c < nCosets; c++ {
		offset := d.CosetOffset(algebra.BitReverse(c, d.LogNumCosets()))
		columns := make([][]fr.Element, len(trace))
		for col := range trace {
			br := make([]fr.Element, n)
			algebra.EvalOnCosetBitReversed(colCoeffs[col], offset, br)
			columns[col] = make([]fr.Element, n)
			algebra.BitReversedCopy(columns[col], br)
		}
		qt.Assert(t, cp.EvalOnCosetBitReversedOutput(offset, columns, out[c*n:(c+1)*n], 16), qt.IsNil)
	}
	return algebra.InterpolateBitReversed(out, d.CosetOffset(0))
}

func randomCoefficients(n int) []fr.Element {
	coeffs := make([]fr.Element, n)
	for i := range coeffs {
		coeffs[i].SetUint64(uint64(i)*104729 + 31)
	}
	return coeffs
}

func TestTraceFollowsFibonacciRecurrence(t *testing.T) {
	var w fr.Element
	w.SetUint64(3)
	trace, err := GetTrace(w, 16, 11)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, trace, qt.HasLen, 2)
	qt.Assert(t, trace[0], qt.HasLen, 16)

	var one fr.Element
	one.SetOne()
	qt.Assert(t, trace[0][0].Equal(&one), qt.IsTrue)
	qt.Assert(t, trace[1][0].Equal(&w), qt.IsTrue)
	for i := 0; i < 15; i++ {
		var sum fr.Element
		sum.Add(&trace[0][i], &trace[1][i])
		qt.Assert(t, trace[0][i+1].Equal(&trace[1][i]), qt.IsTrue)
		qt.Assert(t, trace[1][i+1].Equal(&sum), qt.IsTrue)
	}
}

func TestPublicInputMatchesTrace(t *testing.T) {
	var w fr.Element
	w.SetUint64(7)
	const claimIndex = 9
	trace, err := GetTrace(w, 16, claimIndex)
	qt.Assert(t, err, qt.IsNil)
	claimed := PublicInputFromPrivateInput(w, claimIndex)
	qt.Assert(t, trace[0][claimIndex].Equal(&claimed), qt.IsTrue)
}

func TestValidTraceGivesLowDegreeComposition(t *testing.T) {
	const n = 16
	const claimIndex = 11
	var w fr.Element
	w.SetUint64(5)
	trace, err := GetTrace(w, n, claimIndex)
	qt.Assert(t, err, qt.IsNil)
	claimed := PublicInputFromPrivateInput(w, claimIndex)

	a, err := New(n, claimIndex, claimed)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, a.CompositionDegreeBound(), qt.Equals, uint64(n))
	cp, err := a.CreateCompositionPolynomial(algebra.GroupGenerator(n), randomCoefficients(4))
	qt.Assert(t, err, qt.IsNil)

	h := evalCompositionCoeffs(t, a, cp, trace, 2)
	qt.Assert(t, algebra.Degree(h) < n, qt.IsTrue)
}

func TestWrongClaimRaisesCompositionDegree(t *testing.T) {
	const n = 16
	const claimIndex = 11
	var w fr.Element
	w.SetUint64(5)
	trace, err := GetTrace(w, n, claimIndex)
	qt.Assert(t, err, qt.IsNil)
	claimed := PublicInputFromPrivateInput(w, claimIndex)
	var one fr.Element
	one.SetOne()
	claimed.Add(&claimed, &one)

	a, err := New(n, claimIndex, claimed)
	qt.Assert(t, err, qt.IsNil)
	cp, err := a.CreateCompositionPolynomial(algebra.GroupGenerator(n), randomCoefficients(4))
	qt.Assert(t, err, qt.IsNil)

	h := evalCompositionCoeffs(t, a, cp, trace, 2)
	qt.Assert(t, algebra.Degree(h) >= n, qt.IsTrue)
}

func TestBrokenRecurrenceRaisesCompositionDegree(t *testing.T) {
	const n = 16
	const claimIndex = 11
	var w fr.Element
	w.SetUint64(5)
	trace, err := GetTrace(w, n, claimIndex)
	qt.Assert(t, err, qt.IsNil)
	trace[1][4].SetUint64(12345)

	a, err := New(n, claimIndex, PublicInputFromPrivateInput(w, claimIndex))
	qt.Assert(t, err, qt.IsNil)
	cp, err := a.CreateCompositionPolynomial(algebra.GroupGenerator(n), randomCoefficients(4))
	qt.Assert(t, err, qt.IsNil)

	h := evalCompositionCoeffs(t, a, cp, trace, 2)
	qt.Assert(t, algebra.Degree(h) >= n, qt.IsTrue)
}

func TestParameterValidation(t *testing.T) {
	var v fr.Element
	_, err := New(10, 2, v)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = New(8, 8, v)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = GetTrace(v, 8, 9)
	qt.Assert(t, err, qt.IsNotNil)
}
