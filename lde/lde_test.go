package lde

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"

	"github.com/starkforge/stark/algebra"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, []fr.Element) {
	t.Helper()
	var one fr.Element
	one.SetOne()
	traceBases := algebra.NewBases(3, one)

	d, err := algebra.NewEvaluationDomain(8, 4)
	qt.Assert(t, err, qt.IsNil)
	offsets := make([]fr.Element, 4)
	for i := range offsets {
		offsets[i] = d.CosetOffset(algebra.BitReverse(uint64(i), 2))
	}

	m := NewManager(cfg, traceBases, offsets)
	column := make([]fr.Element, 8)
	for i := range column {
		column[i].SetRandom()
	}
	qt.Assert(t, m.AddEvaluation(column), qt.IsNil)
	return m, offsets
}

func TestEvalOnCosetMatchesDirectEvaluation(t *testing.T) {
	m, offsets := newTestManager(t, Config{})
	evals, err := m.EvalOnCoset(1)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, evals, qt.HasLen, 1)

	coeffs := m.Coefficients(0)
	b := algebra.NewBases(3, offsets[1])
	for o := uint64(0); o < 8; o++ {
		x := b.ElementAt(0, o)
		want := algebra.EvalAt(coeffs, x)
		qt.Assert(t, evals[0][o].Equal(&want), qt.IsTrue)
	}
}

func TestCachedEvaluationsAreReused(t *testing.T) {
	m, _ := newTestManager(t, Config{StoreFullLDE: true})
	first, err := m.EvalOnCoset(2)
	qt.Assert(t, err, qt.IsNil)
	second, err := m.EvalOnCoset(2)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, &first[0][0] == &second[0][0], qt.IsTrue)
}

func TestEvalAtPoints(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	var p fr.Element
	p.SetUint64(12345)
	got, err := m.EvalAtPoints(0, []fr.Element{p})
	qt.Assert(t, err, qt.IsNil)
	want := algebra.EvalAt(m.Coefficients(0), p)
	qt.Assert(t, got[0].Equal(&want), qt.IsTrue)
}

func TestRangeErrors(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	_, err := m.EvalOnCoset(9)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = m.EvalAtPoints(3, nil)
	qt.Assert(t, err, qt.IsNotNil)
	err = m.AddEvaluation(make([]fr.Element, 4))
	qt.Assert(t, err, qt.IsNotNil)
}

func TestEvaluationDegree(t *testing.T) {
	var one fr.Element
	one.SetOne()
	traceBases := algebra.NewBases(3, one)
	m := NewManager(Config{}, traceBases, []fr.Element{one})

	// A constant column interpolates to degree 0.
	column := make([]fr.Element, 8)
	for i := range column {
		column[i].SetUint64(42)
	}
	qt.Assert(t, m.AddEvaluation(column), qt.IsNil)
	deg, err := m.EvaluationDegree(0)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, deg, qt.Equals, 0)
}
