// Package fibonacci implements an AIR for the claim "there is a Fibonacci
// sequence 1, w, 1+w, ... whose claimIndex-th element is the claimed value".
// The trace has two columns x, y with x_0 = 1, y_0 = w and
// x_{i+1} = y_i, y_{i+1} = x_i + y_i.
package fibonacci

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/util"
)

const (
	xColumn = iota
	yColumn
	nColumns
)

// Neighbor order, fixed by the mask.
const (
	xRow0 = iota
	xRow1
	yRow0
	yRow1
	nNeighbors
)

// Constraint order, fixing the random-coefficient assignment.
const (
	stateCopyConstraint = iota
	stepConstraint
	initXConstraint
	verifyResConstraint
	nConstraints
)

// The constraint quotients are all degree-one in the trace columns.
const constraintDegree = 1

// Air proves one Fibonacci claim over a power-of-two trace.
type Air struct {
	traceLength  uint64
	claimIndex   uint64
	claimedValue fr.Element
}

func New(traceLength, claimIndex uint64, claimedValue fr.Element) (*Air, error) {
	if !util.IsPowerOfTwo(traceLength) {
		return nil, fmt.Errorf("trace length %d is not a power of two", traceLength)
	}
	if claimIndex >= traceLength {
		return nil, fmt.Errorf("claim index %d must be smaller than the trace length %d", claimIndex, traceLength)
	}
	return &Air{traceLength: traceLength, claimIndex: claimIndex, claimedValue: claimedValue}, nil
}

func (a *Air) TraceLength() uint64 { return a.traceLength }

func (a *Air) NumColumns() uint64 { return nColumns }

func (a *Air) Mask() []air.MaskItem {
	return []air.MaskItem{
		{RowOffset: 0, Column: xColumn},
		{RowOffset: 1, Column: xColumn},
		{RowOffset: 0, Column: yColumn},
		{RowOffset: 1, Column: yColumn},
	}
}

func (a *Air) NumRandomCoefficients() uint64 { return nConstraints }

func (a *Air) CompositionDegreeBound() uint64 { return constraintDegree * a.traceLength }

func (a *Air) InteractionParams() *air.InteractionParams { return nil }

func (a *Air) WithInteractionElements([]fr.Element) (air.AIR, error) {
	return nil, fmt.Errorf("fibonacci AIR has no interaction phase")
}

func (a *Air) CreateCompositionPolynomial(traceGenerator fr.Element,
	coefficients []fr.Element) (air.CompositionPolynomial, error) {
	if len(coefficients) != nConstraints {
		return nil, fmt.Errorf("expected %d random coefficients, got %d", nConstraints, len(coefficients))
	}
	e := &evaluator{
		air:          a,
		coefficients: append([]fr.Element{}, coefficients...),
		genToLastRow: algebra.Pow(traceGenerator, a.traceLength-1),
		genToClaim:   algebra.Pow(traceGenerator, a.claimIndex),
	}
	return air.NewComposition(e, traceGenerator, a.traceLength, a.Mask(), a.CompositionDegreeBound())
}

// GetTrace generates the two-column trace from the witness w.
func GetTrace(witness fr.Element, traceLength, claimIndex uint64) ([][]fr.Element, error) {
	if !util.IsPowerOfTwo(traceLength) {
		return nil, fmt.Errorf("trace length %d is not a power of two", traceLength)
	}
	if claimIndex >= traceLength {
		return nil, fmt.Errorf("claim index %d must be smaller than the trace length %d", claimIndex, traceLength)
	}
	columns := make([][]fr.Element, nColumns)
	for c := range columns {
		columns[c] = make([]fr.Element, 0, traceLength)
	}
	var x, y fr.Element
	x.SetOne()
	y = witness
	for i := uint64(0); i < traceLength; i++ {
		columns[xColumn] = append(columns[xColumn], x)
		columns[yColumn] = append(columns[yColumn], y)
		x, y = y, x
		y.Add(&y, &x)
	}
	return columns, nil
}

// PublicInputFromPrivateInput computes the claimed Fibonacci element for a
// witness w.
func PublicInputFromPrivateInput(witness fr.Element, claimIndex uint64) fr.Element {
	var x, y fr.Element
	x.SetOne()
	y = witness
	for i := uint64(0); i < claimIndex; i++ {
		x, y = y, x
		y.Add(&y, &x)
	}
	return x
}

type evaluator struct {
	air          *Air
	coefficients []fr.Element
	genToLastRow fr.Element
	genToClaim   fr.Element
}

func (e *evaluator) EvalFraction(point fr.Element, neighbors []fr.Element) (fr.Element, fr.Element) {
	// domain0 = point^traceLength - 1.
	domain0 := algebra.Pow(point, e.air.traceLength)
	var one fr.Element
	one.SetOne()
	domain0.Sub(&domain0, &one)
	// domain1 = point - gen^(traceLength - 1).
	var domain1 fr.Element
	domain1.Sub(&point, &e.genToLastRow)
	// domain2 = point - 1.
	var domain2 fr.Element
	domain2.Sub(&point, &one)
	// domain3 = point - gen^claimIndex.
	var domain3 fr.Element
	domain3.Sub(&point, &e.genToClaim)

	// state_copy: x_{i+1} - y_i, on every row but the last.
	var stateCopy fr.Element
	stateCopy.Sub(&neighbors[xRow1], &neighbors[yRow0])
	// step: y_{i+1} - (x_i + y_i), on every row but the last.
	var step fr.Element
	step.Add(&neighbors[xRow0], &neighbors[yRow0])
	step.Sub(&neighbors[yRow1], &step)
	// init_x: x_0 - 1, at the first row.
	var initX fr.Element
	initX.Sub(&neighbors[xRow0], &one)
	// verify_res: x_claimIndex - claimed, at the claim row.
	var verifyRes fr.Element
	verifyRes.Sub(&neighbors[xRow0], &e.air.claimedValue)

	// Sum of the constraints with denominator domain0, with the last row
	// excluded via the numerator domain1.
	var sum0, term fr.Element
	sum0.Mul(&e.coefficients[stateCopyConstraint], &stateCopy)
	term.Mul(&e.coefficients[stepConstraint], &step)
	sum0.Add(&sum0, &term)
	sum0.Mul(&sum0, &domain1)

	// Accumulate the three fractions over a common denominator.
	num := sum0
	den := domain0

	term.Mul(&e.coefficients[initXConstraint], &initX)
	term.Mul(&term, &den)
	num.Mul(&num, &domain2)
	num.Add(&num, &term)
	den.Mul(&den, &domain2)

	term.Mul(&e.coefficients[verifyResConstraint], &verifyRes)
	term.Mul(&term, &den)
	num.Mul(&num, &domain3)
	num.Add(&num, &term)
	den.Mul(&den, &domain3)

	return num, den
}
