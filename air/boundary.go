package air

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// BoundaryConstraint asserts that a column's interpolating polynomial
// evaluates to PointY at PointX.
type BoundaryConstraint struct {
	Column uint64
	PointX fr.Element
	PointY fr.Element
}

type boundaryGroup struct {
	pointX      fr.Element
	constraints []groupedConstraint
}

type groupedConstraint struct {
	coeffIndex uint64
	column     uint64
	pointY     fr.Element
}

// BoundaryAir is a synthetic AIR whose only constraints are boundary
// constraints, grouped by evaluation point so each point costs one field
// inversion. Its composition polynomial has degree bound equal to the trace
// length, which lets FRI run on it directly regardless of how many real
// traces and columns fed the boundary values.
type BoundaryAir struct {
	traceLength  uint64
	nColumns     uint64
	mask         []MaskItem
	groups       []boundaryGroup
	nConstraints uint64
}

// NewBoundaryAir builds the boundary AIR from the collected constraints.
// Constraint order fixes the random-coefficient assignment, so both sides
// must supply the same list.
func NewBoundaryAir(traceLength, nColumns uint64, constraints []BoundaryConstraint) (*BoundaryAir, error) {
	if len(constraints) == 0 {
		return nil, fmt.Errorf("boundary AIR needs at least one constraint")
	}
	mask := make([]MaskItem, nColumns)
	for c := uint64(0); c < nColumns; c++ {
		mask[c] = MaskItem{RowOffset: 0, Column: c}
	}
	var groups []boundaryGroup
	groupIndex := make(map[fr.Element]int)
	for i, bc := range constraints {
		if bc.Column >= nColumns {
			return nil, fmt.Errorf("boundary constraint column %d out of range (%d columns)", bc.Column, nColumns)
		}
		g, ok := groupIndex[bc.PointX]
		if !ok {
			g = len(groups)
			groupIndex[bc.PointX] = g
			groups = append(groups, boundaryGroup{pointX: bc.PointX})
		}
		groups[g].constraints = append(groups[g].constraints, groupedConstraint{
			coeffIndex: uint64(i),
			column:     bc.Column,
			pointY:     bc.PointY,
		})
	}
	return &BoundaryAir{
		traceLength:  traceLength,
		nColumns:     nColumns,
		mask:         mask,
		groups:       groups,
		nConstraints: uint64(len(constraints)),
	}, nil
}

func (a *BoundaryAir) TraceLength() uint64 { return a.traceLength }

func (a *BoundaryAir) NumColumns() uint64 { return a.nColumns }

func (a *BoundaryAir) Mask() []MaskItem { return a.mask }

func (a *BoundaryAir) NumRandomCoefficients() uint64 { return a.nConstraints }

func (a *BoundaryAir) CompositionDegreeBound() uint64 { return a.traceLength }

func (a *BoundaryAir) InteractionParams() *InteractionParams { return nil }

func (a *BoundaryAir) WithInteractionElements([]fr.Element) (AIR, error) {
	return nil, fmt.Errorf("boundary AIR has no interaction phase")
}

func (a *BoundaryAir) CreateCompositionPolynomial(traceGenerator fr.Element,
	coefficients []fr.Element) (CompositionPolynomial, error) {
	if uint64(len(coefficients)) != a.nConstraints {
		return nil, fmt.Errorf("expected %d random coefficients, got %d", a.nConstraints, len(coefficients))
	}
	return NewComposition(&boundaryEvaluator{air: a, coefficients: coefficients},
		traceGenerator, a.traceLength, a.mask, a.traceLength)
}

type boundaryEvaluator struct {
	air          *BoundaryAir
	coefficients []fr.Element
}

// EvalFraction accumulates sum_groups(sum_i coeff_i*(column_i(x)-y_i)) /
// (x - point_x) over the common-denominator fraction field.
func (e *boundaryEvaluator) EvalFraction(point fr.Element, neighbors []fr.Element) (fr.Element, fr.Element) {
	var num fr.Element
	var den fr.Element
	den.SetOne()
	for g := range e.air.groups {
		group := &e.air.groups[g]
		var inner, term fr.Element
		for _, c := range group.constraints {
			term.Sub(&neighbors[c.column], &c.pointY)
			term.Mul(&term, &e.coefficients[c.coeffIndex])
			inner.Add(&inner, &term)
		}
		var groupDen fr.Element
		groupDen.Sub(&point, &group.pointX)
		num.Mul(&num, &groupDen)
		inner.Mul(&inner, &den)
		num.Add(&num, &inner)
		den.Mul(&den, &groupDen)
	}
	return num, den
}
