package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// breakComposition splits a polynomial h of degree < n*2^logBreaks, given by
// its bit-reversed evaluation over bases, into 2^logBreaks polynomials of
// degree < n with h(x) = sum_k x^k h_k(x^nBreaks). Returned are the h_k
// bit-reversed evaluations over the bases' logBreaks-th layer, and that
// layer's bases.
func breakComposition(evaluation []fr.Element, logBreaks int,
	bases *algebra.Bases) ([][]fr.Element, *algebra.Bases, error) {
	if uint64(len(evaluation)) != bases.Size(0) {
		return nil, nil, fmt.Errorf("evaluation size %d does not match the domain size %d",
			len(evaluation), bases.Size(0))
	}
	nBreaks := util.Pow2(logBreaks)
	coeffs := algebra.InterpolateBitReversed(evaluation, bases.Offset(0))
	brokenBases := bases.FromLayer(logBreaks)
	columnLength := bases.Size(logBreaks)

	columns := make([][]fr.Element, nBreaks)
	sub := make([]fr.Element, columnLength)
	for k := uint64(0); k < nBreaks; k++ {
		for j := uint64(0); j < columnLength; j++ {
			sub[j] = coeffs[j*nBreaks+k]
		}
		columns[k] = make([]fr.Element, columnLength)
		algebra.EvalOnCosetBitReversed(sub, brokenBases.Offset(0), columns[k])
	}
	return columns, brokenBases, nil
}

// evalFromSamples recombines h(point) from the broken columns' values at
// point^nBreaks: h(x) = sum_k x^k h_k(x^nBreaks).
func evalFromSamples(samples []fr.Element, point fr.Element) fr.Element {
	var acc fr.Element
	for k := len(samples) - 1; k >= 0; k-- {
		acc.Mul(&acc, &point)
		acc.Add(&acc, &samples[k])
	}
	return acc
}

// proveOods draws the out-of-domain point, sends the mask values of the
// original oracle and the broken columns' values there, and returns the
// boundary constraints those values induce. The constraint order fixes the
// boundary AIR's random-coefficient assignment, so the verifier builds the
// exact same list.
func proveOods(channel *transcript.Prover, oracle *CompositionOracleProver,
	brokenTrace *CommittedTraceProver) ([]air.BoundaryConstraint, error) {
	channel.EnterScope("OODS values")
	defer channel.ExitScope()

	point := channel.GetRandomFieldElementFromVerifier()
	traceGen := oracle.domain.TraceGenerator()
	mask := oracle.Mask()
	nBreaks := brokenTrace.NumColumns()
	elements := make([]fr.Element, uint64(len(mask))+nBreaks)

	if err := oracle.EvalMaskAtPoint(point, elements[:len(mask)]); err != nil {
		return nil, err
	}
	constraints := make([]air.BoundaryConstraint, 0, len(elements))
	for i, m := range mask {
		g := algebra.Pow(traceGen, m.RowOffset)
		var x fr.Element
		x.Mul(&point, &g)
		constraints = append(constraints, air.BoundaryConstraint{
			Column: m.Column, PointX: x, PointY: elements[i],
		})
	}

	pointTransformed := algebra.Pow(point, nBreaks)
	brokenMask := make([]air.MaskItem, nBreaks)
	for k := uint64(0); k < nBreaks; k++ {
		brokenMask[k] = air.MaskItem{RowOffset: 0, Column: k}
	}
	if err := brokenTrace.EvalMaskAtPoint(brokenMask, pointTransformed, elements[len(mask):]); err != nil {
		return nil, err
	}
	width := oracle.Width()
	for k := uint64(0); k < nBreaks; k++ {
		constraints = append(constraints, air.BoundaryConstraint{
			Column: width + k, PointX: pointTransformed, PointY: elements[uint64(len(mask))+k],
		})
	}

	// One span absorption keeps a recursive verifier's transcript cheap;
	// otherwise each value is mixed in on its own.
	if channel.VerifierFriendly() {
		if err := channel.SendFieldElementSpan(elements); err != nil {
			return nil, err
		}
	} else {
		for i := range elements {
			channel.SendFieldElement(elements[i])
		}
	}
	return constraints, nil
}

// verifyOods receives the out-of-domain values and checks that the
// composition polynomial evaluated from the mask values matches the value
// recombined from the broken columns. On success it returns the same
// boundary constraints the prover committed to.
func verifyOods(channel *transcript.Verifier,
	oracle *CompositionOracleVerifier) ([]air.BoundaryConstraint, error) {
	channel.EnterScope("OODS values")
	defer channel.ExitScope()

	point := channel.GetRandomFieldElement()
	traceGen := oracle.domain.TraceGenerator()
	mask := oracle.Mask()
	nBreaks := oracle.ConstraintsDegreeBound()

	var elements []fr.Element
	if channel.VerifierFriendly() {
		var err error
		elements, err = channel.ReceiveFieldElementSpan(len(mask) + int(nBreaks))
		if err != nil {
			return nil, fmt.Errorf("failed to receive the OODS values: %w", err)
		}
	} else {
		elements = make([]fr.Element, uint64(len(mask))+nBreaks)
		for i := range elements {
			value, err := channel.ReceiveFieldElement()
			if err != nil {
				return nil, fmt.Errorf("failed to receive OODS value %d: %w", i, err)
			}
			elements[i] = value
		}
	}

	constraints := make([]air.BoundaryConstraint, 0, len(elements))
	for i, m := range mask {
		g := algebra.Pow(traceGen, m.RowOffset)
		var x fr.Element
		x.Mul(&point, &g)
		constraints = append(constraints, air.BoundaryConstraint{
			Column: m.Column, PointX: x, PointY: elements[i],
		})
	}
	traceSide := oracle.CompositionPolynomial().EvalAtPoint(point, elements[:len(mask)])

	pointTransformed := algebra.Pow(point, nBreaks)
	width := oracle.Width()
	for k := uint64(0); k < nBreaks; k++ {
		constraints = append(constraints, air.BoundaryConstraint{
			Column: width + k, PointX: pointTransformed, PointY: elements[uint64(len(mask))+k],
		})
	}
	brokenSide := evalFromSamples(elements[len(mask):], point)

	if !traceSide.Equal(&brokenSide) {
		return nil, fmt.Errorf("%w: out of domain sampling verification failed", ErrProofRejected)
	}
	return constraints, nil
}
