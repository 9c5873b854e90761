package air

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/taskmanager"
	"github.com/starkforge/stark/util"
)

// ConstraintsEvaluator computes the random linear combination of an AIR's
// constraint quotients at one point, returned as an unreduced fraction so
// that coset evaluation can batch the denominator inversions.
type ConstraintsEvaluator interface {
	EvalFraction(point fr.Element, neighbors []fr.Element) (num, den fr.Element)
}

// Composition turns a ConstraintsEvaluator into a CompositionPolynomial,
// providing the point-wise and the parallel whole-coset evaluation paths.
type Composition struct {
	evaluator   ConstraintsEvaluator
	traceLength uint64
	logTrace    int
	traceGen    fr.Element
	mask        []MaskItem
	degreeBound uint64
}

// NewComposition wires an evaluator to the mask and domain data it is
// evaluated against. degreeBound must be a power-of-two multiple of the
// trace length.
func NewComposition(evaluator ConstraintsEvaluator, traceGen fr.Element, traceLength uint64,
	mask []MaskItem, degreeBound uint64) (*Composition, error) {
	logTrace, err := util.Log2(traceLength)
	if err != nil {
		return nil, fmt.Errorf("invalid trace length: %w", err)
	}
	if _, err := util.SafeDiv(degreeBound, traceLength); err != nil {
		return nil, fmt.Errorf("degree bound %d incompatible with trace length %d: %w",
			degreeBound, traceLength, err)
	}
	return &Composition{
		evaluator:   evaluator,
		traceLength: traceLength,
		logTrace:    logTrace,
		traceGen:    traceGen,
		mask:        mask,
		degreeBound: degreeBound,
	}, nil
}

func (c *Composition) DegreeBound() uint64 { return c.degreeBound }

func (c *Composition) EvalAtPoint(point fr.Element, neighbors []fr.Element) fr.Element {
	num, den := c.evaluator.EvalFraction(point, neighbors)
	den.Inverse(&den)
	num.Mul(&num, &den)
	return num
}

func (c *Composition) EvalOnCosetBitReversedOutput(cosetOffset fr.Element, columns [][]fr.Element,
	out []fr.Element, taskSize uint64) error {
	if uint64(len(out)) != c.traceLength {
		return fmt.Errorf("output span has %d elements, expected %d", len(out), c.traceLength)
	}
	for _, m := range c.mask {
		if m.Column >= uint64(len(columns)) {
			return fmt.Errorf("mask column %d out of range (%d columns)", m.Column, len(columns))
		}
		if uint64(len(columns[m.Column])) != c.traceLength {
			return fmt.Errorf("column %d has %d rows, expected %d",
				m.Column, len(columns[m.Column]), c.traceLength)
		}
	}
	if taskSize == 0 {
		taskSize = 1
	}
	taskmanager.Default().ParallelForRange(0, c.traceLength, func(ti taskmanager.TaskInfo) {
		n := ti.EndIdx - ti.StartIdx
		nums := make([]fr.Element, n)
		dens := make([]fr.Element, n)
		neighbors := make([]fr.Element, len(c.mask))
		point := algebra.Pow(c.traceGen, ti.StartIdx)
		point.Mul(&point, &cosetOffset)
		for r := ti.StartIdx; r < ti.EndIdx; r++ {
			for k, m := range c.mask {
				neighbors[k] = columns[m.Column][(r+m.RowOffset)&(c.traceLength-1)]
			}
			nums[r-ti.StartIdx], dens[r-ti.StartIdx] = c.evaluator.EvalFraction(point, neighbors)
			point.Mul(&point, &c.traceGen)
		}
		invs := fr.BatchInvert(dens)
		for i := uint64(0); i < n; i++ {
			out[algebra.BitReverse(ti.StartIdx+i, c.logTrace)].Mul(&nums[i], &invs[i])
		}
	}, taskSize, taskSize)
	return nil
}
