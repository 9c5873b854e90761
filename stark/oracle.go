package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// DomainQuery addresses one point of the evaluation domain: Coset is the
// commitment segment index and Offset the bit-reversed index inside it.
type DomainQuery struct {
	Coset  uint64
	Offset uint64
}

// columnToTraceColumn resolves a column of the traces' concatenation to
// (trace index, column within that trace).
func columnToTraceColumn(column uint64, widths []uint64) (int, uint64, error) {
	for traceIndex, width := range widths {
		if column < width {
			return traceIndex, column, nil
		}
		column -= width
	}
	return 0, 0, fmt.Errorf("mask column %d out of range", column)
}

// splitMask splits a mask over the traces' concatenation into one mask per
// trace, preserving the relative order of the items. For trace widths 2 and
// 4, the mask {(10,0), (20,4), (30,1), (40,3)} splits into {(10,0), (30,1)}
// and {(20,2), (40,1)}.
func splitMask(mask []air.MaskItem, widths []uint64) ([][]air.MaskItem, error) {
	masks := make([][]air.MaskItem, len(widths))
	for _, m := range mask {
		traceIndex, column, err := columnToTraceColumn(m.Column, widths)
		if err != nil {
			return nil, err
		}
		masks[traceIndex] = append(masks[traceIndex], air.MaskItem{RowOffset: m.RowOffset, Column: column})
	}
	return masks, nil
}

// queriesToTraceQueries expands evaluation-domain queries by a trace's mask:
// each query needs every mask neighbor, whose bit-reversed in-coset offset
// is the query's natural offset shifted by the mask row.
func queriesToTraceQueries(queries []DomainQuery, traceMask []air.MaskItem,
	traceLength uint64) []TraceQuery {
	logTrace := util.Log2Floor(traceLength)
	out := make([]TraceQuery, 0, len(queries)*len(traceMask))
	for _, q := range queries {
		natural := algebra.BitReverse(q.Offset, logTrace)
		for _, m := range traceMask {
			offset := algebra.BitReverse((natural+m.RowOffset)&(traceLength-1), logTrace)
			out = append(out, TraceQuery{Coset: q.Coset, Offset: offset, Column: m.Column})
		}
	}
	return out
}

// CompositionOracleProver evaluates and decommits the virtual oracle
// h(x) = CompositionPolynomial(neighbors(x)) over a set of committed traces.
type CompositionOracleProver struct {
	domain     *algebra.EvaluationDomain
	traces     []*CommittedTraceProver
	mask       []air.MaskItem
	splitMasks [][]air.MaskItem
	widths     []uint64
	cp         air.CompositionPolynomial
	channel    *transcript.Prover

	constraintsDegreeBound uint64
}

func NewCompositionOracleProver(domain *algebra.EvaluationDomain, traces []*CommittedTraceProver,
	mask []air.MaskItem, cp air.CompositionPolynomial,
	channel *transcript.Prover) (*CompositionOracleProver, error) {
	widths := make([]uint64, len(traces))
	for i, trace := range traces {
		widths[i] = trace.NumColumns()
	}
	splitMasks, err := splitMask(mask, widths)
	if err != nil {
		return nil, err
	}
	bound, err := util.SafeDiv(cp.DegreeBound(), domain.TraceLength())
	if err != nil {
		return nil, fmt.Errorf("composition degree bound %d incompatible with trace length %d: %w",
			cp.DegreeBound(), domain.TraceLength(), err)
	}
	return &CompositionOracleProver{
		domain:                 domain,
		traces:                 traces,
		mask:                   mask,
		splitMasks:             splitMasks,
		widths:                 widths,
		cp:                     cp,
		channel:                channel,
		constraintsDegreeBound: bound,
	}, nil
}

// ConstraintsDegreeBound is the composition degree bound in trace-length
// units: the number of evaluation-domain cosets the oracle spans.
func (o *CompositionOracleProver) ConstraintsDegreeBound() uint64 { return o.constraintsDegreeBound }

// Width is the total number of columns across the traces.
func (o *CompositionOracleProver) Width() uint64 {
	var total uint64
	for _, w := range o.widths {
		total += w
	}
	return total
}

func (o *CompositionOracleProver) Mask() []air.MaskItem { return o.mask }

func (o *CompositionOracleProver) Traces() []*CommittedTraceProver { return o.traces }

// EvalComposition evaluates the oracle over its first ConstraintsDegreeBound
// cosets, returning the bit-reversed evaluation over the composition
// domain.
func (o *CompositionOracleProver) EvalComposition(taskSize uint64) ([]fr.Element, error) {
	nSegments := o.constraintsDegreeBound
	if nSegments > o.domain.NumCosets() {
		return nil, fmt.Errorf("composition degree bound needs %d cosets, the domain has %d",
			nSegments, o.domain.NumCosets())
	}
	traceLength := o.domain.TraceLength()
	logCosets := o.domain.LogNumCosets()
	out := make([]fr.Element, o.cp.DegreeBound())

	for cosetIndex := uint64(0); cosetIndex < nSegments; cosetIndex++ {
		allEvals := make([][]fr.Element, 0, o.Width())
		for _, trace := range o.traces {
			evals, err := trace.LDE().EvalOnCoset(cosetIndex)
			if err != nil {
				return nil, err
			}
			for _, column := range evals {
				natural := make([]fr.Element, len(column))
				algebra.BitReversedCopy(natural, column)
				allEvals = append(allEvals, natural)
			}
		}
		cosetOffset := o.domain.CosetOffset(algebra.BitReverse(cosetIndex, logCosets))
		err := o.cp.EvalOnCosetBitReversedOutput(cosetOffset, allEvals,
			out[cosetIndex*traceLength:(cosetIndex+1)*traceLength], taskSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecommitQueries opens, for every queried domain point, all mask neighbors
// in every trace.
func (o *CompositionOracleProver) DecommitQueries(queries []DomainQuery) error {
	for traceIndex, trace := range o.traces {
		o.channel.EnterScope(fmt.Sprintf("Trace %d", traceIndex))
		err := trace.DecommitQueries(
			queriesToTraceQueries(queries, o.splitMasks[traceIndex], o.domain.TraceLength()))
		o.channel.ExitScope()
		if err != nil {
			return fmt.Errorf("failed to decommit trace %d: %w", traceIndex, err)
		}
	}
	return nil
}

// EvalMaskAtPoint evaluates all mask neighbors at an arbitrary field point,
// in mask order.
func (o *CompositionOracleProver) EvalMaskAtPoint(point fr.Element, out []fr.Element) error {
	if len(out) != len(o.mask) {
		return fmt.Errorf("output has %d slots for a mask of size %d", len(out), len(o.mask))
	}
	traceEvals := make([][]fr.Element, len(o.traces))
	for i, trace := range o.traces {
		traceEvals[i] = make([]fr.Element, len(o.splitMasks[i]))
		if err := trace.EvalMaskAtPoint(o.splitMasks[i], point, traceEvals[i]); err != nil {
			return err
		}
	}
	offsets := make([]int, len(o.traces))
	for i, m := range o.mask {
		traceIndex, _, err := columnToTraceColumn(m.Column, o.widths)
		if err != nil {
			return err
		}
		out[i] = traceEvals[traceIndex][offsets[traceIndex]]
		offsets[traceIndex]++
	}
	return nil
}

// CompositionOracleVerifier recomputes the oracle's values at queried
// points from authenticated trace openings.
type CompositionOracleVerifier struct {
	domain     *algebra.EvaluationDomain
	traces     []*CommittedTraceVerifier
	mask       []air.MaskItem
	splitMasks [][]air.MaskItem
	widths     []uint64
	cp         air.CompositionPolynomial
	channel    *transcript.Verifier

	constraintsDegreeBound uint64
}

func NewCompositionOracleVerifier(domain *algebra.EvaluationDomain, traces []*CommittedTraceVerifier,
	mask []air.MaskItem, cp air.CompositionPolynomial,
	channel *transcript.Verifier) (*CompositionOracleVerifier, error) {
	widths := make([]uint64, len(traces))
	for i, trace := range traces {
		widths[i] = trace.NumColumns()
	}
	splitMasks, err := splitMask(mask, widths)
	if err != nil {
		return nil, err
	}
	bound, err := util.SafeDiv(cp.DegreeBound(), domain.TraceLength())
	if err != nil {
		return nil, fmt.Errorf("composition degree bound %d incompatible with trace length %d: %w",
			cp.DegreeBound(), domain.TraceLength(), err)
	}
	return &CompositionOracleVerifier{
		domain:                 domain,
		traces:                 traces,
		mask:                   mask,
		splitMasks:             splitMasks,
		widths:                 widths,
		cp:                     cp,
		channel:                channel,
		constraintsDegreeBound: bound,
	}, nil
}

func (o *CompositionOracleVerifier) ConstraintsDegreeBound() uint64 { return o.constraintsDegreeBound }

func (o *CompositionOracleVerifier) Width() uint64 {
	var total uint64
	for _, w := range o.widths {
		total += w
	}
	return total
}

func (o *CompositionOracleVerifier) Mask() []air.MaskItem { return o.mask }

func (o *CompositionOracleVerifier) Traces() []*CommittedTraceVerifier { return o.traces }

// CompositionPolynomial exposes the point evaluator for the out-of-domain
// consistency check.
func (o *CompositionOracleVerifier) CompositionPolynomial() air.CompositionPolynomial { return o.cp }

// VerifyDecommitment authenticates the mask openings at the queried points
// and evaluates the oracle there.
func (o *CompositionOracleVerifier) VerifyDecommitment(queries []DomainQuery) ([]fr.Element, error) {
	traceValues := make([][]fr.Element, len(o.traces))
	for traceIndex, trace := range o.traces {
		o.channel.EnterScope(fmt.Sprintf("Trace %d", traceIndex))
		values, err := trace.VerifyDecommitment(
			queriesToTraceQueries(queries, o.splitMasks[traceIndex], o.domain.TraceLength()))
		o.channel.ExitScope()
		if err != nil {
			return nil, fmt.Errorf("failed to verify trace %d decommitment: %w", traceIndex, err)
		}
		traceValues[traceIndex] = values
	}

	logCosets := o.domain.LogNumCosets()
	offsets := make([]int, len(o.traces))
	neighbors := make([]fr.Element, len(o.mask))
	out := make([]fr.Element, 0, len(queries))
	for _, q := range queries {
		for i, m := range o.mask {
			traceIndex, _, err := columnToTraceColumn(m.Column, o.widths)
			if err != nil {
				return nil, err
			}
			neighbors[i] = traceValues[traceIndex][offsets[traceIndex]]
			offsets[traceIndex]++
		}
		point := o.domain.ElementByIndex(algebra.BitReverse(q.Coset, logCosets), q.Offset)
		out = append(out, o.cp.EvalAtPoint(point, neighbors))
	}
	return out, nil
}
