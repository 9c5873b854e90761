package algebra

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/util"
)

// EvaluationDomain is the union of nCosets shifted copies of the
// traceLength-sized multiplicative subgroup. The coset offsets are
// offset * G^j for the generator G of the full-size group, so the union is
// itself a single coset of that group; the multiplicative generator of the
// field is used as the base offset, keeping the trace subgroup itself out of
// the domain. Commitment and query indices enumerate cosets in bit-reversed
// order: global index q addresses coset q/traceLength, offset q%traceLength,
// both bit-reversed.
type EvaluationDomain struct {
	traceLength uint64
	nCosets     uint64
	logTrace    int
	logCosets   int
	bases       *Bases
	offsets     []fr.Element // natural enumeration order
	traceGen    fr.Element
}

// NewEvaluationDomain creates the domain for the given trace length and
// coset count, both powers of two.
func NewEvaluationDomain(traceLength, nCosets uint64) (*EvaluationDomain, error) {
	logTrace, err := util.Log2(traceLength)
	if err != nil {
		return nil, fmt.Errorf("invalid trace length: %w", err)
	}
	logCosets, err := util.Log2(nCosets)
	if err != nil {
		return nil, fmt.Errorf("invalid number of cosets: %w", err)
	}
	offset := fftDomain(traceLength * nCosets).FrMultiplicativeGen
	bases := NewBases(logTrace+logCosets, offset)
	bigGen := bases.Generator(0)
	offsets := make([]fr.Element, nCosets)
	offsets[0] = offset
	for j := uint64(1); j < nCosets; j++ {
		offsets[j].Mul(&offsets[j-1], &bigGen)
	}
	return &EvaluationDomain{
		traceLength: traceLength,
		nCosets:     nCosets,
		logTrace:    logTrace,
		logCosets:   logCosets,
		bases:       bases,
		offsets:     offsets,
		traceGen:    bases.Generator(logCosets),
	}, nil
}

// TraceLength returns the size of one coset.
func (d *EvaluationDomain) TraceLength() uint64 { return d.traceLength }

// NumCosets returns the number of cosets.
func (d *EvaluationDomain) NumCosets() uint64 { return d.nCosets }

// Size returns the total number of domain points.
func (d *EvaluationDomain) Size() uint64 { return d.traceLength * d.nCosets }

// LogTraceLength returns log2 of the trace length.
func (d *EvaluationDomain) LogTraceLength() int { return d.logTrace }

// LogNumCosets returns log2 of the coset count.
func (d *EvaluationDomain) LogNumCosets() int { return d.logCosets }

// TraceGenerator returns the generator of the trace-sized subgroup.
func (d *EvaluationDomain) TraceGenerator() fr.Element { return d.traceGen }

// Bases returns the layered bases of the full domain.
func (d *EvaluationDomain) Bases() *Bases { return d.bases }

// TraceBases returns the bases of the plain (offset 1) trace subgroup, over
// which execution traces are interpolated.
func (d *EvaluationDomain) TraceBases() *Bases {
	var one fr.Element
	one.SetOne()
	return NewBases(d.logTrace, one)
}

// CosetOffset returns the offset of the coset with the given natural index.
func (d *EvaluationDomain) CosetOffset(naturalIndex uint64) fr.Element {
	return d.offsets[naturalIndex]
}

// CosetsOffsets returns all coset offsets in natural enumeration order.
func (d *EvaluationDomain) CosetsOffsets() []fr.Element { return d.offsets }

// ElementByIndex returns the domain point of the given coset (natural
// index) at the given bit-reversed in-coset offset.
func (d *EvaluationDomain) ElementByIndex(cosetNaturalIndex, offset uint64) fr.Element {
	p := Pow(d.traceGen, BitReverse(offset, d.logTrace))
	p.Mul(&p, &d.offsets[cosetNaturalIndex])
	return p
}
