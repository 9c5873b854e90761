// Package stark ties the proof engine together: it commits to the execution
// trace, reduces the AIR constraints to one composition polynomial, samples
// it out of domain, and hands the resulting boundary oracle to the FRI
// low-degree test.
package stark

import (
	"errors"
	"fmt"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/fri"
	"github.com/starkforge/stark/util"
)

// ErrProofRejected marks verification failures caused by the proof content
// rather than by malformed inputs.
var ErrProofRejected = errors.New("proof rejected")

// ErrInvalidParams marks configuration errors detected before any proving
// or verification work starts.
var ErrInvalidParams = errors.New("invalid parameters")

// Parameters fixes one proof instance: the AIR, the evaluation domain the
// trace is committed over, and the FRI instance run on the boundary oracle.
type Parameters struct {
	Domain *algebra.EvaluationDomain
	Air    air.AIR
	Fri    *fri.Parameters

	compositionBases *algebra.Bases
}

// NewParameters builds and cross-checks the instance. friParams may leave
// Bases nil, in which case the evaluation domain's bases are used; an
// explicitly set value must match them.
func NewParameters(nCosets uint64, a air.AIR, friParams *fri.Parameters) (*Parameters, error) {
	if a == nil || friParams == nil {
		return nil, fmt.Errorf("%w: missing AIR or FRI parameters", ErrInvalidParams)
	}
	if !util.IsPowerOfTwo(nCosets) {
		return nil, fmt.Errorf("%w: the number of cosets must be a power of two, got %d", ErrInvalidParams, nCosets)
	}
	traceLength := a.TraceLength()
	domain, err := algebra.NewEvaluationDomain(traceLength, nCosets)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid evaluation domain: %s", ErrInvalidParams, err)
	}
	if friParams.Bases == nil {
		friParams.Bases = domain.Bases()
	} else if friParams.Bases.Size(0) != domain.Size() {
		return nil, fmt.Errorf("%w: FRI domain size %d does not match the evaluation domain size %d",
			ErrInvalidParams, friParams.Bases.Size(0), domain.Size())
	}
	if err := friParams.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid FRI parameters: %s", ErrInvalidParams, err)
	}

	// After out-of-domain sampling the oracle degree bound is the trace
	// length, which is exactly what FRI must certify.
	if expected := friParams.ExpectedDegreeBound(); expected != traceLength {
		return nil, fmt.Errorf(
			"%w: FRI parameters certify degree bound %d, the STARK degree bound is %d",
			ErrInvalidParams, expected, traceLength)
	}

	degreeBound := a.CompositionDegreeBound()
	nRelevantCosets, err := util.SafeDiv(degreeBound, traceLength)
	if err != nil {
		return nil, fmt.Errorf("%w: composition degree bound %d incompatible with trace length %d: %s",
			ErrInvalidParams, degreeBound, traceLength, err)
	}
	if nRelevantCosets > nCosets {
		return nil, fmt.Errorf("%w: composition degree bound needs %d cosets, the domain has %d",
			ErrInvalidParams, nRelevantCosets, nCosets)
	}
	logBound, err := util.Log2(degreeBound)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid composition degree bound: %s", ErrInvalidParams, err)
	}

	return &Parameters{
		Domain:           domain,
		Air:              a,
		Fri:              friParams,
		compositionBases: algebra.NewBases(logBound, domain.CosetOffset(0)),
	}, nil
}

// TraceLength is the size of the trace domain.
func (p *Parameters) TraceLength() uint64 { return p.Domain.TraceLength() }

// CompositionBases describes the domain the composition polynomial is
// evaluated over: the first CompositionDegreeBound entries of the
// bit-reversed evaluation domain.
func (p *Parameters) CompositionBases() *algebra.Bases { return p.compositionBases }
