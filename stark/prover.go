package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/fri"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// compositionCoefficients expands one random element into the coefficient
// vector 1, alpha, alpha^2, ... the composition polynomial combines the
// constraints with.
func compositionCoefficients(alpha fr.Element, n uint64) []fr.Element {
	coefficients := make([]fr.Element, n)
	var current fr.Element
	current.SetOne()
	for i := uint64(0); i < n; i++ {
		coefficients[i] = current
		current.Mul(&current, &alpha)
	}
	return coefficients
}

// friQueriesToDomainQueries maps FRI witness indices to evaluation-domain
// queries; the witness lays the composition evaluation out as trace-length
// blocks, one per commitment coset.
func friQueriesToDomainQueries(friQueries []uint64, traceLength uint64) []DomainQuery {
	queries := make([]DomainQuery, 0, len(friQueries))
	for _, q := range friQueries {
		queries = append(queries, DomainQuery{Coset: q / traceLength, Offset: q & (traceLength - 1)})
	}
	return queries
}

// Prover produces a non-interactive proof that the AIR accepts a trace the
// prover knows.
type Prover struct {
	channel *transcript.Prover
	params  *Parameters
	cfg     ProverConfig
}

func NewProver(channel *transcript.Prover, params *Parameters, cfg ProverConfig) *Prover {
	cfg.normalize()
	return &Prover{channel: channel, params: params, cfg: cfg}
}

// Prove runs the whole protocol over the trace context and returns the
// proof bytes.
func (p *Prover) Prove(traceContext air.TraceContext) ([]byte, error) {
	trace, err := traceContext.Trace()
	if err != nil {
		return nil, fmt.Errorf("failed to build the trace: %w", err)
	}
	if err := p.validateFirstTrace(trace); err != nil {
		return nil, err
	}

	p.channel.EnterScope("STARK")
	defer p.channel.ExitScope()

	var traces []*CommittedTraceProver
	p.channel.EnterScope("Original")
	firstTrace, err := p.commitOnTrace(trace, p.params.Domain.TraceBases(), true)
	p.channel.ExitScope()
	if err != nil {
		return nil, fmt.Errorf("failed to commit on the trace: %w", err)
	}
	traces = append(traces, firstTrace)

	currentAir := p.params.Air
	if ip := currentAir.InteractionParams(); ip != nil {
		p.channel.EnterScope("Interaction")
		currentAir, err = p.interactionPhase(traceContext, ip, &traces)
		p.channel.ExitScope()
		if err != nil {
			return nil, err
		}
	}

	p.channel.EnterScope("Original")
	cp, err := p.createCompositionPolynomial(currentAir)
	p.channel.ExitScope()
	if err != nil {
		return nil, err
	}

	oracle, err := NewCompositionOracleProver(p.params.Domain, traces, currentAir.Mask(), cp, p.channel)
	if err != nil {
		return nil, err
	}
	oodsOracle, err := p.outOfDomainSamplingProve(oracle)
	if err != nil {
		return nil, err
	}
	if err := p.performLowDegreeTest(oodsOracle); err != nil {
		return nil, err
	}
	return p.channel.Proof(), nil
}

func (p *Prover) validateFirstTrace(trace [][]fr.Element) error {
	expectedColumns := p.params.Air.NumColumns()
	if ip := p.params.Air.InteractionParams(); ip != nil {
		expectedColumns = ip.NColumnsFirst
	}
	if uint64(len(trace)) != expectedColumns {
		return fmt.Errorf("trace has %d columns, the AIR declares %d", len(trace), expectedColumns)
	}
	for c, column := range trace {
		if uint64(len(column)) != p.params.TraceLength() {
			return fmt.Errorf("trace column %d has %d rows, the AIR declares %d",
				c, len(column), p.params.TraceLength())
		}
	}
	return nil
}

func (p *Prover) commitOnTrace(columns [][]fr.Element, traceBases *algebra.Bases,
	bitReverse bool) (*CommittedTraceProver, error) {
	p.channel.EnterScope("Commit on Trace")
	defer p.channel.ExitScope()
	committed, err := NewCommittedTraceProver(p.channel, p.params.Domain,
		uint64(len(columns)), p.cfg.LDE)
	if err != nil {
		return nil, err
	}
	if err := committed.Commit(columns, traceBases, bitReverse); err != nil {
		return nil, err
	}
	return committed, nil
}

// interactionPhase draws the interaction elements, hands them to the trace
// context and commits the second trace it produces.
func (p *Prover) interactionPhase(traceContext air.TraceContext, ip *air.InteractionParams,
	traces *[]*CommittedTraceProver) (air.AIR, error) {
	elements := make([]fr.Element, ip.NInteractionElements)
	for i := range elements {
		elements[i] = p.channel.GetRandomFieldElementFromVerifier()
	}
	interactionAir, err := traceContext.SetInteractionElements(elements)
	if err != nil {
		return nil, fmt.Errorf("failed to bind the interaction elements: %w", err)
	}
	interactionTrace, err := traceContext.InteractionTrace()
	if err != nil {
		return nil, fmt.Errorf("failed to build the interaction trace: %w", err)
	}
	if uint64(len(interactionTrace)) != ip.NColumnsSecond {
		return nil, fmt.Errorf("interaction trace has %d columns, the AIR declares %d",
			len(interactionTrace), ip.NColumnsSecond)
	}
	committed, err := p.commitOnTrace(interactionTrace, p.params.Domain.TraceBases(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to commit on the interaction trace: %w", err)
	}
	*traces = append(*traces, committed)
	return interactionAir, nil
}

func (p *Prover) createCompositionPolynomial(a air.AIR) (air.CompositionPolynomial, error) {
	alpha := p.channel.GetRandomFieldElementFromVerifier()
	return a.CreateCompositionPolynomial(p.params.Domain.TraceGenerator(),
		compositionCoefficients(alpha, a.NumRandomCoefficients()))
}

// outOfDomainSamplingProve converts the constraint oracle of degree bound
// d*N into a boundary oracle of degree bound N: the composition evaluation
// is broken into d columns, committed, sampled at a random field point
// together with the original mask, and the sampled values become boundary
// constraints over all columns.
func (p *Prover) outOfDomainSamplingProve(
	oracle *CompositionOracleProver) (*CompositionOracleProver, error) {
	p.channel.EnterScope("Out Of Domain Sampling")
	defer p.channel.ExitScope()

	nBreaks := oracle.ConstraintsDegreeBound()
	logBreaks, err := util.Log2(nBreaks)
	if err != nil {
		return nil, fmt.Errorf("invalid constraints degree bound: %w", err)
	}
	compositionEval, err := oracle.EvalComposition(p.cfg.ConstraintPolynomialTaskSize)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate the composition polynomial: %w", err)
	}
	brokenColumns, brokenBases, err := breakComposition(compositionEval, logBreaks,
		p.params.CompositionBases())
	if err != nil {
		return nil, fmt.Errorf("failed to break the composition polynomial: %w", err)
	}
	brokenTrace, err := p.commitOnTrace(brokenColumns, brokenBases, false)
	if err != nil {
		return nil, fmt.Errorf("failed to commit on the broken composition: %w", err)
	}

	constraints, err := proveOods(p.channel, oracle, brokenTrace)
	if err != nil {
		return nil, err
	}
	boundaryAir, err := air.NewBoundaryAir(p.params.TraceLength(), oracle.Width()+nBreaks, constraints)
	if err != nil {
		return nil, err
	}
	boundaryCp, err := p.createCompositionPolynomial(boundaryAir)
	if err != nil {
		return nil, err
	}
	traces := append(oracle.Traces(), brokenTrace)
	return NewCompositionOracleProver(p.params.Domain, traces, boundaryAir.Mask(),
		boundaryCp, p.channel)
}

// performLowDegreeTest evaluates the boundary oracle and runs FRI on it,
// decommitting the underlying traces at the FRI queries.
func (p *Prover) performLowDegreeTest(oracle *CompositionOracleProver) error {
	p.channel.EnterScope("FRI")
	defer p.channel.ExitScope()

	expected := p.params.Fri.ExpectedDegreeBound()
	oracleBound := oracle.ConstraintsDegreeBound() * p.params.TraceLength()
	if expected != oracleBound {
		return fmt.Errorf("FRI parameters certify degree bound %d, the oracle degree bound is %d",
			expected, oracleBound)
	}

	witness, err := oracle.EvalComposition(p.cfg.ConstraintPolynomialTaskSize)
	if err != nil {
		return fmt.Errorf("failed to evaluate the boundary oracle: %w", err)
	}
	callback := func(friQueries []uint64) error {
		p.channel.EnterScope("Virtual Oracle")
		defer p.channel.ExitScope()
		return oracle.DecommitQueries(friQueriesToDomainQueries(friQueries, p.params.TraceLength()))
	}
	friProver, err := fri.NewProver(p.channel, p.params.Fri, p.cfg.Fri, witness, callback)
	if err != nil {
		return err
	}
	return friProver.Prove()
}
