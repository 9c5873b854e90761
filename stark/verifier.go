package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/fri"
	"github.com/starkforge/stark/transcript"
)

// Verifier replays the prover's phases over the proof transcript and
// rejects at the first inconsistency.
type Verifier struct {
	channel *transcript.Verifier
	params  *Parameters
}

func NewVerifier(channel *transcript.Verifier, params *Parameters) *Verifier {
	return &Verifier{channel: channel, params: params}
}

// Verify checks the proof carried by the verifier's channel. Failures
// caused by the proof content wrap ErrProofRejected.
func (v *Verifier) Verify() error {
	v.channel.EnterScope("STARK")
	defer v.channel.ExitScope()

	var traces []*CommittedTraceVerifier
	nColumnsFirst := v.params.Air.NumColumns()
	if ip := v.params.Air.InteractionParams(); ip != nil {
		nColumnsFirst = ip.NColumnsFirst
	}
	v.channel.EnterScope("Original")
	firstTrace, err := v.readTraceCommitment(nColumnsFirst)
	v.channel.ExitScope()
	if err != nil {
		return err
	}
	traces = append(traces, firstTrace)

	currentAir := v.params.Air
	if ip := currentAir.InteractionParams(); ip != nil {
		v.channel.EnterScope("Interaction")
		currentAir, err = v.interactionPhase(ip, &traces)
		v.channel.ExitScope()
		if err != nil {
			return err
		}
	}

	v.channel.EnterScope("Original")
	cp, err := v.createCompositionPolynomial(currentAir)
	v.channel.ExitScope()
	if err != nil {
		return err
	}

	oracle, err := NewCompositionOracleVerifier(v.params.Domain, traces, currentAir.Mask(),
		cp, v.channel)
	if err != nil {
		return err
	}
	oodsOracle, err := v.outOfDomainSamplingVerify(oracle)
	if err != nil {
		return err
	}
	return v.performLowDegreeTest(oodsOracle)
}

func (v *Verifier) readTraceCommitment(nColumns uint64) (*CommittedTraceVerifier, error) {
	v.channel.EnterScope("Commit on Trace")
	defer v.channel.ExitScope()
	trace, err := NewCommittedTraceVerifier(v.channel, v.params.Domain, nColumns)
	if err != nil {
		return nil, err
	}
	if err := trace.ReadCommitment(); err != nil {
		return nil, fmt.Errorf("failed to read the trace commitment: %w", err)
	}
	return trace, nil
}

func (v *Verifier) interactionPhase(ip *air.InteractionParams,
	traces *[]*CommittedTraceVerifier) (air.AIR, error) {
	elements := make([]fr.Element, ip.NInteractionElements)
	for i := range elements {
		elements[i] = v.channel.GetRandomFieldElement()
	}
	interactionAir, err := v.params.Air.WithInteractionElements(elements)
	if err != nil {
		return nil, fmt.Errorf("failed to bind the interaction elements: %w", err)
	}
	interactionTrace, err := v.readTraceCommitment(ip.NColumnsSecond)
	if err != nil {
		return nil, err
	}
	*traces = append(*traces, interactionTrace)
	return interactionAir, nil
}

func (v *Verifier) createCompositionPolynomial(a air.AIR) (air.CompositionPolynomial, error) {
	alpha := v.channel.GetRandomFieldElement()
	return a.CreateCompositionPolynomial(v.params.Domain.TraceGenerator(),
		compositionCoefficients(alpha, a.NumRandomCoefficients()))
}

// outOfDomainSamplingVerify mirrors the prover's reduction to the boundary
// oracle: it reads the broken-composition commitment, checks the sampled
// values' consistency and rebuilds the same boundary AIR.
func (v *Verifier) outOfDomainSamplingVerify(
	oracle *CompositionOracleVerifier) (*CompositionOracleVerifier, error) {
	v.channel.EnterScope("Out Of Domain Sampling")
	defer v.channel.ExitScope()

	nBreaks := oracle.ConstraintsDegreeBound()
	brokenTrace, err := v.readTraceCommitment(nBreaks)
	if err != nil {
		return nil, err
	}
	constraints, err := verifyOods(v.channel, oracle)
	if err != nil {
		return nil, err
	}
	boundaryAir, err := air.NewBoundaryAir(v.params.TraceLength(), oracle.Width()+nBreaks, constraints)
	if err != nil {
		return nil, err
	}
	boundaryCp, err := v.createCompositionPolynomial(boundaryAir)
	if err != nil {
		return nil, err
	}
	traces := append(oracle.Traces(), brokenTrace)
	return NewCompositionOracleVerifier(v.params.Domain, traces, boundaryAir.Mask(),
		boundaryCp, v.channel)
}

func (v *Verifier) performLowDegreeTest(oracle *CompositionOracleVerifier) error {
	v.channel.EnterScope("FRI")
	defer v.channel.ExitScope()

	expected := v.params.Fri.ExpectedDegreeBound()
	oracleBound := oracle.ConstraintsDegreeBound() * v.params.TraceLength()
	if expected != oracleBound {
		return fmt.Errorf("FRI parameters certify degree bound %d, the oracle degree bound is %d",
			expected, oracleBound)
	}

	fetcher := func(friQueries []uint64) ([]fr.Element, error) {
		v.channel.EnterScope("Virtual Oracle")
		defer v.channel.ExitScope()
		return oracle.VerifyDecommitment(friQueriesToDomainQueries(friQueries, v.params.TraceLength()))
	}
	friVerifier, err := fri.NewVerifier(v.channel, v.params.Fri, fetcher)
	if err != nil {
		return err
	}
	if err := friVerifier.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrProofRejected, err)
	}
	return nil
}
