package fri

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/commitment"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// FirstLayerFetcher verifies the external witness decommitment at the
// expanded first-layer query indices and returns the opened values in query
// order.
type FirstLayerFetcher func(queries []uint64) ([]fr.Element, error)

// Verifier mirrors the prover phase by phase over the same transcript.
type Verifier struct {
	channel            *transcript.Verifier
	params             *Parameters
	firstLayerCallback FirstLayerFetcher

	firstEvalPoint    *fr.Element
	evalPoints        []fr.Element
	tableVerifiers    []*commitment.TableVerifier
	expectedLastLayer []fr.Element
	queryIndices      []uint64
	queryResults      []fr.Element
}

func NewVerifier(channel *transcript.Verifier, params *Parameters,
	firstLayerCallback FirstLayerFetcher) (*Verifier, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid FRI parameters: %w", err)
	}
	if firstLayerCallback == nil {
		return nil, fmt.Errorf("missing first layer callback")
	}
	return &Verifier{channel: channel, params: params, firstLayerCallback: firstLayerCallback}, nil
}

// Verify replays the commitment phase, recomputes the query indices and
// folds every query down to the last layer. Any inconsistency fails the
// whole verification.
func (v *Verifier) Verify() error {
	v.channel.EnterScope("Commitment")
	err := v.commitmentPhase()
	if err == nil {
		v.channel.EnterScope("Last Layer")
		err = v.readLastLayerCoefficients()
		v.channel.ExitScope()
	}
	v.channel.ExitScope()
	if err != nil {
		return err
	}

	v.queryIndices, err = chooseQueryIndices(verifierQueryChannel{v.channel},
		v.params.Bases.Size(v.params.StepList[0]), v.params.NQueries, v.params.ProofOfWorkBits)
	if err != nil {
		return err
	}
	v.channel.BeginQueryPhase()

	v.channel.EnterScope("Decommitment")
	defer v.channel.ExitScope()
	if err := v.verifyFirstLayer(); err != nil {
		return err
	}
	if err := v.verifyInnerLayers(); err != nil {
		return err
	}
	return v.verifyLastLayer()
}

func (v *Verifier) commitmentPhase() error {
	nLayers := len(v.params.StepList)
	basisIndex := 0
	for i := 0; i < nLayers; i++ {
		friStep := v.params.StepList[i]
		v.channel.EnterScope(fmt.Sprintf("Layer %d", i+1))
		basisIndex += friStep
		if i == 0 {
			if friStep != 0 {
				pt := v.channel.GetRandomFieldElement()
				v.firstEvalPoint = &pt
			}
		} else {
			v.evalPoints = append(v.evalPoints, v.channel.GetRandomFieldElement())
		}
		if i < nLayers-1 {
			cosetSize := util.Pow2(v.params.StepList[i+1])
			tv, err := commitment.NewTableVerifier(v.channel,
				v.params.Bases.Size(basisIndex)/cosetSize, cosetSize)
			if err != nil {
				v.channel.ExitScope()
				return err
			}
			if err := tv.ReadCommitment(); err != nil {
				v.channel.ExitScope()
				return fmt.Errorf("failed to read FRI layer %d commitment: %w", i+1, err)
			}
			v.tableVerifiers = append(v.tableVerifiers, tv)
		}
		v.channel.ExitScope()
	}
	return nil
}

// readLastLayerCoefficients receives the last layer's coefficients and
// evaluates them over the last layer's domain for the final consistency
// check.
func (v *Verifier) readLastLayerCoefficients() error {
	sum := v.params.sumOfSteps()
	lastLayerSize := v.params.Bases.Size(sum)
	if v.params.LastLayerDegreeBound > lastLayerSize {
		return fmt.Errorf("last layer degree bound %d exceeds the last layer size %d",
			v.params.LastLayerDegreeBound, lastLayerSize)
	}
	coeffs, err := v.channel.ReceiveFieldElementSpan(int(v.params.LastLayerDegreeBound))
	if err != nil {
		return fmt.Errorf("failed to receive last layer coefficients: %w", err)
	}
	v.expectedLastLayer = make([]fr.Element, lastLayerSize)
	algebra.EvalOnCosetBitReversed(coeffs, v.params.Bases.Offset(sum), v.expectedLastLayer)
	return nil
}

// verifyFirstLayer folds the externally opened witness cosets into the
// second-layer query results.
func (v *Verifier) verifyFirstLayer() error {
	firstStep := v.params.StepList[0]
	firstLayerQueries := secondLayerQueriesToFirstLayerQueries(v.queryIndices, firstStep)
	results, err := v.firstLayerCallback(firstLayerQueries)
	if err != nil {
		return fmt.Errorf("first layer verification failed: %w", err)
	}
	if len(results) != len(firstLayerQueries) {
		return fmt.Errorf("first layer callback returned %d values for %d queries",
			len(results), len(firstLayerQueries))
	}
	cosetSize := int(util.Pow2(firstStep))
	v.queryResults = make([]fr.Element, 0, len(v.queryIndices))
	for i := 0; i < len(firstLayerQueries); i += cosetSize {
		res, err := applyFriLayers(results[i:i+cosetSize], v.firstEvalPoint, v.params, 0,
			firstLayerQueries[i])
		if err != nil {
			return err
		}
		v.queryResults = append(v.queryResults, res)
	}
	return nil
}

func (v *Verifier) verifyInnerLayers() error {
	firstStep := v.params.StepList[0]
	basisIndex := 0
	for i := 0; i < len(v.params.StepList)-1; i++ {
		curStep := v.params.StepList[i+1]
		basisIndex += v.params.StepList[i]

		data, integrity := nextLayerDataAndIntegrityQueries(v.queryIndices, v.params, i+1)
		toVerify, err := v.tableVerifiers[i].Query(data, integrity)
		if err != nil {
			return fmt.Errorf("failed to query FRI layer %d: %w", i+1, err)
		}
		for j, q := range v.queryIndices {
			toVerify[tableRowCol(q>>(basisIndex-firstStep), curStep)] = v.queryResults[j]
		}

		cosetSize := util.Pow2(curStep)
		for j, q := range v.queryIndices {
			cosetStart := (q >> (basisIndex - firstStep)) >> curStep
			elements := make([]fr.Element, cosetSize)
			for k := uint64(0); k < cosetSize; k++ {
				val, ok := toVerify[commitment.RowCol{Row: cosetStart, Col: k}]
				if !ok {
					return fmt.Errorf("missing cell (%d, %d) in FRI layer %d", cosetStart, k, i+1)
				}
				elements[k] = val
			}
			res, err := applyFriLayers(elements, &v.evalPoints[i], v.params, i+1, cosetStart*cosetSize)
			if err != nil {
				return err
			}
			v.queryResults[j] = res
		}

		ok, err := v.tableVerifiers[i].VerifyDecommitment(toVerify)
		if err != nil {
			return fmt.Errorf("failed to verify FRI layer %d decommitment: %w", i+1, err)
		}
		if !ok {
			return fmt.Errorf("FRI layer %d failed decommitment", i+1)
		}
	}
	return nil
}

func (v *Verifier) verifyLastLayer() error {
	firstStep := v.params.StepList[0]
	sum := v.params.sumOfSteps()
	for j := range v.queryResults {
		queryIndex := v.queryIndices[j] >> (sum - firstStep)
		expected := v.expectedLastLayer[queryIndex]
		if !v.queryResults[j].Equal(&expected) {
			return fmt.Errorf("FRI query #%d is not consistent with the coefficients of the last layer", j)
		}
	}
	return nil
}

type verifierQueryChannel struct{ ch *transcript.Verifier }

func (c verifierQueryChannel) proofOfWork(bits int) error {
	return c.ch.VerifyProofOfWork(bits)
}

func (c verifierQueryChannel) randomNumber(bound uint64) uint64 {
	return c.ch.GetRandomNumber(bound)
}
