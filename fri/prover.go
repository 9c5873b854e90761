package fri

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// Prover runs the FRI protocol over a witness evaluation. The witness
// covers the first bit-reversed cosets of the domain; the first layer
// extends it to the full domain by LDE. The witness commitment itself lives
// outside FRI and is decommitted through firstLayerCallback.
type Prover struct {
	channel            *transcript.Prover
	params             *Parameters
	cfg                ProverConfig
	witness            []fr.Element
	firstLayerCallback FirstLayerCallback
	committedLayers    []committedLayer
}

func NewProver(channel *transcript.Prover, params *Parameters, cfg ProverConfig,
	witness []fr.Element, firstLayerCallback FirstLayerCallback) (*Prover, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid FRI parameters: %w", err)
	}
	cfg.normalize()
	if firstLayerCallback == nil {
		return nil, fmt.Errorf("missing first layer callback")
	}
	p := &Prover{
		channel:            channel,
		params:             params,
		cfg:                cfg,
		witness:            witness,
		firstLayerCallback: firstLayerCallback,
	}
	p.committedLayers = append(p.committedLayers, &callbackLayer{
		friStep:  params.StepList[0],
		callback: firstLayerCallback,
	})
	return p, nil
}

// Prove runs the commitment, last-layer, query and decommitment phases.
func (p *Prover) Prove() error {
	p.channel.EnterScope("Commitment")
	lastLayer, err := p.commitmentPhase()
	if err != nil {
		p.channel.ExitScope()
		return err
	}
	p.channel.EnterScope("Last Layer")
	err = p.sendLastLayer(lastLayer)
	p.channel.ExitScope()
	p.channel.ExitScope()
	if err != nil {
		return err
	}

	queries, err := chooseQueryIndices(proverQueryChannel{p.channel},
		p.params.Bases.Size(p.params.StepList[0]), p.params.NQueries, p.params.ProofOfWorkBits)
	if err != nil {
		return err
	}
	// No verifier randomness may be requested past this point.
	p.channel.BeginQueryPhase()

	p.channel.EnterScope("Decommitment")
	defer p.channel.ExitScope()
	for i, layer := range p.committedLayers {
		p.channel.EnterScope(fmt.Sprintf("Layer %d", i))
		err := layer.decommit(queries)
		p.channel.ExitScope()
		if err != nil {
			return fmt.Errorf("failed to decommit FRI layer %d: %w", i, err)
		}
	}
	return nil
}

// commitmentPhase folds the witness round by round, committing every layer
// but the last. A layer is materialized in memory when small enough, when
// it is the last, or when further chunking would degenerate; otherwise it
// stays out of memory and is recomputed per chunk. The first in-memory
// transition shrinks the coset first so the preceding LDE stays small.
func (p *Prover) commitmentPhase() (Layer, error) {
	nLayers := len(p.params.StepList)
	firstInMemory := true
	cosetSize := uint64(len(p.witness))
	inMemoryBudget := util.Pow2(p.cfg.LogNMaxInMemoryElements)

	var current Layer
	current, err := NewOutOfMemoryLayer(p.witness, p.params.Bases)
	if err != nil {
		return nil, fmt.Errorf("failed to build the first FRI layer: %w", err)
	}

	for layerNum := 1; layerNum <= nLayers; layerNum++ {
		friStep := p.params.StepList[layerNum-1]
		nextFriStep := 0
		if layerNum < nLayers {
			nextFriStep = p.params.StepList[layerNum]
		}
		isChunkTooSmall := current.ChunkSize()/util.Pow2(nextFriStep+friStep) < 2
		isInMemory := current.Size() <= inMemoryBudget || layerNum == nLayers || isChunkTooSmall

		p.channel.EnterScope(fmt.Sprintf("Layer %d", layerNum))
		current = p.createNextLayer(current, friStep)

		if isInMemory {
			if firstInMemory && friStep != 0 {
				cosetSize /= util.Pow2(friStep)
				current, err = NewOutOfMemoryLayerFromPrevious(current, cosetSize)
				if err != nil {
					p.channel.ExitScope()
					return nil, err
				}
			}
			firstInMemory = false
			current, err = NewInMemoryLayer(current)
		} else {
			cosetSize /= util.Pow2(friStep)
			current, err = NewOutOfMemoryLayerFromPrevious(current, cosetSize)
		}
		if err != nil {
			p.channel.ExitScope()
			return nil, err
		}

		if layerNum == nLayers {
			p.channel.ExitScope()
			break
		}
		committed, err := newTableCommittedLayer(p.channel, nextFriStep, current, p.params, layerNum)
		p.channel.ExitScope()
		if err != nil {
			return nil, fmt.Errorf("failed to commit FRI layer %d: %w", layerNum, err)
		}
		p.committedLayers = append(p.committedLayers, committed)
	}
	return current, nil
}

// createNextLayer draws the round's evaluation point and stacks one proxy
// per halving; the point squares along with the domain.
func (p *Prover) createNextLayer(current Layer, friStep int) Layer {
	var evalPoint fr.Element
	if friStep != 0 {
		evalPoint = p.channel.GetRandomFieldElementFromVerifier()
	}
	for j := 0; j < friStep; j++ {
		current = NewProxyLayer(current, evalPoint, &p.cfg)
		evalPoint = algebra.ApplyBasisTransform(evalPoint)
	}
	return current
}

// sendLastLayer interpolates the last layer, enforces the degree bound and
// sends the coefficients in the clear.
func (p *Prover) sendLastLayer(last Layer) error {
	evals, err := materialize(last)
	if err != nil {
		return fmt.Errorf("failed to materialize the last FRI layer: %w", err)
	}
	sum := p.params.sumOfSteps()
	coeffs := algebra.InterpolateBitReversed(evals, p.params.Bases.Offset(sum))
	degree := algebra.Degree(coeffs)
	if degree >= int(p.params.LastLayerDegreeBound) {
		return fmt.Errorf("last FRI layer is of degree %d, expected degree < %d",
			degree, p.params.LastLayerDegreeBound)
	}
	return p.channel.SendFieldElementSpan(coeffs[:p.params.LastLayerDegreeBound])
}

type proverQueryChannel struct{ ch *transcript.Prover }

func (c proverQueryChannel) proofOfWork(bits int) error {
	c.ch.ApplyProofOfWork(bits)
	return nil
}

func (c proverQueryChannel) randomNumber(bound uint64) uint64 {
	return c.ch.GetRandomNumberFromVerifier(bound)
}
