// Package fri implements the FRI low-degree test: the prover commits to a
// chain of geometrically folded layers of the witness evaluation, sends the
// last layer's coefficients in the clear, and answers queries with
// decommitted values the verifier folds down the same chain.
package fri

import (
	"fmt"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/util"
)

// Parameters fixes one FRI instance. The witness is claimed to be the
// evaluation of a polynomial of degree < LastLayerDegreeBound * prod
// 2^StepList[i] on the first layer's domain.
type Parameters struct {
	// StepList holds the per-round folding exponents; the degree halves
	// 2^StepList[i] times in round i. Only the first round may be zero.
	StepList             []int
	LastLayerDegreeBound uint64
	NQueries             int
	ProofOfWorkBits      int
	// Bases describes the first layer's evaluation domain and all its
	// squaring-transform sub-domains.
	Bases *algebra.Bases
}

// ExpectedDegreeBound is the degree bound the FRI instance certifies.
func (p *Parameters) ExpectedDegreeBound() uint64 {
	bound := p.LastLayerDegreeBound
	for _, s := range p.StepList {
		bound *= util.Pow2(s)
	}
	return bound
}

// Validate checks the parameter invariants shared by prover and verifier.
func (p *Parameters) Validate() error {
	if len(p.StepList) == 0 {
		return fmt.Errorf("empty FRI step list")
	}
	sum := 0
	for i, s := range p.StepList {
		if s < 0 {
			return fmt.Errorf("negative FRI step %d at round %d", s, i)
		}
		if s == 0 && i > 0 {
			return fmt.Errorf("zero FRI step is only allowed in the first round")
		}
		sum += s
	}
	if !util.IsPowerOfTwo(p.LastLayerDegreeBound) {
		return fmt.Errorf("last layer degree bound %d is not a power of two", p.LastLayerDegreeBound)
	}
	if p.Bases == nil {
		return fmt.Errorf("missing FFT bases")
	}
	if sum >= p.Bases.NumLayers() {
		return fmt.Errorf("FRI steps sum to %d, exceeding the domain's %d halvings",
			sum, p.Bases.NumLayers()-1)
	}
	if p.ExpectedDegreeBound() > p.Bases.Size(0) {
		return fmt.Errorf("expected degree bound %d exceeds the domain size %d",
			p.ExpectedDegreeBound(), p.Bases.Size(0))
	}
	if p.NQueries <= 0 {
		return fmt.Errorf("n_queries must be positive")
	}
	return nil
}

func (p *Parameters) sumOfSteps() int {
	sum := 0
	for _, s := range p.StepList {
		sum += s
	}
	return sum
}

// ProverConfig tunes the prover's memory/latency tradeoff; it does not
// affect the transcript.
type ProverConfig struct {
	// MaxNonChunkedLayerSize is the largest fold the prover runs as a
	// single task group.
	MaxNonChunkedLayerSize uint64
	// NChunksBetweenLayers splits larger folds into this many chunks.
	NChunksBetweenLayers uint64
	// LogNMaxInMemoryElements bounds the size of layers kept fully
	// materialized; larger layers are recomputed from their predecessors.
	LogNMaxInMemoryElements int
}

// DefaultProverConfig keeps every layer in memory.
func DefaultProverConfig() ProverConfig {
	return ProverConfig{
		MaxNonChunkedLayerSize:  32768,
		NChunksBetweenLayers:    32,
		LogNMaxInMemoryElements: 63,
	}
}

func (c *ProverConfig) normalize() {
	if c.MaxNonChunkedLayerSize == 0 {
		c.MaxNonChunkedLayerSize = 32768
	}
	if c.NChunksBetweenLayers == 0 {
		c.NChunksBetweenLayers = 32
	}
	if c.LogNMaxInMemoryElements == 0 {
		c.LogNMaxInMemoryElements = 63
	}
}
