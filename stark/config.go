package stark

import (
	"github.com/starkforge/stark/fri"
	"github.com/starkforge/stark/lde"
)

// ProverConfig tunes the prover's memory/latency tradeoff. It never affects
// the transcript, so any configuration verifies against any other.
type ProverConfig struct {
	// LDE controls caching of coset evaluations between the commitment and
	// the constraint-evaluation passes.
	LDE lde.Config
	// ConstraintPolynomialTaskSize is the per-task chunk of the parallel
	// constraint evaluation.
	ConstraintPolynomialTaskSize uint64
	// Fri is forwarded to the FRI prover.
	Fri fri.ProverConfig
}

// DefaultProverConfig caches the full LDE; the right choice for traces that
// fit in memory.
func DefaultProverConfig() ProverConfig {
	return ProverConfig{
		LDE:                          lde.Config{StoreFullLDE: true},
		ConstraintPolynomialTaskSize: 256,
		Fri:                          fri.DefaultProverConfig(),
	}
}

func (c *ProverConfig) normalize() {
	if c.ConstraintPolynomialTaskSize == 0 {
		c.ConstraintPolynomialTaskSize = 256
	}
}
