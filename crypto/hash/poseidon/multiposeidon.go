// Package poseidon provides a variadic Poseidon hash over field elements,
// used for the verifier-friendly transcript updates: recomputing the
// absorption of a long span inside an arithmetic circuit is much cheaper
// with Poseidon than with a byte-oriented hash.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// maxArity is the largest input count accepted by a single Poseidon
// permutation in go-iden3-crypto.
const maxArity = 16

// MultiPoseidon hashes any number of inputs by folding them in chunks of
// maxArity and hashing the chunk digests again until one digest remains.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	for {
		hashes := make([]*big.Int, 0, (len(inputs)+maxArity-1)/maxArity)
		for s := 0; s < len(inputs); s += maxArity {
			e := s + maxArity
			if e > len(inputs) {
				e = len(inputs)
			}
			h, err := poseidon.Hash(inputs[s:e])
			if err != nil {
				return nil, fmt.Errorf("failed to hash chunk: %w", err)
			}
			hashes = append(hashes, h)
		}
		if len(hashes) == 1 {
			return hashes[0], nil
		}
		inputs = hashes
	}
}
