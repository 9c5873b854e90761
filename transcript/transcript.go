// Package transcript implements the non-interactive prover/verifier channel:
// a Keccak-256 transcript from which all verifier randomness is derived, the
// proof byte stream, and the query-phase boundary after which prover sends
// no longer influence randomness.
package transcript

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/starkforge/stark/crypto/hash/poseidon"
	"github.com/starkforge/stark/log"
)

const digestLen = 32

// channelState is the part shared by both roles; the two sides stay
// synchronized because they perform the exact same sequence of mix and
// squeeze operations.
type channelState struct {
	digest     [digestLen]byte
	counter    uint64
	queryPhase bool
	// verifierFriendly switches field-element span absorption to a single
	// Poseidon hash, cheap to recompute inside a recursive verifier.
	verifierFriendly bool
	scopes           []string
}

func newChannelState(seed []byte, verifierFriendly bool) channelState {
	var s channelState
	copy(s.digest[:], crypto.Keccak256(seed))
	s.verifierFriendly = verifierFriendly
	return s
}

// mix absorbs prover data into the transcript.
func (s *channelState) mix(data []byte) {
	copy(s.digest[:], crypto.Keccak256(s.digest[:], data))
	s.counter = 0
}

// squeeze derives the next 32 pseudo-random bytes without changing the
// absorbed state, so consecutive draws need no prover traffic in between.
func (s *channelState) squeeze() [digestLen]byte {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], s.counter)
	s.counter++
	var out [digestLen]byte
	copy(out[:], crypto.Keccak256(s.digest[:], ctr[:]))
	return out
}

func (s *channelState) mixFieldSpan(values []fr.Element) error {
	if s.queryPhase {
		return nil
	}
	if !s.verifierFriendly {
		for i := range values {
			b := values[i].Bytes()
			s.mix(b[:])
		}
		return nil
	}
	inputs := make([]*big.Int, len(values))
	for i := range values {
		inputs[i] = new(big.Int)
		values[i].BigInt(inputs[i])
	}
	h, err := poseidon.MultiPoseidon(inputs...)
	if err != nil {
		return fmt.Errorf("failed to hash field span: %w", err)
	}
	var buf [digestLen]byte
	h.FillBytes(buf[:])
	s.mix(buf[:])
	return nil
}

// randomFieldElement derives one verifier-random field element.
func (s *channelState) randomFieldElement() fr.Element {
	h := s.squeeze()
	var e fr.Element
	e.SetBytes(h[:])
	return e
}

// randomNumber derives a uniform number below bound; bound must be a power
// of two.
func (s *channelState) randomNumber(bound uint64) uint64 {
	h := s.squeeze()
	return binary.LittleEndian.Uint64(h[:8]) & (bound - 1)
}

// VerifierFriendly reports whether field-element spans are absorbed through
// a single Poseidon hash.
func (s *channelState) VerifierFriendly() bool { return s.verifierFriendly }

// beginQueryPhase irrevocably stops transcript updates from prover sends;
// query responses must not influence already-fixed randomness.
func (s *channelState) beginQueryPhase() { s.queryPhase = true }

// EnterScope pushes an annotation label; scopes only affect debug logging.
func (s *channelState) EnterScope(name string) {
	s.scopes = append(s.scopes, name)
	log.Debugw("channel scope enter", "scope", name)
}

// ExitScope pops the innermost annotation label.
func (s *channelState) ExitScope() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func leadingZeroBits(h []byte) int {
	bits := 0
	for _, b := range h {
		if b == 0 {
			bits += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}
