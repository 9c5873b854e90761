package transcript

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

// Prover is the proving side of the channel: it appends everything it sends
// to the proof byte stream and absorbs it into the transcript (until the
// query phase), and derives verifier randomness from the transcript.
type Prover struct {
	channelState
	proof bytes.Buffer
}

// NewProver creates a prover channel seeded with the public input bytes.
func NewProver(seed []byte, verifierFriendly bool) *Prover {
	return &Prover{channelState: newChannelState(seed, verifierFriendly)}
}

// SendBytes appends data to the proof and absorbs it.
func (p *Prover) SendBytes(data []byte) {
	p.proof.Write(data)
	if !p.queryPhase {
		p.mix(data)
	}
}

// SendFieldElement sends one field element.
func (p *Prover) SendFieldElement(value fr.Element) {
	b := value.Bytes()
	p.SendBytes(b[:])
}

// SendFieldElementSpan sends a span of field elements. In verifier-friendly
// mode the span is absorbed as a single Poseidon hash instead of
// element-by-element.
func (p *Prover) SendFieldElementSpan(values []fr.Element) error {
	for i := range values {
		b := values[i].Bytes()
		p.proof.Write(b[:])
	}
	if err := p.mixFieldSpan(values); err != nil {
		return fmt.Errorf("failed to absorb field span: %w", err)
	}
	return nil
}

// GetRandomFieldElementFromVerifier derives one verifier-random element.
func (p *Prover) GetRandomFieldElementFromVerifier() fr.Element {
	return p.randomFieldElement()
}

// GetRandomNumberFromVerifier derives a uniform number below the
// power-of-two bound.
func (p *Prover) GetRandomNumberFromVerifier(bound uint64) uint64 {
	return p.randomNumber(bound)
}

// ApplyProofOfWork grinds a nonce whose hash against the current transcript
// has at least bits leading zero bits and sends it. A zero bit count is a
// no-op.
func (p *Prover) ApplyProofOfWork(bits int) {
	if bits <= 0 {
		return
	}
	var nonce [8]byte
	for n := uint64(0); ; n++ {
		binary.BigEndian.PutUint64(nonce[:], n)
		if leadingZeroBits(crypto.Keccak256(p.digest[:], nonce[:])) >= bits {
			break
		}
	}
	p.SendBytes(nonce[:])
}

// BeginQueryPhase marks the point after which sent data no longer updates
// the transcript.
func (p *Prover) BeginQueryPhase() { p.beginQueryPhase() }

// Proof returns the accumulated proof bytes.
func (p *Prover) Proof() []byte { return p.proof.Bytes() }
