package transcript

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier is the verifying side of the channel: it reads the proof byte
// stream while replaying the exact transcript updates of the prover, so its
// derived randomness matches.
type Verifier struct {
	channelState
	proof []byte
	pos   int
}

// NewVerifier creates a verifier channel over a proof, seeded with the same
// public input bytes as the prover's.
func NewVerifier(seed, proof []byte, verifierFriendly bool) *Verifier {
	return &Verifier{channelState: newChannelState(seed, verifierFriendly), proof: proof}
}

// ReceiveBytes reads n proof bytes and absorbs them.
func (v *Verifier) ReceiveBytes(n int) ([]byte, error) {
	if v.pos+n > len(v.proof) {
		return nil, fmt.Errorf("proof too short: need %d bytes at offset %d of %d",
			n, v.pos, len(v.proof))
	}
	data := v.proof[v.pos : v.pos+n]
	v.pos += n
	if !v.queryPhase {
		v.mix(data)
	}
	return data, nil
}

// ReceiveFieldElement reads one field element.
func (v *Verifier) ReceiveFieldElement() (fr.Element, error) {
	var e fr.Element
	data, err := v.ReceiveBytes(digestLen)
	if err != nil {
		return e, err
	}
	e.SetBytes(data)
	return e, nil
}

// ReceiveFieldElementSpan reads n field elements, mirroring
// SendFieldElementSpan's absorption mode.
func (v *Verifier) ReceiveFieldElementSpan(n int) ([]fr.Element, error) {
	if v.pos+n*digestLen > len(v.proof) {
		return nil, fmt.Errorf("proof too short: need %d field elements at offset %d of %d",
			n, v.pos, len(v.proof))
	}
	values := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		values[i].SetBytes(v.proof[v.pos : v.pos+digestLen])
		v.pos += digestLen
	}
	if err := v.mixFieldSpan(values); err != nil {
		return nil, fmt.Errorf("failed to absorb field span: %w", err)
	}
	return values, nil
}

// GetRandomFieldElement derives one verifier-random element.
func (v *Verifier) GetRandomFieldElement() fr.Element {
	return v.randomFieldElement()
}

// GetRandomNumber derives a uniform number below the power-of-two bound.
func (v *Verifier) GetRandomNumber(bound uint64) uint64 {
	return v.randomNumber(bound)
}

// VerifyProofOfWork reads the grinding nonce and checks it against the
// transcript state preceding it.
func (v *Verifier) VerifyProofOfWork(bits int) error {
	if bits <= 0 {
		return nil
	}
	digest := v.digest
	nonce, err := v.ReceiveBytes(8)
	if err != nil {
		return fmt.Errorf("failed to read proof-of-work nonce: %w", err)
	}
	if leadingZeroBits(crypto.Keccak256(digest[:], nonce)) < bits {
		return fmt.Errorf("proof of work verification failed")
	}
	return nil
}

// BeginQueryPhase marks the point after which received data no longer
// updates the transcript.
func (v *Verifier) BeginQueryPhase() { v.beginQueryPhase() }

// Remaining returns the number of unread proof bytes.
func (v *Verifier) Remaining() int { return len(v.proof) - v.pos }
