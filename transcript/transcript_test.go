package transcript

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"
)

func TestProverVerifierStaySynchronized(t *testing.T) {
	seed := []byte("public input")
	p := NewProver(seed, false)

	var a, b fr.Element
	a.SetUint64(17)
	b.SetUint64(23)

	p.SendFieldElement(a)
	r1 := p.GetRandomFieldElementFromVerifier()
	qt.Assert(t, p.SendFieldElementSpan([]fr.Element{a, b}), qt.IsNil)
	r2 := p.GetRandomFieldElementFromVerifier()
	n1 := p.GetRandomNumberFromVerifier(64)

	v := NewVerifier(seed, p.Proof(), false)
	got, err := v.ReceiveFieldElement()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Equal(&a), qt.IsTrue)
	vr1 := v.GetRandomFieldElement()
	qt.Assert(t, vr1.Equal(&r1), qt.IsTrue)
	span, err := v.ReceiveFieldElementSpan(2)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, span[1].Equal(&b), qt.IsTrue)
	vr2 := v.GetRandomFieldElement()
	qt.Assert(t, vr2.Equal(&r2), qt.IsTrue)
	qt.Assert(t, v.GetRandomNumber(64), qt.Equals, n1)
	qt.Assert(t, v.GetRandomNumber(64) < 64, qt.IsTrue)
}

func TestVerifierFriendlySpanAbsorption(t *testing.T) {
	seed := []byte("seed")
	var a fr.Element
	a.SetUint64(99)

	p := NewProver(seed, true)
	qt.Assert(t, p.SendFieldElementSpan([]fr.Element{a, a, a}), qt.IsNil)
	r := p.GetRandomFieldElementFromVerifier()

	v := NewVerifier(seed, p.Proof(), true)
	_, err := v.ReceiveFieldElementSpan(3)
	qt.Assert(t, err, qt.IsNil)
	vr := v.GetRandomFieldElement()
	qt.Assert(t, vr.Equal(&r), qt.IsTrue)

	// The two absorption modes must diverge.
	plain := NewVerifier(seed, p.Proof(), false)
	_, err = plain.ReceiveFieldElementSpan(3)
	qt.Assert(t, err, qt.IsNil)
	pr := plain.GetRandomFieldElement()
	qt.Assert(t, pr.Equal(&r), qt.IsFalse)
}

func TestQueryPhaseFreezesRandomness(t *testing.T) {
	seed := []byte("seed")
	p := NewProver(seed, false)
	var a fr.Element
	a.SetUint64(5)
	p.SendFieldElement(a)
	p.BeginQueryPhase()
	r1 := p.GetRandomFieldElementFromVerifier()
	p.SendFieldElement(a) // must not affect the transcript now

	p2 := NewProver(seed, false)
	p2.SendFieldElement(a)
	p2.BeginQueryPhase()
	r2 := p2.GetRandomFieldElementFromVerifier()
	qt.Assert(t, r1.Equal(&r2), qt.IsTrue)
}

func TestProofOfWorkRoundTrip(t *testing.T) {
	seed := []byte("pow")
	p := NewProver(seed, false)
	p.ApplyProofOfWork(8)

	v := NewVerifier(seed, p.Proof(), false)
	qt.Assert(t, v.VerifyProofOfWork(8), qt.IsNil)

	// A corrupted nonce must be rejected.
	proof := append([]byte{}, p.Proof()...)
	proof[len(proof)-1] ^= 0xff
	v2 := NewVerifier(seed, proof, false)
	err := v2.VerifyProofOfWork(8)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestTamperedProofDesynchronizes(t *testing.T) {
	seed := []byte("seed")
	p := NewProver(seed, false)
	var a fr.Element
	a.SetUint64(5)
	p.SendFieldElement(a)
	r := p.GetRandomFieldElementFromVerifier()

	proof := append([]byte{}, p.Proof()...)
	proof[0] ^= 1
	v := NewVerifier(seed, proof, false)
	_, err := v.ReceiveFieldElement()
	qt.Assert(t, err, qt.IsNil)
	vr := v.GetRandomFieldElement()
	qt.Assert(t, vr.Equal(&r), qt.IsFalse)
}

func TestReceivePastEndOfProof(t *testing.T) {
	v := NewVerifier([]byte("seed"), []byte{1, 2, 3}, false)
	_, err := v.ReceiveFieldElement()
	qt.Assert(t, err, qt.IsNotNil)
}
