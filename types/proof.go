package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Proof is the serialized STARK proof artifact: the full non-interactive
// transcript plus the public parameters needed to replay it.
type Proof struct {
	Transcript           HexBytes `json:"transcript"           cbor:"0,keyasint"`
	TraceLength          uint64   `json:"traceLength"          cbor:"1,keyasint"`
	NCosets              uint64   `json:"nCosets"              cbor:"2,keyasint"`
	FriStepList          []int    `json:"friStepList"          cbor:"3,keyasint"`
	LastLayerDegreeBound uint64   `json:"lastLayerDegreeBound" cbor:"4,keyasint"`
	NQueries             int      `json:"nQueries"             cbor:"5,keyasint"`
	ProofOfWorkBits      int      `json:"proofOfWorkBits"      cbor:"6,keyasint"`
	PublicInput          HexBytes `json:"publicInput,omitempty" cbor:"7,keyasint,omitempty"`
}

// Marshal encodes the proof with CBOR.
func (p *Proof) Marshal() ([]byte, error) {
	data, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proof: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR-encoded proof.
func (p *Proof) Unmarshal(data []byte) error {
	if err := cbor.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to unmarshal proof: %w", err)
	}
	return nil
}
