package algebra

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/util"
)

// Bases is a chain of geometrically shrinking evaluation domains. Layer 0 is
// the coset offset*<g> of size 2^logSize enumerated in bit-reversed order;
// layer k+1 is the image of layer k under squaring, so it has half the size,
// offset^2 for an offset and g^2 for a generator. Adjacent bit-reversed
// indices (2i, 2i+1) of any layer hold a (x, -x) pair, which is the ordering
// the folding and query index arithmetic relies on throughout.
type Bases struct {
	logSize int
	offsets []fr.Element // offsets[k] = offset^(2^k)
	gens    []fr.Element // gens[k] = generator of the layer-k group
}

// NewBases creates the chain for a domain of size 2^logSize with the given
// layer-0 offset.
func NewBases(logSize int, offset fr.Element) *Bases {
	offsets := make([]fr.Element, logSize+1)
	gens := make([]fr.Element, logSize+1)
	offsets[0] = offset
	gens[0] = GroupGenerator(uint64(1) << uint(logSize))
	for k := 1; k <= logSize; k++ {
		offsets[k].Square(&offsets[k-1])
		gens[k].Square(&gens[k-1])
	}
	return &Bases{logSize: logSize, offsets: offsets, gens: gens}
}

// NumLayers returns the number of layers; the deepest layer has size 1.
func (b *Bases) NumLayers() int { return b.logSize + 1 }

// LogSize returns log2 of the layer size.
func (b *Bases) LogSize(layer int) int { return b.logSize - layer }

// Size returns the number of elements of the layer.
func (b *Bases) Size(layer int) uint64 { return util.Pow2(b.logSize - layer) }

// Offset returns the coset offset of the layer.
func (b *Bases) Offset(layer int) fr.Element { return b.offsets[layer] }

// Generator returns the subgroup generator of the layer.
func (b *Bases) Generator(layer int) fr.Element { return b.gens[layer] }

// ElementAt returns the idx-th element of the layer in bit-reversed order:
// offset * g^bitrev(idx).
func (b *Bases) ElementAt(layer int, idx uint64) fr.Element {
	nbits := b.logSize - layer
	p := Pow(b.gens[layer], BitReverse(idx, nbits))
	p.Mul(&p, &b.offsets[layer])
	return p
}

// ApplyBasisTransform maps a layer element to the corresponding element of
// the next layer.
func ApplyBasisTransform(x fr.Element) fr.Element {
	var y fr.Element
	y.Square(&x)
	return y
}

// FromLayer returns the chain that starts at the given layer.
func (b *Bases) FromLayer(layer int) *Bases {
	if layer < 0 || layer > b.logSize {
		panic(fmt.Sprintf("bases layer out of range: %d", layer))
	}
	return &Bases{
		logSize: b.logSize - layer,
		offsets: b.offsets[layer:],
		gens:    b.gens[layer:],
	}
}

// SplitToCosets splits layer 0 into 2^logCosets chunks of consecutive
// bit-reversed indices. Chunk j is itself a coset of the 2^logCosets-times
// smaller subgroup, enumerated in bit-reversed order; the returned bases
// describe the chunk shape (with chunk 0's offset) and the returned offsets
// give each chunk's coset offset.
func (b *Bases) SplitToCosets(logCosets int) (*Bases, []fr.Element) {
	if logCosets < 0 || logCosets > b.logSize {
		panic(fmt.Sprintf("cannot split %d layers into 2^%d cosets", b.logSize, logCosets))
	}
	n := util.Pow2(logCosets)
	offsets := make([]fr.Element, n)
	for j := uint64(0); j < n; j++ {
		p := Pow(b.gens[0], BitReverse(j, logCosets))
		offsets[j].Mul(&p, &b.offsets[0])
	}
	cosetGen := Pow(b.gens[0], n)
	cosetBases := &Bases{
		logSize: b.logSize - logCosets,
		offsets: make([]fr.Element, b.logSize-logCosets+1),
		gens:    make([]fr.Element, b.logSize-logCosets+1),
	}
	cosetBases.offsets[0] = b.offsets[0]
	cosetBases.gens[0] = cosetGen
	for k := 1; k <= cosetBases.logSize; k++ {
		cosetBases.offsets[k].Square(&cosetBases.offsets[k-1])
		cosetBases.gens[k].Square(&cosetBases.gens[k-1])
	}
	return cosetBases, offsets
}
