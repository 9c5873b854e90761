package fri

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/lde"
	"github.com/starkforge/stark/util"
)

// Layer is one evaluation in the FRI folding chain, stored bit-reversed
// over its domain. Variants trade memory for recomputation: in-memory
// layers hold the full evaluation, out-of-memory layers hold one coset and
// extend by LDE on demand, proxy layers fold their predecessor on demand.
type Layer interface {
	Size() uint64
	// Bases describes the layer's domain; layer 0 of the returned chain.
	Bases() *algebra.Bases
	// ChunkSize is the natural materialization granularity.
	ChunkSize() uint64
	// Chunk materializes the bit-reversed range [start, start+len(out)).
	// start and len(out) must be multiples of ChunkSize, or cover the
	// whole layer.
	Chunk(out []fr.Element, start uint64) error
	// EvalAtIndices evaluates at arbitrary bit-reversed domain indices.
	EvalAtIndices(indices []uint64) ([]fr.Element, error)
}

// materialize evaluates a whole layer chunk by chunk.
func materialize(l Layer) ([]fr.Element, error) {
	out := make([]fr.Element, l.Size())
	cs := l.ChunkSize()
	if cs == 0 || cs > uint64(len(out)) {
		cs = uint64(len(out))
	}
	for start := uint64(0); start < uint64(len(out)); start += cs {
		if err := l.Chunk(out[start:start+cs], start); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InMemoryLayer holds the full evaluation.
type InMemoryLayer struct {
	evals []fr.Element
	bases *algebra.Bases
}

// NewInMemoryLayer materializes prev.
func NewInMemoryLayer(prev Layer) (*InMemoryLayer, error) {
	evals, err := materialize(prev)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize layer: %w", err)
	}
	return &InMemoryLayer{evals: evals, bases: prev.Bases()}, nil
}

// NewInMemoryLayerFromEvaluation wraps an existing bit-reversed evaluation.
func NewInMemoryLayerFromEvaluation(evals []fr.Element, bases *algebra.Bases) (*InMemoryLayer, error) {
	if uint64(len(evals)) != bases.Size(0) {
		return nil, fmt.Errorf("evaluation has %d elements, domain has %d", len(evals), bases.Size(0))
	}
	return &InMemoryLayer{evals: evals, bases: bases}, nil
}

func (l *InMemoryLayer) Size() uint64          { return uint64(len(l.evals)) }
func (l *InMemoryLayer) Bases() *algebra.Bases { return l.bases }
func (l *InMemoryLayer) ChunkSize() uint64     { return uint64(len(l.evals)) }

func (l *InMemoryLayer) Chunk(out []fr.Element, start uint64) error {
	if start+uint64(len(out)) > uint64(len(l.evals)) {
		return fmt.Errorf("chunk [%d, %d) out of range", start, start+uint64(len(out)))
	}
	copy(out, l.evals[start:])
	return nil
}

func (l *InMemoryLayer) EvalAtIndices(indices []uint64) ([]fr.Element, error) {
	out := make([]fr.Element, len(indices))
	for i, idx := range indices {
		if idx >= uint64(len(l.evals)) {
			return nil, fmt.Errorf("index %d out of range (layer size %d)", idx, len(l.evals))
		}
		out[i] = l.evals[idx]
	}
	return out, nil
}

// Evaluation returns the stored evaluation without copying.
func (l *InMemoryLayer) Evaluation() []fr.Element { return l.evals }

// OutOfMemoryLayer holds the evaluation on the first coset of its domain
// and recomputes the remaining cosets by low-degree extension on demand.
type OutOfMemoryLayer struct {
	mgr       *lde.Manager
	bases     *algebra.Bases
	cosetSize uint64
	size      uint64
}

// NewOutOfMemoryLayer builds the layer from the evaluation on the domain's
// first bit-reversed coset. For the honest prover the coset size equals the
// layer polynomial's degree bound, so the extension reproduces the layer
// exactly.
func NewOutOfMemoryLayer(firstCoset []fr.Element, bases *algebra.Bases) (*OutOfMemoryLayer, error) {
	cosetSize := uint64(len(firstCoset))
	size := bases.Size(0)
	if cosetSize == 0 || cosetSize > size {
		return nil, fmt.Errorf("coset size %d incompatible with domain size %d", cosetSize, size)
	}
	nCosets, err := util.SafeDiv(size, cosetSize)
	if err != nil {
		return nil, fmt.Errorf("coset size %d does not divide domain size %d: %w", cosetSize, size, err)
	}
	logCosets, err := util.Log2(nCosets)
	if err != nil {
		return nil, fmt.Errorf("invalid coset count: %w", err)
	}
	cosetBases, offsets := bases.SplitToCosets(logCosets)
	mgr := lde.NewManager(lde.Config{}, cosetBases, offsets)
	if err := mgr.AddEvaluation(firstCoset); err != nil {
		return nil, fmt.Errorf("failed to interpolate first coset: %w", err)
	}
	return &OutOfMemoryLayer{mgr: mgr, bases: bases, cosetSize: cosetSize, size: size}, nil
}

// NewOutOfMemoryLayerFromPrevious materializes the first cosetSize elements
// of prev and extends from them.
func NewOutOfMemoryLayerFromPrevious(prev Layer, cosetSize uint64) (*OutOfMemoryLayer, error) {
	firstCoset := make([]fr.Element, cosetSize)
	if err := prev.Chunk(firstCoset, 0); err != nil {
		return nil, fmt.Errorf("failed to materialize first coset: %w", err)
	}
	return NewOutOfMemoryLayer(firstCoset, prev.Bases())
}

func (l *OutOfMemoryLayer) Size() uint64          { return l.size }
func (l *OutOfMemoryLayer) Bases() *algebra.Bases { return l.bases }
func (l *OutOfMemoryLayer) ChunkSize() uint64     { return l.cosetSize }

func (l *OutOfMemoryLayer) Chunk(out []fr.Element, start uint64) error {
	if start%l.cosetSize != 0 || uint64(len(out))%l.cosetSize != 0 {
		return fmt.Errorf("chunk [%d, +%d) not aligned to coset size %d", start, len(out), l.cosetSize)
	}
	if start+uint64(len(out)) > l.size {
		return fmt.Errorf("chunk [%d, %d) out of range", start, start+uint64(len(out)))
	}
	for off := uint64(0); off < uint64(len(out)); off += l.cosetSize {
		cols, err := l.mgr.EvalOnCoset((start + off) / l.cosetSize)
		if err != nil {
			return err
		}
		copy(out[off:off+l.cosetSize], cols[0])
	}
	return nil
}

func (l *OutOfMemoryLayer) EvalAtIndices(indices []uint64) ([]fr.Element, error) {
	points := make([]fr.Element, len(indices))
	for i, idx := range indices {
		if idx >= l.size {
			return nil, fmt.Errorf("index %d out of range (layer size %d)", idx, l.size)
		}
		points[i] = l.bases.ElementAt(0, idx)
	}
	return l.mgr.EvalAtPoints(0, points)
}

// ProxyLayer is one not-yet-materialized folding step over its predecessor.
type ProxyLayer struct {
	prev      Layer
	evalPoint fr.Element
	bases     *algebra.Bases
	cfg       *ProverConfig
}

func NewProxyLayer(prev Layer, evalPoint fr.Element, cfg *ProverConfig) *ProxyLayer {
	return &ProxyLayer{prev: prev, evalPoint: evalPoint, bases: prev.Bases().FromLayer(1), cfg: cfg}
}

func (l *ProxyLayer) Size() uint64          { return l.prev.Size() / 2 }
func (l *ProxyLayer) Bases() *algebra.Bases { return l.bases }
func (l *ProxyLayer) ChunkSize() uint64     { return l.prev.ChunkSize() / 2 }

func (l *ProxyLayer) Chunk(out []fr.Element, start uint64) error {
	in := make([]fr.Element, 2*len(out))
	if err := l.prev.Chunk(in, 2*start); err != nil {
		return err
	}
	foldChunk(out, in, l.evalPoint, l.prev.Bases(), 2*start, l.cfg)
	return nil
}

func (l *ProxyLayer) EvalAtIndices(indices []uint64) ([]fr.Element, error) {
	prevIndices := make([]uint64, 0, 2*len(indices))
	for _, idx := range indices {
		if idx >= l.Size() {
			return nil, fmt.Errorf("index %d out of range (layer size %d)", idx, l.Size())
		}
		prevIndices = append(prevIndices, 2*idx, 2*idx+1)
	}
	vals, err := l.prev.EvalAtIndices(prevIndices)
	if err != nil {
		return nil, err
	}
	out := make([]fr.Element, len(indices))
	xs := make([]fr.Element, len(indices))
	for i, idx := range indices {
		xs[i] = l.prev.Bases().ElementAt(0, 2*idx)
	}
	invs := fr.BatchInvert(xs)
	for i := range indices {
		out[i] = Fold(vals[2*i], vals[2*i+1], l.evalPoint, invs[i])
	}
	return out, nil
}
