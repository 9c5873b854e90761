package fri

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/taskmanager"
)

// Fold computes one folding step at one point:
//
//	f(x)  = g(x^2) + x*h(x^2)
//	f(-x) = g(x^2) - x*h(x^2)
//	=>  2*(g + a*h)(x^2) = f(x) + f(-x) + a*(f(x) - f(-x))/x.
//
// The factor 2 is harmless: it is applied uniformly, so the folded layer is
// still a low-degree polynomial of the same degree.
func Fold(fx, fMinusX, evalPoint, xInv fr.Element) fr.Element {
	var sum, diff fr.Element
	sum.Add(&fx, &fMinusX)
	diff.Sub(&fx, &fMinusX)
	diff.Mul(&diff, &evalPoint)
	diff.Mul(&diff, &xInv)
	sum.Add(&sum, &diff)
	return sum
}

// foldChunk folds a contiguous bit-reversed range of a layer. in holds
// 2*len(out) elements starting at bit-reversed index firstIndex of the
// domain described by b; adjacent pairs are (x, -x) by construction of the
// bit-reversed ordering. Large folds are split per cfg.
func foldChunk(out, in []fr.Element, evalPoint fr.Element, b *algebra.Bases, firstIndex uint64, cfg *ProverConfig) {
	n := uint64(len(out))
	maxChunk := n
	if n > cfg.MaxNonChunkedLayerSize {
		maxChunk = n / cfg.NChunksBetweenLayers
	}
	taskmanager.Default().ParallelForRange(0, n, func(ti taskmanager.TaskInfo) {
		xs := make([]fr.Element, ti.EndIdx-ti.StartIdx)
		for i := ti.StartIdx; i < ti.EndIdx; i++ {
			xs[i-ti.StartIdx] = b.ElementAt(0, firstIndex+2*i)
		}
		invs := fr.BatchInvert(xs)
		for i := ti.StartIdx; i < ti.EndIdx; i++ {
			out[i] = Fold(in[2*i], in[2*i+1], evalPoint, invs[i-ti.StartIdx])
		}
	}, maxChunk, 1024)
}
