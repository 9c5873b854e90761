package fri

import (
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/commitment"
	"github.com/starkforge/stark/util"
)

// queryChannel is the transcript slice needed to draw query indices.
type queryChannel interface {
	proofOfWork(bits int) error
	randomNumber(bound uint64) uint64
}

// chooseQueryIndices grinds the proof of work and draws the sorted query
// indices into the second layer's domain. Duplicates are kept: they cost
// the prover nothing extra and keep both transcripts identical.
func chooseQueryIndices(ch queryChannel, domainSize uint64, nQueries, proofOfWorkBits int) ([]uint64, error) {
	if err := ch.proofOfWork(proofOfWorkBits); err != nil {
		return nil, err
	}
	indices := make([]uint64, 0, nQueries)
	for i := 0; i < nQueries; i++ {
		indices = append(indices, ch.randomNumber(domainSize))
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices, nil
}

// tableRowCol maps a layer-domain index to its table cell: cosets of
// 2^friStep elements that fold together share one row.
func tableRowCol(idx uint64, friStep int) commitment.RowCol {
	return commitment.RowCol{Row: idx >> friStep, Col: idx & (util.Pow2(friStep) - 1)}
}

// nextLayerDataAndIntegrityQueries splits the cells the verifier needs at
// committed layer layerNum into integrity queries (the verifier computes
// them by folding) and data queries (the rest of each queried coset).
func nextLayerDataAndIntegrityQueries(queryIndices []uint64, params *Parameters,
	layerNum int) (data, integrity []commitment.RowCol) {
	cumulativeStep := 0
	for i := 1; i < layerNum; i++ {
		cumulativeStep += params.StepList[i]
	}
	layerStep := params.StepList[layerNum]

	integritySet := make(map[commitment.RowCol]struct{})
	for _, idx := range queryIndices {
		integritySet[tableRowCol(idx>>cumulativeStep, layerStep)] = struct{}{}
	}
	dataSet := make(map[commitment.RowCol]struct{})
	for _, idx := range queryIndices {
		row := tableRowCol(idx>>cumulativeStep, layerStep).Row
		for col := uint64(0); col < util.Pow2(layerStep); col++ {
			q := commitment.RowCol{Row: row, Col: col}
			if _, ok := integritySet[q]; !ok {
				dataSet[q] = struct{}{}
			}
		}
	}
	return sortedQueries(dataSet), sortedQueries(integritySet)
}

func sortedQueries(set map[commitment.RowCol]struct{}) []commitment.RowCol {
	out := make([]commitment.RowCol, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// secondLayerQueriesToFirstLayerQueries expands each second-layer query to
// the full first-layer coset that folds into it.
func secondLayerQueriesToFirstLayerQueries(queryIndices []uint64, firstStep int) []uint64 {
	cosetSize := util.Pow2(firstStep)
	out := make([]uint64, 0, uint64(len(queryIndices))*cosetSize)
	for _, idx := range queryIndices {
		for i := idx * cosetSize; i < (idx+1)*cosetSize; i++ {
			out = append(out, i)
		}
	}
	return out
}

// applyFriLayers folds one coset of committed layer layerNum down to a
// single element of the next committed layer. elements hold the coset in
// bit-reversed layer order, firstElementIndex is the coset's first index in
// the layer's domain, and evalPoint is the round's evaluation point (nil
// only for a zero-step first round).
func applyFriLayers(elements []fr.Element, evalPoint *fr.Element, params *Parameters,
	layerNum int, firstElementIndex uint64) (fr.Element, error) {
	cumulativeStep := 0
	for i := 0; i < layerNum; i++ {
		cumulativeStep += params.StepList[i]
	}
	layerStep := params.StepList[layerNum]
	if uint64(len(elements)) != util.Pow2(layerStep) {
		return fr.Element{}, fmt.Errorf("coset has %d elements, fri step expects %d",
			len(elements), util.Pow2(layerStep))
	}
	cur := append([]fr.Element{}, elements...)
	var point fr.Element
	if layerStep > 0 {
		if evalPoint == nil {
			return fr.Element{}, fmt.Errorf("missing evaluation point for fri step %d", layerStep)
		}
		point = *evalPoint
	}
	for basisIndex := cumulativeStep; basisIndex < cumulativeStep+layerStep; basisIndex++ {
		next := make([]fr.Element, len(cur)/2)
		for j := 0; j < len(cur); j += 2 {
			x := params.Bases.ElementAt(basisIndex, firstElementIndex+uint64(j))
			x.Inverse(&x)
			next[j/2] = Fold(cur[j], cur[j+1], point, x)
		}
		cur = next
		point = algebra.ApplyBasisTransform(point)
		firstElementIndex /= 2
	}
	return cur[0], nil
}
