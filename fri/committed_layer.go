package fri

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/commitment"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

// FirstLayerCallback decommits the witness commitment at the expanded
// first-layer query indices; the witness is committed outside FRI.
type FirstLayerCallback func(queries []uint64) error

// committedLayer answers decommitment for one round boundary, given the
// sorted second-layer query indices.
type committedLayer interface {
	decommit(queries []uint64) error
}

// callbackLayer serves the first layer through the external commitment.
type callbackLayer struct {
	friStep  int
	callback FirstLayerCallback
}

func (l *callbackLayer) decommit(queries []uint64) error {
	return l.callback(secondLayerQueriesToFirstLayerQueries(queries, l.friStep))
}

// tableCommittedLayer commits a folded layer as a table whose rows are the
// cosets folded by the NEXT round, so one decommitted row serves a whole
// fold.
type tableCommittedLayer struct {
	friStep  int
	layer    Layer
	params   *Parameters
	layerNum int
	prover   *commitment.TableProver
}

func newTableCommittedLayer(channel *transcript.Prover, friStep int, layer Layer,
	params *Parameters, layerNum int) (*tableCommittedLayer, error) {
	chunkSize := layer.ChunkSize()
	nChunks, err := util.SafeDiv(layer.Size(), chunkSize)
	if err != nil {
		return nil, fmt.Errorf("invalid layer chunking: %w", err)
	}
	nColumns := util.Pow2(friStep)
	rowsPerSegment, err := util.SafeDiv(chunkSize, nColumns)
	if err != nil {
		return nil, fmt.Errorf("chunk size %d incompatible with fri step %d: %w", chunkSize, friStep, err)
	}
	prover, err := commitment.NewTableProver(channel, nChunks, rowsPerSegment, nColumns)
	if err != nil {
		return nil, err
	}
	l := &tableCommittedLayer{
		friStep:  friStep,
		layer:    layer,
		params:   params,
		layerNum: layerNum,
		prover:   prover,
	}
	if err := l.commit(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *tableCommittedLayer) commit() error {
	chunkSize := l.layer.ChunkSize()
	nColumns := util.Pow2(l.friStep)
	chunk := make([]fr.Element, chunkSize)
	for idx := uint64(0); idx < l.layer.Size()/chunkSize; idx++ {
		if err := l.layer.Chunk(chunk, idx*chunkSize); err != nil {
			return fmt.Errorf("failed to materialize chunk %d: %w", idx, err)
		}
		columns := make([][]fr.Element, nColumns)
		for col := uint64(0); col < nColumns; col++ {
			columns[col] = make([]fr.Element, chunkSize/nColumns)
			for row := uint64(0); row < chunkSize/nColumns; row++ {
				columns[col][row] = chunk[row*nColumns+col]
			}
		}
		if err := l.prover.AddSegmentForCommitment(columns, idx); err != nil {
			return err
		}
	}
	return l.prover.Commit()
}

func (l *tableCommittedLayer) decommit(queries []uint64) error {
	data, integrity := nextLayerDataAndIntegrityQueries(queries, l.params, l.layerNum)
	rows, err := l.prover.StartDecommitmentPhase(data, integrity)
	if err != nil {
		return err
	}
	nColumns := util.Pow2(l.friStep)
	indices := make([]uint64, 0, uint64(len(rows))*nColumns)
	for _, row := range rows {
		for col := uint64(0); col < nColumns; col++ {
			indices = append(indices, row*nColumns+col)
		}
	}
	vals, err := l.layer.EvalAtIndices(indices)
	if err != nil {
		return fmt.Errorf("failed to evaluate layer at queried rows: %w", err)
	}
	rowData := make([][]fr.Element, len(rows))
	for i := range rows {
		rowData[i] = vals[uint64(i)*nColumns : uint64(i+1)*nColumns]
	}
	return l.prover.Decommit(rowData)
}
