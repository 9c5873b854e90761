// Package commitment implements the table commitment scheme: a Merkle tree
// over rows of field elements, committed segment by segment, with batched
// decommitment of queried rows. Data queries are cells the verifier needs
// sent over the channel; integrity queries are cells the verifier computes
// itself and only needs authenticated.
package commitment

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/starkforge/stark/taskmanager"
	"github.com/starkforge/stark/transcript"
)

// RowCol addresses one cell of the committed table.
type RowCol struct {
	Row uint64
	Col uint64
}

// TableProver commits to a table of nSegments*rowsPerSegment rows and
// nColumns field elements per row. Lifecycle: AddSegmentForCommitment for
// every segment, Commit once, then StartDecommitmentPhase/Decommit per
// query batch. Segment data is hashed at Commit and dropped; decommitment
// re-receives the needed rows from the caller, which can recompute them.
type TableProver struct {
	channel        *transcript.Prover
	nSegments      uint64
	rowsPerSegment uint64
	nColumns       uint64

	segments    map[uint64][][]fr.Element
	tree        *merkleTree
	rowsToFetch []uint64
	integrity   map[RowCol]struct{}
}

// NewTableProver creates a prover for the given table shape, sending
// commitments and decommitments over the channel.
func NewTableProver(channel *transcript.Prover, nSegments, rowsPerSegment, nColumns uint64) (*TableProver, error) {
	if nSegments == 0 || rowsPerSegment == 0 || nColumns == 0 {
		return nil, fmt.Errorf("invalid table shape: %dx%dx%d", nSegments, rowsPerSegment, nColumns)
	}
	return &TableProver{
		channel:        channel,
		nSegments:      nSegments,
		rowsPerSegment: rowsPerSegment,
		nColumns:       nColumns,
		segments:       make(map[uint64][][]fr.Element, nSegments),
	}, nil
}

// NumRows returns the total row count of the table.
func (p *TableProver) NumRows() uint64 { return p.nSegments * p.rowsPerSegment }

// AddSegmentForCommitment feeds the columns of one segment. The column
// slices are retained until Commit.
func (p *TableProver) AddSegmentForCommitment(columns [][]fr.Element, segmentIndex uint64) error {
	if segmentIndex >= p.nSegments {
		return fmt.Errorf("segment index %d out of range (%d segments)", segmentIndex, p.nSegments)
	}
	if uint64(len(columns)) != p.nColumns {
		return fmt.Errorf("expected %d columns, got %d", p.nColumns, len(columns))
	}
	for c := range columns {
		if uint64(len(columns[c])) != p.rowsPerSegment {
			return fmt.Errorf("column %d has %d rows, expected %d", c, len(columns[c]), p.rowsPerSegment)
		}
	}
	p.segments[segmentIndex] = columns
	return nil
}

// Commit hashes all rows, builds the Merkle tree and sends its root.
func (p *TableProver) Commit() error {
	if uint64(len(p.segments)) != p.nSegments {
		return fmt.Errorf("committing with %d of %d segments fed", len(p.segments), p.nSegments)
	}
	leaves := make([]common.Hash, p.NumRows())
	tm := taskmanager.Default()
	for s := uint64(0); s < p.nSegments; s++ {
		columns := p.segments[s]
		base := s * p.rowsPerSegment
		tm.ParallelForRange(0, p.rowsPerSegment, func(ti taskmanager.TaskInfo) {
			row := make([]fr.Element, p.nColumns)
			for r := ti.StartIdx; r < ti.EndIdx; r++ {
				for c := uint64(0); c < p.nColumns; c++ {
					row[c] = columns[c][r]
				}
				leaves[base+r] = hashRow(row)
			}
		}, 256, 1024)
	}
	p.segments = nil
	p.tree = buildMerkleTree(leaves)
	root := p.tree.root()
	p.channel.SendBytes(root[:])
	return nil
}

// StartDecommitmentPhase records one query batch and returns the sorted
// distinct rows whose full contents Decommit expects.
func (p *TableProver) StartDecommitmentPhase(dataQueries, integrityQueries []RowCol) ([]uint64, error) {
	if p.tree == nil {
		return nil, fmt.Errorf("decommitment phase started before Commit")
	}
	all := make([]RowCol, 0, len(dataQueries)+len(integrityQueries))
	all = append(all, dataQueries...)
	all = append(all, integrityQueries...)
	for _, q := range all {
		if q.Row >= p.NumRows() || q.Col >= p.nColumns {
			return nil, fmt.Errorf("query (%d, %d) out of range (%dx%d table)",
				q.Row, q.Col, p.NumRows(), p.nColumns)
		}
	}
	p.integrity = make(map[RowCol]struct{}, len(integrityQueries))
	for _, q := range integrityQueries {
		p.integrity[q] = struct{}{}
	}
	p.rowsToFetch = sortedRows(all)
	return p.rowsToFetch, nil
}

// Decommit sends every queried-row cell the verifier cannot compute, then
// the batched Merkle authentication. rowData[i] must hold the full row
// rowsToFetch[i] returned by StartDecommitmentPhase.
func (p *TableProver) Decommit(rowData [][]fr.Element) error {
	if len(rowData) != len(p.rowsToFetch) {
		return fmt.Errorf("expected %d rows of data, got %d", len(p.rowsToFetch), len(rowData))
	}
	nodeIndices := make([]uint64, len(p.rowsToFetch))
	for i, row := range p.rowsToFetch {
		if uint64(len(rowData[i])) != p.nColumns {
			return fmt.Errorf("row %d has %d cells, expected %d", row, len(rowData[i]), p.nColumns)
		}
		for c := uint64(0); c < p.nColumns; c++ {
			if _, ok := p.integrity[RowCol{Row: row, Col: c}]; ok {
				continue
			}
			p.channel.SendFieldElement(rowData[i][c])
		}
		nodeIndices[i] = p.tree.nLeaves + row
	}
	p.tree.decommit(nodeIndices, func(d common.Hash) {
		p.channel.SendBytes(d[:])
	})
	return nil
}

// TableVerifier mirrors TableProver: it reads the commitment, receives the
// queried cells and authenticates full rows against the root.
type TableVerifier struct {
	channel        *transcript.Verifier
	nRows          uint64
	nColumns       uint64
	root           common.Hash
	haveCommitment bool
}

// NewTableVerifier creates a verifier for the given table shape.
func NewTableVerifier(channel *transcript.Verifier, nRows, nColumns uint64) (*TableVerifier, error) {
	if nRows == 0 || nColumns == 0 {
		return nil, fmt.Errorf("invalid table shape: %dx%d", nRows, nColumns)
	}
	return &TableVerifier{channel: channel, nRows: nRows, nColumns: nColumns}, nil
}

// ReadCommitment reads the Merkle root from the channel.
func (v *TableVerifier) ReadCommitment() error {
	data, err := v.channel.ReceiveBytes(common.HashLength)
	if err != nil {
		return fmt.Errorf("failed to read table commitment: %w", err)
	}
	v.root = common.BytesToHash(data)
	v.haveCommitment = true
	return nil
}

// Query receives every cell of the queried rows that is not an integrity
// query. The returned map holds the received cells; the caller adds the
// integrity cells it computed before VerifyDecommitment.
func (v *TableVerifier) Query(dataQueries, integrityQueries []RowCol) (map[RowCol]fr.Element, error) {
	if !v.haveCommitment {
		return nil, fmt.Errorf("query before ReadCommitment")
	}
	all := make([]RowCol, 0, len(dataQueries)+len(integrityQueries))
	all = append(all, dataQueries...)
	all = append(all, integrityQueries...)
	for _, q := range all {
		if q.Row >= v.nRows || q.Col >= v.nColumns {
			return nil, fmt.Errorf("query (%d, %d) out of range (%dx%d table)",
				q.Row, q.Col, v.nRows, v.nColumns)
		}
	}
	integrity := make(map[RowCol]struct{}, len(integrityQueries))
	for _, q := range integrityQueries {
		integrity[q] = struct{}{}
	}
	out := make(map[RowCol]fr.Element)
	for _, row := range sortedRows(all) {
		for c := uint64(0); c < v.nColumns; c++ {
			rc := RowCol{Row: row, Col: c}
			if _, ok := integrity[rc]; ok {
				continue
			}
			e, err := v.channel.ReceiveFieldElement()
			if err != nil {
				return nil, fmt.Errorf("failed to receive cell (%d, %d): %w", row, c, err)
			}
			out[rc] = e
		}
	}
	return out, nil
}

// VerifyDecommitment authenticates the full rows assembled in values
// against the commitment. Every cell of every queried row must be present.
func (v *TableVerifier) VerifyDecommitment(values map[RowCol]fr.Element) (bool, error) {
	rows := make(map[uint64]struct{})
	for rc := range values {
		rows[rc.Row] = struct{}{}
	}
	leaves := make(map[uint64]common.Hash, len(rows))
	row := make([]fr.Element, v.nColumns)
	for r := range rows {
		for c := uint64(0); c < v.nColumns; c++ {
			e, ok := values[RowCol{Row: r, Col: c}]
			if !ok {
				return false, fmt.Errorf("missing cell (%d, %d) for row authentication", r, c)
			}
			row[c] = e
		}
		leaves[v.nRows+r] = hashRow(row)
	}
	root, err := computeMultiproofRoot(leaves, func() (common.Hash, error) {
		data, err := v.channel.ReceiveBytes(common.HashLength)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to read authentication node: %w", err)
		}
		return common.BytesToHash(data), nil
	})
	if err != nil {
		return false, err
	}
	return root == v.root, nil
}

func hashRow(row []fr.Element) common.Hash {
	buf := make([]byte, 0, len(row)*32)
	for i := range row {
		b := row[i].Bytes()
		buf = append(buf, b[:]...)
	}
	return common.BytesToHash(crypto.Keccak256(buf))
}
