package commitment

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"

	"github.com/starkforge/stark/transcript"
)

// commitTable commits a nSegments x rowsPerSegment x nColumns table filled
// with a deterministic pattern and returns the prover channel plus the
// full table indexed [globalRow][col].
func commitTable(t *testing.T, nSegments, rowsPerSegment, nColumns uint64) (*transcript.Prover, *TableProver, [][]fr.Element) {
	t.Helper()
	channel := transcript.NewProver([]byte("table test"), false)
	prover, err := NewTableProver(channel, nSegments, rowsPerSegment, nColumns)
	qt.Assert(t, err, qt.IsNil)

	table := make([][]fr.Element, nSegments*rowsPerSegment)
	for r := range table {
		table[r] = make([]fr.Element, nColumns)
		for c := range table[r] {
			table[r][c].SetUint64(uint64(r)*1000 + uint64(c) + 1)
		}
	}
	for s := uint64(0); s < nSegments; s++ {
		columns := make([][]fr.Element, nColumns)
		for c := uint64(0); c < nColumns; c++ {
			columns[c] = make([]fr.Element, rowsPerSegment)
			for r := uint64(0); r < rowsPerSegment; r++ {
				columns[c][r] = table[s*rowsPerSegment+r][c]
			}
		}
		qt.Assert(t, prover.AddSegmentForCommitment(columns, s), qt.IsNil)
	}
	qt.Assert(t, prover.Commit(), qt.IsNil)
	return channel, prover, table
}

func decommitRows(t *testing.T, prover *TableProver, table [][]fr.Element, rows []uint64) {
	t.Helper()
	rowData := make([][]fr.Element, len(rows))
	for i, r := range rows {
		rowData[i] = table[r]
	}
	qt.Assert(t, prover.Decommit(rowData), qt.IsNil)
}

func TestCommitQueryVerifyRoundTrip(t *testing.T) {
	channel, prover, table := commitTable(t, 4, 8, 3)
	dataQueries := []RowCol{{Row: 3, Col: 1}, {Row: 17, Col: 0}, {Row: 31, Col: 2}}
	rows, err := prover.StartDecommitmentPhase(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, rows, qt.DeepEquals, []uint64{3, 17, 31})
	decommitRows(t, prover, table, rows)

	vch := transcript.NewVerifier([]byte("table test"), channel.Proof(), false)
	verifier, err := NewTableVerifier(vch, 32, 3)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, verifier.ReadCommitment(), qt.IsNil)
	values, err := verifier.Query(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)
	for _, q := range dataQueries {
		got := values[q]
		qt.Assert(t, got.Equal(&table[q.Row][q.Col]), qt.IsTrue)
	}
	ok, err := verifier.VerifyDecommitment(values)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)
}

func TestIntegrityQueriesAreNotSent(t *testing.T) {
	channel, prover, table := commitTable(t, 2, 4, 2)
	integrity := []RowCol{{Row: 5, Col: 0}}
	rows, err := prover.StartDecommitmentPhase(nil, integrity)
	qt.Assert(t, err, qt.IsNil)
	decommitRows(t, prover, table, rows)

	vch := transcript.NewVerifier([]byte("table test"), channel.Proof(), false)
	verifier, err := NewTableVerifier(vch, 8, 2)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, verifier.ReadCommitment(), qt.IsNil)
	values, err := verifier.Query(nil, integrity)
	qt.Assert(t, err, qt.IsNil)
	_, present := values[integrity[0]]
	qt.Assert(t, present, qt.IsFalse)

	// The verifier supplies its own integrity value; correct one passes.
	values[integrity[0]] = table[5][0]
	ok, err := verifier.VerifyDecommitment(values)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)
}

func TestWrongIntegrityValueFailsAuthentication(t *testing.T) {
	channel, prover, table := commitTable(t, 2, 4, 2)
	integrity := []RowCol{{Row: 2, Col: 1}}
	rows, err := prover.StartDecommitmentPhase(nil, integrity)
	qt.Assert(t, err, qt.IsNil)
	decommitRows(t, prover, table, rows)

	vch := transcript.NewVerifier([]byte("table test"), channel.Proof(), false)
	verifier, err := NewTableVerifier(vch, 8, 2)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, verifier.ReadCommitment(), qt.IsNil)
	values, err := verifier.Query(nil, integrity)
	qt.Assert(t, err, qt.IsNil)
	var wrong fr.Element
	wrong.SetUint64(424242)
	values[integrity[0]] = wrong
	ok, err := verifier.VerifyDecommitment(values)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsFalse)
}

func TestTamperedCellFailsAuthentication(t *testing.T) {
	channel, prover, table := commitTable(t, 2, 8, 1)
	dataQueries := []RowCol{{Row: 9, Col: 0}}
	rows, err := prover.StartDecommitmentPhase(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)

	tampered := make([][]fr.Element, len(rows))
	for i, r := range rows {
		tampered[i] = append([]fr.Element{}, table[r]...)
	}
	tampered[0][0].SetUint64(777)
	qt.Assert(t, prover.Decommit(tampered), qt.IsNil)

	vch := transcript.NewVerifier([]byte("table test"), channel.Proof(), false)
	verifier, err := NewTableVerifier(vch, 16, 1)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, verifier.ReadCommitment(), qt.IsNil)
	values, err := verifier.Query(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)
	ok, err := verifier.VerifyDecommitment(values)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsFalse)
}

func TestQueryRangeValidation(t *testing.T) {
	_, prover, _ := commitTable(t, 2, 4, 2)
	_, err := prover.StartDecommitmentPhase([]RowCol{{Row: 8, Col: 0}}, nil)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = prover.StartDecommitmentPhase([]RowCol{{Row: 0, Col: 2}}, nil)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestAdjacentRowsShareAuthenticationNodes(t *testing.T) {
	// Sibling rows need no extra nodes at their own level; the proof for
	// both rows of a pair must be shorter than two independent proofs.
	channel, prover, table := commitTable(t, 1, 8, 1)
	dataQueries := []RowCol{{Row: 4, Col: 0}, {Row: 5, Col: 0}}
	rows, err := prover.StartDecommitmentPhase(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)
	decommitRows(t, prover, table, rows)

	vch := transcript.NewVerifier([]byte("table test"), channel.Proof(), false)
	verifier, err := NewTableVerifier(vch, 8, 1)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, verifier.ReadCommitment(), qt.IsNil)
	values, err := verifier.Query(dataQueries, nil)
	qt.Assert(t, err, qt.IsNil)
	ok, err := verifier.VerifyDecommitment(values)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, vch.Remaining(), qt.Equals, 0)
}
