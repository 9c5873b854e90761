package stark

import (
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/commitment"
	"github.com/starkforge/stark/lde"
	"github.com/starkforge/stark/transcript"
)

// TraceQuery addresses one cell of a committed trace: Coset is the
// commitment segment index (the bit-reversed coset enumeration) and Offset
// the bit-reversed index inside the coset.
type TraceQuery struct {
	Coset  uint64
	Offset uint64
	Column uint64
}

// CommittedTraceProver owns one trace's low degree extension and its table
// commitment: one segment per coset, one row per domain point, one column
// per trace column.
type CommittedTraceProver struct {
	domain   *algebra.EvaluationDomain
	nColumns uint64
	ldeCfg   lde.Config
	table    *commitment.TableProver
	lde      *lde.Manager
}

func NewCommittedTraceProver(channel *transcript.Prover, domain *algebra.EvaluationDomain,
	nColumns uint64, cfg lde.Config) (*CommittedTraceProver, error) {
	table, err := commitment.NewTableProver(channel, domain.NumCosets(), domain.TraceLength(), nColumns)
	if err != nil {
		return nil, err
	}
	return &CommittedTraceProver{
		domain:   domain,
		nColumns: nColumns,
		ldeCfg:   cfg,
		table:    table,
	}, nil
}

func (p *CommittedTraceProver) NumColumns() uint64 { return p.nColumns }

// LDE exposes the trace's extension for whole-coset constraint evaluation.
func (p *CommittedTraceProver) LDE() *lde.Manager { return p.lde }

// Commit interpolates the columns over traceBases and commits to their
// evaluations over every coset of the evaluation domain. Columns arrive in
// natural row order when bitReverse is set, in bit-reversed order otherwise.
func (p *CommittedTraceProver) Commit(columns [][]fr.Element, traceBases *algebra.Bases,
	bitReverse bool) error {
	if uint64(len(columns)) != p.nColumns {
		return fmt.Errorf("trace has %d columns, the commitment expects %d", len(columns), p.nColumns)
	}
	if traceBases.Size(0) != p.domain.TraceLength() {
		return fmt.Errorf("trace domain size %d does not match the trace length %d",
			traceBases.Size(0), p.domain.TraceLength())
	}

	logCosets := p.domain.LogNumCosets()
	cosetOffsets := make([]fr.Element, p.domain.NumCosets())
	for i := range cosetOffsets {
		cosetOffsets[i] = p.domain.CosetOffset(algebra.BitReverse(uint64(i), logCosets))
	}
	p.lde = lde.NewManager(p.ldeCfg, traceBases, cosetOffsets)

	for _, column := range columns {
		if bitReverse {
			reversed := make([]fr.Element, len(column))
			algebra.BitReversedCopy(reversed, column)
			column = reversed
		}
		if err := p.lde.AddEvaluation(column); err != nil {
			return err
		}
	}

	for cosetIndex := uint64(0); cosetIndex < p.domain.NumCosets(); cosetIndex++ {
		evals, err := p.lde.EvalOnCoset(cosetIndex)
		if err != nil {
			return err
		}
		if err := p.table.AddSegmentForCommitment(evals, cosetIndex); err != nil {
			return err
		}
	}
	return p.table.Commit()
}

// DecommitQueries opens the queried cells together with their
// authentication paths. Every cell of a touched row is sent since the
// commitment hashes whole rows.
func (p *CommittedTraceProver) DecommitQueries(queries []TraceQuery) error {
	data, err := p.traceQueriesToRowCols(queries)
	if err != nil {
		return err
	}
	rows, err := p.table.StartDecommitmentPhase(data, nil)
	if err != nil {
		return err
	}
	rowData, err := p.fetchRows(rows)
	if err != nil {
		return err
	}
	return p.table.Decommit(rowData)
}

// EvalMaskAtPoint evaluates the columns' interpolants at point*g^RowOffset
// for every mask item, writing results in mask order.
func (p *CommittedTraceProver) EvalMaskAtPoint(mask []air.MaskItem, point fr.Element,
	out []fr.Element) error {
	if len(out) != len(mask) {
		return fmt.Errorf("output has %d slots for a mask of size %d", len(out), len(mask))
	}
	traceGen := p.domain.TraceGenerator()

	type maskRef struct {
		rowOffset uint64
		maskIndex int
	}
	byColumn := make(map[uint64][]maskRef)
	for i, m := range mask {
		if m.Column >= p.nColumns {
			return fmt.Errorf("mask column %d out of range (%d columns)", m.Column, p.nColumns)
		}
		byColumn[m.Column] = append(byColumn[m.Column], maskRef{m.RowOffset, i})
	}

	for column := uint64(0); column < p.nColumns; column++ {
		refs := byColumn[column]
		if len(refs) == 0 {
			continue
		}
		points := make([]fr.Element, len(refs))
		for j, ref := range refs {
			g := algebra.Pow(traceGen, ref.rowOffset)
			points[j].Mul(&point, &g)
		}
		values, err := p.lde.EvalAtPoints(int(column), points)
		if err != nil {
			return err
		}
		for j, ref := range refs {
			out[ref.maskIndex] = values[j]
		}
	}
	return nil
}

// fetchRows evaluates every column at the commitment rows' domain points.
func (p *CommittedTraceProver) fetchRows(rows []uint64) ([][]fr.Element, error) {
	traceLength := p.domain.TraceLength()
	logCosets := p.domain.LogNumCosets()
	points := make([]fr.Element, len(rows))
	for i, row := range rows {
		naturalCoset := algebra.BitReverse(row/traceLength, logCosets)
		points[i] = p.domain.ElementByIndex(naturalCoset, row%traceLength)
	}
	rowData := make([][]fr.Element, len(rows))
	for i := range rowData {
		rowData[i] = make([]fr.Element, p.nColumns)
	}
	for column := uint64(0); column < p.nColumns; column++ {
		values, err := p.lde.EvalAtPoints(int(column), points)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			rowData[i][column] = values[i]
		}
	}
	return rowData, nil
}

func (p *CommittedTraceProver) traceQueriesToRowCols(queries []TraceQuery) ([]commitment.RowCol, error) {
	return traceQueriesToRowCols(queries, p.domain, p.nColumns)
}

// CommittedTraceVerifier mirrors CommittedTraceProver over the same
// transcript.
type CommittedTraceVerifier struct {
	domain   *algebra.EvaluationDomain
	nColumns uint64
	table    *commitment.TableVerifier
}

func NewCommittedTraceVerifier(channel *transcript.Verifier, domain *algebra.EvaluationDomain,
	nColumns uint64) (*CommittedTraceVerifier, error) {
	table, err := commitment.NewTableVerifier(channel, domain.Size(), nColumns)
	if err != nil {
		return nil, err
	}
	return &CommittedTraceVerifier{domain: domain, nColumns: nColumns, table: table}, nil
}

func (v *CommittedTraceVerifier) NumColumns() uint64 { return v.nColumns }

func (v *CommittedTraceVerifier) ReadCommitment() error { return v.table.ReadCommitment() }

// VerifyDecommitment authenticates the opened cells and returns the queried
// values in query order.
func (v *CommittedTraceVerifier) VerifyDecommitment(queries []TraceQuery) ([]fr.Element, error) {
	data, err := traceQueriesToRowCols(queries, v.domain, v.nColumns)
	if err != nil {
		return nil, err
	}
	responses, err := v.table.Query(data, nil)
	if err != nil {
		return nil, err
	}
	ok, err := v.table.VerifyDecommitment(responses)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: trace decommitment failed authentication", ErrProofRejected)
	}
	traceLength := v.domain.TraceLength()
	out := make([]fr.Element, len(queries))
	for i, q := range queries {
		out[i] = responses[commitment.RowCol{Row: q.Coset*traceLength + q.Offset, Col: q.Column}]
	}
	return out, nil
}

// traceQueriesToRowCols maps trace queries to unique sorted commitment
// cells; the commitment row of (coset, offset) is coset*traceLength+offset.
func traceQueriesToRowCols(queries []TraceQuery, domain *algebra.EvaluationDomain,
	nColumns uint64) ([]commitment.RowCol, error) {
	traceLength := domain.TraceLength()
	set := make(map[commitment.RowCol]struct{}, len(queries))
	for _, q := range queries {
		if q.Coset >= domain.NumCosets() {
			return nil, fmt.Errorf("coset index %d out of range (%d cosets)", q.Coset, domain.NumCosets())
		}
		if q.Offset >= traceLength {
			return nil, fmt.Errorf("coset offset %d out of range (trace length %d)", q.Offset, traceLength)
		}
		if q.Column >= nColumns {
			return nil, fmt.Errorf("column index %d out of range (%d columns)", q.Column, nColumns)
		}
		set[commitment.RowCol{Row: q.Coset*traceLength + q.Offset, Col: q.Column}] = struct{}{}
	}
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
	return out, nil
}
