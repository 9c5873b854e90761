// Package lde manages low-degree extensions of committed columns: each
// column is interpolated once over its trace-sized coset and then evaluated
// on demand over the cosets of a larger evaluation domain.
package lde

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/starkforge/stark/algebra"
)

// Config controls the memory/latency tradeoff of a Manager.
type Config struct {
	// StoreFullLDE keeps every computed coset evaluation in memory; when
	// unset each EvalOnCoset call recomputes from coefficients.
	StoreFullLDE bool
}

// Manager holds the interpolating polynomials of a set of equal-length
// columns, all over the same trace-sized coset, and evaluates them over the
// cosets listed at construction. Evaluations are produced and consumed in
// bit-reversed order.
type Manager struct {
	cfg          Config
	traceBases   *algebra.Bases
	cosetOffsets []fr.Element
	coeffs       [][]fr.Element
	cache        map[uint64][][]fr.Element
}

// NewManager creates a Manager interpolating over traceBases' layer 0 and
// evaluating on the cosets with the given offsets (in commitment
// enumeration order).
func NewManager(cfg Config, traceBases *algebra.Bases, cosetOffsets []fr.Element) *Manager {
	m := &Manager{
		cfg:          cfg,
		traceBases:   traceBases,
		cosetOffsets: cosetOffsets,
	}
	if cfg.StoreFullLDE {
		m.cache = make(map[uint64][][]fr.Element, len(cosetOffsets))
	}
	return m
}

// NumColumns returns the number of columns added so far.
func (m *Manager) NumColumns() int { return len(m.coeffs) }

// NumCosets returns the number of evaluation cosets.
func (m *Manager) NumCosets() int { return len(m.cosetOffsets) }

// ColumnLength returns the trace-domain size.
func (m *Manager) ColumnLength() uint64 { return m.traceBases.Size(0) }

// AddEvaluation interpolates one more column from its bit-reversed
// evaluations over the trace coset. The input slice is not retained.
func (m *Manager) AddEvaluation(column []fr.Element) error {
	if uint64(len(column)) != m.traceBases.Size(0) {
		return fmt.Errorf("column length %d does not match trace domain size %d",
			len(column), m.traceBases.Size(0))
	}
	m.coeffs = append(m.coeffs, algebra.InterpolateBitReversed(column, m.traceBases.Offset(0)))
	return nil
}

// EvalOnCoset returns the bit-reversed evaluations of every column over the
// coset with the given enumeration index. The result is cached when
// StoreFullLDE is set; callers must not modify it.
func (m *Manager) EvalOnCoset(cosetIndex uint64) ([][]fr.Element, error) {
	if cosetIndex >= uint64(len(m.cosetOffsets)) {
		return nil, fmt.Errorf("coset index %d out of range (%d cosets)",
			cosetIndex, len(m.cosetOffsets))
	}
	if m.cache != nil {
		if evals, ok := m.cache[cosetIndex]; ok {
			return evals, nil
		}
	}
	offset := m.cosetOffsets[cosetIndex]
	evals := make([][]fr.Element, len(m.coeffs))
	for c, coeffs := range m.coeffs {
		evals[c] = make([]fr.Element, m.traceBases.Size(0))
		algebra.EvalOnCosetBitReversed(coeffs, offset, evals[c])
	}
	if m.cache != nil {
		m.cache[cosetIndex] = evals
	}
	return evals, nil
}

// EvalAtPoints evaluates one column's interpolating polynomial at arbitrary
// field points.
func (m *Manager) EvalAtPoints(column int, points []fr.Element) ([]fr.Element, error) {
	if column < 0 || column >= len(m.coeffs) {
		return nil, fmt.Errorf("column %d out of range (%d columns)", column, len(m.coeffs))
	}
	out := make([]fr.Element, len(points))
	for i, p := range points {
		out[i] = algebra.EvalAt(m.coeffs[column], p)
	}
	return out, nil
}

// EvaluationDegree returns the degree of a column's interpolating
// polynomial (-1 for the zero polynomial).
func (m *Manager) EvaluationDegree(column int) (int, error) {
	if column < 0 || column >= len(m.coeffs) {
		return 0, fmt.Errorf("column %d out of range (%d columns)", column, len(m.coeffs))
	}
	return algebra.Degree(m.coeffs[column]), nil
}

// Coefficients returns a column's natural-order coefficients; callers must
// not modify them.
func (m *Manager) Coefficients(column int) []fr.Element { return m.coeffs[column] }
