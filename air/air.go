// Package air defines the constraint-system contracts consumed by the proof
// engine: an AIR exposes its trace shape, its constraint mask and a factory
// for the composition polynomial that combines all constraints under random
// coefficients. The engine never looks inside the constraints themselves.
package air

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MaskItem is one (row offset, column) pair read by the constraints. The
// neighbor value for a mask item at evaluation point t is the column's
// interpolating polynomial evaluated at t*g^RowOffset, where g is the trace
// generator. Negative row offsets are not supported.
type MaskItem struct {
	RowOffset uint64
	Column    uint64
}

// InteractionParams describes an AIR with a two-phase trace: the first
// NColumnsFirst columns are committed before NInteractionElements random
// field elements are drawn, and the remaining NColumnsSecond columns may
// depend on them.
type InteractionParams struct {
	NColumnsFirst        uint64
	NColumnsSecond       uint64
	NInteractionElements uint64
}

// AIR is the constraint-system contract. Implementations are stateless
// after construction except for injected interaction elements.
type AIR interface {
	TraceLength() uint64
	NumColumns() uint64
	// Mask returns the list of neighbors the constraints read, in the
	// order CompositionPolynomial.EvalAtPoint expects them.
	Mask() []MaskItem
	NumRandomCoefficients() uint64
	// CompositionDegreeBound is the degree bound of the composition
	// polynomial; a power-of-two multiple of the trace length.
	CompositionDegreeBound() uint64
	CreateCompositionPolynomial(traceGenerator fr.Element, coefficients []fr.Element) (CompositionPolynomial, error)
	// InteractionParams returns nil for single-phase AIRs.
	InteractionParams() *InteractionParams
	// WithInteractionElements binds the drawn interaction elements,
	// returning the full two-phase AIR. Errors on single-phase AIRs.
	WithInteractionElements(elements []fr.Element) (AIR, error)
}

// CompositionPolynomial is a pure evaluator for the random linear
// combination of an AIR's constraint quotients.
type CompositionPolynomial interface {
	DegreeBound() uint64
	// EvalAtPoint evaluates at one arbitrary field point given the
	// neighbor values in mask order.
	EvalAtPoint(point fr.Element, neighbors []fr.Element) fr.Element
	// EvalOnCosetBitReversedOutput evaluates on a whole multiplicative
	// coset of trace-length size. columns hold the traces' evaluations on
	// the coset in natural order, indexed by global column; the output is
	// written bit-reversed. taskSize bounds the per-task chunk.
	EvalOnCosetBitReversedOutput(cosetOffset fr.Element, columns [][]fr.Element, out []fr.Element, taskSize uint64) error
}

// TraceContext produces an AIR's traces. Single-phase AIRs only use Air and
// Trace; two-phase AIRs additionally get the interaction elements injected
// before the second trace is requested.
type TraceContext interface {
	Air() AIR
	Trace() ([][]fr.Element, error)
	SetInteractionElements(elements []fr.Element) (AIR, error)
	InteractionTrace() ([][]fr.Element, error)
}

// SimpleTraceContext wraps a single-phase AIR and its precomputed trace.
type SimpleTraceContext struct {
	air   AIR
	trace [][]fr.Element
}

// NewSimpleTraceContext creates a trace context for an AIR without an
// interaction phase.
func NewSimpleTraceContext(a AIR, trace [][]fr.Element) (*SimpleTraceContext, error) {
	if a.InteractionParams() != nil {
		return nil, fmt.Errorf("AIR declares an interaction phase, a simple trace context cannot serve it")
	}
	if uint64(len(trace)) != a.NumColumns() {
		return nil, fmt.Errorf("trace has %d columns, AIR declares %d", len(trace), a.NumColumns())
	}
	return &SimpleTraceContext{air: a, trace: trace}, nil
}

func (c *SimpleTraceContext) Air() AIR { return c.air }

func (c *SimpleTraceContext) Trace() ([][]fr.Element, error) { return c.trace, nil }

func (c *SimpleTraceContext) SetInteractionElements([]fr.Element) (AIR, error) {
	return nil, fmt.Errorf("AIR has no interaction phase")
}

func (c *SimpleTraceContext) InteractionTrace() ([][]fr.Element, error) {
	return nil, fmt.Errorf("AIR has no interaction phase")
}
