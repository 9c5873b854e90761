package fri

import (
	"fmt"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"

	"github.com/starkforge/stark/algebra"
	"github.com/starkforge/stark/commitment"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/util"
)

func testPoly(degree int) []fr.Element {
	coeffs := make([]fr.Element, degree+1)
	for i := range coeffs {
		coeffs[i].SetUint64(uint64(i)*6151 + 3)
	}
	return coeffs
}

func domainBases(logSize int) *algebra.Bases {
	d, err := algebra.NewEvaluationDomain(util.Pow2(logSize-2), 4)
	if err != nil {
		panic(err)
	}
	return d.Bases()
}

// fullEvaluation evaluates coeffs bit-reversed over the whole domain.
func fullEvaluation(coeffs []fr.Element, b *algebra.Bases) []fr.Element {
	out := make([]fr.Element, b.Size(0))
	algebra.EvalOnCosetBitReversed(coeffs, b.Offset(0), out)
	return out
}

// commitWitness commits the full first-layer evaluation as a table shaped
// by the first FRI step, the way the engine commits traces outside FRI.
func commitWitness(t *testing.T, channel *transcript.Prover, evals []fr.Element,
	firstStep int) (*commitment.TableProver, uint64) {
	t.Helper()
	nColumns := util.Pow2(firstStep)
	prover, err := commitment.NewTableProver(channel, 1, uint64(len(evals))/nColumns, nColumns)
	qt.Assert(t, err, qt.IsNil)
	columns := make([][]fr.Element, nColumns)
	for col := uint64(0); col < nColumns; col++ {
		columns[col] = make([]fr.Element, uint64(len(evals))/nColumns)
		for row := range columns[col] {
			columns[col][row] = evals[uint64(row)*nColumns+col]
		}
	}
	qt.Assert(t, prover.AddSegmentForCommitment(columns, 0), qt.IsNil)
	qt.Assert(t, prover.Commit(), qt.IsNil)
	return prover, nColumns
}

func proverFirstLayerCallback(prover *commitment.TableProver, evals []fr.Element,
	nColumns uint64) FirstLayerCallback {
	return func(queries []uint64) error {
		seen := make(map[commitment.RowCol]struct{})
		var data []commitment.RowCol
		for _, q := range queries {
			rc := commitment.RowCol{Row: q / nColumns, Col: q % nColumns}
			if _, ok := seen[rc]; !ok {
				seen[rc] = struct{}{}
				data = append(data, rc)
			}
		}
		rows, err := prover.StartDecommitmentPhase(data, nil)
		if err != nil {
			return err
		}
		rowData := make([][]fr.Element, len(rows))
		for i, r := range rows {
			rowData[i] = evals[r*nColumns : (r+1)*nColumns]
		}
		return prover.Decommit(rowData)
	}
}

func verifierFirstLayerFetcher(verifier *commitment.TableVerifier, nColumns uint64) FirstLayerFetcher {
	return func(queries []uint64) ([]fr.Element, error) {
		seen := make(map[commitment.RowCol]struct{})
		var data []commitment.RowCol
		for _, q := range queries {
			rc := commitment.RowCol{Row: q / nColumns, Col: q % nColumns}
			if _, ok := seen[rc]; !ok {
				seen[rc] = struct{}{}
				data = append(data, rc)
			}
		}
		values, err := verifier.Query(data, nil)
		if err != nil {
			return nil, err
		}
		if ok, err := verifier.VerifyDecommitment(values); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("witness decommitment failed")
		}
		out := make([]fr.Element, len(queries))
		for i, q := range queries {
			out[i] = values[commitment.RowCol{Row: q / nColumns, Col: q % nColumns}]
		}
		return out, nil
	}
}

func proveFri(t *testing.T, params *Parameters, cfg ProverConfig, coeffs []fr.Element) []byte {
	t.Helper()
	channel := transcript.NewProver([]byte("fri test"), false)
	evals := fullEvaluation(coeffs, params.Bases)
	witness := evals[:params.ExpectedDegreeBound()]
	tp, nColumns := commitWitness(t, channel, evals, params.StepList[0])
	prover, err := NewProver(channel, params, cfg, witness, proverFirstLayerCallback(tp, evals, nColumns))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prover.Prove(), qt.IsNil)
	return channel.Proof()
}

func verifyFri(t *testing.T, params *Parameters, proof []byte) error {
	t.Helper()
	channel := transcript.NewVerifier([]byte("fri test"), proof, false)
	nColumns := util.Pow2(params.StepList[0])
	tv, err := commitment.NewTableVerifier(channel, params.Bases.Size(0)/nColumns, nColumns)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tv.ReadCommitment(), qt.IsNil)
	verifier, err := NewVerifier(channel, params, verifierFirstLayerFetcher(tv, nColumns))
	qt.Assert(t, err, qt.IsNil)
	return verifier.Verify()
}

func testParams(logSize int, steps []int, lastLayerDegreeBound uint64) *Parameters {
	return &Parameters{
		StepList:             steps,
		LastLayerDegreeBound: lastLayerDegreeBound,
		NQueries:             4,
		ProofOfWorkBits:      4,
		Bases:                domainBases(logSize),
	}
}

func TestFriRoundTrip(t *testing.T) {
	params := testParams(6, []int{2, 1}, 2)
	proof := proveFri(t, params, DefaultProverConfig(), testPoly(15))
	qt.Assert(t, verifyFri(t, params, proof), qt.IsNil)
}

func TestFriRoundTripSingleRound(t *testing.T) {
	params := testParams(6, []int{3}, 2)
	proof := proveFri(t, params, DefaultProverConfig(), testPoly(15))
	qt.Assert(t, verifyFri(t, params, proof), qt.IsNil)
}

func TestFriRoundTripOutOfMemoryLayers(t *testing.T) {
	params := testParams(8, []int{2, 2}, 4)
	cfg := DefaultProverConfig()
	cfg.LogNMaxInMemoryElements = 4
	channel := transcript.NewProver([]byte("fri test"), false)
	coeffs := testPoly(int(params.ExpectedDegreeBound()) - 1)
	evals := fullEvaluation(coeffs, params.Bases)
	witness := evals[:params.ExpectedDegreeBound()]
	tp, nColumns := commitWitness(t, channel, evals, params.StepList[0])
	prover, err := NewProver(channel, params, cfg, witness, proverFirstLayerCallback(tp, evals, nColumns))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prover.Prove(), qt.IsNil)
	qt.Assert(t, verifyFri(t, params, channel.Proof()), qt.IsNil)
}

func TestFriRejectsTamperedProof(t *testing.T) {
	params := testParams(6, []int{2, 1}, 2)
	proof := proveFri(t, params, DefaultProverConfig(), testPoly(15))
	for _, pos := range []int{0, len(proof) / 2, len(proof) - 1} {
		tampered := append([]byte{}, proof...)
		tampered[pos] ^= 1
		qt.Assert(t, verifyFri(t, params, tampered), qt.IsNotNil)
	}
}

func TestProverRejectsHighDegreeWitness(t *testing.T) {
	params := testParams(6, []int{2, 1}, 2)
	channel := transcript.NewProver([]byte("fri test"), false)
	// Degree 20 exceeds the certified bound of 16; the witness covers two
	// sub-domain cosets so the excess survives folding.
	evals := fullEvaluation(testPoly(20), params.Bases)
	witness := evals[:2*params.ExpectedDegreeBound()]
	prover, err := NewProver(channel, params, DefaultProverConfig(), witness,
		func([]uint64) error { return nil })
	qt.Assert(t, err, qt.IsNil)
	err = prover.Prove()
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, strings.Contains(err.Error(), "last FRI layer is of degree"), qt.IsTrue)
}

func TestApplyFriLayersMatchesCoefficientFolding(t *testing.T) {
	bases := domainBases(6)
	coeffs := testPoly(15)
	evals := fullEvaluation(coeffs, bases)

	var evalPoint fr.Element
	evalPoint.SetUint64(31337)

	// Two manual folds on the coefficients: f = g(x^2) + x*h(x^2) maps to
	// 2*(g + a*h), with the point squared between folds.
	folded := coeffs
	point := evalPoint
	for s := 0; s < 2; s++ {
		next := make([]fr.Element, (len(folded)+1)/2)
		var two fr.Element
		two.SetUint64(2)
		for i := range next {
			next[i] = folded[2*i]
			if 2*i+1 < len(folded) {
				var odd fr.Element
				odd.Mul(&folded[2*i+1], &point)
				next[i].Add(&next[i], &odd)
			}
			next[i].Mul(&next[i], &two)
		}
		folded = next
		point = algebra.ApplyBasisTransform(point)
	}

	params := testParams(6, []int{2, 1}, 2)
	for _, cosetIndex := range []uint64{0, 3, 7} {
		got, err := applyFriLayers(evals[cosetIndex*4:(cosetIndex+1)*4], &evalPoint, params, 0, cosetIndex*4)
		qt.Assert(t, err, qt.IsNil)
		x := bases.ElementAt(2, cosetIndex)
		want := algebra.EvalAt(folded, x)
		qt.Assert(t, got.Equal(&want), qt.IsTrue)
	}
}

func TestLayerVariantsAgree(t *testing.T) {
	bases := domainBases(6)
	coeffs := testPoly(15)
	evals := fullEvaluation(coeffs, bases)

	full, err := NewInMemoryLayerFromEvaluation(evals, bases)
	qt.Assert(t, err, qt.IsNil)
	oom, err := NewOutOfMemoryLayer(append([]fr.Element{}, evals[:16]...), bases)
	qt.Assert(t, err, qt.IsNil)

	got, err := materialize(oom)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got, qt.DeepEquals, evals)

	var evalPoint fr.Element
	evalPoint.SetUint64(999)
	cfg := DefaultProverConfig()
	proxyFull := NewProxyLayer(full, evalPoint, &cfg)
	proxyOom := NewProxyLayer(oom, evalPoint, &cfg)
	indices := []uint64{0, 1, 5, 17, 30}
	a, err := proxyFull.EvalAtIndices(indices)
	qt.Assert(t, err, qt.IsNil)
	b, err := proxyOom.EvalAtIndices(indices)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, a, qt.DeepEquals, b)

	fromChunks, err := materialize(proxyOom)
	qt.Assert(t, err, qt.IsNil)
	all, err := proxyFull.EvalAtIndices(indicesUpTo(proxyFull.Size()))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, fromChunks, qt.DeepEquals, all)
}

func indicesUpTo(n uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i)
	}
	return out
}

func TestQueryIndexExpansion(t *testing.T) {
	qt.Assert(t, secondLayerQueriesToFirstLayerQueries([]uint64{2, 5}, 2), qt.DeepEquals,
		[]uint64{8, 9, 10, 11, 20, 21, 22, 23})

	params := testParams(6, []int{1, 2}, 2)
	data, integrity := nextLayerDataAndIntegrityQueries([]uint64{6}, params, 1)
	qt.Assert(t, integrity, qt.DeepEquals, []commitment.RowCol{{Row: 1, Col: 2}})
	qt.Assert(t, data, qt.DeepEquals, []commitment.RowCol{
		{Row: 1, Col: 0}, {Row: 1, Col: 1}, {Row: 1, Col: 3},
	})
}

func TestParametersValidation(t *testing.T) {
	params := testParams(6, []int{2, 0}, 2)
	qt.Assert(t, params.Validate(), qt.IsNotNil)
	params = testParams(6, []int{2, 1}, 3)
	qt.Assert(t, params.Validate(), qt.IsNotNil)
	params = testParams(6, []int{2, 1}, 2)
	qt.Assert(t, params.Validate(), qt.IsNil)
	qt.Assert(t, params.ExpectedDegreeBound(), qt.Equals, uint64(16))
}
