// Command starkprover proves and verifies Fibonacci claims: "the
// claimIndex-th element of the Fibonacci sequence starting 1, w is the
// committed public value". The witness w stays private; the proof artifact
// carries the transcript and the public parameters needed to replay it.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"slices"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	flag "github.com/spf13/pflag"

	"github.com/starkforge/stark/air"
	"github.com/starkforge/stark/air/fibonacci"
	"github.com/starkforge/stark/fri"
	"github.com/starkforge/stark/log"
	"github.com/starkforge/stark/stark"
	"github.com/starkforge/stark/transcript"
	"github.com/starkforge/stark/types"
)

// proofSeed domain-separates the transcript; the public input is appended
// so proofs are bound to the claim they attest.
const proofSeed = "starkforge.stark.fibonacci"

type friConfig struct {
	StepList             []int  `json:"stepList"`
	LastLayerDegreeBound uint64 `json:"lastLayerDegreeBound"`
	NQueries             int    `json:"nQueries"`
	ProofOfWorkBits      int    `json:"proofOfWorkBits"`
}

type instanceParams struct {
	TraceLength uint64    `json:"traceLength"`
	LogNCosets  int       `json:"logNCosets"`
	ClaimIndex  uint64    `json:"claimIndex"`
	Fri         friConfig `json:"fri"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "prove":
		err = prove(os.Args[2:])
	case "verify":
		err = verify(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  starkprover prove  --params <file.json> --witness <number> [--output proof.cbor]
  starkprover verify --params <file.json> --proof <proof.cbor>
`)
}

func readParams(path string) (*instanceParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the parameters file: %w", err)
	}
	params := &instanceParams{}
	if err := json.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("failed to parse the parameters file: %w", err)
	}
	return params, nil
}

// starkParameters builds the proof instance shared by both subcommands.
func starkParameters(traceLength, nCosets, claimIndex uint64, friCfg friConfig,
	claimedValue fr.Element) (*stark.Parameters, error) {
	a, err := fibonacci.New(traceLength, claimIndex, claimedValue)
	if err != nil {
		return nil, err
	}
	return stark.NewParameters(nCosets, a, &fri.Parameters{
		StepList:             friCfg.StepList,
		LastLayerDegreeBound: friCfg.LastLayerDegreeBound,
		NQueries:             friCfg.NQueries,
		ProofOfWorkBits:      friCfg.ProofOfWorkBits,
	})
}

func channelSeed(publicInput []byte) []byte {
	return append([]byte(proofSeed), publicInput...)
}

// checkReplayParams rejects artifacts whose replay parameters disagree with
// the local parameters file. The artifact's copy is prover-chosen: the
// soundness-bearing values (query count, grinding, domain sizes) must come
// from the verifier's own configuration, never from the proof.
func checkReplayParams(params *instanceParams, artifact *types.Proof) error {
	if artifact.TraceLength != params.TraceLength {
		return fmt.Errorf("proof artifact trace length %d disagrees with the configured %d",
			artifact.TraceLength, params.TraceLength)
	}
	if nCosets := uint64(1) << params.LogNCosets; artifact.NCosets != nCosets {
		return fmt.Errorf("proof artifact coset count %d disagrees with the configured %d",
			artifact.NCosets, nCosets)
	}
	if !slices.Equal(artifact.FriStepList, params.Fri.StepList) {
		return fmt.Errorf("proof artifact FRI step list %v disagrees with the configured %v",
			artifact.FriStepList, params.Fri.StepList)
	}
	if artifact.LastLayerDegreeBound != params.Fri.LastLayerDegreeBound {
		return fmt.Errorf("proof artifact last layer degree bound %d disagrees with the configured %d",
			artifact.LastLayerDegreeBound, params.Fri.LastLayerDegreeBound)
	}
	if artifact.NQueries != params.Fri.NQueries {
		return fmt.Errorf("proof artifact query count %d disagrees with the configured %d",
			artifact.NQueries, params.Fri.NQueries)
	}
	if artifact.ProofOfWorkBits != params.Fri.ProofOfWorkBits {
		return fmt.Errorf("proof artifact proof of work bits %d disagree with the configured %d",
			artifact.ProofOfWorkBits, params.Fri.ProofOfWorkBits)
	}
	return nil
}

func prove(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	paramsPath := fs.String("params", "params.json", "instance parameters file")
	witnessStr := fs.String("witness", "", "private witness (decimal or 0x hex)")
	output := fs.String("output", "proof.cbor", "proof artifact output path")
	logLevel := fs.String("loglevel", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log.Init(*logLevel, "stdout", nil)

	params, err := readParams(*paramsPath)
	if err != nil {
		return err
	}
	witnessInt, ok := new(big.Int).SetString(*witnessStr, 0)
	if !ok {
		return fmt.Errorf("invalid witness %q", *witnessStr)
	}
	var witness fr.Element
	witness.SetBigInt(witnessInt)

	claimedValue := fibonacci.PublicInputFromPrivateInput(witness, params.ClaimIndex)
	nCosets := uint64(1) << params.LogNCosets
	starkParams, err := starkParameters(params.TraceLength, nCosets, params.ClaimIndex,
		params.Fri, claimedValue)
	if err != nil {
		return err
	}
	trace, err := fibonacci.GetTrace(witness, params.TraceLength, params.ClaimIndex)
	if err != nil {
		return err
	}
	traceContext, err := air.NewSimpleTraceContext(starkParams.Air, trace)
	if err != nil {
		return err
	}

	publicInput := claimedValue.Bytes()
	channel := transcript.NewProver(channelSeed(publicInput[:]), false)
	log.Infow("proving", "traceLength", params.TraceLength, "nCosets", nCosets,
		"claimIndex", params.ClaimIndex, "claimedValue", claimedValue.String())
	proofBytes, err := stark.NewProver(channel, starkParams, stark.DefaultProverConfig()).
		Prove(traceContext)
	if err != nil {
		return fmt.Errorf("proving failed: %w", err)
	}

	artifact := &types.Proof{
		Transcript:           proofBytes,
		TraceLength:          params.TraceLength,
		NCosets:              nCosets,
		FriStepList:          params.Fri.StepList,
		LastLayerDegreeBound: params.Fri.LastLayerDegreeBound,
		NQueries:             params.Fri.NQueries,
		ProofOfWorkBits:      params.Fri.ProofOfWorkBits,
		PublicInput:          publicInput[:],
	}
	data, err := artifact.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write the proof artifact: %w", err)
	}
	log.Infow("proof generated", "output", *output, "proofBytes", len(proofBytes),
		"artifactBytes", len(data))
	return nil
}

func verify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	paramsPath := fs.String("params", "params.json", "instance parameters file")
	proofPath := fs.String("proof", "proof.cbor", "proof artifact path")
	logLevel := fs.String("loglevel", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log.Init(*logLevel, "stdout", nil)

	params, err := readParams(*paramsPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*proofPath)
	if err != nil {
		return fmt.Errorf("failed to read the proof artifact: %w", err)
	}
	artifact := &types.Proof{}
	if err := artifact.Unmarshal(data); err != nil {
		return err
	}
	if err := checkReplayParams(params, artifact); err != nil {
		return err
	}

	var claimedValue fr.Element
	claimedValue.SetBytes(artifact.PublicInput)
	nCosets := uint64(1) << params.LogNCosets
	starkParams, err := starkParameters(params.TraceLength, nCosets,
		params.ClaimIndex, params.Fri, claimedValue)
	if err != nil {
		return err
	}

	channel := transcript.NewVerifier(channelSeed(artifact.PublicInput), artifact.Transcript, false)
	if err := stark.NewVerifier(channel, starkParams).Verify(); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	log.Infow("proof verified", "traceLength", artifact.TraceLength,
		"claimIndex", params.ClaimIndex, "claimedValue", claimedValue.String())
	return nil
}
